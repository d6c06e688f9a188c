package controllers

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	apitypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/rand"

	"github.com/tofarr/mockernetes/events"
	"github.com/tofarr/mockernetes/storage"
	typesv1 "github.com/tofarr/mockernetes/types/v1"
)

// deploymentController owns one ReplicaSet per deployment. A change to the
// pod template produces a new template hash, so the stale ReplicaSet is
// deleted and a fresh one created in its place; its pods cascade away with
// it. Replica count changes scale the existing ReplicaSet.
type deploymentController struct {
	log      logr.Logger
	recorder events.Recorder
}

// NewDeploymentController returns the controller reconciling Deployments
// into ReplicaSets.
func NewDeploymentController(log logr.Logger, recorder events.Recorder) Controller {
	return &deploymentController{
		log:      log.WithName("deployment-controller"),
		recorder: recorder,
	}
}

var _ Controller = (*deploymentController)(nil)

func (c *deploymentController) Kind() schema.GroupVersionKind {
	return typesv1.DeploymentGVK
}

func (c *deploymentController) Reconcile(ctx context.Context, cl Client, req Request) error {
	obj, err := cl.Get(typesv1.DeploymentGVK, req.Key)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	deploy, ok := obj.(*typesv1.Deployment)
	if !ok {
		return fmt.Errorf("expected Deployment, got %T", obj)
	}

	desired := int32(1)
	if deploy.Spec.Replicas != nil {
		desired = *deploy.Spec.Replicas
	}
	hash := templateHash(&deploy.Spec.Template)
	wantName := fmt.Sprintf("%s-%s", deploy.Name, hash)

	owned, err := ownedBy(cl, typesv1.ReplicaSetGVK, deploy.Namespace, deploy.UID)
	if err != nil {
		return err
	}

	var current *typesv1.ReplicaSet
	for _, o := range owned {
		rs, ok := o.(*typesv1.ReplicaSet)
		if !ok {
			continue
		}
		if rs.Name == wantName {
			current = rs
			continue
		}
		// Template changed: the old generation is replaced wholesale.
		err := cl.Delete(typesv1.ReplicaSetGVK, storage.KeyFromObject(rs), metav1.DeletePropagationBackground)
		if err != nil && !apierrors.IsNotFound(err) {
			return err
		}
		c.log.V(1).Info("deleted stale replica set", "deployment", req.Key.String(), "replicaset", rs.Name)
		c.recorder.Eventf(deploy, events.EventTypeNormal, events.ReasonScalingReplicaSet,
			"Scaled down replica set %s to 0", rs.Name)
	}

	switch {
	case current == nil:
		rs := newReplicaSet(deploy, wantName, desired)
		if _, err := cl.Create(rs); err != nil {
			c.recorder.Eventf(deploy, events.EventTypeWarning, events.ReasonFailedCreate,
				"Error creating replica set %s: %v", wantName, err)
			return err
		}
		c.recorder.Eventf(deploy, events.EventTypeNormal, events.ReasonScalingReplicaSet,
			"Scaled up replica set %s to %d", wantName, desired)
	case current.Spec.Replicas == nil || *current.Spec.Replicas != desired:
		previous := int32(1)
		if current.Spec.Replicas != nil {
			previous = *current.Spec.Replicas
		}
		current.Spec.Replicas = &desired
		if _, err := cl.Update(current); err != nil {
			return err
		}
		verb := "up"
		if desired < previous {
			verb = "down"
		}
		c.recorder.Eventf(deploy, events.EventTypeNormal, events.ReasonScalingReplicaSet,
			"Scaled %s replica set %s to %d", verb, wantName, desired)
	}

	return c.updateStatus(cl, req.Key, wantName)
}

// updateStatus re-reads the deployment before writing status so the write
// carries the current resource version. Counts come from the current
// ReplicaSet's observed status, not from the desired replica count; the
// ReplicaSet's own status write re-enqueues the deployment, so the
// aggregate catches up within the same sync.
func (c *deploymentController) updateStatus(cl Client, key storage.ObjectKey, rsName string) error {
	obj, err := cl.Get(typesv1.DeploymentGVK, key)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	deploy := obj.(*typesv1.Deployment)

	var observed typesv1.ReplicaSetStatus
	rsObj, err := cl.Get(typesv1.ReplicaSetGVK, storage.ObjectKey{Namespace: key.Namespace, Name: rsName})
	if err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	if rs, ok := rsObj.(*typesv1.ReplicaSet); ok {
		observed = rs.Status
	}

	status := typesv1.DeploymentStatus{
		ObservedGeneration: deploy.Generation,
		Replicas:           observed.Replicas,
		UpdatedReplicas:    observed.Replicas,
		ReadyReplicas:      observed.ReadyReplicas,
		AvailableReplicas:  observed.AvailableReplicas,
	}
	if deploy.Status.Replicas == status.Replicas &&
		deploy.Status.ReadyReplicas == status.ReadyReplicas &&
		deploy.Status.AvailableReplicas == status.AvailableReplicas &&
		deploy.Status.UpdatedReplicas == status.UpdatedReplicas &&
		deploy.Status.ObservedGeneration == status.ObservedGeneration {
		return nil
	}
	deploy.Status = status
	_, err = cl.UpdateStatus(deploy)
	return err
}

func newReplicaSet(deploy *typesv1.Deployment, name string, replicas int32) *typesv1.ReplicaSet {
	labels := deploy.Spec.Template.Labels
	rs := &typesv1.ReplicaSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: deploy.Namespace,
			Labels:    labels,
			OwnerReferences: []metav1.OwnerReference{
				*metav1.NewControllerRef(deploy, typesv1.DeploymentGVK),
			},
		},
		Spec: typesv1.ReplicaSetSpec{
			Replicas: &replicas,
			Selector: deploy.Spec.Selector,
			Template: deploy.Spec.Template,
		},
	}
	rs.GetObjectKind().SetGroupVersionKind(typesv1.ReplicaSetGVK)
	return rs
}

// templateHash produces a short stable suffix identifying a pod template,
// in the manner of the upstream pod-template-hash label.
func templateHash(template *typesv1.PodTemplateSpec) string {
	hasher := fnv.New32a()
	fmt.Fprintf(hasher, "%v", template)
	return rand.SafeEncodeString(fmt.Sprint(hasher.Sum32()))
}

// ownedBy lists objects of gvk in namespace whose controller reference
// points at ownerUID.
func ownedBy(cl Client, gvk schema.GroupVersionKind, namespace string, ownerUID apitypes.UID) ([]storage.Object, error) {
	objs, err := cl.List(gvk, storage.ListOptions{Namespace: namespace})
	if err != nil {
		return nil, err
	}
	var owned []storage.Object
	for _, o := range objs {
		if ref := metav1.GetControllerOf(o); ref != nil && ref.UID == ownerUID {
			owned = append(owned, o)
		}
	}
	return owned, nil
}
