package controllers

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/tofarr/mockernetes/events"
	"github.com/tofarr/mockernetes/storage"
	typesv1 "github.com/tofarr/mockernetes/types/v1"
)

// replicaSetController maintains one pod per desired replica. Pods are
// named <replicaset>-<index>; scale-out fills the lowest free indexes and
// scale-down removes the highest ones first.
type replicaSetController struct {
	log      logr.Logger
	recorder events.Recorder
}

// NewReplicaSetController returns the controller reconciling ReplicaSets
// into Pods.
func NewReplicaSetController(log logr.Logger, recorder events.Recorder) Controller {
	return &replicaSetController{
		log:      log.WithName("replicaset-controller"),
		recorder: recorder,
	}
}

var _ Controller = (*replicaSetController)(nil)

func (c *replicaSetController) Kind() schema.GroupVersionKind {
	return typesv1.ReplicaSetGVK
}

func (c *replicaSetController) Reconcile(ctx context.Context, cl Client, req Request) error {
	obj, err := cl.Get(typesv1.ReplicaSetGVK, req.Key)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	rs, ok := obj.(*typesv1.ReplicaSet)
	if !ok {
		return fmt.Errorf("expected ReplicaSet, got %T", obj)
	}

	desired := int32(1)
	if rs.Spec.Replicas != nil {
		desired = *rs.Spec.Replicas
	}

	owned, err := ownedBy(cl, typesv1.PodGVK, rs.Namespace, rs.UID)
	if err != nil {
		return err
	}
	pods := make([]*typesv1.Pod, 0, len(owned))
	taken := sets.New[string]()
	for _, o := range owned {
		pod, ok := o.(*typesv1.Pod)
		if !ok {
			continue
		}
		pods = append(pods, pod)
		taken.Insert(pod.Name)
	}
	sort.Slice(pods, func(i, j int) bool { return pods[i].Name < pods[j].Name })

	if excess := len(pods) - int(desired); excess > 0 {
		for _, pod := range pods[len(pods)-excess:] {
			err := cl.Delete(typesv1.PodGVK, storage.KeyFromObject(pod), metav1.DeletePropagationBackground)
			if err != nil && !apierrors.IsNotFound(err) {
				c.recorder.Eventf(rs, events.EventTypeWarning, events.ReasonFailedDelete,
					"Error deleting pod %s: %v", pod.Name, err)
				return err
			}
			c.recorder.Eventf(rs, events.EventTypeNormal, events.ReasonSuccessfulDelete,
				"Deleted pod: %s", pod.Name)
		}
		pods = pods[:len(pods)-excess]
	}

	for next := 0; len(pods) < int(desired); next++ {
		name := fmt.Sprintf("%s-%d", rs.Name, next)
		if taken.Has(name) {
			continue
		}
		pod := newPod(rs, name)
		created, err := cl.Create(pod)
		if err != nil {
			c.recorder.Eventf(rs, events.EventTypeWarning, events.ReasonFailedCreate,
				"Error creating pod %s: %v", name, err)
			return err
		}
		c.log.V(1).Info("created pod", "replicaset", req.Key.String(), "pod", name)
		c.recorder.Eventf(rs, events.EventTypeNormal, events.ReasonSuccessfulCreate,
			"Created pod: %s", name)
		taken.Insert(name)
		pods = append(pods, created.(*typesv1.Pod))
	}

	return c.updateStatus(cl, req.Key, int32(len(pods)))
}

func (c *replicaSetController) updateStatus(cl Client, key storage.ObjectKey, observed int32) error {
	obj, err := cl.Get(typesv1.ReplicaSetGVK, key)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	rs := obj.(*typesv1.ReplicaSet)
	status := typesv1.ReplicaSetStatus{
		ObservedGeneration:   rs.Generation,
		Replicas:             observed,
		FullyLabeledReplicas: observed,
		ReadyReplicas:        observed,
		AvailableReplicas:    observed,
	}
	if rs.Status.Replicas == status.Replicas &&
		rs.Status.ReadyReplicas == status.ReadyReplicas &&
		rs.Status.AvailableReplicas == status.AvailableReplicas &&
		rs.Status.FullyLabeledReplicas == status.FullyLabeledReplicas &&
		rs.Status.ObservedGeneration == status.ObservedGeneration {
		return nil
	}
	rs.Status = status
	_, err = cl.UpdateStatus(rs)
	return err
}

func newPod(rs *typesv1.ReplicaSet, name string) *typesv1.Pod {
	pod := &typesv1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: rs.Namespace,
			Labels:    rs.Spec.Template.Labels,
			OwnerReferences: []metav1.OwnerReference{
				*metav1.NewControllerRef(rs, typesv1.ReplicaSetGVK),
			},
		},
		Spec: rs.Spec.Template.Spec,
	}
	pod.GetObjectKind().SetGroupVersionKind(typesv1.PodGVK)
	return pod
}
