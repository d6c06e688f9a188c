package cluster_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	apistorage "k8s.io/apiserver/pkg/storage"

	"github.com/tofarr/mockernetes/cluster"
	"github.com/tofarr/mockernetes/events"
	"github.com/tofarr/mockernetes/storage"
	typesv1 "github.com/tofarr/mockernetes/types/v1"
	"github.com/tofarr/mockernetes/validation"
)

var _ = Describe("Cluster", func() {
	var (
		c   *cluster.Cluster
		ctx context.Context
	)

	BeforeEach(func() {
		var err error
		c, err = cluster.New()
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	listPods := func(namespace, labelSelector string) []storage.Object {
		pods, err := c.List(ctx, typesv1.PodGVK, cluster.ListOptions{
			Namespace:     namespace,
			LabelSelector: labelSelector,
		})
		Expect(err).NotTo(HaveOccurred())
		return pods
	}

	Describe("scale-out", func() {
		It("expands a deployment into running pods before Create returns", func() {
			created, err := c.Create(ctx, typesv1.NewDeployment("default", "web", 3, map[string]string{"app": "web"}))
			Expect(err).NotTo(HaveOccurred())
			Expect(created.(*typesv1.Deployment).Status.ReadyReplicas).To(Equal(int32(3)))

			pods := listPods("default", "app=web")
			Expect(pods).To(HaveLen(3))

			rss, err := c.List(ctx, typesv1.ReplicaSetGVK, cluster.ListOptions{Namespace: "default"})
			Expect(err).NotTo(HaveOccurred())
			Expect(rss).To(HaveLen(1))
			rs := rss[0].(*typesv1.ReplicaSet)

			for _, obj := range pods {
				pod := obj.(*typesv1.Pod)
				ref := metav1.GetControllerOf(pod)
				Expect(ref).NotTo(BeNil())
				Expect(ref.Kind).To(Equal("ReplicaSet"))
				Expect(ref.Name).To(Equal(rs.Name))
				Expect(ref.UID).To(Equal(rs.UID))
				Expect(*ref.Controller).To(BeTrue())

				Expect(pod.Status.Phase).To(Equal(corev1.PodRunning))
				for _, cs := range pod.Status.ContainerStatuses {
					Expect(cs.Ready).To(BeTrue())
				}
			}
		})

		It("scales down to the requested count and records scaling events", func() {
			created, err := c.Create(ctx, typesv1.NewDeployment("default", "web", 3, map[string]string{"app": "web"}))
			Expect(err).NotTo(HaveOccurred())

			one := int32(1)
			updated := created.DeepCopyObject().(*typesv1.Deployment)
			updated.Spec.Replicas = &one
			result, err := c.Update(ctx, updated)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.(*typesv1.Deployment).Status.ReadyReplicas).To(Equal(int32(1)))

			Expect(listPods("default", "app=web")).To(HaveLen(1))

			deployEvents, err := c.EventsFor(ctx, created)
			Expect(err).NotTo(HaveOccurred())
			var reasons []string
			for _, e := range deployEvents {
				reasons = append(reasons, e.Reason)
			}
			Expect(reasons).To(ContainElement(events.ReasonScalingReplicaSet))
		})
	})

	Describe("optimistic concurrency", func() {
		It("rejects an update carrying a stale resource version", func() {
			created, err := c.Create(ctx, typesv1.NewDeployment("default", "web", 1, map[string]string{"app": "web"}))
			Expect(err).NotTo(HaveOccurred())
			stale := created.DeepCopyObject().(*typesv1.Deployment)

			two := int32(2)
			fresh := created.DeepCopyObject().(*typesv1.Deployment)
			fresh.Spec.Replicas = &two
			_, err = c.Update(ctx, fresh)
			Expect(err).NotTo(HaveOccurred())

			three := int32(3)
			stale.Spec.Replicas = &three
			_, err = c.Update(ctx, stale)
			Expect(apierrors.IsConflict(err)).To(BeTrue())
		})
	})

	Describe("self-healing", func() {
		It("replaces a pod deleted out from under its replica set", func() {
			_, err := c.Create(ctx, typesv1.NewDeployment("default", "web", 2, map[string]string{"app": "web"}))
			Expect(err).NotTo(HaveOccurred())

			pods := listPods("default", "app=web")
			Expect(pods).To(HaveLen(2))
			victim := pods[0]

			_, err = c.Delete(ctx, typesv1.PodGVK, storage.KeyFromObject(victim), cluster.DeleteOptions{})
			Expect(err).NotTo(HaveOccurred())

			replaced := listPods("default", "app=web")
			Expect(replaced).To(HaveLen(2))
			for _, p := range replaced {
				if p.GetName() == victim.GetName() {
					Expect(p.GetUID()).NotTo(Equal(victim.GetUID()))
				}
			}
		})
	})

	Describe("cascading deletion", func() {
		It("removes the deployment, its replica set and pods under Foreground", func() {
			created, err := c.Create(ctx, typesv1.NewDeployment("default", "web", 2, map[string]string{"app": "web"}))
			Expect(err).NotTo(HaveOccurred())

			res, err := c.Delete(ctx, typesv1.DeploymentGVK, storage.KeyFromObject(created), cluster.DeleteOptions{
				Propagation: metav1.DeletePropagationForeground,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Deleted).To(HaveLen(4)) // deployment + replica set + 2 pods

			Expect(listPods("default", "app=web")).To(BeEmpty())
			_, err = c.Get(ctx, typesv1.DeploymentGVK, storage.KeyFromObject(created))
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})

		It("keeps children alive with their references stripped under Orphan", func() {
			created, err := c.Create(ctx, typesv1.NewDeployment("default", "web", 2, map[string]string{"app": "web"}))
			Expect(err).NotTo(HaveOccurred())

			res, err := c.Delete(ctx, typesv1.DeploymentGVK, storage.KeyFromObject(created), cluster.DeleteOptions{
				Propagation: metav1.DeletePropagationOrphan,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Orphaned).To(HaveLen(1))

			rss, err := c.List(ctx, typesv1.ReplicaSetGVK, cluster.ListOptions{Namespace: "default"})
			Expect(err).NotTo(HaveOccurred())
			Expect(rss).To(HaveLen(1))
			Expect(rss[0].GetOwnerReferences()).To(BeEmpty())
			Expect(listPods("default", "app=web")).To(HaveLen(2))
		})

		It("sweeps a namespace and everything in it", func() {
			_, err := c.Create(ctx, typesv1.NewNamespace("team-a"))
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Create(ctx, typesv1.NewDeployment("team-a", "web", 2, map[string]string{"app": "web"}))
			Expect(err).NotTo(HaveOccurred())

			_, err = c.Delete(ctx, typesv1.NamespaceGVK, storage.ObjectKey{Name: "team-a"}, cluster.DeleteOptions{})
			Expect(err).NotTo(HaveOccurred())

			Expect(listPods("team-a", "")).To(BeEmpty())
			deployments, err := c.List(ctx, typesv1.DeploymentGVK, cluster.ListOptions{Namespace: "team-a"})
			Expect(err).NotTo(HaveOccurred())
			Expect(deployments).To(BeEmpty())
		})

		It("enforces delete preconditions", func() {
			created, err := c.Create(ctx, typesv1.NewDeployment("default", "web", 1, map[string]string{"app": "web"}))
			Expect(err).NotTo(HaveOccurred())

			wrong := types.UID("not-the-uid")
			_, err = c.Delete(ctx, typesv1.DeploymentGVK, storage.KeyFromObject(created), cluster.DeleteOptions{
				Preconditions: &apistorage.Preconditions{UID: &wrong},
			})
			Expect(apierrors.IsConflict(err)).To(BeTrue())
		})
	})

	Describe("owner reference cycles", func() {
		It("rejects an update that would close a cycle", func() {
			parent, err := c.Create(ctx, typesv1.NewDeployment("default", "a", 1, map[string]string{"app": "a"}))
			Expect(err).NotTo(HaveOccurred())

			rss, err := c.List(ctx, typesv1.ReplicaSetGVK, cluster.ListOptions{Namespace: "default"})
			Expect(err).NotTo(HaveOccurred())
			child := rss[0]

			mutated := parent.DeepCopyObject().(storage.Object)
			mutated.SetOwnerReferences([]metav1.OwnerReference{{
				APIVersion: "apps/v1",
				Kind:       "ReplicaSet",
				Name:       child.GetName(),
				UID:        child.GetUID(),
			}})
			_, err = c.Update(ctx, mutated)
			Expect(apierrors.IsInvalid(err)).To(BeTrue())
		})
	})

	Describe("simulated resources", func() {
		It("allocates distinct cluster IPs to services", func() {
			a, err := c.Create(ctx, &typesv1.Service{
				ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "svc-a"},
				Spec:       corev1.ServiceSpec{Ports: []corev1.ServicePort{{Port: 80}}},
			})
			Expect(err).NotTo(HaveOccurred())
			b, err := c.Create(ctx, &typesv1.Service{
				ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "svc-b"},
				Spec:       corev1.ServiceSpec{Ports: []corev1.ServicePort{{Port: 80}}},
			})
			Expect(err).NotTo(HaveOccurred())

			svcA := a.(*typesv1.Service)
			svcB := b.(*typesv1.Service)
			Expect(svcA.Spec.Type).To(Equal(corev1.ServiceTypeClusterIP))
			Expect(svcA.Spec.ClusterIP).To(HavePrefix("10.96."))
			Expect(svcB.Spec.ClusterIP).To(HavePrefix("10.96."))
			Expect(svcA.Spec.ClusterIP).NotTo(Equal(svcB.Spec.ClusterIP))
		})

		It("binds persistent volume claims on create", func() {
			created, err := c.Create(ctx, &typesv1.PersistentVolumeClaim{
				ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "data"},
				Spec: corev1.PersistentVolumeClaimSpec{
					AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(created.(*typesv1.PersistentVolumeClaim).Status.Phase).To(Equal(corev1.ClaimBound))
		})
	})

	Describe("Patch", func() {
		It("applies a strategic merge patch and reconciles the result", func() {
			created, err := c.Create(ctx, typesv1.NewDeployment("default", "web", 2, map[string]string{"app": "web"}))
			Expect(err).NotTo(HaveOccurred())

			patched, err := c.Patch(ctx, typesv1.DeploymentGVK, storage.KeyFromObject(created),
				types.StrategicMergePatchType, []byte(`{"spec":{"replicas":4}}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(*patched.(*typesv1.Deployment).Spec.Replicas).To(Equal(int32(4)))
			Expect(listPods("default", "app=web")).To(HaveLen(4))
		})

		It("applies a JSON merge patch to labels", func() {
			created, err := c.Create(ctx, typesv1.NewDeployment("default", "web", 1, map[string]string{"app": "web"}))
			Expect(err).NotTo(HaveOccurred())

			patched, err := c.Patch(ctx, typesv1.DeploymentGVK, storage.KeyFromObject(created),
				types.MergePatchType, []byte(`{"metadata":{"labels":{"tier":"frontend"}}}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(patched.GetLabels()).To(HaveKeyWithValue("tier", "frontend"))
			Expect(patched.GetLabels()).To(HaveKeyWithValue("app", "web"))
		})

		It("rejects an unsupported patch type", func() {
			created, err := c.Create(ctx, typesv1.NewDeployment("default", "web", 1, map[string]string{"app": "web"}))
			Expect(err).NotTo(HaveOccurred())

			_, err = c.Patch(ctx, typesv1.DeploymentGVK, storage.KeyFromObject(created),
				types.ApplyPatchType, []byte(`{}`))
			Expect(apierrors.IsBadRequest(err)).To(BeTrue())
		})
	})

	Describe("events", func() {
		It("answers an event query scoped to one object", func() {
			created, err := c.Create(ctx, typesv1.NewDeployment("default", "web", 1, map[string]string{"app": "web"}))
			Expect(err).NotTo(HaveOccurred())

			scoped, err := c.EventsFor(ctx, created)
			Expect(err).NotTo(HaveOccurred())
			Expect(scoped).NotTo(BeEmpty())
			for _, e := range scoped {
				Expect(e.InvolvedObject.UID).To(Equal(created.GetUID()))
			}

			all := c.Events(ctx, nil)
			Expect(len(all)).To(BeNumerically(">", len(scoped)))
		})

		It("caps the log at the configured limit", func() {
			limited, err := cluster.New(cluster.WithEventLogLimit(4))
			Expect(err).NotTo(HaveOccurred())
			for _, name := range []string{"a", "b", "c", "d", "e"} {
				_, err := limited.Create(ctx, typesv1.NewDeployment("default", name, 1, map[string]string{"app": name}))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(limited.Events(ctx, nil)).To(HaveLen(4))
		})
	})

	Describe("validation wiring", func() {
		It("enforces configured CEL rules", func() {
			guarded, err := cluster.New(cluster.WithValidationRule(typesv1.DeploymentGVK, validation.Rule{
				Expression: "self.spec.replicas <= 5",
				Message:    "replicas must not exceed 5",
			}))
			Expect(err).NotTo(HaveOccurred())

			_, err = guarded.Create(ctx, typesv1.NewDeployment("default", "ok", 3, map[string]string{"app": "ok"}))
			Expect(err).NotTo(HaveOccurred())

			_, err = guarded.Create(ctx, typesv1.NewDeployment("default", "big", 50, map[string]string{"app": "big"}))
			Expect(apierrors.IsInvalid(err)).To(BeTrue())
		})

		It("keeps deployment status at the observed count when pods are rejected", func() {
			guarded, err := cluster.New(cluster.WithValidationRule(typesv1.PodGVK, validation.Rule{
				Expression: `!self.spec.containers.exists(c, c.image.endsWith(":latest"))`,
				Message:    "floating image tags are not allowed",
			}))
			Expect(err).NotTo(HaveOccurred())

			_, err = guarded.Create(ctx, typesv1.NewDeployment("default", "web", 3, map[string]string{"app": "web"}))
			Expect(err).To(HaveOccurred())

			fresh, err := guarded.Get(ctx, typesv1.DeploymentGVK, storage.ObjectKey{Namespace: "default", Name: "web"})
			Expect(err).NotTo(HaveOccurred())
			status := fresh.(*typesv1.Deployment).Status
			Expect(status.Replicas).To(Equal(int32(0)))
			Expect(status.ReadyReplicas).To(Equal(int32(0)))
			Expect(status.AvailableReplicas).To(Equal(int32(0)))

			pods, err := guarded.List(ctx, typesv1.PodGVK, cluster.ListOptions{Namespace: "default"})
			Expect(err).NotTo(HaveOccurred())
			Expect(pods).To(BeEmpty())
		})
	})

	Describe("PodLogs", func() {
		newPod := func(name string, phase corev1.PodPhase) *typesv1.Pod {
			return &typesv1.Pod{
				ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: name},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "app", Image: "app:1.0"}},
				},
				Status: corev1.PodStatus{Phase: phase},
			}
		}

		It("returns mock output for a running pod", func() {
			_, err := c.Create(ctx, typesv1.NewDeployment("default", "web", 1, map[string]string{"app": "web"}))
			Expect(err).NotTo(HaveOccurred())
			pods := listPods("default", "app=web")
			Expect(pods).To(HaveLen(1))

			logs, err := c.PodLogs(ctx, storage.KeyFromObject(pods[0]), cluster.PodLogOptions{Container: "app"})
			Expect(err).NotTo(HaveOccurred())
			Expect(logs).To(Equal(fmt.Sprintf("Mock logs for pod %s in container app", pods[0].GetName())))
		})

		It("returns error output for a failed pod and a placeholder otherwise", func() {
			_, err := c.Create(ctx, newPod("crashed", corev1.PodFailed))
			Expect(err).NotTo(HaveOccurred())
			logs, err := c.PodLogs(ctx, storage.ObjectKey{Namespace: "default", Name: "crashed"}, cluster.PodLogOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(logs).To(Equal("Error logs for failed pod crashed"))

			_, err = c.Create(ctx, newPod("parked", corev1.PodSucceeded))
			Expect(err).NotTo(HaveOccurred())
			logs, err = c.PodLogs(ctx, storage.ObjectKey{Namespace: "default", Name: "parked"}, cluster.PodLogOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(logs).To(Equal("No logs available for pod parked in phase Succeeded"))
		})

		It("returns the recorded termination message for the previous container", func() {
			pod := newPod("restarted", corev1.PodRunning)
			pod.Status.ContainerStatuses = []corev1.ContainerStatus{{
				Name: "app",
				LastTerminationState: corev1.ContainerState{
					Terminated: &corev1.ContainerStateTerminated{Message: "out of memory"},
				},
			}}
			_, err := c.Create(ctx, pod)
			Expect(err).NotTo(HaveOccurred())

			logs, err := c.PodLogs(ctx, storage.ObjectKey{Namespace: "default", Name: "restarted"}, cluster.PodLogOptions{Previous: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(logs).To(Equal("out of memory"))
		})

		It("propagates NotFound for a missing pod", func() {
			_, err := c.PodLogs(ctx, storage.ObjectKey{Namespace: "default", Name: "ghost"}, cluster.PodLogOptions{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("custom kinds", func() {
		It("runs unstructured objects through the same verbs", func() {
			widgetGVK := schema.GroupVersionKind{Group: "example.com", Version: "v1", Kind: "Widget"}
			custom, err := cluster.New(cluster.WithCustomKind(typesv1.ResourceInfo{
				GVK:             widgetGVK,
				NamespaceScoped: true,
			}))
			Expect(err).NotTo(HaveOccurred())

			widget := &unstructured.Unstructured{Object: map[string]interface{}{
				"apiVersion": "example.com/v1",
				"kind":       "Widget",
				"metadata": map[string]interface{}{
					"namespace": "default",
					"name":      "gizmo",
				},
				"spec": map[string]interface{}{"size": int64(3)},
			}}

			created, err := custom.Create(ctx, widget)
			Expect(err).NotTo(HaveOccurred())
			Expect(created.GetUID()).NotTo(BeEmpty())
			Expect(created.GetResourceVersion()).To(Equal("1"))

			got, err := custom.Get(ctx, widgetGVK, storage.ObjectKey{Namespace: "default", Name: "gizmo"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got.GetName()).To(Equal("gizmo"))

			_, err = custom.Delete(ctx, widgetGVK, storage.ObjectKey{Namespace: "default", Name: "gizmo"}, cluster.DeleteOptions{})
			Expect(err).NotTo(HaveOccurred())
			_, err = custom.Get(ctx, widgetGVK, storage.ObjectKey{Namespace: "default", Name: "gizmo"})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})
	})
})
