package cluster_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/tofarr/mockernetes/cluster"
	"github.com/tofarr/mockernetes/storage"
	typesv1 "github.com/tofarr/mockernetes/types/v1"
)

const workloadManifest = `
apiVersion: v1
kind: Namespace
metadata:
  name: team-a
---
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
  namespace: team-a
spec:
  replicas: 2
  selector:
    matchLabels:
      app: web
  template:
    metadata:
      labels:
        app: web
    spec:
      containers:
      - name: app
        image: registry.example.com/app:1.0
`

var _ = Describe("Load", func() {
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

	It("creates namespaces before the resources inside them", func() {
		err := c.Load(ctx, cluster.InitialState{
			Namespaces: []string{"team-b"},
			Objects: []storage.Object{
				typesv1.NewDeployment("team-b", "api", 1, map[string]string{"app": "api"}),
			},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Get(ctx, typesv1.NamespaceGVK, storage.ObjectKey{Name: "team-b"})
		Expect(err).NotTo(HaveOccurred())
		pods, err := c.List(ctx, typesv1.PodGVK, cluster.ListOptions{Namespace: "team-b"})
		Expect(err).NotTo(HaveOccurred())
		Expect(pods).To(HaveLen(1))
	})

	It("loads multi-document YAML manifests and reconciles them once", func() {
		err := c.Load(ctx, cluster.InitialState{Manifests: [][]byte{[]byte(workloadManifest)}})
		Expect(err).NotTo(HaveOccurred())

		pods, err := c.List(ctx, typesv1.PodGVK, cluster.ListOptions{
			Namespace:     "team-a",
			LabelSelector: "app=web",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(pods).To(HaveLen(2))
		for _, pod := range pods {
			Expect(pod.(*typesv1.Pod).Status.Phase).To(Equal(corev1.PodRunning))
		}
	})

	It("loads documents with unregistered kinds as unstructured objects", func() {
		manifest := []byte(`
apiVersion: example.com/v1
kind: Widget
metadata:
  name: gizmo
  namespace: default
spec:
  size: 3
`)
		Expect(c.Load(ctx, cluster.InitialState{Manifests: [][]byte{manifest}})).To(Succeed())

		widgetGVK := schema.GroupVersionKind{Group: "example.com", Version: "v1", Kind: "Widget"}
		got, err := c.Get(ctx, widgetGVK, storage.ObjectKey{Namespace: "default", Name: "gizmo"})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.GetName()).To(Equal("gizmo"))
	})

	It("orders objects so declared owners are created before dependents", func() {
		parent := typesv1.NewDeployment("default", "owner", 1, map[string]string{"app": "owner"})
		parent.SetUID("owner-uid")

		controller := true
		child := &typesv1.Pod{
			ObjectMeta: metav1.ObjectMeta{
				Namespace: "default",
				Name:      "dependent",
				OwnerReferences: []metav1.OwnerReference{{
					APIVersion: "apps/v1",
					Kind:       "Deployment",
					Name:       "owner",
					UID:        "owner-uid",
					Controller: &controller,
				}},
			},
			Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "app", Image: "app:1.0"}}},
		}

		// The dependent comes first in the input; the loader must not care.
		err := c.Load(ctx, cluster.InitialState{Objects: []storage.Object{child, parent}})
		Expect(err).NotTo(HaveOccurred())

		got, err := c.Get(ctx, typesv1.PodGVK, storage.ObjectKey{Namespace: "default", Name: "dependent"})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.GetOwnerReferences()).To(HaveLen(1))

		// Deleting the owner takes the pre-seeded dependent with it.
		_, err = c.Delete(ctx, typesv1.DeploymentGVK, storage.ObjectKey{Namespace: "default", Name: "owner"}, cluster.DeleteOptions{})
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Get(ctx, typesv1.PodGVK, storage.ObjectKey{Namespace: "default", Name: "dependent"})
		Expect(apierrors.IsNotFound(err)).To(BeTrue())
	})

	It("dumps the cluster state as a manifest Load accepts", func() {
		err := c.Load(ctx, cluster.InitialState{Manifests: [][]byte{[]byte(workloadManifest)}})
		Expect(err).NotTo(HaveOccurred())

		dump, err := c.Dump(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(dump)).To(ContainSubstring("kind: Deployment"))
		Expect(string(dump)).To(ContainSubstring("kind: Pod"))

		restored, err := cluster.New(cluster.WithoutBuiltinControllers())
		Expect(err).NotTo(HaveOccurred())
		Expect(restored.Load(ctx, cluster.InitialState{Manifests: [][]byte{dump}})).To(Succeed())
		pods, err := restored.List(ctx, typesv1.PodGVK, cluster.ListOptions{Namespace: "team-a"})
		Expect(err).NotTo(HaveOccurred())
		Expect(pods).To(HaveLen(2))
	})

	It("rejects malformed manifests with a BadRequest", func() {
		err := c.Load(ctx, cluster.InitialState{Manifests: [][]byte{[]byte("{not yaml: [")}})
		Expect(err).To(HaveOccurred())
	})
})
