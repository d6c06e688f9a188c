package v1

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Namespace is the cluster-scoped scoping container for namespaced
// resources. The standard corev1.Namespace is used directly for full
// client compatibility.
type Namespace = corev1.Namespace

// NamespaceList represents a list of Namespace objects.
type NamespaceList = corev1.NamespaceList

var (
	// NamespaceGVK is the GroupVersionKind for Namespace.
	NamespaceGVK = schema.GroupVersionKind{Group: "", Version: "v1", Kind: "Namespace"}

	// NamespaceGVR is the GroupVersionResource for Namespace.
	NamespaceGVR = schema.GroupVersionResource{Group: "", Version: "v1", Resource: "namespaces"}
)

// NewNamespace creates a new Namespace with the given name.
func NewNamespace(name string) *Namespace {
	return &Namespace{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Namespace",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
		},
	}
}
