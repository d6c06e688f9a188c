package v1

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Pod is the smallest schedulable unit the simulator models. The standard
// corev1.Pod is used directly for full client compatibility.
type Pod = corev1.Pod

// PodList represents a list of Pod objects.
type PodList = corev1.PodList

var (
	// PodGVK is the GroupVersionKind for Pod.
	PodGVK = schema.GroupVersionKind{Group: "", Version: "v1", Kind: "Pod"}

	// PodGVR is the GroupVersionResource for Pod.
	PodGVR = schema.GroupVersionResource{Group: "", Version: "v1", Resource: "pods"}
)

// NewPod creates a new Pod with the given namespace and name.
func NewPod(namespace, name string) *Pod {
	return &Pod{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Pod",
		},
		ObjectMeta: metav1.ObjectMeta{
			Namespace: namespace,
			Name:      name,
		},
	}
}
