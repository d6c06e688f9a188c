package selector

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime"
)

// Fields flattens the selectable non-label attributes of a resource into a
// field set. Every kind exposes metadata.name and metadata.namespace; kinds
// with additional well-known selectable fields contribute them on top, the
// way the real API server computes per-kind selectable field sets.
func Fields(obj runtime.Object) fields.Set {
	set := fields.Set{}

	accessor, err := meta.Accessor(obj)
	if err != nil {
		return set
	}
	set["metadata.name"] = accessor.GetName()
	set["metadata.namespace"] = accessor.GetNamespace()

	switch o := obj.(type) {
	case *corev1.Pod:
		set["status.phase"] = string(o.Status.Phase)
		set["spec.nodeName"] = o.Spec.NodeName
		set["spec.serviceAccountName"] = o.Spec.ServiceAccountName
	case *corev1.Namespace:
		set["status.phase"] = string(o.Status.Phase)
	case *corev1.Service:
		set["spec.type"] = string(o.Spec.Type)
		set["spec.clusterIP"] = o.Spec.ClusterIP
	case *corev1.PersistentVolumeClaim:
		set["status.phase"] = string(o.Status.Phase)
	case *corev1.Event:
		set["involvedObject.kind"] = o.InvolvedObject.Kind
		set["involvedObject.name"] = o.InvolvedObject.Name
		set["involvedObject.namespace"] = o.InvolvedObject.Namespace
		set["involvedObject.uid"] = string(o.InvolvedObject.UID)
		set["reason"] = o.Reason
		set["type"] = o.Type
	}

	return set
}
