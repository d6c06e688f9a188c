package storage

import (
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Object is a stored resource: a runtime object carrying standard metadata.
type Object interface {
	runtime.Object
	metav1.Object
}

// ObjectKey identifies an object within one kind.
type ObjectKey struct {
	Namespace string
	Name      string
}

// String returns the general purpose string representation.
func (k ObjectKey) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "/" + k.Name
}

// KeyFromObject returns the ObjectKey for the given object.
func KeyFromObject(obj Object) ObjectKey {
	return ObjectKey{Namespace: obj.GetNamespace(), Name: obj.GetName()}
}

// GVKFor resolves the GroupVersionKind of an object, preferring the scheme
// registration and falling back to the object's own TypeMeta for untyped
// (unstructured) payloads.
func GVKFor(scheme *runtime.Scheme, obj runtime.Object) (schema.GroupVersionKind, error) {
	gvks, _, err := scheme.ObjectKinds(obj)
	if err == nil && len(gvks) > 0 {
		return gvks[0], nil
	}
	if gvk := obj.GetObjectKind().GroupVersionKind(); !gvk.Empty() {
		return gvk, nil
	}
	return schema.GroupVersionKind{}, fmt.Errorf("no GroupVersionKind found for %T", obj)
}

// GroupResourceFor derives the GroupResource used in error payloads for a
// kind. A registered plural wins; unregistered kinds fall back to naive
// pluralization, which is only cosmetic.
type GroupResourceFor func(gvk schema.GroupVersionKind) schema.GroupResource

func defaultGroupResource(gvk schema.GroupVersionKind) schema.GroupResource {
	return schema.GroupResource{Group: gvk.Group, Resource: strings.ToLower(gvk.Kind) + "s"}
}
