package controllers

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/tofarr/mockernetes/storage"
)

// Request identifies the object a controller should reconcile.
type Request struct {
	GVK schema.GroupVersionKind
	Key storage.ObjectKey
}

// Client is the narrow surface controllers use to read and mutate state.
// Implementations record mutations in the ownership graph and feed newly
// written objects back into the work queue so reconciliation can chain.
type Client interface {
	Get(gvk schema.GroupVersionKind, key storage.ObjectKey) (storage.Object, error)
	List(gvk schema.GroupVersionKind, opts storage.ListOptions) ([]storage.Object, error)
	Create(obj storage.Object) (storage.Object, error)
	Update(obj storage.Object) (storage.Object, error)
	UpdateStatus(obj storage.Object) (storage.Object, error)
	Delete(gvk schema.GroupVersionKind, key storage.ObjectKey, policy metav1.DeletionPropagation) error
}

// Controller reconciles objects of a single kind towards their declared
// state. Reconcile must be idempotent: running it again immediately after
// a successful pass must make no further changes.
type Controller interface {
	// Kind is the kind this controller watches.
	Kind() schema.GroupVersionKind

	// Reconcile drives the object named by req towards its desired state.
	// A NotFound on the object itself is not an error; the controller's
	// children are cleaned up by garbage collection.
	Reconcile(ctx context.Context, cl Client, req Request) error
}
