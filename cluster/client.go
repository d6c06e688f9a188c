package cluster

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/tofarr/mockernetes/controllers"
	"github.com/tofarr/mockernetes/events"
	"github.com/tofarr/mockernetes/gc"
	"github.com/tofarr/mockernetes/storage"
)

// managerClient is the controllers' view of the cluster. The cluster lock
// is already held when controllers run, so it goes straight at the store
// and graph. Mutations keep the graph current and feed follow-up work back
// into the queue so reconciliation chains across kinds.
type managerClient struct {
	cluster *Cluster
}

var _ controllers.Client = (*managerClient)(nil)

func (m *managerClient) Get(gvk schema.GroupVersionKind, key storage.ObjectKey) (storage.Object, error) {
	return m.cluster.store.Get(gvk, key)
}

func (m *managerClient) List(gvk schema.GroupVersionKind, opts storage.ListOptions) ([]storage.Object, error) {
	return m.cluster.store.List(gvk, opts)
}

func (m *managerClient) Create(obj storage.Object) (storage.Object, error) {
	_, created, err := m.cluster.createLocked(context.Background(), obj)
	return created, err
}

func (m *managerClient) Update(obj storage.Object) (storage.Object, error) {
	c := m.cluster
	gvk, prepared, err := c.prepare(obj)
	if err != nil {
		return nil, err
	}
	if err := c.checkCycle(gvk, prepared); err != nil {
		return nil, err
	}
	updated, err := c.store.Update(prepared)
	if err != nil {
		return nil, err
	}
	c.graph.Track(gvk, updated)
	c.manager.Enqueue(controllers.Request{GVK: gvk, Key: storage.KeyFromObject(updated)})
	return updated, nil
}

// UpdateStatus re-enqueues the object's owners but not the object's own
// kind: a controller observing its children must not retrigger itself,
// while the owner one level up needs the fresh counts to aggregate.
func (m *managerClient) UpdateStatus(obj storage.Object) (storage.Object, error) {
	updated, err := m.cluster.store.UpdateStatus(obj)
	if err != nil {
		return nil, err
	}
	m.cluster.manager.EnqueueOwners(updated)
	return updated, nil
}

func (m *managerClient) Delete(gvk schema.GroupVersionKind, key storage.ObjectKey, policy metav1.DeletionPropagation) error {
	c := m.cluster
	obj, err := c.store.Get(gvk, key)
	if err != nil {
		return err
	}
	ref := gc.Reference{GVK: gvk, Key: key, UID: obj.GetUID()}
	res, err := c.collector.Collect(obj, ref, policy)
	if err != nil {
		return err
	}
	for _, deleted := range res.Deleted {
		// Cascaded children are recorded here; the direct target's event
		// wording belongs to the controller doing the delete.
		if deleted.GetUID() != obj.GetUID() {
			kind := deleted.GetObjectKind().GroupVersionKind().Kind
			c.recorder.Eventf(deleted, events.EventTypeNormal, events.ReasonDeleted,
				"Deleted %s %s", kind, storage.KeyFromObject(deleted))
		}
		c.manager.EnqueueOwners(deleted)
	}
	return nil
}
