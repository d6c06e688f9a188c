package gc

import (
	"sort"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/tofarr/mockernetes/storage"
	typesv1 "github.com/tofarr/mockernetes/types/v1"
)

// Result reports what one deletion sweep did, in order.
type Result struct {
	// Deleted holds every object removed by the sweep, in removal order.
	// The first entry is the parent for Background/Orphan policies; for
	// Foreground the parent comes last.
	Deleted []storage.Object

	// Orphaned holds surviving dependents whose owner references to the
	// deleted parent were stripped (Orphan policy only).
	Orphaned []storage.Object
}

// Collector performs cascading deletion sweeps over the store, guided by
// the ownership graph.
type Collector struct {
	store *storage.Store
	graph *Graph
	log   logr.Logger
}

// NewCollector creates a Collector over the given store and graph.
func NewCollector(store *storage.Store, graph *Graph, log logr.Logger) *Collector {
	return &Collector{store: store, graph: graph, log: log}
}

// Collect deletes obj under the given propagation policy and returns the
// full sweep result. The caller has already resolved obj from the store.
// Deleting a Namespace additionally sweeps every namespaced object it
// contains. A resource is visited at most once per sweep, so owner cycles
// and diamond ownership terminate.
func (c *Collector) Collect(obj storage.Object, ref Reference, policy metav1.DeletionPropagation) (Result, error) {
	res := Result{}
	visited := sets.New(ref.UID)

	switch policy {
	case metav1.DeletePropagationOrphan:
		removed, err := c.remove(ref)
		if err != nil {
			return res, err
		}
		res.Deleted = append(res.Deleted, removed)
		orphaned, err := c.orphanDependents(ref)
		if err != nil {
			return res, err
		}
		res.Orphaned = orphaned

	case metav1.DeletePropagationForeground:
		// Mark the parent terminating while blocking dependents exist,
		// then take the children down before the parent itself.
		if c.hasBlockingDependents(ref) {
			c.markTerminating(obj)
		}
		c.cascade(ref, visited, &res)
		removed, err := c.remove(ref)
		if err != nil {
			return res, err
		}
		res.Deleted = append(res.Deleted, removed)

	default: // Background is the default policy.
		removed, err := c.remove(ref)
		if err != nil {
			return res, err
		}
		res.Deleted = append(res.Deleted, removed)
		c.cascade(ref, visited, &res)
	}

	if ref.GVK == typesv1.NamespaceGVK {
		c.sweepNamespace(ref.Key.Name, visited, &res)
	}
	c.collectDanglingOrphans(visited, &res)

	return res, nil
}

// remove deletes one node from store and graph.
func (c *Collector) remove(ref Reference) (storage.Object, error) {
	removed, err := c.store.Delete(ref.GVK, ref.Key, nil)
	if err != nil {
		return nil, err
	}
	c.graph.Forget(ref.UID)
	return removed, nil
}

// cascade removes the transitive dependent closure of ref.
func (c *Collector) cascade(ref Reference, visited sets.Set[types.UID], res *Result) {
	deps := c.graph.Dependents(ref)
	sortRefs(deps)
	for _, dep := range deps {
		if visited.Has(dep.UID) {
			continue
		}
		visited.Insert(dep.UID)
		removed, err := c.remove(dep)
		if err != nil {
			if apierrors.IsNotFound(err) {
				continue
			}
			c.log.Error(err, "failed to collect dependent", "kind", dep.GVK.Kind, "key", dep.Key.String())
			continue
		}
		res.Deleted = append(res.Deleted, removed)
		c.cascade(dep, visited, res)
	}
}

// sweepNamespace removes every remaining namespaced object in a deleted
// namespace, cascading through each object's own dependents.
func (c *Collector) sweepNamespace(namespace string, visited sets.Set[types.UID], res *Result) {
	objs := c.store.NamespacedObjects(namespace)
	sort.Slice(objs, func(i, j int) bool {
		if objs[i].GetObjectKind().GroupVersionKind().Kind != objs[j].GetObjectKind().GroupVersionKind().Kind {
			return objs[i].GetObjectKind().GroupVersionKind().Kind < objs[j].GetObjectKind().GroupVersionKind().Kind
		}
		return objs[i].GetName() < objs[j].GetName()
	})
	for _, obj := range objs {
		if visited.Has(obj.GetUID()) {
			continue
		}
		visited.Insert(obj.GetUID())
		ref := Reference{
			GVK: obj.GetObjectKind().GroupVersionKind(),
			Key: storage.KeyFromObject(obj),
			UID: obj.GetUID(),
		}
		removed, err := c.remove(ref)
		if err != nil {
			if apierrors.IsNotFound(err) {
				continue
			}
			c.log.Error(err, "failed to sweep namespaced object", "kind", ref.GVK.Kind, "key", ref.Key.String())
			continue
		}
		res.Deleted = append(res.Deleted, removed)
		c.cascade(ref, visited, res)
	}
}

// collectDanglingOrphans removes objects whose every owner reference now
// points at a deleted UID. Deleting them can dangle further objects, so
// iterate until stable.
func (c *Collector) collectDanglingOrphans(visited sets.Set[types.UID], res *Result) {
	for {
		orphans := c.graph.Orphaned()
		sortRefs(orphans)
		progressed := false
		for _, orphan := range orphans {
			if visited.Has(orphan.UID) {
				continue
			}
			visited.Insert(orphan.UID)
			removed, err := c.remove(orphan)
			if err != nil {
				if apierrors.IsNotFound(err) {
					continue
				}
				c.log.Error(err, "failed to collect dangling orphan", "kind", orphan.GVK.Kind, "key", orphan.Key.String())
				continue
			}
			res.Deleted = append(res.Deleted, removed)
			c.cascade(orphan, visited, res)
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

// orphanDependents strips references to the deleted owner from each direct
// dependent, keeping the dependents alive.
func (c *Collector) orphanDependents(owner Reference) ([]storage.Object, error) {
	deps := c.graph.Dependents(owner)
	sortRefs(deps)
	var out []storage.Object
	for _, dep := range deps {
		obj, err := c.store.Get(dep.GVK, dep.Key)
		if err != nil {
			if apierrors.IsNotFound(err) {
				continue
			}
			return out, err
		}
		kept := obj.GetOwnerReferences()[:0:0]
		for _, ref := range obj.GetOwnerReferences() {
			if ref.UID != owner.UID {
				kept = append(kept, ref)
			}
		}
		obj.SetOwnerReferences(kept)
		updated, err := c.store.Update(obj)
		if err != nil {
			return out, err
		}
		c.graph.Track(dep.GVK, updated)
		out = append(out, updated)
	}
	return out, nil
}

// hasBlockingDependents reports whether any live dependent blocks owner
// deletion through a controller-owned reference.
func (c *Collector) hasBlockingDependents(owner Reference) bool {
	for _, dep := range c.graph.Dependents(owner) {
		obj, err := c.store.Get(dep.GVK, dep.Key)
		if err != nil {
			continue
		}
		for _, ref := range obj.GetOwnerReferences() {
			if ref.UID != owner.UID {
				continue
			}
			if ref.Controller != nil && *ref.Controller &&
				ref.BlockOwnerDeletion != nil && *ref.BlockOwnerDeletion {
				return true
			}
		}
	}
	return false
}

// markTerminating stamps the parent's deletion timestamp in the store so
// the terminating phase is observable in the sweep's event trail.
func (c *Collector) markTerminating(obj storage.Object) {
	now := metav1.Now()
	obj.SetDeletionTimestamp(&now)
	if _, err := c.store.Update(obj); err != nil {
		c.log.Error(err, "failed to mark object terminating", "name", obj.GetName())
	}
}

func sortRefs(refs []Reference) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].GVK.Kind != refs[j].GVK.Kind {
			return refs[i].GVK.Kind < refs[j].GVK.Kind
		}
		return refs[i].Key.String() < refs[j].Key.String()
	})
}
