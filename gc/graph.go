// Package gc tracks the ownership graph derived from owner references and
// implements cascading garbage collection over the resource store.
package gc

import (
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/tofarr/mockernetes/storage"
)

// Reference identifies a live node in the ownership graph.
type Reference struct {
	GVK schema.GroupVersionKind
	Key storage.ObjectKey
	UID types.UID
}

// node is the graph's record of one live object.
type node struct {
	ref    Reference
	owners []metav1.OwnerReference
}

// Graph is the derived parent->child edge index. It is maintained
// incrementally as resources are created, updated and deleted, and is the
// authority on which owner references are live, dangling, or
// dangling-deleted.
type Graph struct {
	mu sync.RWMutex

	// nodes indexes every live object by UID.
	nodes map[types.UID]*node

	// dependents maps a declared owner UID to the UIDs depending on it.
	// Edges are keyed by the declared UID even when dangling so that late
	// owner creation and deletion sweeps resolve consistently.
	dependents map[types.UID]sets.Set[types.UID]

	// deleted remembers UIDs that were once live. UIDs are never reused,
	// so membership distinguishes a dangling-deleted reference from one
	// that never resolved.
	deleted sets.Set[types.UID]
}

// NewGraph creates an empty ownership graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[types.UID]*node),
		dependents: make(map[types.UID]sets.Set[types.UID]),
		deleted:    sets.New[types.UID](),
	}
}

// Track records or re-records a live object and its declared owner
// references. Called on every create and update.
func (g *Graph) Track(gvk schema.GroupVersionKind, obj storage.Object) {
	g.mu.Lock()
	defer g.mu.Unlock()

	uid := obj.GetUID()
	if existing, ok := g.nodes[uid]; ok {
		g.unlinkLocked(uid, existing.owners)
	}

	owners := append([]metav1.OwnerReference(nil), obj.GetOwnerReferences()...)
	g.nodes[uid] = &node{
		ref: Reference{
			GVK: gvk,
			Key: storage.KeyFromObject(obj),
			UID: uid,
		},
		owners: owners,
	}
	for _, owner := range owners {
		set, ok := g.dependents[owner.UID]
		if !ok {
			set = sets.New[types.UID]()
			g.dependents[owner.UID] = set
		}
		set.Insert(uid)
	}
}

// Forget removes a deleted object from the graph and marks its UID as
// dead for dangling-reference accounting.
func (g *Graph) Forget(uid types.UID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[uid]
	if !ok {
		return
	}
	g.unlinkLocked(uid, n.owners)
	delete(g.nodes, uid)
	g.deleted.Insert(uid)
}

func (g *Graph) unlinkLocked(uid types.UID, owners []metav1.OwnerReference) {
	for _, owner := range owners {
		if set, ok := g.dependents[owner.UID]; ok {
			set.Delete(uid)
			if set.Len() == 0 {
				delete(g.dependents, owner.UID)
			}
		}
	}
}

// Dependents returns the live direct dependents of an owner. Only
// references that actually resolve to the owner (matching kind, name and
// UID) count; mismatched references are dangling and ignored.
func (g *Graph) Dependents(owner Reference) []Reference {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Reference
	for uid := range g.dependents[owner.UID] {
		n, ok := g.nodes[uid]
		if !ok {
			continue
		}
		for _, ref := range n.owners {
			if ref.UID == owner.UID && ref.Kind == owner.GVK.Kind && ref.Name == owner.Key.Name {
				out = append(out, n.ref)
				break
			}
		}
	}
	return out
}

// Orphaned returns the live objects whose owner references are non-empty
// and every one of them points at a deleted UID. Such objects lost their
// last real owner and are eligible for collection.
func (g *Graph) Orphaned() []Reference {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Reference
	for _, n := range g.nodes {
		if len(n.owners) == 0 {
			continue
		}
		allDeleted := true
		for _, owner := range n.owners {
			if !g.deleted.Has(owner.UID) {
				allDeleted = false
				break
			}
		}
		if allDeleted {
			out = append(out, n.ref)
		}
	}
	return out
}

// WouldCycle reports whether storing obj with its declared owner
// references would close an ownership cycle back to obj itself. Objects
// without a UID yet (first create) cannot complete a cycle because no
// existing reference can name them.
func (g *Graph) WouldCycle(obj storage.Object) bool {
	uid := obj.GetUID()
	if uid == "" {
		return false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := sets.New[types.UID]()
	stack := make([]types.UID, 0, len(obj.GetOwnerReferences()))
	for _, owner := range obj.GetOwnerReferences() {
		stack = append(stack, owner.UID)
	}
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if next == uid {
			return true
		}
		if visited.Has(next) {
			continue
		}
		visited.Insert(next)
		if n, ok := g.nodes[next]; ok {
			for _, owner := range n.owners {
				stack = append(stack, owner.UID)
			}
		}
	}
	return false
}

// IsDeleted reports whether a UID belonged to a since-deleted object.
func (g *Graph) IsDeleted(uid types.UID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.deleted.Has(uid)
}
