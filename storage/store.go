// Package storage implements the versioned in-memory resource store. It is
// namespace-aware, keyed by (kind, namespace, name), and enforces the
// optimistic concurrency contract via per-object resource versions. All
// objects that cross the store boundary are deep-copied so callers can
// never mutate stored state by reference.
package storage

import (
	"fmt"
	"sort"
	"sync"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/uuid"
	apistorage "k8s.io/apiserver/pkg/storage"
)

// ListOptions narrows a List call.
type ListOptions struct {
	// Namespace restricts results to one namespace; empty means all
	// namespaces for namespaced kinds.
	Namespace string

	// LabelSelector filters results by resource labels.
	LabelSelector labels.Selector

	// FieldSelector filters results by the flattened attribute view
	// produced by FieldsFn.
	FieldSelector fields.Selector

	// FieldsFn flattens an object into its selectable field set. Required
	// when FieldSelector is set.
	FieldsFn func(runtime.Object) fields.Set
}

// Store is the in-memory resource store. Operations are individually
// atomic; the owning engine serializes compound mutation+reconcile
// sequences under its own lock.
type Store struct {
	mu sync.RWMutex

	scheme    *runtime.Scheme
	versioner SimpleVersioner

	// objects maps GVK -> (namespace/name) -> stored object.
	objects map[schema.GroupVersionKind]map[ObjectKey]Object

	// groupResource renders error payload resources for a kind.
	groupResource GroupResourceFor
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithGroupResource overrides how kinds map to the GroupResource reported
// in error payloads, typically backed by the kind registry.
func WithGroupResource(fn GroupResourceFor) StoreOption {
	return func(s *Store) {
		s.groupResource = fn
	}
}

// NewStore creates an empty store bound to the given scheme.
func NewStore(scheme *runtime.Scheme, opts ...StoreOption) *Store {
	s := &Store{
		scheme:        scheme,
		objects:       make(map[schema.GroupVersionKind]map[ObjectKey]Object),
		groupResource: defaultGroupResource,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new object. The (kind, namespace, name) triple must not
// collide with a live object. The stored copy gets a generated UID, a
// creation timestamp, and resourceVersion 1; the returned object is a deep
// copy of what was stored.
func (s *Store) Create(obj Object) (Object, error) {
	gvk, err := GVKFor(s.scheme, obj)
	if err != nil {
		return nil, apierrors.NewBadRequest(err.Error())
	}
	if obj.GetName() == "" {
		return nil, apierrors.NewBadRequest(fmt.Sprintf("%s: name is required", gvk.Kind))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := KeyFromObject(obj)
	kindObjects := s.objects[gvk]
	if kindObjects == nil {
		kindObjects = make(map[ObjectKey]Object)
		s.objects[gvk] = kindObjects
	}
	if _, exists := kindObjects[key]; exists {
		return nil, apierrors.NewAlreadyExists(s.groupResource(gvk), key.String())
	}

	stored := obj.DeepCopyObject().(Object)
	stored.GetObjectKind().SetGroupVersionKind(gvk)
	if stored.GetUID() == "" {
		stored.SetUID(uuid.NewUUID())
	}
	if err := s.versioner.PrepareObjectForStorage(stored); err != nil {
		return nil, err
	}
	if err := s.versioner.UpdateObject(stored, 1); err != nil {
		return nil, err
	}

	kindObjects[key] = stored
	return stored.DeepCopyObject().(Object), nil
}

// Get retrieves a deep copy of the object with the given kind and key.
func (s *Store) Get(gvk schema.GroupVersionKind, key ObjectKey) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, exists := s.objects[gvk][key]
	if !exists {
		return nil, apierrors.NewNotFound(s.groupResource(gvk), key.String())
	}
	return stored.DeepCopyObject().(Object), nil
}

// List returns deep copies of all objects of a kind matching the options,
// ordered by namespace then name.
func (s *Store) List(gvk schema.GroupVersionKind, opts ListOptions) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Object
	for key, stored := range s.objects[gvk] {
		if opts.Namespace != "" && key.Namespace != opts.Namespace {
			continue
		}
		if opts.LabelSelector != nil && !opts.LabelSelector.Matches(labels.Set(stored.GetLabels())) {
			continue
		}
		if opts.FieldSelector != nil {
			var set fields.Set
			if opts.FieldsFn != nil {
				set = opts.FieldsFn(stored)
			}
			if !opts.FieldSelector.Matches(set) {
				continue
			}
		}
		out = append(out, stored.DeepCopyObject().(Object))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].GetNamespace() != out[j].GetNamespace() {
			return out[i].GetNamespace() < out[j].GetNamespace()
		}
		return out[i].GetName() < out[j].GetName()
	})
	return out, nil
}

// Update replaces the spec and metadata of an existing object. A non-empty
// caller-supplied resourceVersion must match the stored value or the call
// fails with Conflict. The stored status is preserved; use UpdateStatus for
// the status path. The resource version is incremented on success.
func (s *Store) Update(obj Object) (Object, error) {
	return s.update(obj, false)
}

// UpdateStatus replaces only the status of an existing object, with the
// same conflict semantics as Update. Spec and metadata are preserved.
func (s *Store) UpdateStatus(obj Object) (Object, error) {
	return s.update(obj, true)
}

func (s *Store) update(obj Object, statusOnly bool) (Object, error) {
	gvk, err := GVKFor(s.scheme, obj)
	if err != nil {
		return nil, apierrors.NewBadRequest(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := KeyFromObject(obj)
	existing, exists := s.objects[gvk][key]
	if !exists {
		return nil, apierrors.NewNotFound(s.groupResource(gvk), key.String())
	}

	existingVersion, err := s.versioner.ObjectResourceVersion(existing)
	if err != nil {
		return nil, err
	}
	if rv := obj.GetResourceVersion(); rv != "" && rv != existing.GetResourceVersion() {
		return nil, apierrors.NewConflict(s.groupResource(gvk), key.String(),
			fmt.Errorf("resource version %s does not match stored version %s", rv, existing.GetResourceVersion()))
	}

	var stored Object
	if statusOnly {
		// Keep everything from the stored object, take status from the
		// caller's object.
		stored = existing.DeepCopyObject().(Object)
		if err := transplantStatus(obj, stored); err != nil {
			return nil, err
		}
	} else {
		// Keep immutable metadata and status from the stored object, take
		// everything else from the caller's object.
		stored = obj.DeepCopyObject().(Object)
		stored.GetObjectKind().SetGroupVersionKind(gvk)
		stored.SetUID(existing.GetUID())
		stored.SetCreationTimestamp(existing.GetCreationTimestamp())
		if err := transplantStatus(existing, stored); err != nil {
			return nil, err
		}
	}

	if err := s.versioner.UpdateObject(stored, existingVersion+1); err != nil {
		return nil, err
	}
	s.objects[gvk][key] = stored
	return stored.DeepCopyObject().(Object), nil
}

// Delete removes the object with the given kind and key, returning a deep
// copy of the removed object. Preconditions, when supplied, are checked
// against the stored object before removal.
func (s *Store) Delete(gvk schema.GroupVersionKind, key ObjectKey, preconditions *apistorage.Preconditions) (Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.objects[gvk][key]
	if !exists {
		return nil, apierrors.NewNotFound(s.groupResource(gvk), key.String())
	}

	if preconditions != nil {
		if preconditions.UID != nil && *preconditions.UID != stored.GetUID() {
			return nil, apierrors.NewConflict(s.groupResource(gvk), key.String(),
				fmt.Errorf("UID %s does not match stored UID %s", *preconditions.UID, stored.GetUID()))
		}
		if preconditions.ResourceVersion != nil && *preconditions.ResourceVersion != stored.GetResourceVersion() {
			return nil, apierrors.NewConflict(s.groupResource(gvk), key.String(),
				fmt.Errorf("resource version %s does not match stored version %s", *preconditions.ResourceVersion, stored.GetResourceVersion()))
		}
	}

	delete(s.objects[gvk], key)
	return stored.DeepCopyObject().(Object), nil
}

// Snapshot returns deep copies of every live object across all kinds. Used
// by the garbage collector to resolve the dependent closure of a deleted
// owner.
func (s *Store) Snapshot() []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Object
	for _, kindObjects := range s.objects {
		for _, stored := range kindObjects {
			out = append(out, stored.DeepCopyObject().(Object))
		}
	}
	return out
}

// NamespacedObjects returns deep copies of every live object in the given
// namespace, across all kinds. Used for namespace cascade deletion.
func (s *Store) NamespacedObjects(namespace string) []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Object
	for _, kindObjects := range s.objects {
		for key, stored := range kindObjects {
			if key.Namespace == namespace {
				out = append(out, stored.DeepCopyObject().(Object))
			}
		}
	}
	return out
}

// Len reports the number of live objects of a kind.
func (s *Store) Len(gvk schema.GroupVersionKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects[gvk])
}

// transplantStatus copies the status payload of src into dst through the
// unstructured representation, which works uniformly for typed and untyped
// kinds. Kinds without a status field are left untouched.
func transplantStatus(src, dst Object) error {
	srcMap, err := runtime.DefaultUnstructuredConverter.ToUnstructured(src)
	if err != nil {
		return err
	}
	dstMap, err := runtime.DefaultUnstructuredConverter.ToUnstructured(dst)
	if err != nil {
		return err
	}
	if status, ok := srcMap["status"]; ok {
		dstMap["status"] = status
	} else {
		delete(dstMap, "status")
	}
	if u, ok := dst.(*unstructured.Unstructured); ok {
		u.Object = dstMap
		return nil
	}
	return runtime.DefaultUnstructuredConverter.FromUnstructured(dstMap, dst)
}
