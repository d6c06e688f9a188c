// Package cluster provides the top-level facade over the mock control
// plane: a typed resource store, an ownership graph with cascading
// deletion, per-kind defaulting that simulates workload startup, CEL and
// structural validation, an event log, and synchronous controllers that
// reconcile to a fixpoint before each mutating call returns.
package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation/field"
	apistorage "k8s.io/apiserver/pkg/storage"

	"github.com/tofarr/mockernetes/controllers"
	"github.com/tofarr/mockernetes/defaulting"
	"github.com/tofarr/mockernetes/events"
	"github.com/tofarr/mockernetes/gc"
	"github.com/tofarr/mockernetes/registry"
	"github.com/tofarr/mockernetes/selector"
	"github.com/tofarr/mockernetes/storage"
	typesv1 "github.com/tofarr/mockernetes/types/v1"
	"github.com/tofarr/mockernetes/validation"
)

// DefaultNamespace is created on startup and used for namespaced objects
// submitted without a namespace.
const DefaultNamespace = "default"

// ListOptions narrows a List call. Selectors are given in their string
// form and parsed on use; a malformed selector fails the call with a
// BadRequest error.
type ListOptions struct {
	Namespace     string
	LabelSelector string
	FieldSelector string
}

// DeleteOptions controls a Delete call.
type DeleteOptions struct {
	// Propagation selects the cascade policy. Empty means Background.
	Propagation metav1.DeletionPropagation

	// Preconditions guard the delete; a mismatch fails with a Conflict.
	Preconditions *apistorage.Preconditions
}

// Cluster is the mock control plane. All verbs are safe for concurrent
// use; mutations serialize so controllers observe a consistent state and
// every mutating call returns only after reconciliation reached a
// fixpoint.
type Cluster struct {
	mu sync.RWMutex

	log       logr.Logger
	scheme    *runtime.Scheme
	registry  *registry.Registry
	store     *storage.Store
	graph     *gc.Graph
	collector *gc.Collector
	eventLog  *events.Log
	recorder  events.Recorder
	manager   *controllers.Manager
	defaulter defaulting.Defaulter
	validator validation.Validator
}

// New creates a cluster with the builtin kinds registered, the workload
// controllers installed and the default namespace already present.
func New(opts ...Option) (*Cluster, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	scheme := typesv1.NewScheme()
	reg := registry.NewRegistry()
	for _, info := range o.customKinds {
		if err := reg.RegisterCustomKind(info); err != nil {
			return nil, err
		}
	}

	eventLog := events.NewLog(events.WithLimit(o.eventLogLimit))
	recorder := events.NewRecorder(eventLog, events.RecorderOptions{
		Scheme: scheme,
		Source: events.NewEventSource("mockernetes"),
		Clock:  o.clock,
	})

	store := storage.NewStore(scheme, storage.WithGroupResource(reg.GroupResourceFor))
	graph := gc.NewGraph()

	validator := validation.NewStructuralValidator()
	if len(o.rules) > 0 {
		cel, err := validation.NewCELValidator(o.rules)
		if err != nil {
			return nil, err
		}
		validator = validation.Chain(validator, cel)
	}

	manager := controllers.NewManager(o.log, recorder)
	if o.builtinControllers {
		manager.Register(controllers.NewDeploymentController(o.log, recorder))
		manager.Register(controllers.NewReplicaSetController(o.log, recorder))
	}
	for _, c := range o.controllers {
		manager.Register(c)
	}

	c := &Cluster{
		log:       o.log.WithName("cluster"),
		scheme:    scheme,
		registry:  reg,
		store:     store,
		graph:     graph,
		collector: gc.NewCollector(store, graph, o.log),
		eventLog:  eventLog,
		recorder:  recorder,
		manager:   manager,
		defaulter: defaulting.NewManager(o.clock),
		validator: validator,
	}

	ns, err := store.Create(typesv1.NewNamespace(DefaultNamespace))
	if err != nil {
		return nil, fmt.Errorf("creating default namespace: %w", err)
	}
	graph.Track(typesv1.NamespaceGVK, ns)

	return c, nil
}

// Registry exposes the kind registry, including registered custom kinds.
func (c *Cluster) Registry() *registry.Registry {
	return c.registry
}

// Scheme exposes the runtime scheme objects are decoded with.
func (c *Cluster) Scheme() *runtime.Scheme {
	return c.scheme
}

// Create validates, defaults and stores obj, then runs the controllers to
// a fixpoint. The returned object reflects state after reconciliation, so
// a created Deployment already carries its rolled-up status.
func (c *Cluster) Create(ctx context.Context, obj storage.Object) (storage.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gvk, created, err := c.createLocked(ctx, obj)
	if err != nil {
		return nil, err
	}
	c.recorder.Eventf(created, events.EventTypeNormal, events.ReasonCreated,
		"Created %s %s", gvk.Kind, storage.KeyFromObject(created))
	c.manager.EnqueueOwners(created)
	if err := c.sync(ctx); err != nil {
		return c.refresh(gvk, created), err
	}
	return c.refresh(gvk, created), nil
}

// Get retrieves a deep copy of one object.
func (c *Cluster) Get(_ context.Context, gvk schema.GroupVersionKind, key storage.ObjectKey) (storage.Object, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.registry.IsNamespaced(gvk) && key.Namespace == "" {
		key.Namespace = DefaultNamespace
	}
	return c.store.Get(gvk, key)
}

// List returns all objects of a kind matching the options, ordered by
// namespace then name.
func (c *Cluster) List(_ context.Context, gvk schema.GroupVersionKind, opts ListOptions) ([]storage.Object, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	storeOpts := storage.ListOptions{Namespace: opts.Namespace}
	if opts.LabelSelector != "" {
		sel, err := selector.Parse(opts.LabelSelector)
		if err != nil {
			return nil, err
		}
		storeOpts.LabelSelector = sel
	}
	if opts.FieldSelector != "" {
		sel, err := selector.ParseFields(opts.FieldSelector)
		if err != nil {
			return nil, err
		}
		storeOpts.FieldSelector = sel
		storeOpts.FieldsFn = selector.Fields
	}
	return c.store.List(gvk, storeOpts)
}

// Update replaces an object's desired state. The submitted resource
// version must match the stored one or the call fails with a Conflict.
// Controllers run to a fixpoint before Update returns.
func (c *Cluster) Update(ctx context.Context, obj storage.Object) (storage.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gvk, prepared, err := c.prepare(obj)
	if err != nil {
		return nil, err
	}
	old, err := c.store.Get(gvk, storage.KeyFromObject(prepared))
	if err != nil {
		return nil, err
	}
	if err := c.validator.ValidateUpdate(ctx, prepared, old); err != nil {
		return nil, err
	}
	if prepared.GetUID() == "" {
		prepared.SetUID(old.GetUID())
	}
	if err := c.checkCycle(gvk, prepared); err != nil {
		return nil, err
	}

	updated, err := c.store.Update(prepared)
	if err != nil {
		return nil, err
	}
	c.graph.Track(gvk, updated)
	c.recorder.Eventf(updated, events.EventTypeNormal, events.ReasonUpdated,
		"Updated %s %s", gvk.Kind, storage.KeyFromObject(updated))

	c.manager.Enqueue(controllers.Request{GVK: gvk, Key: storage.KeyFromObject(updated)})
	c.manager.EnqueueOwners(updated)
	if err := c.sync(ctx); err != nil {
		return c.refresh(gvk, updated), err
	}
	return c.refresh(gvk, updated), nil
}

// UpdateStatus replaces only the status of an object, leaving desired
// state untouched. The optimistic concurrency contract is the same as for
// Update.
func (c *Cluster) UpdateStatus(ctx context.Context, obj storage.Object) (storage.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gvk, prepared, err := c.prepare(obj)
	if err != nil {
		return nil, err
	}
	updated, err := c.store.UpdateStatus(prepared)
	if err != nil {
		return nil, err
	}
	c.manager.Enqueue(controllers.Request{GVK: gvk, Key: storage.KeyFromObject(updated)})
	if err := c.sync(ctx); err != nil {
		return c.refresh(gvk, updated), err
	}
	return c.refresh(gvk, updated), nil
}

// Delete removes an object under the chosen propagation policy and
// returns the full sweep result. Deleting a Namespace removes everything
// inside it. Controllers run afterwards, so deleting a pod out from under
// a live ReplicaSet ends with a replacement pod in the store.
func (c *Cluster) Delete(ctx context.Context, gvk schema.GroupVersionKind, key storage.ObjectKey, opts DeleteOptions) (gc.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registry.IsNamespaced(gvk) && key.Namespace == "" {
		key.Namespace = DefaultNamespace
	}
	obj, err := c.store.Get(gvk, key)
	if err != nil {
		return gc.Result{}, err
	}
	if err := c.checkPreconditions(gvk, key, obj, opts.Preconditions); err != nil {
		return gc.Result{}, err
	}

	policy := opts.Propagation
	if policy == "" {
		policy = metav1.DeletePropagationBackground
	}
	ref := gc.Reference{GVK: gvk, Key: key, UID: obj.GetUID()}
	res, err := c.collector.Collect(obj, ref, policy)
	if err != nil {
		return res, err
	}

	for _, deleted := range res.Deleted {
		kind := deleted.GetObjectKind().GroupVersionKind().Kind
		c.recorder.Eventf(deleted, events.EventTypeNormal, events.ReasonDeleted,
			"Deleted %s %s", kind, storage.KeyFromObject(deleted))
		c.manager.EnqueueOwners(deleted)
	}
	for _, orphan := range res.Orphaned {
		c.manager.Enqueue(controllers.Request{
			GVK: orphan.GetObjectKind().GroupVersionKind(),
			Key: storage.KeyFromObject(orphan),
		})
	}
	if err := c.sync(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Events returns the recorded events matching ref, oldest first. A nil
// ref returns the whole log.
func (c *Cluster) Events(_ context.Context, ref *corev1.ObjectReference) []corev1.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eventLog.List(ref)
}

// EventsFor returns the recorded events involving obj.
func (c *Cluster) EventsFor(ctx context.Context, obj storage.Object) ([]corev1.Event, error) {
	ref, err := events.ObjectReference(c.scheme, obj)
	if err != nil {
		return nil, err
	}
	return c.Events(ctx, &ref), nil
}

// createLocked runs the full create path with the cluster lock held:
// prepare, validate, cycle check, defaulting, store write and graph
// tracking, plus a queue entry for the new object's kind.
func (c *Cluster) createLocked(ctx context.Context, obj storage.Object) (schema.GroupVersionKind, storage.Object, error) {
	gvk, prepared, err := c.prepare(obj)
	if err != nil {
		return gvk, nil, err
	}
	if err := c.validator.Validate(ctx, prepared); err != nil {
		return gvk, nil, err
	}
	if err := c.checkCycle(gvk, prepared); err != nil {
		return gvk, nil, err
	}
	if err := c.defaulter.Default(ctx, prepared); err != nil {
		return gvk, nil, err
	}
	created, err := c.store.Create(prepared)
	if err != nil {
		return gvk, nil, err
	}
	c.graph.Track(gvk, created)
	c.manager.Enqueue(controllers.Request{GVK: gvk, Key: storage.KeyFromObject(created)})
	return gvk, created, nil
}

// prepare deep-copies obj, resolves and stamps its kind and fills in the
// default namespace where the kind is namespaced.
func (c *Cluster) prepare(obj storage.Object) (schema.GroupVersionKind, storage.Object, error) {
	gvk, err := storage.GVKFor(c.scheme, obj)
	if err != nil {
		return schema.GroupVersionKind{}, nil, apierrors.NewBadRequest(err.Error())
	}
	prepared := obj.DeepCopyObject().(storage.Object)
	prepared.GetObjectKind().SetGroupVersionKind(gvk)
	if c.registry.IsNamespaced(gvk) {
		if prepared.GetNamespace() == "" {
			prepared.SetNamespace(DefaultNamespace)
		}
	} else {
		prepared.SetNamespace("")
	}
	return gvk, prepared, nil
}

// checkCycle rejects writes whose owner references would close a cycle in
// the ownership graph.
func (c *Cluster) checkCycle(gvk schema.GroupVersionKind, obj storage.Object) error {
	if !c.graph.WouldCycle(obj) {
		return nil
	}
	return apierrors.NewInvalid(gvk.GroupKind(), obj.GetName(), field.ErrorList{
		field.Invalid(field.NewPath("metadata", "ownerReferences"),
			obj.GetOwnerReferences(), "owner references must not form a cycle"),
	})
}

func (c *Cluster) checkPreconditions(gvk schema.GroupVersionKind, key storage.ObjectKey, obj storage.Object, pre *apistorage.Preconditions) error {
	if pre == nil {
		return nil
	}
	if pre.UID != nil && *pre.UID != obj.GetUID() {
		return apierrors.NewConflict(c.registry.GroupResourceFor(gvk), key.String(),
			fmt.Errorf("uid mismatch: the provided uid (%s) does not match the stored uid (%s)", *pre.UID, obj.GetUID()))
	}
	if pre.ResourceVersion != nil && *pre.ResourceVersion != obj.GetResourceVersion() {
		return apierrors.NewConflict(c.registry.GroupResourceFor(gvk), key.String(),
			fmt.Errorf("resourceVersion mismatch: the provided version (%s) does not match the stored version (%s)", *pre.ResourceVersion, obj.GetResourceVersion()))
	}
	return nil
}

// refresh re-reads obj after reconciliation; if the controllers deleted it
// the pre-sync copy is returned.
func (c *Cluster) refresh(gvk schema.GroupVersionKind, obj storage.Object) storage.Object {
	fresh, err := c.store.Get(gvk, storage.KeyFromObject(obj))
	if err != nil {
		return obj
	}
	return fresh
}

func (c *Cluster) sync(ctx context.Context) error {
	return c.manager.Sync(ctx, &managerClient{cluster: c})
}
