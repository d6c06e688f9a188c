package controllers

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/tofarr/mockernetes/events"
	"github.com/tofarr/mockernetes/storage"
)

// DefaultSyncBudget bounds how many reconcile invocations a single Sync
// may perform before giving up. Controllers that keep generating work for
// each other would otherwise spin forever.
const DefaultSyncBudget = 1000

// Manager owns the controller set and the work queue and drains the queue
// to a fixpoint. It is not safe for concurrent use; callers serialize.
type Manager struct {
	log         logr.Logger
	recorder    events.Recorder
	controllers map[schema.GroupVersionKind][]Controller
	queue       []Request
	queued      sets.Set[Request]
	budget      int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSyncBudget overrides the per-Sync reconcile invocation limit.
func WithSyncBudget(n int) ManagerOption {
	return func(m *Manager) {
		m.budget = n
	}
}

// NewManager creates a manager with no controllers registered.
func NewManager(log logr.Logger, recorder events.Recorder, opts ...ManagerOption) *Manager {
	m := &Manager{
		log:         log.WithName("controller-manager"),
		recorder:    recorder,
		controllers: make(map[schema.GroupVersionKind][]Controller),
		queued:      sets.New[Request](),
		budget:      DefaultSyncBudget,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a controller. Multiple controllers may watch the same kind;
// they run in registration order.
func (m *Manager) Register(c Controller) {
	kind := c.Kind()
	m.controllers[kind] = append(m.controllers[kind], c)
}

// Handles reports whether any controller watches gvk.
func (m *Manager) Handles(gvk schema.GroupVersionKind) bool {
	return len(m.controllers[gvk]) > 0
}

// Enqueue adds a request to the work queue. Requests already queued are
// not added again.
func (m *Manager) Enqueue(req Request) {
	if !m.Handles(req.GVK) || m.queued.Has(req) {
		return
	}
	m.queue = append(m.queue, req)
	m.queued.Insert(req)
}

// EnqueueOwners queues the declared owners of obj whose kinds are watched
// by a controller. Child mutations flow back to their parents this way.
func (m *Manager) EnqueueOwners(obj storage.Object) {
	for _, ref := range obj.GetOwnerReferences() {
		gvk := schema.FromAPIVersionAndKind(ref.APIVersion, ref.Kind)
		m.Enqueue(Request{
			GVK: gvk,
			Key: storage.ObjectKey{Namespace: obj.GetNamespace(), Name: ref.Name},
		})
	}
}

// Sync drains the work queue, dispatching each request to the controllers
// for its kind, until the queue is empty or the budget is exhausted. A
// reconcile error is recorded as a warning event on the object and does
// not stop the remaining requests; Sync returns the aggregate.
func (m *Manager) Sync(ctx context.Context, cl Client) error {
	var errs []error
	spent := 0
	for len(m.queue) > 0 {
		req := m.queue[0]
		m.queue = m.queue[1:]
		m.queued.Delete(req)

		for _, c := range m.controllers[req.GVK] {
			if spent >= m.budget {
				return utilerrors.NewAggregate(append(errs,
					fmt.Errorf("sync budget of %d reconciles exhausted, queue depth %d", m.budget, len(m.queue)+1)))
			}
			spent++
			if err := c.Reconcile(ctx, cl, req); err != nil {
				m.log.Error(err, "reconcile failed", "kind", req.GVK.Kind, "object", req.Key.String())
				m.recordFailure(cl, req, err)
				errs = append(errs, fmt.Errorf("reconcile %s %s: %w", req.GVK.Kind, req.Key, err))
			}
		}
	}
	return utilerrors.NewAggregate(errs)
}

func (m *Manager) recordFailure(cl Client, req Request, err error) {
	obj, getErr := cl.Get(req.GVK, req.Key)
	if getErr != nil {
		if !apierrors.IsNotFound(getErr) {
			m.log.Error(getErr, "fetching object for failure event", "object", req.Key.String())
		}
		return
	}
	m.recorder.Eventf(obj, events.EventTypeWarning, events.ReasonFailedReconcile,
		"Error reconciling %s %s: %v", req.GVK.Kind, req.Key, err)
}
