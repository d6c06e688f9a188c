package cluster

import (
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/tofarr/mockernetes/controllers"
	"github.com/tofarr/mockernetes/events"
	typesv1 "github.com/tofarr/mockernetes/types/v1"
	"github.com/tofarr/mockernetes/validation"
)

// Option configures a Cluster at construction time.
type Option func(*options)

type options struct {
	log                logr.Logger
	clock              events.Clock
	eventLogLimit      int
	controllers        []controllers.Controller
	builtinControllers bool
	rules              map[schema.GroupVersionKind][]validation.Rule
	customKinds        []typesv1.ResourceInfo
}

func defaultOptions() *options {
	return &options{
		log:                logr.Discard(),
		clock:              events.RealClock{},
		eventLogLimit:      events.DefaultLogLimit,
		builtinControllers: true,
		rules:              make(map[schema.GroupVersionKind][]validation.Rule),
	}
}

// WithLogger sets the logger used by the cluster and its controllers.
func WithLogger(log logr.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithClock fixes the clock used for event and status timestamps.
func WithClock(clock events.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithEventLogLimit overrides the event log capacity.
func WithEventLogLimit(limit int) Option {
	return func(o *options) {
		o.eventLogLimit = limit
	}
}

// WithController registers an additional controller. It runs alongside the
// builtin workload controllers unless those are disabled.
func WithController(c controllers.Controller) Option {
	return func(o *options) {
		o.controllers = append(o.controllers, c)
	}
}

// WithoutBuiltinControllers disables the Deployment and ReplicaSet
// controllers, leaving only controllers registered via WithController.
func WithoutBuiltinControllers() Option {
	return func(o *options) {
		o.builtinControllers = false
	}
}

// WithValidationRule adds a CEL rule evaluated against objects of the given
// kind on create and update.
func WithValidationRule(gvk schema.GroupVersionKind, rule validation.Rule) Option {
	return func(o *options) {
		o.rules[gvk] = append(o.rules[gvk], rule)
	}
}

// WithCustomKind registers a custom resource kind. Custom kinds are stored
// as unstructured objects and go through the same verbs, ownership graph
// and event machinery as the builtin kinds.
func WithCustomKind(info typesv1.ResourceInfo) Option {
	return func(o *options) {
		o.customKinds = append(o.customKinds, info)
	}
}
