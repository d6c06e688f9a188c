// Package events records lifecycle events into an append-only in-memory
// log. The recorder interface mirrors the client-go EventRecorder so
// controller code reads the same as it would against a real cluster.
package events

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// Recorder records events about objects.
type Recorder interface {
	// Event constructs an event from the given information and appends it
	// to the log. 'eventtype' is Normal or Warning; 'reason' is a short
	// UpperCamelCase machine-readable code; 'message' is for humans.
	Event(object runtime.Object, eventtype, reason, message string)

	// Eventf is just like Event, but with Sprintf for the message field.
	Eventf(object runtime.Object, eventtype, reason, messageFmt string, args ...interface{})
}

// Event types mirroring the Kubernetes standard.
const (
	// EventTypeNormal represents normal, informational events.
	EventTypeNormal = corev1.EventTypeNormal

	// EventTypeWarning represents events that indicate problems.
	EventTypeWarning = corev1.EventTypeWarning
)

// Standard event reasons following Kubernetes conventions.
const (
	ReasonCreated           = "Created"
	ReasonUpdated           = "Updated"
	ReasonDeleted           = "Deleted"
	ReasonSuccessfulCreate  = "SuccessfulCreate"
	ReasonSuccessfulDelete  = "SuccessfulDelete"
	ReasonScalingReplicaSet = "ScalingReplicaSet"
	ReasonFailedCreate      = "FailedCreate"
	ReasonFailedDelete      = "FailedDelete"
	ReasonFailedReconcile   = "FailedReconcile"
)

// DefaultLogLimit bounds the event log; the oldest entries are dropped
// once it is exceeded.
const DefaultLogLimit = 1000

// Clock provides time that can be fixed in tests.
type Clock interface {
	Now() metav1.Time
}

// RealClock implements Clock using wall time.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() metav1.Time {
	return metav1.Now()
}

// NewEventSource builds a standard event source for simulator components.
func NewEventSource(component string) corev1.EventSource {
	return corev1.EventSource{
		Component: component,
		Host:      "mockernetes",
	}
}

// ObjectReference builds a reference to the involved object of an event.
func ObjectReference(scheme *runtime.Scheme, obj runtime.Object) (corev1.ObjectReference, error) {
	if obj == nil {
		return corev1.ObjectReference{}, fmt.Errorf("cannot create reference for nil object")
	}
	metaObj, ok := obj.(metav1.Object)
	if !ok {
		return corev1.ObjectReference{}, fmt.Errorf("object does not implement metav1.Object")
	}

	gvk := obj.GetObjectKind().GroupVersionKind()
	if gvk.Empty() {
		gvks, _, err := scheme.ObjectKinds(obj)
		if err != nil || len(gvks) == 0 {
			return corev1.ObjectReference{}, fmt.Errorf("no GroupVersionKind found for object: %v", err)
		}
		gvk = gvks[0]
	}

	return corev1.ObjectReference{
		Kind:            gvk.Kind,
		APIVersion:      gvk.GroupVersion().String(),
		Namespace:       metaObj.GetNamespace(),
		Name:            metaObj.GetName(),
		UID:             metaObj.GetUID(),
		ResourceVersion: metaObj.GetResourceVersion(),
	}, nil
}
