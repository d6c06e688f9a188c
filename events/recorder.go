package events

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/uuid"
)

// recorder implements Recorder by appending to a Log.
type recorder struct {
	scheme *runtime.Scheme
	source corev1.EventSource
	log    *Log
	clock  Clock
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Scheme resolves object kinds for involved-object references.
	Scheme *runtime.Scheme

	// Source identifies the component recording events.
	Source corev1.EventSource

	// Clock allows injection of a fixed clock in tests.
	Clock Clock
}

// NewRecorder creates a Recorder appending to the given log.
func NewRecorder(log *Log, opts RecorderOptions) Recorder {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	return &recorder{
		scheme: opts.Scheme,
		source: opts.Source,
		log:    log,
		clock:  opts.Clock,
	}
}

// Event constructs an event from the given information and records it.
func (r *recorder) Event(object runtime.Object, eventtype, reason, message string) {
	r.record(object, eventtype, reason, message)
}

// Eventf is just like Event, but with Sprintf for the message field.
func (r *recorder) Eventf(object runtime.Object, eventtype, reason, messageFmt string, args ...interface{}) {
	r.record(object, eventtype, reason, fmt.Sprintf(messageFmt, args...))
}

func (r *recorder) record(object runtime.Object, eventtype, reason, message string) {
	ref, err := ObjectReference(r.scheme, object)
	if err != nil {
		// An unresolvable object cannot be referenced; drop the event
		// rather than fail the operation that emitted it.
		return
	}

	namespace := ref.Namespace
	if namespace == "" {
		namespace = metav1.NamespaceDefault
	}
	now := r.clock.Now()

	r.log.Append(&corev1.Event{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Event",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      fmt.Sprintf("%s.%s", ref.Name, string(uuid.NewUUID())[:8]),
			Namespace: namespace,
		},
		InvolvedObject:      ref,
		Reason:              reason,
		Message:             message,
		Type:                eventtype,
		FirstTimestamp:      now,
		LastTimestamp:       now,
		Count:               1,
		Source:              r.source,
		ReportingController: r.source.Component,
		ReportingInstance:   r.source.Host,
	})
}
