package v1

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Event records a lifecycle occurrence on another resource.
type Event = corev1.Event

// EventList represents a list of Event objects.
type EventList = corev1.EventList

var (
	// EventGVK is the GroupVersionKind for Event.
	EventGVK = schema.GroupVersionKind{Group: "", Version: "v1", Kind: "Event"}

	// EventGVR is the GroupVersionResource for Event.
	EventGVR = schema.GroupVersionResource{Group: "", Version: "v1", Resource: "events"}
)
