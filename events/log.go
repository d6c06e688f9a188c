package events

import (
	"sync"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
)

// dedupKey identifies events that aggregate into one entry.
type dedupKey struct {
	involvedUID types.UID
	involved    string
	reason      string
	message     string
}

// Log is the append-only event log. Entries are never mutated after being
// appended except for count aggregation: a repeated (object, reason,
// message) triple increments Count and refreshes LastTimestamp instead of
// duplicating the entry.
type Log struct {
	mu      sync.RWMutex
	entries []*corev1.Event
	byKey   map[dedupKey]*corev1.Event
	limit   int
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithLimit overrides the maximum number of retained entries.
func WithLimit(limit int) LogOption {
	return func(l *Log) {
		l.limit = limit
	}
}

// NewLog creates an empty event log.
func NewLog(opts ...LogOption) *Log {
	l := &Log{
		byKey: make(map[dedupKey]*corev1.Event),
		limit: DefaultLogLimit,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records an event, aggregating repeats by count.
func (l *Log) Append(event *corev1.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := dedupKey{
		involvedUID: event.InvolvedObject.UID,
		involved:    event.InvolvedObject.Namespace + "/" + event.InvolvedObject.Name,
		reason:      event.Reason,
		message:     event.Message,
	}
	if existing, ok := l.byKey[key]; ok {
		existing.Count++
		existing.LastTimestamp = event.LastTimestamp
		return
	}

	stored := event.DeepCopy()
	if stored.Count == 0 {
		stored.Count = 1
	}
	l.entries = append(l.entries, stored)
	l.byKey[key] = stored

	if len(l.entries) > l.limit {
		dropped := l.entries[0]
		l.entries = l.entries[1:]
		delete(l.byKey, dedupKey{
			involvedUID: dropped.InvolvedObject.UID,
			involved:    dropped.InvolvedObject.Namespace + "/" + dropped.InvolvedObject.Name,
			reason:      dropped.Reason,
			message:     dropped.Message,
		})
	}
}

// List returns copies of the accumulated events in append order,
// optionally filtered by involved object reference. A filter field left
// empty matches everything.
func (l *Log) List(ref *corev1.ObjectReference) []corev1.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []corev1.Event
	for _, entry := range l.entries {
		if ref != nil && !matchesReference(entry, ref) {
			continue
		}
		out = append(out, *entry.DeepCopy())
	}
	return out
}

// Len reports the number of distinct entries in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func matchesReference(event *corev1.Event, ref *corev1.ObjectReference) bool {
	involved := event.InvolvedObject
	if ref.UID != "" && involved.UID != ref.UID {
		return false
	}
	if ref.Kind != "" && involved.Kind != ref.Kind {
		return false
	}
	if ref.Namespace != "" && involved.Namespace != ref.Namespace {
		return false
	}
	if ref.Name != "" && involved.Name != ref.Name {
		return false
	}
	return true
}
