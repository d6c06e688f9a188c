package events_test

import (
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/tofarr/mockernetes/events"
	typesv1 "github.com/tofarr/mockernetes/types/v1"
)

// fixedClock returns a constant, advanceable time.
type fixedClock struct {
	now metav1.Time
}

func (c *fixedClock) Now() metav1.Time { return c.now }

func (c *fixedClock) advance(d time.Duration) {
	c.now = metav1.NewTime(c.now.Add(d))
}

func podEvent(uid types.UID, name, reason, message string) *corev1.Event {
	return &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: name + ".x"},
		InvolvedObject: corev1.ObjectReference{
			Kind:      "Pod",
			Namespace: "default",
			Name:      name,
			UID:       uid,
		},
		Reason:         reason,
		Message:        message,
		Type:           corev1.EventTypeNormal,
		FirstTimestamp: metav1.Now(),
		LastTimestamp:  metav1.Now(),
	}
}

var _ = Describe("Log", func() {
	var log *events.Log

	BeforeEach(func() {
		log = events.NewLog()
	})

	It("keeps append order", func() {
		log.Append(podEvent("u1", "web-0", "Created", "Created Pod default/web-0"))
		log.Append(podEvent("u2", "web-1", "Created", "Created Pod default/web-1"))

		all := log.List(nil)
		Expect(all).To(HaveLen(2))
		Expect(all[0].InvolvedObject.Name).To(Equal("web-0"))
		Expect(all[1].InvolvedObject.Name).To(Equal("web-1"))
	})

	It("aggregates repeats of the same (object, reason, message) triple", func() {
		log.Append(podEvent("u1", "web-0", "BackOff", "Back-off restarting container"))
		log.Append(podEvent("u1", "web-0", "BackOff", "Back-off restarting container"))
		log.Append(podEvent("u1", "web-0", "BackOff", "Back-off restarting container"))

		all := log.List(nil)
		Expect(all).To(HaveLen(1))
		Expect(all[0].Count).To(Equal(int32(3)))
	})

	It("does not aggregate across different messages or objects", func() {
		log.Append(podEvent("u1", "web-0", "BackOff", "attempt 1"))
		log.Append(podEvent("u1", "web-0", "BackOff", "attempt 2"))
		log.Append(podEvent("u2", "web-1", "BackOff", "attempt 1"))
		Expect(log.Len()).To(Equal(3))
	})

	It("drops the oldest entry past the limit", func() {
		small := events.NewLog(events.WithLimit(3))
		for i := 0; i < 5; i++ {
			small.Append(podEvent(types.UID(fmt.Sprintf("u%d", i)), fmt.Sprintf("web-%d", i), "Created", "created"))
		}
		all := small.List(nil)
		Expect(all).To(HaveLen(3))
		Expect(all[0].InvolvedObject.Name).To(Equal("web-2"))
		Expect(all[2].InvolvedObject.Name).To(Equal("web-4"))
	})

	It("filters by involved object reference", func() {
		log.Append(podEvent("u1", "web-0", "Created", "created"))
		log.Append(podEvent("u2", "web-1", "Created", "created"))

		byName := log.List(&corev1.ObjectReference{Kind: "Pod", Namespace: "default", Name: "web-1"})
		Expect(byName).To(HaveLen(1))
		Expect(byName[0].InvolvedObject.UID).To(Equal(types.UID("u2")))

		byUID := log.List(&corev1.ObjectReference{UID: "u1"})
		Expect(byUID).To(HaveLen(1))
		Expect(byUID[0].InvolvedObject.Name).To(Equal("web-0"))
	})
})

var _ = Describe("Recorder", func() {
	var (
		log      *events.Log
		clock    *fixedClock
		recorder events.Recorder
	)

	BeforeEach(func() {
		log = events.NewLog()
		clock = &fixedClock{now: metav1.NewTime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))}
		recorder = events.NewRecorder(log, events.RecorderOptions{
			Scheme: typesv1.NewScheme(),
			Source: events.NewEventSource("test-controller"),
			Clock:  clock,
		})
	})

	It("records an event referencing the involved object", func() {
		pod := &typesv1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "web-0", UID: "pod-uid"}}
		recorder.Eventf(pod, events.EventTypeNormal, events.ReasonCreated, "Created pod: %s", pod.Name)

		all := log.List(nil)
		Expect(all).To(HaveLen(1))
		Expect(all[0].InvolvedObject.Kind).To(Equal("Pod"))
		Expect(all[0].InvolvedObject.UID).To(Equal(types.UID("pod-uid")))
		Expect(all[0].Reason).To(Equal(events.ReasonCreated))
		Expect(all[0].Message).To(Equal("Created pod: web-0"))
		Expect(all[0].Source.Component).To(Equal("test-controller"))
		Expect(all[0].FirstTimestamp).To(Equal(clock.now))
	})

	It("refreshes the last timestamp when a repeat aggregates", func() {
		pod := &typesv1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "web-0", UID: "pod-uid"}}
		recorder.Event(pod, events.EventTypeWarning, "BackOff", "restarting")
		first := clock.now
		clock.advance(time.Minute)
		recorder.Event(pod, events.EventTypeWarning, "BackOff", "restarting")

		all := log.List(nil)
		Expect(all).To(HaveLen(1))
		Expect(all[0].Count).To(Equal(int32(2)))
		Expect(all[0].FirstTimestamp).To(Equal(first))
		Expect(all[0].LastTimestamp).To(Equal(clock.now))
	})
})
