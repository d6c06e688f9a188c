package defaulting

import (
	"context"
	"fmt"
	"sync"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/tofarr/mockernetes/events"
	"github.com/tofarr/mockernetes/storage"
	typesv1 "github.com/tofarr/mockernetes/types/v1"
)

// Manager dispatches to per-kind defaulters. Objects of kinds with no
// registered defaulter pass through unchanged.
type Manager struct {
	mu         sync.RWMutex
	defaulters map[schema.GroupVersionKind]Defaulter
}

// NewManager returns a manager pre-populated with the builtin defaulters.
func NewManager(clock events.Clock) *Manager {
	if clock == nil {
		clock = events.RealClock{}
	}
	m := &Manager{defaulters: make(map[schema.GroupVersionKind]Defaulter)}
	m.Register(typesv1.PodGVK, NewPodDefaulter(clock))
	m.Register(typesv1.ServiceGVK, NewServiceDefaulter())
	m.Register(typesv1.PersistentVolumeClaimGVK, NewPersistentVolumeClaimDefaulter())
	return m
}

// Register installs a defaulter for gvk, replacing any previous one.
func (m *Manager) Register(gvk schema.GroupVersionKind, d Defaulter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaulters[gvk] = d
}

// Default applies the defaulter registered for obj's kind, if any.
func (m *Manager) Default(ctx context.Context, obj storage.Object) error {
	gvk := obj.GetObjectKind().GroupVersionKind()
	m.mu.RLock()
	d := m.defaulters[gvk]
	m.mu.RUnlock()
	if d == nil {
		return nil
	}
	return d.Default(ctx, obj)
}

var _ Defaulter = (*Manager)(nil)

// podDefaulter simulates pod startup: a freshly created pod transitions
// straight to Running with every container reporting ready.
type podDefaulter struct {
	clock events.Clock
}

// NewPodDefaulter returns the defaulter applied to pods on create.
func NewPodDefaulter(clock events.Clock) Defaulter {
	return &podDefaulter{clock: clock}
}

func (d *podDefaulter) Default(_ context.Context, obj storage.Object) error {
	pod, ok := obj.(*typesv1.Pod)
	if !ok {
		return nil
	}
	if pod.Status.Phase != "" && pod.Status.Phase != corev1.PodPending {
		return nil
	}

	now := d.clock.Now()
	if len(pod.Status.ContainerStatuses) == 0 {
		for _, c := range pod.Spec.Containers {
			pod.Status.ContainerStatuses = append(pod.Status.ContainerStatuses, corev1.ContainerStatus{
				Name:    c.Name,
				Image:   c.Image,
				ImageID: fmt.Sprintf("docker-pullable://%s@sha256:mock", c.Image),
			})
		}
	}
	pod.Status.Phase = corev1.PodRunning
	pod.Status.StartTime = &now
	for i := range pod.Status.ContainerStatuses {
		pod.Status.ContainerStatuses[i].Ready = true
		pod.Status.ContainerStatuses[i].State = corev1.ContainerState{
			Running: &corev1.ContainerStateRunning{StartedAt: now},
		}
	}
	pod.Status.Conditions = []corev1.PodCondition{
		{Type: corev1.PodReady, Status: corev1.ConditionTrue, LastTransitionTime: now},
	}
	return nil
}

// serviceDefaulter fills in the service type and allocates cluster IPs
// from the 10.96.0.0/16 range. Allocation is a simple counter so IPs are
// deterministic for a given creation order.
type serviceDefaulter struct {
	mu        sync.Mutex
	allocated uint32
}

// NewServiceDefaulter returns the defaulter applied to services on create.
func NewServiceDefaulter() Defaulter {
	return &serviceDefaulter{}
}

func (d *serviceDefaulter) Default(_ context.Context, obj storage.Object) error {
	svc, ok := obj.(*typesv1.Service)
	if !ok {
		return nil
	}
	if svc.Spec.Type == "" {
		svc.Spec.Type = corev1.ServiceTypeClusterIP
	}
	if svc.Spec.ClusterIP == "" && svc.Spec.Type == corev1.ServiceTypeClusterIP {
		d.mu.Lock()
		n := d.allocated
		d.allocated++
		d.mu.Unlock()
		svc.Spec.ClusterIP = fmt.Sprintf("10.96.%d.%d", n%255, (n/255)%255)
	}
	if svc.Spec.ClusterIP != "" && len(svc.Spec.ClusterIPs) == 0 {
		svc.Spec.ClusterIPs = []string{svc.Spec.ClusterIP}
	}
	return nil
}

// pvcDefaulter binds claims immediately: there is no volume provisioner
// here, so every claim reports Bound with its requested capacity.
type pvcDefaulter struct{}

// NewPersistentVolumeClaimDefaulter returns the defaulter applied to
// persistent volume claims on create.
func NewPersistentVolumeClaimDefaulter() Defaulter {
	return pvcDefaulter{}
}

func (pvcDefaulter) Default(_ context.Context, obj storage.Object) error {
	pvc, ok := obj.(*typesv1.PersistentVolumeClaim)
	if !ok {
		return nil
	}
	if pvc.Status.Phase != "" && pvc.Status.Phase != corev1.ClaimPending {
		return nil
	}
	pvc.Status.Phase = corev1.ClaimBound
	if pvc.Spec.VolumeName == "" {
		pvc.Spec.VolumeName = fmt.Sprintf("pv-%s", pvc.GetName())
	}
	pvc.Status.AccessModes = pvc.Spec.AccessModes
	if requested, ok := pvc.Spec.Resources.Requests[corev1.ResourceStorage]; ok {
		if pvc.Status.Capacity == nil {
			pvc.Status.Capacity = corev1.ResourceList{}
		}
		pvc.Status.Capacity[corev1.ResourceStorage] = requested
	}
	return nil
}
