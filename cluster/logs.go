package cluster

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"

	"github.com/tofarr/mockernetes/storage"
	typesv1 "github.com/tofarr/mockernetes/types/v1"
)

// PodLogOptions narrows a PodLogs query. Container selects which container
// the log line names; Previous asks for the last terminated container's
// output instead of the current one's.
type PodLogOptions struct {
	Container string
	Previous  bool
}

// PodLogs returns simulated log output for a pod, derived from its phase.
// A Running pod yields a mock log line, a Failed pod an error line, and
// anything else a placeholder naming the phase. With Previous set, the
// first container's recorded termination message is returned when one
// exists.
func (c *Cluster) PodLogs(_ context.Context, key storage.ObjectKey, opts PodLogOptions) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if key.Namespace == "" {
		key.Namespace = DefaultNamespace
	}
	obj, err := c.store.Get(typesv1.PodGVK, key)
	if err != nil {
		return "", err
	}
	pod, ok := obj.(*typesv1.Pod)
	if !ok {
		return "", fmt.Errorf("expected Pod, got %T", obj)
	}

	if opts.Previous && len(pod.Status.ContainerStatuses) > 0 {
		last := pod.Status.ContainerStatuses[0].LastTerminationState
		if last.Terminated != nil && last.Terminated.Message != "" {
			return last.Terminated.Message, nil
		}
		return "Previous container logs", nil
	}

	container := opts.Container
	if container == "" {
		container = "default"
	}
	switch pod.Status.Phase {
	case corev1.PodRunning:
		return fmt.Sprintf("Mock logs for pod %s in container %s", pod.Name, container), nil
	case corev1.PodFailed:
		return fmt.Sprintf("Error logs for failed pod %s", pod.Name), nil
	default:
		return fmt.Sprintf("No logs available for pod %s in phase %s", pod.Name, pod.Status.Phase), nil
	}
}
