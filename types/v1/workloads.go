package v1

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Deployment is the top-level scalable workload kind. The standard
// appsv1.Deployment is used directly for full client compatibility.
type Deployment = appsv1.Deployment

// DeploymentList represents a list of Deployment objects.
type DeploymentList = appsv1.DeploymentList

// ReplicaSet is the intermediate workload kind a Deployment expands into.
type ReplicaSet = appsv1.ReplicaSet

// ReplicaSetList represents a list of ReplicaSet objects.
type ReplicaSetList = appsv1.ReplicaSetList

// DeploymentStatus mirrors appsv1.DeploymentStatus.
type DeploymentStatus = appsv1.DeploymentStatus

// ReplicaSetSpec mirrors appsv1.ReplicaSetSpec.
type ReplicaSetSpec = appsv1.ReplicaSetSpec

// ReplicaSetStatus mirrors appsv1.ReplicaSetStatus.
type ReplicaSetStatus = appsv1.ReplicaSetStatus

// PodTemplateSpec mirrors corev1.PodTemplateSpec.
type PodTemplateSpec = corev1.PodTemplateSpec

var (
	// DeploymentGVK is the GroupVersionKind for Deployment.
	DeploymentGVK = schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}

	// DeploymentGVR is the GroupVersionResource for Deployment.
	DeploymentGVR = schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"}

	// ReplicaSetGVK is the GroupVersionKind for ReplicaSet.
	ReplicaSetGVK = schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "ReplicaSet"}

	// ReplicaSetGVR is the GroupVersionResource for ReplicaSet.
	ReplicaSetGVR = schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "replicasets"}
)

// NewDeployment creates a Deployment with the given namespace, name, replica
// count and pod template labels. The selector and template labels are kept
// in sync so the expanded children match the deployment's own selector.
func NewDeployment(namespace, name string, replicas int32, templateLabels map[string]string) *Deployment {
	return &Deployment{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "apps/v1",
			Kind:       "Deployment",
		},
		ObjectMeta: metav1.ObjectMeta{
			Namespace: namespace,
			Name:      name,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: templateLabels},
			Template: NewPodTemplateSpec(templateLabels),
		},
	}
}

// NewPodTemplateSpec creates a minimal pod template with the given labels
// and a single placeholder container.
func NewPodTemplateSpec(labels map[string]string) corev1.PodTemplateSpec {
	return corev1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{Labels: labels},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Name:  "app",
				Image: "registry.example.com/app:latest",
			}},
		},
	}
}
