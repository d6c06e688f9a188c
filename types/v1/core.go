package v1

import (
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	policyv1 "k8s.io/api/policy/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Service exposes a set of pods behind a stable virtual IP.
type Service = corev1.Service

// ServiceList represents a list of Service objects.
type ServiceList = corev1.ServiceList

// ServiceAccount provides an identity for workloads.
type ServiceAccount = corev1.ServiceAccount

// ServiceAccountList represents a list of ServiceAccount objects.
type ServiceAccountList = corev1.ServiceAccountList

// PersistentVolumeClaim requests storage for a workload.
type PersistentVolumeClaim = corev1.PersistentVolumeClaim

// PersistentVolumeClaimList represents a list of PersistentVolumeClaim objects.
type PersistentVolumeClaimList = corev1.PersistentVolumeClaimList

// Ingress describes externally reachable routes to services.
type Ingress = networkingv1.Ingress

// IngressList represents a list of Ingress objects.
type IngressList = networkingv1.IngressList

// PodDisruptionBudget limits voluntary disruption of a set of pods.
type PodDisruptionBudget = policyv1.PodDisruptionBudget

// PodDisruptionBudgetList represents a list of PodDisruptionBudget objects.
type PodDisruptionBudgetList = policyv1.PodDisruptionBudgetList

var (
	// ServiceGVK is the GroupVersionKind for Service.
	ServiceGVK = schema.GroupVersionKind{Group: "", Version: "v1", Kind: "Service"}

	// ServiceGVR is the GroupVersionResource for Service.
	ServiceGVR = schema.GroupVersionResource{Group: "", Version: "v1", Resource: "services"}

	// ServiceAccountGVK is the GroupVersionKind for ServiceAccount.
	ServiceAccountGVK = schema.GroupVersionKind{Group: "", Version: "v1", Kind: "ServiceAccount"}

	// ServiceAccountGVR is the GroupVersionResource for ServiceAccount.
	ServiceAccountGVR = schema.GroupVersionResource{Group: "", Version: "v1", Resource: "serviceaccounts"}

	// PersistentVolumeClaimGVK is the GroupVersionKind for PersistentVolumeClaim.
	PersistentVolumeClaimGVK = schema.GroupVersionKind{Group: "", Version: "v1", Kind: "PersistentVolumeClaim"}

	// PersistentVolumeClaimGVR is the GroupVersionResource for PersistentVolumeClaim.
	PersistentVolumeClaimGVR = schema.GroupVersionResource{Group: "", Version: "v1", Resource: "persistentvolumeclaims"}

	// IngressGVK is the GroupVersionKind for Ingress.
	IngressGVK = schema.GroupVersionKind{Group: "networking.k8s.io", Version: "v1", Kind: "Ingress"}

	// IngressGVR is the GroupVersionResource for Ingress.
	IngressGVR = schema.GroupVersionResource{Group: "networking.k8s.io", Version: "v1", Resource: "ingresses"}

	// PodDisruptionBudgetGVK is the GroupVersionKind for PodDisruptionBudget.
	PodDisruptionBudgetGVK = schema.GroupVersionKind{Group: "policy", Version: "v1", Kind: "PodDisruptionBudget"}

	// PodDisruptionBudgetGVR is the GroupVersionResource for PodDisruptionBudget.
	PodDisruptionBudgetGVR = schema.GroupVersionResource{Group: "policy", Version: "v1", Resource: "poddisruptionbudgets"}
)
