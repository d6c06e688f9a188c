package v1

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// ResourceInfo contains metadata about a resource kind known to the simulator.
type ResourceInfo struct {
	// GVK is the GroupVersionKind for this resource
	GVK schema.GroupVersionKind
	// GVR is the GroupVersionResource for this resource
	GVR schema.GroupVersionResource
	// Singular is the singular name of the resource
	Singular string
	// Plural is the plural name of the resource
	Plural string
	// ShortNames are the short names for CLI-style lookup
	ShortNames []string
	// NamespaceScoped indicates if the resource is namespace-scoped
	NamespaceScoped bool
}

// BuiltinResourceInfos returns metadata for all built-in resource kinds,
// keyed by kind name.
func BuiltinResourceInfos() map[string]ResourceInfo {
	return map[string]ResourceInfo{
		"Namespace": {
			GVK:             NamespaceGVK,
			GVR:             NamespaceGVR,
			Singular:        "namespace",
			Plural:          "namespaces",
			ShortNames:      []string{"ns"},
			NamespaceScoped: false,
		},
		"Pod": {
			GVK:             PodGVK,
			GVR:             PodGVR,
			Singular:        "pod",
			Plural:          "pods",
			ShortNames:      []string{"po"},
			NamespaceScoped: true,
		},
		"Deployment": {
			GVK:             DeploymentGVK,
			GVR:             DeploymentGVR,
			Singular:        "deployment",
			Plural:          "deployments",
			ShortNames:      []string{"deploy"},
			NamespaceScoped: true,
		},
		"ReplicaSet": {
			GVK:             ReplicaSetGVK,
			GVR:             ReplicaSetGVR,
			Singular:        "replicaset",
			Plural:          "replicasets",
			ShortNames:      []string{"rs"},
			NamespaceScoped: true,
		},
		"Service": {
			GVK:             ServiceGVK,
			GVR:             ServiceGVR,
			Singular:        "service",
			Plural:          "services",
			ShortNames:      []string{"svc"},
			NamespaceScoped: true,
		},
		"ServiceAccount": {
			GVK:             ServiceAccountGVK,
			GVR:             ServiceAccountGVR,
			Singular:        "serviceaccount",
			Plural:          "serviceaccounts",
			ShortNames:      []string{"sa"},
			NamespaceScoped: true,
		},
		"PersistentVolumeClaim": {
			GVK:             PersistentVolumeClaimGVK,
			GVR:             PersistentVolumeClaimGVR,
			Singular:        "persistentvolumeclaim",
			Plural:          "persistentvolumeclaims",
			ShortNames:      []string{"pvc"},
			NamespaceScoped: true,
		},
		"Ingress": {
			GVK:             IngressGVK,
			GVR:             IngressGVR,
			Singular:        "ingress",
			Plural:          "ingresses",
			ShortNames:      []string{"ing"},
			NamespaceScoped: true,
		},
		"PodDisruptionBudget": {
			GVK:             PodDisruptionBudgetGVK,
			GVR:             PodDisruptionBudgetGVR,
			Singular:        "poddisruptionbudget",
			Plural:          "poddisruptionbudgets",
			ShortNames:      []string{"pdb"},
			NamespaceScoped: true,
		},
		"Event": {
			GVK:             EventGVK,
			GVR:             EventGVR,
			Singular:        "event",
			Plural:          "events",
			ShortNames:      []string{"ev"},
			NamespaceScoped: true,
		},
	}
}

// ResourceInfoByKind returns the ResourceInfo for a given kind name.
func ResourceInfoByKind(kind string) (ResourceInfo, bool) {
	info, ok := BuiltinResourceInfos()[kind]
	return info, ok
}

// ResourceInfoByGVK returns the ResourceInfo for a given GroupVersionKind.
func ResourceInfoByGVK(gvk schema.GroupVersionKind) (ResourceInfo, bool) {
	for _, info := range BuiltinResourceInfos() {
		if info.GVK == gvk {
			return info, true
		}
	}
	return ResourceInfo{}, false
}
