// Package registry holds the kind metadata the engine needs to route
// operations: namespace scope, GVK<->GVR mappings and short names. All
// built-in kinds are registered at construction; custom kinds can be added
// at runtime and are served through the untyped object path.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"k8s.io/apimachinery/pkg/runtime/schema"

	typesv1 "github.com/tofarr/mockernetes/types/v1"
)

// Registry is the kind metadata index.
type Registry struct {
	mu sync.RWMutex

	// byGVK maps GroupVersionKind to its resource info.
	byGVK map[schema.GroupVersionKind]typesv1.ResourceInfo

	// shortNames maps short names to GVKs for quick lookup.
	shortNames map[string]schema.GroupVersionKind

	// custom marks kinds registered after construction.
	custom map[schema.GroupVersionKind]bool
}

// NewRegistry creates a registry pre-populated with all built-in kinds.
func NewRegistry() *Registry {
	r := &Registry{
		byGVK:      make(map[schema.GroupVersionKind]typesv1.ResourceInfo),
		shortNames: make(map[string]schema.GroupVersionKind),
		custom:     make(map[schema.GroupVersionKind]bool),
	}
	for _, info := range typesv1.BuiltinResourceInfos() {
		r.byGVK[info.GVK] = info
		for _, short := range info.ShortNames {
			r.shortNames[strings.ToLower(short)] = info.GVK
		}
	}
	return r
}

// RegisterCustomKind adds a non-built-in kind. Custom kinds flow through
// the untyped (unstructured) object path of the engine.
func (r *Registry) RegisterCustomKind(info typesv1.ResourceInfo) error {
	if info.GVK.Kind == "" {
		return fmt.Errorf("custom kind registration requires a kind")
	}
	if info.Plural == "" {
		info.Plural = strings.ToLower(info.GVK.Kind) + "s"
	}
	if info.Singular == "" {
		info.Singular = strings.ToLower(info.GVK.Kind)
	}
	if info.GVR.Resource == "" {
		info.GVR = schema.GroupVersionResource{
			Group:    info.GVK.Group,
			Version:  info.GVK.Version,
			Resource: info.Plural,
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byGVK[info.GVK]; exists {
		return fmt.Errorf("kind %s is already registered", info.GVK)
	}
	for _, short := range info.ShortNames {
		normalized := strings.ToLower(short)
		if existing, exists := r.shortNames[normalized]; exists {
			return fmt.Errorf("short name %q conflicts with existing kind %s", short, existing)
		}
	}

	r.byGVK[info.GVK] = info
	r.custom[info.GVK] = true
	for _, short := range info.ShortNames {
		r.shortNames[strings.ToLower(short)] = info.GVK
	}
	return nil
}

// InfoForGVK returns the resource info for a kind.
func (r *Registry) InfoForGVK(gvk schema.GroupVersionKind) (typesv1.ResourceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byGVK[gvk]
	return info, ok
}

// IsNamespaced reports whether a kind is namespace-scoped. Unregistered
// kinds default to namespaced, matching how custom resources usually
// behave.
func (r *Registry) IsNamespaced(gvk schema.GroupVersionKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if info, ok := r.byGVK[gvk]; ok {
		return info.NamespaceScoped
	}
	return true
}

// IsCustom reports whether a kind was registered after construction.
func (r *Registry) IsCustom(gvk schema.GroupVersionKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.custom[gvk]
}

// GroupResourceFor maps a kind to the GroupResource used in error
// payloads. Unregistered kinds fall back to naive pluralization.
func (r *Registry) GroupResourceFor(gvk schema.GroupVersionKind) schema.GroupResource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if info, ok := r.byGVK[gvk]; ok {
		return schema.GroupResource{Group: info.GVR.Group, Resource: info.GVR.Resource}
	}
	return schema.GroupResource{Group: gvk.Group, Resource: strings.ToLower(gvk.Kind) + "s"}
}

// GVKForShortName resolves a short name like "deploy" or "ns" to its kind.
func (r *Registry) GVKForShortName(short string) (schema.GroupVersionKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gvk, ok := r.shortNames[strings.ToLower(short)]
	return gvk, ok
}

// Kinds returns every registered GroupVersionKind.
func (r *Registry) Kinds() []schema.GroupVersionKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]schema.GroupVersionKind, 0, len(r.byGVK))
	for gvk := range r.byGVK {
		kinds = append(kinds, gvk)
	}
	return kinds
}
