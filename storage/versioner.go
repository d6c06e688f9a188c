package storage

import (
	"fmt"
	"strconv"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	apistorage "k8s.io/apiserver/pkg/storage"
)

// SimpleVersioner manages per-object resource versions as decimal strings
// over a monotonically increasing counter. It implements the apiserver
// storage.Versioner contract so the store behaves like a regular backend.
type SimpleVersioner struct{}

var _ apistorage.Versioner = SimpleVersioner{}

// UpdateObject sets the resource version of an object.
func (v SimpleVersioner) UpdateObject(obj runtime.Object, resourceVersion uint64) error {
	accessor, err := meta.Accessor(obj)
	if err != nil {
		return err
	}
	accessor.SetResourceVersion(EncodeResourceVersion(resourceVersion))
	return nil
}

// UpdateList sets the resource version of a list object.
func (v SimpleVersioner) UpdateList(obj runtime.Object, resourceVersion uint64, continueValue string, remainingItemCount *int64) error {
	listAccessor, err := meta.ListAccessor(obj)
	if err != nil {
		return err
	}
	listAccessor.SetResourceVersion(EncodeResourceVersion(resourceVersion))
	listAccessor.SetContinue(continueValue)
	listAccessor.SetRemainingItemCount(remainingItemCount)
	return nil
}

// PrepareObjectForStorage clears fields the store owns before first write.
func (v SimpleVersioner) PrepareObjectForStorage(obj runtime.Object) error {
	accessor, err := meta.Accessor(obj)
	if err != nil {
		return err
	}
	if accessor.GetCreationTimestamp().Time.IsZero() {
		accessor.SetCreationTimestamp(metav1.Now())
	}
	return nil
}

// ObjectResourceVersion extracts the resource version from an object.
func (v SimpleVersioner) ObjectResourceVersion(obj runtime.Object) (uint64, error) {
	accessor, err := meta.Accessor(obj)
	if err != nil {
		return 0, err
	}
	return ParseResourceVersion(accessor.GetResourceVersion())
}

// ParseResourceVersion parses a resource version string. The empty string
// parses to zero, meaning "unset".
func (v SimpleVersioner) ParseResourceVersion(resourceVersion string) (uint64, error) {
	return ParseResourceVersion(resourceVersion)
}

// EncodeResourceVersion renders a resource version counter as the opaque
// string callers see.
func EncodeResourceVersion(resourceVersion uint64) string {
	return strconv.FormatUint(resourceVersion, 10)
}

// ParseResourceVersion parses an opaque resource version string back into
// its counter value. Empty means unset.
func ParseResourceVersion(resourceVersion string) (uint64, error) {
	if resourceVersion == "" {
		return 0, nil
	}
	version, err := strconv.ParseUint(resourceVersion, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid resource version %q: %w", resourceVersion, err)
	}
	return version, nil
}
