package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/strategicpatch"

	"github.com/tofarr/mockernetes/controllers"
	"github.com/tofarr/mockernetes/events"
	"github.com/tofarr/mockernetes/storage"
)

// Patch applies a partial update to a stored object. Strategic merge,
// JSON merge and JSON patch types are supported; custom kinds stored as
// unstructured objects treat a strategic merge as a plain JSON merge.
// Like Update, the call returns after controllers reached a fixpoint.
func (c *Cluster) Patch(ctx context.Context, gvk schema.GroupVersionKind, key storage.ObjectKey, patchType types.PatchType, data []byte) (storage.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registry.IsNamespaced(gvk) && key.Namespace == "" {
		key.Namespace = DefaultNamespace
	}
	existing, err := c.store.Get(gvk, key)
	if err != nil {
		return nil, err
	}

	patched, err := c.applyPatch(gvk, existing, patchType, data)
	if err != nil {
		return nil, err
	}
	patched.GetObjectKind().SetGroupVersionKind(gvk)

	if err := c.validator.ValidateUpdate(ctx, patched, existing); err != nil {
		return nil, err
	}
	if err := c.checkCycle(gvk, patched); err != nil {
		return nil, err
	}

	updated, err := c.store.Update(patched)
	if err != nil {
		return nil, err
	}
	c.graph.Track(gvk, updated)
	c.recorder.Eventf(updated, events.EventTypeNormal, events.ReasonUpdated,
		"Updated %s %s", gvk.Kind, storage.KeyFromObject(updated))

	c.manager.Enqueue(controllers.Request{GVK: gvk, Key: storage.KeyFromObject(updated)})
	c.manager.EnqueueOwners(updated)
	if err := c.sync(ctx); err != nil {
		return c.refresh(gvk, updated), err
	}
	return c.refresh(gvk, updated), nil
}

func (c *Cluster) applyPatch(gvk schema.GroupVersionKind, existing storage.Object, patchType types.PatchType, data []byte) (storage.Object, error) {
	original, err := json.Marshal(existing)
	if err != nil {
		return nil, fmt.Errorf("marshaling stored object: %w", err)
	}

	var patchedJSON []byte
	switch patchType {
	case types.StrategicMergePatchType:
		if _, isUnstructured := existing.(*unstructured.Unstructured); isUnstructured {
			patchedJSON, err = jsonpatch.MergePatch(original, data)
		} else {
			patchedJSON, err = strategicpatch.StrategicMergePatch(original, data, existing)
		}
	case types.MergePatchType:
		patchedJSON, err = jsonpatch.MergePatch(original, data)
	case types.JSONPatchType:
		var patch jsonpatch.Patch
		patch, err = jsonpatch.DecodePatch(data)
		if err == nil {
			patchedJSON, err = patch.Apply(original)
		}
	default:
		return nil, apierrors.NewBadRequest(fmt.Sprintf("unsupported patch type %q", patchType))
	}
	if err != nil {
		return nil, apierrors.NewBadRequest(fmt.Sprintf("applying %s patch: %v", patchType, err))
	}

	patched, err := c.newObjectFor(gvk, existing)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(patchedJSON, patched); err != nil {
		return nil, apierrors.NewBadRequest(fmt.Sprintf("decoding patched object: %v", err))
	}
	return patched, nil
}

// newObjectFor returns an empty instance to decode the patched payload
// into: a typed object when the scheme knows the kind, otherwise an
// unstructured one matching the stored representation.
func (c *Cluster) newObjectFor(gvk schema.GroupVersionKind, existing storage.Object) (storage.Object, error) {
	if _, isUnstructured := existing.(*unstructured.Unstructured); isUnstructured {
		return &unstructured.Unstructured{}, nil
	}
	obj, err := c.scheme.New(gvk)
	if err != nil {
		return nil, apierrors.NewBadRequest(err.Error())
	}
	typed, ok := obj.(storage.Object)
	if !ok {
		return nil, fmt.Errorf("scheme produced %T, which carries no object metadata", obj)
	}
	return typed, nil
}
