// Package validation checks resource bodies before they reach the store:
// structural rules shared by all kinds, per-kind replica constraints, and
// optional CEL rules evaluated against the object payload.
package validation

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	utilvalidation "k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/tofarr/mockernetes/storage"
)

// Validator checks objects before create and update operations.
type Validator interface {
	// Validate checks an object about to be created.
	Validate(ctx context.Context, obj storage.Object) error

	// ValidateUpdate checks an object about to replace an existing one.
	ValidateUpdate(ctx context.Context, obj, old storage.Object) error
}

// structuralValidator enforces the rules every kind must satisfy.
type structuralValidator struct{}

// NewStructuralValidator creates the baseline validator applied to all
// objects.
func NewStructuralValidator() Validator {
	return structuralValidator{}
}

// Validate checks an object about to be created.
func (structuralValidator) Validate(_ context.Context, obj storage.Object) error {
	gvk := obj.GetObjectKind().GroupVersionKind()
	var errs field.ErrorList

	name := obj.GetName()
	if name == "" {
		errs = append(errs, field.Required(field.NewPath("metadata", "name"), "name is required"))
	} else {
		for _, msg := range utilvalidation.IsDNS1123Subdomain(name) {
			errs = append(errs, field.Invalid(field.NewPath("metadata", "name"), name, msg))
		}
	}

	errs = append(errs, validateOwnerReferences(obj)...)
	errs = append(errs, validateReplicas(obj)...)

	if len(errs) > 0 {
		return apierrors.NewInvalid(gvk.GroupKind(), name, errs)
	}
	return nil
}

// ValidateUpdate checks an object about to replace an existing one.
func (v structuralValidator) ValidateUpdate(ctx context.Context, obj, old storage.Object) error {
	var errs field.ErrorList
	if old != nil && obj.GetUID() != "" && obj.GetUID() != old.GetUID() {
		errs = append(errs, field.Invalid(field.NewPath("metadata", "uid"), obj.GetUID(), "uid is immutable"))
	}
	if len(errs) > 0 {
		gvk := obj.GetObjectKind().GroupVersionKind()
		return apierrors.NewInvalid(gvk.GroupKind(), obj.GetName(), errs)
	}
	return v.Validate(ctx, obj)
}

// validateOwnerReferences checks that each reference carries enough
// identity to resolve and that at most one reference is the controller.
func validateOwnerReferences(obj storage.Object) field.ErrorList {
	var errs field.ErrorList
	path := field.NewPath("metadata", "ownerReferences")

	controllers := 0
	for i, ref := range obj.GetOwnerReferences() {
		refPath := path.Index(i)
		if ref.Kind == "" {
			errs = append(errs, field.Required(refPath.Child("kind"), "owner reference kind is required"))
		}
		if ref.Name == "" {
			errs = append(errs, field.Required(refPath.Child("name"), "owner reference name is required"))
		}
		if ref.UID == "" {
			errs = append(errs, field.Required(refPath.Child("uid"), "owner reference uid is required"))
		}
		if ref.Controller != nil && *ref.Controller {
			controllers++
		}
	}
	if controllers > 1 {
		errs = append(errs, field.Invalid(path, controllers, "only one owner reference can be the controller"))
	}
	return errs
}

// validateReplicas rejects negative replica counts on scalable kinds.
func validateReplicas(obj storage.Object) field.ErrorList {
	var errs field.ErrorList
	switch o := obj.(type) {
	case *appsv1.Deployment:
		if o.Spec.Replicas != nil && *o.Spec.Replicas < 0 {
			errs = append(errs, field.Invalid(field.NewPath("spec", "replicas"), *o.Spec.Replicas, "replicas must be non-negative"))
		}
	case *appsv1.ReplicaSet:
		if o.Spec.Replicas != nil && *o.Spec.Replicas < 0 {
			errs = append(errs, field.Invalid(field.NewPath("spec", "replicas"), *o.Spec.Replicas, "replicas must be non-negative"))
		}
	}
	return errs
}
