// Package selector parses and evaluates label and field selector
// expressions against resource metadata. It is a thin layer over the
// apimachinery selector algebra that normalizes parse failures into the
// engine's error taxonomy.
package selector

import (
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/labels"
)

// Parse compiles a label selector expression. Supported syntax is the full
// selector algebra: equality (k=v, k==v), inequality (k!=v), set membership
// (k in (a,b), k notin (a,b)) and existence (k, !k). The empty expression
// yields a selector that matches everything. Unparseable expressions are
// reported as BadRequest.
func Parse(expr string) (labels.Selector, error) {
	sel, err := labels.Parse(expr)
	if err != nil {
		return nil, apierrors.NewBadRequest(fmt.Sprintf("malformed label selector %q: %v", expr, err))
	}
	return sel, nil
}

// Matches reports whether the label selector expression matches the given
// label set.
func Matches(expr string, labelSet map[string]string) (bool, error) {
	sel, err := Parse(expr)
	if err != nil {
		return false, err
	}
	return sel.Matches(labels.Set(labelSet)), nil
}

// ParseFields compiles a field selector expression over the flattened
// non-label attribute view of a resource (see Fields). Only equality and
// inequality terms are supported, matching the upstream field selector
// grammar. Unparseable expressions are reported as BadRequest.
func ParseFields(expr string) (fields.Selector, error) {
	sel, err := fields.ParseSelector(expr)
	if err != nil {
		return nil, apierrors.NewBadRequest(fmt.Sprintf("malformed field selector %q: %v", expr, err))
	}
	return sel, nil
}

// MatchesFields reports whether the field selector expression matches the
// given attribute set.
func MatchesFields(expr string, fieldSet fields.Set) (bool, error) {
	sel, err := ParseFields(expr)
	if err != nil {
		return false, err
	}
	return sel.Matches(fieldSet), nil
}
