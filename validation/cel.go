package validation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	celtypes "github.com/google/cel-go/common/types"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/tofarr/mockernetes/storage"
)

// Rule is a CEL expression that must evaluate to true for objects of one
// kind, with a message reported when it does not.
type Rule struct {
	// Expression is evaluated with `self` bound to the object payload.
	Expression string

	// Message is the human-readable violation text.
	Message string
}

// celValidator evaluates per-kind CEL rules against the unstructured form
// of an object. Compiled programs are cached per expression.
type celValidator struct {
	env   *cel.Env
	rules map[schema.GroupVersionKind][]Rule

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELValidator creates a validator for the given per-kind rule sets.
func NewCELValidator(rules map[schema.GroupVersionKind][]Rule) (Validator, error) {
	env, err := cel.NewEnv(
		cel.Variable("self", cel.DynType),
		cel.HomogeneousAggregateLiterals(),
		cel.EagerlyValidateDeclarations(true),
		cel.DefaultUTCTimeZone(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &celValidator{
		env:   env,
		rules: rules,
		cache: make(map[string]cel.Program),
	}, nil
}

// Validate evaluates every rule registered for the object's kind.
func (c *celValidator) Validate(_ context.Context, obj storage.Object) error {
	gvk := obj.GetObjectKind().GroupVersionKind()
	rules := c.rules[gvk]
	if len(rules) == 0 {
		return nil
	}

	payload, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return fmt.Errorf("failed to convert object for rule evaluation: %w", err)
	}

	var errs field.ErrorList
	for _, rule := range rules {
		ok, err := c.eval(rule.Expression, payload)
		if err != nil {
			return fmt.Errorf("rule %q: %w", rule.Expression, err)
		}
		if !ok {
			msg := rule.Message
			if msg == "" {
				msg = fmt.Sprintf("failed rule: %s", rule.Expression)
			}
			errs = append(errs, field.Invalid(field.NewPath("spec"), obj.GetName(), msg))
		}
	}
	if len(errs) > 0 {
		return apierrors.NewInvalid(gvk.GroupKind(), obj.GetName(), errs)
	}
	return nil
}

// ValidateUpdate applies the same rules as Validate; the previous object
// does not participate in rule evaluation.
func (c *celValidator) ValidateUpdate(ctx context.Context, obj, _ storage.Object) error {
	return c.Validate(ctx, obj)
}

// eval compiles (with caching) and runs one expression.
func (c *celValidator) eval(expression string, payload map[string]interface{}) (bool, error) {
	program, err := c.compile(expression)
	if err != nil {
		return false, err
	}

	result, _, err := program.Eval(map[string]interface{}{"self": payload})
	if err != nil {
		return false, fmt.Errorf("evaluation error: %w", err)
	}
	if b, ok := result.(celtypes.Bool); ok {
		return bool(b), nil
	}
	return false, fmt.Errorf("expression returned non-boolean result: %T", result)
}

func (c *celValidator) compile(expression string) (cel.Program, error) {
	c.mu.RLock()
	if cached, ok := c.cache[expression]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.cache[expression]; ok {
		return cached, nil
	}

	ast, issues := c.env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to parse expression %q: %w", expression, issues.Err())
	}
	checked, issues := c.env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to type-check expression %q: %w", expression, issues.Err())
	}
	program, err := c.env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("failed to build program for %q: %w", expression, err)
	}

	c.cache[expression] = program
	return program, nil
}

// Chain combines validators; every validator must pass.
func Chain(validators ...Validator) Validator {
	return chain(validators)
}

type chain []Validator

// Validate runs every chained validator in order.
func (cs chain) Validate(ctx context.Context, obj storage.Object) error {
	for _, v := range cs {
		if err := v.Validate(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

// ValidateUpdate runs every chained validator in order.
func (cs chain) ValidateUpdate(ctx context.Context, obj, old storage.Object) error {
	for _, v := range cs {
		if err := v.ValidateUpdate(ctx, obj, old); err != nil {
			return err
		}
	}
	return nil
}
