package defaulting

import (
	"context"

	"github.com/tofarr/mockernetes/storage"
)

// Defaulter applies default values to an object before it is stored.
// Implementations must be idempotent and safe to call multiple times.
type Defaulter interface {
	// Default mutates obj in place, filling in unset fields.
	Default(ctx context.Context, obj storage.Object) error
}

// DefaulterFunc adapts a plain function to the Defaulter interface.
type DefaulterFunc func(ctx context.Context, obj storage.Object) error

func (f DefaulterFunc) Default(ctx context.Context, obj storage.Object) error {
	return f(ctx, obj)
}

// Chain runs each defaulter in order, stopping at the first error.
func Chain(defaulters ...Defaulter) Defaulter {
	return DefaulterFunc(func(ctx context.Context, obj storage.Object) error {
		for _, d := range defaulters {
			if err := d.Default(ctx, obj); err != nil {
				return err
			}
		}
		return nil
	})
}
