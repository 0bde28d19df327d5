// closer.go defines the Closer interface.

package types

import (
	"context"
	"errors"
)

type Closer interface {
	Close(context.Context) error
}

// CloseAll closes every closer (in reverse order) and joins the errors.
func CloseAll[T Closer](ctx context.Context, closers ...T) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
