package utils

import (
	"context"
	"errors"
	"time"

	"github.com/Kyz7/identity/internal/apperr"
	"github.com/sethvargo/go-retry"
)

// UniqueInsertAttempts bounds how many fresh token values are tried before a
// collision is reported as a conflict.
const UniqueInsertAttempts = 5

// RetryOnConflict runs fn until it succeeds, fails with something other than
// apperr.ErrConflict, or UniqueInsertAttempts are spent. The last conflict is
// returned when attempts run out.
func RetryOnConflict(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(UniqueInsertAttempts-1, retry.NewConstant(time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, apperr.ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}
