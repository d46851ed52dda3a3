package usecase

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/fastygo/incidencias/domain"
)

// ReadPolicy bounds retries of idempotent reads on TRANSIENT_IO errors.
// Writes are never retried.
type ReadPolicy struct {
	Retries int
	Base    time.Duration
}

// DefaultReadPolicy retries three times starting at 50ms.
var DefaultReadPolicy = ReadPolicy{Retries: 3, Base: 50 * time.Millisecond}

// Read runs fn and retries it with exponential backoff while it fails with a
// transient storage error.
func Read[T any](ctx context.Context, policy ReadPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	if policy.Base <= 0 {
		policy.Base = DefaultReadPolicy.Base
	}
	if policy.Retries < 0 {
		policy.Retries = 0
	}

	backoff := retry.WithMaxRetries(uint64(policy.Retries), retry.NewExponential(policy.Base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			if domain.IsDomainError(err, domain.ErrCodeTransient) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = v
		return nil
	})
	return out, err
}
