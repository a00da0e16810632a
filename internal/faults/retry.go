package faults

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is a bounded retry schedule shared by the components that
// talk to the browser or the site
type Policy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy covers transient page-level failures
var DefaultPolicy = Policy{
	MaxAttempts:     3,
	InitialInterval: 2 * time.Second,
	MaxInterval:     30 * time.Second,
}

// SessionPolicy covers session recreation after SessionDead errors
var SessionPolicy = Policy{
	MaxAttempts:     3,
	InitialInterval: 5 * time.Second,
	MaxInterval:     60 * time.Second,
}

// Retry runs fn under the policy's exponential backoff schedule,
// stopping early on context cancellation or a backoff.Permanent error
func Retry(ctx context.Context, policy Policy, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.InitialInterval
	bo.MaxInterval = policy.MaxInterval

	return backoff.Retry(fn, backoff.WithContext(
		backoff.WithMaxRetries(bo, policy.MaxAttempts-1), ctx))
}

// Permanent marks an error as not worth retrying under Retry
func Permanent(err error) error {
	return backoff.Permanent(err)
}
