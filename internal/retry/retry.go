// Package retry is the single retry policy used for every remote call:
// a bounded number of attempts with a linearly growing delay.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	goretry "github.com/sethvargo/go-retry"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = time.Second
)

// Policy retries an operation up to Attempts times, sleeping
// attempt × BaseDelay after each failed attempt. Errors classified as
// permanent are returned at once. When attempts run out the last error is
// returned as is.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	// Permanent overrides common.IsPermanent when set.
	Permanent func(error) bool

	log logging.Logger
}

func New(attempts int, baseDelay time.Duration, log logging.Logger) *Policy {
	if attempts < 1 {
		attempts = 1
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	return &Policy{Attempts: attempts, BaseDelay: baseDelay, log: log}
}

// Default returns a policy with three attempts and a one second base delay.
func Default(log logging.Logger) *Policy {
	return New(DefaultAttempts, DefaultBaseDelay, log)
}

// Delay returns the wait after the given failed attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	return time.Duration(attempt) * p.BaseDelay
}

func (p *Policy) backoff() goretry.Backoff {
	attempt := 0
	linear := goretry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return p.Delay(attempt), false
	})
	return goretry.WithMaxRetries(uint64(p.Attempts-1), linear)
}

func (p *Policy) permanent(err error) bool {
	if p.Permanent != nil {
		return p.Permanent(err)
	}
	return common.IsPermanent(err)
}

// Do runs fn under the policy. op names the operation in log output.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p *Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	return goretry.DoValue(ctx, p.backoff(), func(ctx context.Context) (T, error) {
		attempt++
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if p.permanent(err) {
			return v, err
		}
		if attempt < p.Attempts && p.log != nil {
			p.log.Warn(ctx, "operation failed, retrying",
				"op", op, "attempt", attempt, "max_attempts", p.Attempts,
				"delay", p.Delay(attempt), "error", err)
		}
		return v, goretry.RetryableError(err)
	})
}

// IsContextError reports whether err came from ctx cancellation or deadline.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
