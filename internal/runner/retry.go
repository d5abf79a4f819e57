package runner

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/chainguard-dev/clog"
)

// RetryConfig controls re-attempts of failed judge calls. MaxRetries 0 disables
// retrying.
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxJitter   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  0,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
		MaxJitter:   250 * time.Millisecond,
	}
}

func (c RetryConfig) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return errors.New("max retries cannot be negative")
	case c.BaseBackoff < 0, c.MaxBackoff < 0, c.MaxJitter < 0:
		return errors.New("backoff durations cannot be negative")
	}
	return nil
}

// backoff is BaseBackoff*2^attempt capped at MaxBackoff, plus up to MaxJitter.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := c.BaseBackoff << attempt
	if c.MaxBackoff > 0 && (d > c.MaxBackoff || d <= 0) {
		d = c.MaxBackoff
	}
	if c.MaxJitter > 0 {
		d += rand.N(c.MaxJitter)
	}
	return d
}

// withRetry runs fn until it succeeds, returns a non-retryable error or the
// retry budget is spent. The last error is returned unchanged.
func withRetry[T any](ctx context.Context, cfg RetryConfig, retryable func(error) bool, fn func() (T, error)) (T, error) {
	var (
		res T
		err error
	)
	for attempt := 0; ; attempt++ {
		res, err = fn()
		if err == nil || !retryable(err) || attempt >= cfg.MaxRetries {
			return res, err
		}
		wait := cfg.backoff(attempt)
		clog.FromContext(ctx).With("attempt", attempt+1).
			With("max_retries", cfg.MaxRetries).
			With("backoff", wait).
			Warnf("judge call failed, retrying: %v", err)

		select {
		case <-ctx.Done():
			return res, err
		case <-time.After(wait):
		}
	}
}
