package common

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	config "github.com/chainmirror/chainmirror/configs"
)

const (
	defaultMaxAttempts         = 5
	defaultInitialInterval     = 500 * time.Millisecond
	defaultMaxInterval         = 30 * time.Second
	defaultMultiplier          = 2.0
	defaultRandomizationFactor = 0.2
)

// RetryPolicy bounds the retry behavior for transient node and store errors.
// Both the node adapter callers and the streaming sink share one policy so
// retry behavior is configured in a single place.
type RetryPolicy struct {
	MaxAttempts         uint64
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

func NewRetryPolicy(cfg config.RetryConfig) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:         defaultMaxAttempts,
		InitialInterval:     defaultInitialInterval,
		MaxInterval:         defaultMaxInterval,
		Multiplier:          defaultMultiplier,
		RandomizationFactor: defaultRandomizationFactor,
	}
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = uint64(cfg.MaxAttempts)
	}
	if cfg.InitialIntervalMs > 0 {
		p.InitialInterval = time.Duration(cfg.InitialIntervalMs) * time.Millisecond
	}
	if cfg.MaxIntervalMs > 0 {
		p.MaxInterval = time.Duration(cfg.MaxIntervalMs) * time.Millisecond
	}
	if cfg.Multiplier > 0 {
		p.Multiplier = cfg.Multiplier
	}
	if cfg.RandomizationFactor > 0 {
		p.RandomizationFactor = cfg.RandomizationFactor
	}
	return p
}

// Do runs op under the policy. Wrap an error with backoff.Permanent to stop
// retrying early; context cancellation stops retrying as well.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	bk := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithMaxInterval(p.MaxInterval),
		backoff.WithMultiplier(p.Multiplier),
		backoff.WithRandomizationFactor(p.RandomizationFactor),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bk, p.MaxAttempts-1), ctx))
}
