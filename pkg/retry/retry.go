// Package retry implements the exponential-backoff-with-jitter retry
// wrapper described in spec.md §4.4. The backoff-scheduling shape is
// grounded on the attempt-counter/retry-after pattern in the pack's
// grafana-grafana-app-sdk operator/retry_processor.go (other_examples),
// simplified here to a synchronous wrapper around one dispatch rather
// than a sharded worker-pool queue, since spec.md's RetryController
// wraps a single call, not a queue of pending retries.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Config tunes the retry controller (spec.md §6 retry_* options).
type Config struct {
	Disabled          bool
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	Multiplier        float64
	JitterFactor      float64 // in [0, 1]
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		JitterFactor:   0.2,
	}
}

// Outcome classifies a dispatch attempt's result for retry purposes.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRetryable
	OutcomeTerminal
)

// Attempt is called once per try; n is 0-based. It returns an Outcome
// and an error to surface if retries are exhausted.
type Attempt func(ctx context.Context, n int) (Outcome, error)

// Controller wraps an Attempt with exponential backoff and jitter.
type Controller struct {
	cfg Config
}

func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Run invokes attempt up to cfg.MaxRetries+1 times, sleeping between
// retryable failures per Delay. It never retries once attempt reports
// OutcomeTerminal or OutcomeOK.
func (c *Controller) Run(ctx context.Context, attempt Attempt) error {
	var lastErr error
	maxTries := c.cfg.MaxRetries + 1
	if c.cfg.Disabled {
		maxTries = 1
	}

	for n := 0; n < maxTries; n++ {
		outcome, err := attempt(ctx, n)
		switch outcome {
		case OutcomeOK:
			return nil
		case OutcomeTerminal:
			return err
		case OutcomeRetryable:
			lastErr = err
			if n == maxTries-1 {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.Delay(n + 1)):
			}
		}
	}
	return lastErr
}

// Delay computes the backoff for the n-th retry (n starting at 1),
// matching spec.md §4.4:
// delay = min(initial * multiplier^(n-1), max) * (1 + rand(-jitter, +jitter))
func (c *Controller) Delay(n int) time.Duration {
	base := float64(c.cfg.InitialBackoff) * pow(c.cfg.Multiplier, n-1)
	if max := float64(c.cfg.MaxBackoff); base > max {
		base = max
	}
	jitter := 1.0
	if c.cfg.JitterFactor > 0 {
		jitter = 1.0 + (rand.Float64()*2-1)*c.cfg.JitterFactor
	}
	d := time.Duration(base * jitter)
	if d < 0 {
		d = 0
	}
	return d
}

func pow(base float64, exp int) float64 {
	if exp <= 0 {
		return 1
	}
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// IsRetryable classifies the common transient failure reasons named in
// spec.md §4.4: connection errors, 5xx, and the gateway-style 502/503/504.
func IsRetryable(statusCode int, transportErr error) bool {
	if transportErr != nil {
		return true
	}
	if statusCode == 502 || statusCode == 503 || statusCode == 504 {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}
