// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

// Package retry provides bounded retry with exponential backoff and
// optional jitter around transient failures from the tiered store and the
// vector index. Only resource-class errors (lock busy, index not ready,
// resource temporarily unavailable) are retried; everything else
// propagates immediately.
package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	strataerr "github.com/strata-dev/strata/pkg/errors"
)

// Policy configures the backoff schedule. Delay for attempt n is
// min(BaseDelay * Multiplier^(n-1), MaxDelay), jittered by ±25% when
// Jitter is set.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// StoragePolicy suits store calls: lock contention clears quickly, so it
// retries often with small delays and jitter to decorrelate writers.
func StoragePolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   25 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  2,
		Jitter:      true,
	}
}

// IndexPolicy suits index calls: initialization is a one-time event, so
// fewer attempts with longer delays and no jitter.
func IndexPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
	}
}

// delay computes the backoff for a 1-based attempt number.
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if limit := float64(p.MaxDelay); d > limit {
		d = limit
	}
	if p.Jitter {
		// ±25%: multiply by a factor in [0.75, 1.25).
		d *= 0.75 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

// Do runs fn, retrying retryable failures per the policy. The op name is
// only used for logging. The last error is wrapped as exhausted once
// attempts run out.
func Do(ctx context.Context, p Policy, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !strataerr.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		d := p.delay(attempt)
		slog.Debug("retrying transient failure",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", d),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return strataerr.Wrap(ctx.Err(), strataerr.CodeRetryExhausted, "retry cancelled: "+op)
		case <-timer.C:
		}
	}

	return strataerr.Wrap(err, strataerr.CodeRetryExhausted, "retry attempts exhausted: "+op)
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, p Policy, op string, fn func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, op, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
