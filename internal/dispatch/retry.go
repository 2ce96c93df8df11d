// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// Policy holds the retry tunables for remote calls.
type Policy struct {
	// MaxAttempts bounds the number of remote attempts per request.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; subsequent waits
	// grow by Multiplier up to MaxDelay.
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	// Jitter adds up to this fraction of the computed delay, randomly.
	// Zero disables jitter for deterministic behavior.
	Jitter float64
	// AttemptTimeout bounds each individual remote call.
	AttemptTimeout time.Duration
}

// DefaultPolicy matches the production defaults: 3 attempts, 500ms base
// delay doubling to an 8s cap, 15s per-attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		Multiplier:     2,
		MaxDelay:       8 * time.Second,
		Jitter:         0.1,
		AttemptTimeout: 15 * time.Second,
	}
}

func (p Policy) validate() error {
	if p.MaxAttempts <= 0 {
		return nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"retry max attempts must be positive, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"retry base delay must not be negative, got %s", p.BaseDelay)
	}
	if p.Multiplier < 1 {
		return nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"retry multiplier must be at least 1, got %g", p.Multiplier)
	}
	if p.MaxDelay < p.BaseDelay {
		return nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"retry max delay %s must not be below base delay %s", p.MaxDelay, p.BaseDelay)
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"retry jitter must be in [0,1], got %g", p.Jitter)
	}
	if p.AttemptTimeout <= 0 {
		return nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"retry attempt timeout must be positive, got %s", p.AttemptTimeout)
	}
	return nil
}

// delay returns the backoff before attempt n+1, following
// min(base*multiplier^(n-1), cap) plus jitter. n is 1-based.
func (p Policy) delay(n int, randFloat func() float64) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 && randFloat != nil {
		d += d * p.Jitter * randFloat()
	}
	return time.Duration(d)
}

// Retrier drives a remote call through the retry policy, reporting every
// attempt to both the request trail and the circuit breaker.
type Retrier struct {
	policy    Policy
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error // for testing
	randFloat func() float64                                   // for testing
}

// NewRetrier creates a Retrier with the given policy.
func NewRetrier(policy Policy, logger *slog.Logger) (*Retrier, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		policy:    policy,
		logger:    logger,
		sleep:     sleepCtx,
		randFloat: rand.Float64,
	}, nil
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do executes the remote call up to MaxAttempts times. Each attempt is
// bounded by the per-attempt timeout and recorded in the trail and the
// breaker, success or not. Non-retryable errors stop the loop immediately.
// A cancelled parent context abandons the loop after recording the
// in-flight attempt so breaker accounting stays consistent.
func (r *Retrier) Do(ctx context.Context, client RemoteClient, desc Descriptor, image []byte, params map[string]string, breaker *Breaker, trail *Trail) ([]byte, string, error) {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.policy.AttemptTimeout)
		start := time.Now()
		out, contentType, err := client.Process(attemptCtx, desc, image, params)
		latency := time.Since(start)
		cancel()

		if err == nil {
			trail.Append(TargetRemote, OutcomeSuccess, latency, nil)
			breaker.Record(OutcomeSuccess)
			return out, contentType, nil
		}

		outcome := classify(ctx, err)
		trail.Append(TargetRemote, outcome, latency, err)
		breaker.Record(outcome)
		lastErr = err

		r.logger.Warn("remote attempt failed",
			"provider", client.Name(),
			"operation", desc.Operation,
			"attempt", attempt,
			"outcome", string(outcome),
			"latency", latency,
			"error", err,
		)

		if outcome == OutcomeCancelled {
			return nil, "", ctx.Err()
		}
		if nlerr.IsNonRetryable(err) {
			return nil, "", err
		}

		if attempt < r.policy.MaxAttempts {
			if sleepErr := r.sleep(ctx, r.policy.delay(attempt, r.randFloat)); sleepErr != nil {
				// Backoff abandoned; no attempt was in flight, nothing to record.
				return nil, "", sleepErr
			}
		}
	}

	return nil, "", nlerr.Wrapf(lastErr, nlerr.CodeProviderRemoteTransient,
		"remote processing failed after %d attempts", r.policy.MaxAttempts)
}

// classify maps an attempt error to its outcome. Parent-context
// cancellation wins over everything; per-attempt deadline expiry and
// transport timeouts are timeouts; the rest are plain errors.
func classify(parent context.Context, err error) Outcome {
	if parent.Err() != nil {
		return OutcomeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) || nlerr.IsTimeout(err) {
		return OutcomeTimeout
	}
	return OutcomeError
}
