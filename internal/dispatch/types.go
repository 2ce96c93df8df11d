// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

// Package dispatch executes image operations against a remote AI provider
// with a circuit breaker, bounded retries, and automatic fallback to local
// deterministic transforms. Every result carries a provenance record saying
// which path produced it.
package dispatch

import (
	"context"
	"time"
)

// Target identifies which path handled an attempt.
type Target string

const (
	TargetRemote Target = "remote"
	TargetLocal  Target = "local"
)

// Outcome classifies how a single attempt ended.
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeTimeout            Outcome = "timeout"
	OutcomeError              Outcome = "error"
	OutcomeCancelled          Outcome = "cancelled"
	OutcomeSkippedBreakerOpen Outcome = "skipped-breaker-open"
)

// AttemptRecord describes one call attempt. Records are append-only and
// scoped to a single request.
type AttemptRecord struct {
	Index   int           `json:"index"`
	Target  Target        `json:"target"`
	Outcome Outcome       `json:"outcome"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// Trail accumulates AttemptRecords for one request. It is not safe for
// concurrent use; a request's attempts are sequential by construction.
type Trail struct {
	records []AttemptRecord
}

// Append adds a record, assigning the next 1-based attempt index.
func (t *Trail) Append(target Target, outcome Outcome, latency time.Duration, err error) {
	rec := AttemptRecord{
		Index:   len(t.records) + 1,
		Target:  target,
		Outcome: outcome,
		Latency: latency,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	t.records = append(t.records, rec)
}

// Records returns the accumulated attempt records in order.
func (t *Trail) Records() []AttemptRecord {
	return t.records
}

// Len returns the number of attempts recorded so far.
func (t *Trail) Len() int {
	return len(t.records)
}

// Provenance summarizes how a request was ultimately served. It is built
// once per request and attached to the response; it is never persisted.
type Provenance struct {
	Processor     Target          `json:"processor"`
	TotalAttempts int             `json:"total_attempts"`
	Fallback      bool            `json:"fallback"`
	BreakerState  State           `json:"breaker_state"`
	Attempts      []AttemptRecord `json:"attempts,omitempty"`
}

// Request is one image-operation invocation. Immutable once constructed.
type Request struct {
	Operation string
	Image     []byte
	Params    map[string]string
}

// Result is the processed image plus its provenance.
type Result struct {
	Image       []byte
	ContentType string
	Provenance  Provenance
}

// RemoteClient is the narrow interface a remote AI provider implements.
// Errors must be classified: transient failures (timeouts, rate limits,
// 5xx-equivalents) carry a transient code, rejections that retrying cannot
// fix carry a non-retryable code. Anything unclassified is retried.
type RemoteClient interface {
	// Name identifies the provider for breaker bookkeeping and provenance.
	Name() string

	// Process runs one remote edit and returns the resulting image bytes
	// and their content type. Implementations must validate that the
	// response decodes as an image before reporting success.
	Process(ctx context.Context, desc Descriptor, image []byte, params map[string]string) ([]byte, string, error)
}
