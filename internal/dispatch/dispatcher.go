// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package dispatch

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/neuralens-dev/neuralens/internal/imaging"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// Dispatcher orchestrates one image operation: normalize the input, resolve
// the operation, gate on the circuit breaker, drive the remote call through
// retries, and fall back to the local transform when the remote path is
// unavailable or exhausted.
//
// The only errors Execute surfaces are invalid input, unknown operation,
// local transform failure, and caller cancellation. Remote provider errors
// are always absorbed by falling back.
type Dispatcher struct {
	registry *Registry
	client   RemoteClient
	breakers *BreakerRegistry
	retrier  *Retrier
	logger   *slog.Logger
}

// NewDispatcher wires the dispatcher. All dependencies are required.
func NewDispatcher(registry *Registry, client RemoteClient, breakers *BreakerRegistry, retrier *Retrier, logger *slog.Logger) (*Dispatcher, error) {
	if registry == nil {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "operation registry is required")
	}
	if client == nil {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "remote client is required")
	}
	if breakers == nil {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "breaker registry is required")
	}
	if retrier == nil {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "retrier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		client:   client,
		breakers: breakers,
		retrier:  retrier,
		logger:   logger,
	}, nil
}

// Registry exposes the operation catalog for the HTTP layer.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Breakers exposes breaker metrics for the HTTP layer.
func (d *Dispatcher) Breakers() *BreakerRegistry {
	return d.breakers
}

// Execute runs one operation request and returns the processed image with
// its provenance.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (*Result, error) {
	// Normalize: decode, flatten to RGBA, re-encode. A payload that does
	// not decode is the caller's problem, never the provider's.
	decoded, _, err := imaging.Decode(req.Image)
	if err != nil {
		return nil, err
	}
	normalized := imaging.ToRGBA(decoded)
	wire, _, err := imaging.Encode(normalized)
	if err != nil {
		return nil, nlerr.Wrap(err, nlerr.CodeDispatchInputInvalid, "normalizing input image")
	}

	op, err := d.registry.Resolve(req.Operation)
	if err != nil {
		return nil, err
	}

	trail := &Trail{}
	breaker := d.breakers.Get(d.client.Name())

	if !breaker.Permit() {
		trail.Append(TargetRemote, OutcomeSkippedBreakerOpen, 0, nil)
		d.logger.Info("breaker open, using local fallback",
			"provider", d.client.Name(),
			"operation", op.Name,
		)
		return d.fallback(op, normalized, trail, breaker)
	}

	start := time.Now()
	out, contentType, err := d.retrier.Do(ctx, d.client, op.Remote, wire, req.Params, breaker, trail)
	if err == nil {
		d.logger.Info("remote processing succeeded",
			"provider", d.client.Name(),
			"operation", op.Name,
			"attempts", trail.Len(),
			"elapsed", time.Since(start),
		)
		return &Result{
			Image:       out,
			ContentType: contentType,
			Provenance: Provenance{
				Processor:     TargetRemote,
				TotalAttempts: trail.Len(),
				Fallback:      false,
				BreakerState:  breaker.State(),
				Attempts:      trail.Records(),
			},
		}, nil
	}

	// A cancelled request is abandoned, not recovered: the caller is gone.
	if ctx.Err() != nil {
		return nil, err
	}

	d.logger.Warn("remote processing exhausted, using local fallback",
		"provider", d.client.Name(),
		"operation", op.Name,
		"attempts", trail.Len(),
		"error", err,
	)
	return d.fallback(op, normalized, trail, breaker)
}

// fallback runs the operation's local transform and assembles local
// provenance. A local failure is terminal; there is nothing left to try.
func (d *Dispatcher) fallback(op Operation, img image.Image, trail *Trail, breaker *Breaker) (*Result, error) {
	out, err := op.Fallback(img)
	if err != nil {
		return nil, nlerr.Wrap(err, nlerr.CodeDispatchLocalFailure, "local fallback failed",
			nlerr.FieldOperation(op.Name))
	}

	data, contentType, err := imaging.Encode(out)
	if err != nil {
		return nil, nlerr.Wrap(err, nlerr.CodeDispatchLocalFailure, "encoding local result",
			nlerr.FieldOperation(op.Name))
	}

	return &Result{
		Image:       data,
		ContentType: contentType,
		Provenance: Provenance{
			Processor:     TargetLocal,
			TotalAttempts: trail.Len(),
			Fallback:      true,
			BreakerState:  breaker.State(),
			Attempts:      trail.Records(),
		},
	}, nil
}
