// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package dispatch

import (
	"sync"
	"time"

	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
	"github.com/neuralens-dev/neuralens/pkg/health"
)

// State is the circuit breaker state for one provider.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText lets State serialize as its name in JSON provenance.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BreakerConfig holds the tunable thresholds for a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of failures within Window that trips
	// the breaker open.
	FailureThreshold int
	// Window is the rolling interval over which failures are counted.
	Window time.Duration
	// Cooldown is how long the breaker stays open before allowing a probe.
	Cooldown time.Duration
}

// DefaultBreakerConfig matches the production defaults: 5 failures within
// 60s opens the breaker for 60s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		Cooldown:         60 * time.Second,
	}
}

func (c BreakerConfig) validate() error {
	if c.FailureThreshold <= 0 {
		return nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"breaker failure threshold must be positive, got %d", c.FailureThreshold)
	}
	if c.Window <= 0 {
		return nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"breaker window must be positive, got %s", c.Window)
	}
	if c.Cooldown <= 0 {
		return nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"breaker cooldown must be positive, got %s", c.Cooldown)
	}
	return nil
}

// Breaker is a per-provider circuit breaker. One instance exists per
// provider identity and is shared by every concurrent request targeting
// that provider; all state changes are serialized by the mutex. State
// lives only in process memory.
type Breaker struct {
	mu            sync.Mutex
	cfg           BreakerConfig
	state         State
	failures      []time.Time // failure timestamps within the rolling window
	openedAt      time.Time
	probeInFlight bool
	nowFunc       func() time.Time // for testing
}

// NewBreaker creates a closed breaker with the given thresholds.
func NewBreaker(cfg BreakerConfig) (*Breaker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Breaker{
		cfg:     cfg,
		state:   StateClosed,
		nowFunc: time.Now,
	}, nil
}

// Permit reports whether a remote call may be attempted right now.
// Closed allows. Open allows nothing until the cooldown elapses, at which
// point the breaker moves to half-open and admits a single probe. While a
// probe is in flight, everything else is denied.
func (b *Breaker) Permit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) >= b.cfg.Cooldown {
			b.state = StateHalfOpen
			b.probeInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// Record feeds an attempt outcome back into the breaker. Success while
// half-open closes the breaker and resets counters. Failure while half-open
// re-opens it and restarts the cooldown. Failures while closed accumulate
// in the rolling window and trip the breaker at the threshold. Cancelled
// attempts release the probe slot without counting either way.
func (b *Breaker) Record(outcome Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	switch outcome {
	case OutcomeSuccess:
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.probeInFlight = false
			b.failures = nil
			return
		}
		// A success while closed does not erase window failures: the
		// threshold counts failures within the window, not consecutive
		// ones, so a flapping provider still trips.
		b.failures = b.pruned(now)
	case OutcomeTimeout, OutcomeError:
		if b.state == StateHalfOpen {
			b.state = StateOpen
			b.openedAt = now
			b.probeInFlight = false
			b.failures = nil
			return
		}
		b.failures = append(b.pruned(now), now)
		if b.state == StateClosed && len(b.failures) >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = now
			b.failures = nil
		}
	case OutcomeCancelled:
		// A cancelled attempt proves nothing about provider health, but it
		// must release the probe so recovery testing can continue.
		if b.state == StateHalfOpen {
			b.probeInFlight = false
		}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetNowFunc overrides the time source (for testing).
func (b *Breaker) SetNowFunc(fn func() time.Time) {
	b.mu.Lock()
	b.nowFunc = fn
	b.mu.Unlock()
}

// Metrics returns a point-in-time snapshot for monitoring endpoints.
func (b *Breaker) Metrics() health.Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	failures := b.pruned(now)

	m := health.Metrics{
		State:        b.state.String(),
		FailureCount: len(failures),
		Available:    b.state != StateOpen || now.Sub(b.openedAt) >= b.cfg.Cooldown,
	}
	if len(failures) > 0 {
		t := failures[len(failures)-1]
		m.LastFailureAt = &t
	}
	if b.state == StateOpen {
		until := b.openedAt.Add(b.cfg.Cooldown)
		m.CooldownUntil = &until
	}
	return m
}

// pruned returns the failure timestamps still inside the rolling window.
// Caller must hold b.mu.
func (b *Breaker) pruned(now time.Time) []time.Time {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for i < len(b.failures) && !b.failures[i].After(cutoff) {
		i++
	}
	return b.failures[i:]
}

// BreakerRegistry owns one Breaker per provider identity, created lazily
// with a shared config. Construction happens once at process start; the
// registry handle is passed to the Dispatcher.
type BreakerRegistry struct {
	mu       sync.RWMutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

// NewBreakerRegistry creates an empty registry using cfg for every breaker.
func NewBreakerRegistry(cfg BreakerConfig) (*BreakerRegistry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &BreakerRegistry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}, nil
}

// Get returns the breaker for a provider, creating it on first use.
func (r *BreakerRegistry) Get(provider string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[provider]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[provider]; ok {
		return b
	}
	b, err := NewBreaker(r.cfg)
	if err != nil {
		// cfg was validated at construction; this cannot happen.
		panic(err)
	}
	r.breakers[provider] = b
	return b
}

// Snapshot returns breaker metrics keyed by provider name.
func (r *BreakerRegistry) Snapshot() map[string]health.Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]health.Metrics, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Metrics()
	}
	return out
}
