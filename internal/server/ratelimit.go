// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"
)

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained request rate per IP. Zero disables limiting.
	RequestsPerMinute int
	// Burst is the maximum burst size per IP. Defaults to RequestsPerMinute/4,
	// minimum 5.
	Burst int
	// MaxVisitors is the maximum number of unique IPs tracked concurrently.
	// When the visitor map exceeds this size, the oldest entries are evicted
	// during cleanup. Default: 10000.
	MaxVisitors int
}

func (c *RateLimitConfig) applyDefaults() {
	if c.Burst <= 0 {
		c.Burst = c.RequestsPerMinute / 4
		if c.Burst < 5 {
			c.Burst = 5
		}
	}
	if c.MaxVisitors <= 0 {
		c.MaxVisitors = 10000
	}
}

// rateLimitMiddleware returns middleware that enforces per-IP rate limits
// with a token bucket. Returns a pass-through middleware when
// cfg.RequestsPerMinute is zero. The done channel signals the cleanup
// goroutine to exit on shutdown.
func rateLimitMiddleware(cfg RateLimitConfig, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	cfg.applyDefaults()
	perSecond := float64(cfg.RequestsPerMinute) / 60

	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitorEntry)
	)

	// Periodically clean up stale entries to prevent unbounded growth.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				evicted := cleanupVisitors(visitors, time.Now(), cfg.MaxVisitors)
				mu.Unlock()
				if evicted > 0 {
					slog.Warn("rate limiter visitor map cap enforced",
						"evicted", evicted, "max_visitors", cfg.MaxVisitors)
				}
			case <-done:
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Strip the port so clients opening multiple connections from
			// ephemeral ports share one bucket.
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			mu.Lock()
			v, exists := visitors[ip]
			if !exists {
				v = &visitorEntry{
					tokens:     float64(cfg.Burst),
					lastRefill: time.Now(),
				}
				visitors[ip] = v
			}
			v.lastSeen = time.Now()

			// Token bucket: refill based on elapsed time.
			elapsed := time.Since(v.lastRefill).Seconds()
			v.tokens += elapsed * perSecond
			if v.tokens > float64(cfg.Burst) {
				v.tokens = float64(cfg.Burst)
			}
			v.lastRefill = time.Now()

			if v.tokens < 1 {
				mu.Unlock()
				slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				if _, err := w.Write([]byte(`{"error":"rate limit exceeded"}`)); err != nil {
					slog.Warn("failed to write rate limit response", "error", err)
				}
				return
			}
			v.tokens--
			mu.Unlock()

			next.ServeHTTP(w, r)
		})
	}
}

// cleanupVisitors removes stale entries and enforces the visitor cap,
// returning the number of entries evicted by the cap. Caller holds the lock.
func cleanupVisitors(visitors map[string]*visitorEntry, now time.Time, maxVisitors int) int {
	const staleThreshold = 10 * time.Minute

	type entry struct {
		ip       string
		lastSeen time.Time
	}
	entries := make([]entry, 0, len(visitors))
	for ip, v := range visitors {
		if now.Sub(v.lastSeen) > staleThreshold {
			delete(visitors, ip)
		} else {
			entries = append(entries, entry{ip: ip, lastSeen: v.lastSeen})
		}
	}

	if maxVisitors <= 0 || len(entries) <= maxVisitors {
		return 0
	}

	// Evict oldest first.
	slices.SortFunc(entries, func(a, b entry) int {
		return a.lastSeen.Compare(b.lastSeen)
	})
	toEvict := len(entries) - maxVisitors
	for i := 0; i < toEvict; i++ {
		delete(visitors, entries[i].ip)
	}
	return toEvict
}

type visitorEntry struct {
	tokens     float64
	lastSeen   time.Time
	lastRefill time.Time
}
