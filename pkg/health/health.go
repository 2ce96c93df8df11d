// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package health

import "time"

// Metrics exposes the current circuit state of a provider for monitoring
// and operator visibility. All fields are point-in-time snapshots safe
// to serialize to JSON.
type Metrics struct {
	State         string     `json:"state"`
	FailureCount  int        `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}
