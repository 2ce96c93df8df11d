// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package store

import (
	"fmt"
	"strings"
	"time"
)

// --- User types ---

// Subscription holds the per-user subscription state embedded on the user
// record. A zero ExpiresAt means the plan never expires.
type Subscription struct {
	PlanID      string
	StatusCode  string // plan status code, e.g. "F", "FD", "FW", "FM", "FY", "G"
	PurchasedAt time.Time
	ExpiresAt   time.Time
	UsedImages  int
	// QuotaAlerted suppresses repeated quota-exceeded alerts in the UI.
	QuotaAlerted bool
}

// User represents an account. Exactly one of the credential pairs is
// required: email+password, mobile+password, or an OAuth identity.
type User struct {
	ID           string
	Email        string
	Mobile       string
	Name         string
	PasswordHash string

	// OAuth identity, empty for password accounts.
	OAuthProvider string
	OAuthSubject  string

	Subscription Subscription

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks structural invariants before persistence.
func (u *User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("user id is required: %w", ErrInvalidInput)
	}
	hasPassword := u.PasswordHash != "" && (u.Email != "" || u.Mobile != "")
	hasOAuth := u.OAuthProvider != "" && u.OAuthSubject != ""
	if !hasPassword && !hasOAuth {
		return fmt.Errorf("user %s needs email/mobile credentials or an oauth identity: %w", u.ID, ErrInvalidInput)
	}
	if u.Email != "" && !strings.Contains(u.Email, "@") {
		return fmt.Errorf("user %s email %q is malformed: %w", u.ID, u.Email, ErrInvalidInput)
	}
	return nil
}

// --- Transaction types ---

// TransactionStatus represents the lifecycle state of a payment transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionRefunded  TransactionStatus = "refunded"
)

// ValidTransactionStatus reports whether s is a known lifecycle state.
func ValidTransactionStatus(s TransactionStatus) bool {
	switch s {
	case TransactionPending, TransactionCompleted, TransactionFailed, TransactionRefunded:
		return true
	}
	return false
}

// Transaction is an immutable-ish record of a payment: only status,
// verification, and notes change after creation.
type Transaction struct {
	ID             string
	UserID         string
	PlanID         string
	ProductID      string
	AmountCents    int64
	Currency       string
	PaymentMethod  string // google_play, app_store, stripe, ...
	PurchaseToken  string
	DevicePlatform string

	Status   TransactionStatus
	Verified bool
	Notes    string

	CreatedAt   time.Time
	CompletedAt time.Time // zero until the transaction completes
	UpdatedAt   time.Time
}

// Validate checks structural invariants before persistence.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction id is required: %w", ErrInvalidInput)
	}
	if t.UserID == "" {
		return fmt.Errorf("transaction %s user id is required: %w", t.ID, ErrInvalidInput)
	}
	if t.PlanID == "" {
		return fmt.Errorf("transaction %s plan id is required: %w", t.ID, ErrInvalidInput)
	}
	if t.AmountCents < 0 {
		return fmt.Errorf("transaction %s amount must be non-negative: %w", t.ID, ErrInvalidInput)
	}
	if !ValidTransactionStatus(t.Status) {
		return fmt.Errorf("transaction %s status %q is unknown: %w", t.ID, t.Status, ErrInvalidInput)
	}
	return nil
}

// --- Query options ---

// ListOpts provides pagination parameters for list operations.
type ListOpts struct {
	Limit  int
	Offset int
}
