// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and ephemeral deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
	txns  map[string]*Transaction
}

// Compile-time interface checks.
var (
	_ Store            = (*MemoryStore)(nil)
	_ UserStore        = (*memoryUserStore)(nil)
	_ TransactionStore = (*memoryTransactionStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*User),
		txns:  make(map[string]*Transaction),
	}
}

func (m *MemoryStore) Users() UserStore               { return &memoryUserStore{s: m} }
func (m *MemoryStore) Transactions() TransactionStore { return &memoryTransactionStore{s: m} }
func (m *MemoryStore) Close() error                   { return nil }

// ---------- memoryUserStore ----------

type memoryUserStore struct {
	s *MemoryStore
}

func (u *memoryUserStore) Create(ctx context.Context, user *User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.users[user.ID]; ok {
		return fmt.Errorf("user %s already exists: %w", user.ID, ErrConflict)
	}
	for _, existing := range u.s.users {
		if user.Email != "" && strings.EqualFold(existing.Email, user.Email) {
			return fmt.Errorf("email %s already registered: %w", user.Email, ErrConflict)
		}
		if user.Mobile != "" && existing.Mobile == user.Mobile {
			return fmt.Errorf("mobile %s already registered: %w", user.Mobile, ErrConflict)
		}
		if user.OAuthProvider != "" &&
			existing.OAuthProvider == user.OAuthProvider && existing.OAuthSubject == user.OAuthSubject {
			return fmt.Errorf("oauth identity %s/%s already registered: %w",
				user.OAuthProvider, user.OAuthSubject, ErrConflict)
		}
	}

	cp := *user
	u.s.users[user.ID] = &cp
	return nil
}

func (u *memoryUserStore) Get(ctx context.Context, id string) (*User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	user, ok := u.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	cp := *user
	return &cp, nil
}

func (u *memoryUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	for _, user := range u.s.users {
		if user.Email != "" && strings.EqualFold(user.Email, email) {
			cp := *user
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
}

func (u *memoryUserStore) GetByMobile(ctx context.Context, mobile string) (*User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	for _, user := range u.s.users {
		if user.Mobile != "" && user.Mobile == mobile {
			cp := *user
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user with mobile %s: %w", mobile, ErrNotFound)
}

func (u *memoryUserStore) GetByOAuth(ctx context.Context, provider, subject string) (*User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	for _, user := range u.s.users {
		if user.OAuthProvider == provider && user.OAuthSubject == subject {
			cp := *user
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user with oauth identity %s/%s: %w", provider, subject, ErrNotFound)
}

func (u *memoryUserStore) Update(ctx context.Context, user *User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.users[user.ID]; !ok {
		return fmt.Errorf("user %s: %w", user.ID, ErrNotFound)
	}
	cp := *user
	cp.UpdatedAt = time.Now().UTC()
	u.s.users[user.ID] = &cp
	return nil
}

func (u *memoryUserStore) Delete(ctx context.Context, id string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	delete(u.s.users, id)
	return nil
}

// ---------- memoryTransactionStore ----------

type memoryTransactionStore struct {
	s *MemoryStore
}

func (t *memoryTransactionStore) Create(ctx context.Context, txn *Transaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if _, ok := t.s.txns[txn.ID]; ok {
		return fmt.Errorf("transaction %s already exists: %w", txn.ID, ErrConflict)
	}
	cp := *txn
	t.s.txns[txn.ID] = &cp
	return nil
}

func (t *memoryTransactionStore) Get(ctx context.Context, id string) (*Transaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	txn, ok := t.s.txns[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	cp := *txn
	return &cp, nil
}

func (t *memoryTransactionStore) UpdateStatus(ctx context.Context, id string, status TransactionStatus, verified bool, notes string) error {
	if !ValidTransactionStatus(status) {
		return fmt.Errorf("transaction %s status %q is unknown: %w", id, status, ErrInvalidInput)
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	txn, ok := t.s.txns[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	now := time.Now().UTC()
	txn.Status = status
	txn.Verified = verified
	if notes != "" {
		txn.Notes = notes
	}
	if status == TransactionCompleted && txn.CompletedAt.IsZero() {
		txn.CompletedAt = now
	}
	txn.UpdatedAt = now
	return nil
}

func (t *memoryTransactionStore) ListByUser(ctx context.Context, userID string, opts ListOpts) ([]*Transaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var out []*Transaction
	for _, txn := range t.s.txns {
		if txn.UserID == userID {
			cp := *txn
			out = append(out, &cp)
		}
	}
	// Newest first, matching the SQL implementation.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}
