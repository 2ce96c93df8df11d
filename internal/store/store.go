// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

// Package store defines the persistence interfaces for accounts and
// payment transactions, plus the shared record types and sentinel errors.
package store

import "context"

// Store groups the persistent sub-stores behind one connection.
type Store interface {
	Users() UserStore
	Transactions() TransactionStore
	Close() error
}

// UserStore manages user accounts and their embedded subscription state.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByMobile(ctx context.Context, mobile string) (*User, error)
	GetByOAuth(ctx context.Context, provider, subject string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
}

// TransactionStore manages the payment transaction ledger. Records are
// append-mostly: after Create only status, verification, and notes change.
type TransactionStore interface {
	Create(ctx context.Context, txn *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	UpdateStatus(ctx context.Context, id string, status TransactionStatus, verified bool, notes string) error
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]*Transaction, error)
}
