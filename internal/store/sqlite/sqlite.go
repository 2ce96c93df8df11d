// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

// Package sqlite implements store.Store on a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/neuralens-dev/neuralens/internal/store"
)

// Compile-time interface checks.
var (
	_ store.Store            = (*Store)(nil)
	_ store.UserStore        = (*userStore)(nil)
	_ store.TransactionStore = (*transactionStore)(nil)
)

// Store implements store.Store backed by a single SQLite database.
type Store struct {
	db    *sql.DB
	users *userStore
	txns  *transactionStore
}

// New opens (or creates) a SQLite database at dbPath and initialises the
// users and transactions tables.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating db: %w", err)
	}

	return &Store{
		db:    db,
		users: &userStore{db: db},
		txns:  &transactionStore{db: db},
	}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
	id             TEXT PRIMARY KEY,
	email          TEXT NOT NULL DEFAULT '',
	mobile         TEXT NOT NULL DEFAULT '',
	name           TEXT NOT NULL DEFAULT '',
	password_hash  TEXT NOT NULL DEFAULT '',
	oauth_provider TEXT NOT NULL DEFAULT '',
	oauth_subject  TEXT NOT NULL DEFAULT '',
	plan_id        TEXT NOT NULL DEFAULT 'free',
	status_code    TEXT NOT NULL DEFAULT 'F',
	purchased_at   TEXT NOT NULL DEFAULT '',
	expires_at     TEXT NOT NULL DEFAULT '',
	used_images    INTEGER NOT NULL DEFAULT 0,
	quota_alerted  INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email
	ON users(email COLLATE NOCASE) WHERE email != '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_mobile
	ON users(mobile) WHERE mobile != '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_oauth
	ON users(oauth_provider, oauth_subject) WHERE oauth_provider != '';

CREATE TABLE IF NOT EXISTS transactions (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	plan_id         TEXT NOT NULL,
	product_id      TEXT NOT NULL DEFAULT '',
	amount_cents    INTEGER NOT NULL DEFAULT 0,
	currency        TEXT NOT NULL DEFAULT 'USD',
	payment_method  TEXT NOT NULL DEFAULT '',
	purchase_token  TEXT NOT NULL DEFAULT '',
	device_platform TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	verified        INTEGER NOT NULL DEFAULT 0,
	notes           TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	completed_at    TEXT NOT NULL DEFAULT '',
	updated_at      TEXT NOT NULL,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_transactions_user    ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Users returns the UserStore sub-store.
func (s *Store) Users() store.UserStore { return s.users }

// Transactions returns the TransactionStore sub-store.
func (s *Store) Transactions() store.TransactionStore { return s.txns }

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// ---------- userStore ----------

type userStore struct {
	db *sql.DB
}

const userColumns = `id, email, mobile, name, password_hash, oauth_provider, oauth_subject,
plan_id, status_code, purchased_at, expires_at, used_images, quota_alerted, created_at, updated_at`

func (s *userStore) Create(ctx context.Context, user *store.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO users (` + userColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		user.ID, user.Email, user.Mobile, user.Name, user.PasswordHash,
		user.OAuthProvider, user.OAuthSubject,
		user.Subscription.PlanID, user.Subscription.StatusCode,
		formatTime(user.Subscription.PurchasedAt), formatTime(user.Subscription.ExpiresAt),
		user.Subscription.UsedImages, boolToInt(user.Subscription.QuotaAlerted),
		formatTime(user.CreatedAt), formatTime(user.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("creating user %s: %w", user.ID, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("creating user %s: %w", user.ID, err)
	}
	return nil
}

func (s *userStore) Get(ctx context.Context, id string) (*store.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return s.scanOne(s.db.QueryRowContext(ctx, q, id), fmt.Sprintf("user %s", id))
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email = ? COLLATE NOCASE AND email != ''`
	return s.scanOne(s.db.QueryRowContext(ctx, q, email), fmt.Sprintf("user with email %s", email))
}

func (s *userStore) GetByMobile(ctx context.Context, mobile string) (*store.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE mobile = ? AND mobile != ''`
	return s.scanOne(s.db.QueryRowContext(ctx, q, mobile), fmt.Sprintf("user with mobile %s", mobile))
}

func (s *userStore) GetByOAuth(ctx context.Context, provider, subject string) (*store.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE oauth_provider = ? AND oauth_subject = ?`
	return s.scanOne(s.db.QueryRowContext(ctx, q, provider, subject),
		fmt.Sprintf("user with oauth identity %s/%s", provider, subject))
}

func (s *userStore) scanOne(row *sql.Row, what string) (*store.User, error) {
	var u store.User
	var purchasedAt, expiresAt, createdAt, updatedAt string
	var quotaAlerted int
	err := row.Scan(
		&u.ID, &u.Email, &u.Mobile, &u.Name, &u.PasswordHash,
		&u.OAuthProvider, &u.OAuthSubject,
		&u.Subscription.PlanID, &u.Subscription.StatusCode,
		&purchasedAt, &expiresAt, &u.Subscription.UsedImages, &quotaAlerted,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", what, err)
	}
	u.Subscription.QuotaAlerted = quotaAlerted != 0
	if u.Subscription.PurchasedAt, err = parseTime(purchasedAt); err != nil {
		return nil, fmt.Errorf("parsing user %s purchased_at: %w", u.ID, err)
	}
	if u.Subscription.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing user %s expires_at: %w", u.ID, err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing user %s created_at: %w", u.ID, err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing user %s updated_at: %w", u.ID, err)
	}
	return &u, nil
}

func (s *userStore) Update(ctx context.Context, user *store.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	const q = `UPDATE users SET
email = ?, mobile = ?, name = ?, password_hash = ?,
oauth_provider = ?, oauth_subject = ?,
plan_id = ?, status_code = ?, purchased_at = ?, expires_at = ?,
used_images = ?, quota_alerted = ?, updated_at = ?
WHERE id = ?`

	result, err := s.db.ExecContext(ctx, q,
		user.Email, user.Mobile, user.Name, user.PasswordHash,
		user.OAuthProvider, user.OAuthSubject,
		user.Subscription.PlanID, user.Subscription.StatusCode,
		formatTime(user.Subscription.PurchasedAt), formatTime(user.Subscription.ExpiresAt),
		user.Subscription.UsedImages, boolToInt(user.Subscription.QuotaAlerted),
		formatTime(time.Now().UTC()), user.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("updating user %s: %w", user.ID, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("updating user %s: %w", user.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows for user %s: %w", user.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("user %s: %w", user.ID, store.ErrNotFound)
	}
	return nil
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows for user %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ---------- transactionStore ----------

type transactionStore struct {
	db *sql.DB
}

const txnColumns = `id, user_id, plan_id, product_id, amount_cents, currency, payment_method,
purchase_token, device_platform, status, verified, notes, created_at, completed_at, updated_at`

func (s *transactionStore) Create(ctx context.Context, txn *store.Transaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO transactions (` + txnColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		txn.ID, txn.UserID, txn.PlanID, txn.ProductID,
		txn.AmountCents, txn.Currency, txn.PaymentMethod,
		txn.PurchaseToken, txn.DevicePlatform,
		string(txn.Status), boolToInt(txn.Verified), txn.Notes,
		formatTime(txn.CreatedAt), formatTime(txn.CompletedAt), formatTime(txn.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("creating transaction %s: %w", txn.ID, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("creating transaction %s: %w", txn.ID, err)
	}
	return nil
}

func (s *transactionStore) Get(ctx context.Context, id string) (*store.Transaction, error) {
	const q = `SELECT ` + txnColumns + ` FROM transactions WHERE id = ?`

	txn, err := scanTransaction(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting transaction %s: %w", id, err)
	}
	return txn, nil
}

func (s *transactionStore) UpdateStatus(ctx context.Context, id string, status store.TransactionStatus, verified bool, notes string) error {
	if !store.ValidTransactionStatus(status) {
		return fmt.Errorf("transaction %s status %q is unknown: %w", id, status, store.ErrInvalidInput)
	}

	now := formatTime(time.Now().UTC())
	var result sql.Result
	var err error
	if status == store.TransactionCompleted {
		const q = `UPDATE transactions SET status = ?, verified = ?, updated_at = ?,
notes = CASE WHEN ? != '' THEN ? ELSE notes END,
completed_at = CASE WHEN completed_at = '' THEN ? ELSE completed_at END
WHERE id = ?`
		result, err = s.db.ExecContext(ctx, q, string(status), boolToInt(verified), now, notes, notes, now, id)
	} else {
		const q = `UPDATE transactions SET status = ?, verified = ?, updated_at = ?,
notes = CASE WHEN ? != '' THEN ? ELSE notes END
WHERE id = ?`
		result, err = s.db.ExecContext(ctx, q, string(status), boolToInt(verified), now, notes, notes, id)
	}
	if err != nil {
		return fmt.Errorf("updating transaction %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows for transaction %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *transactionStore) ListByUser(ctx context.Context, userID string, opts store.ListOpts) ([]*store.Transaction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	const q = `SELECT ` + txnColumns + ` FROM transactions
WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, userID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for user %s: %w", userID, err)
	}
	defer rows.Close() //nolint:errcheck

	var txns []*store.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction row: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transaction rows: %w", err)
	}
	return txns, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*store.Transaction, error) {
	var t store.Transaction
	var status string
	var verified int
	var createdAt, completedAt, updatedAt string
	err := row.Scan(
		&t.ID, &t.UserID, &t.PlanID, &t.ProductID,
		&t.AmountCents, &t.Currency, &t.PaymentMethod,
		&t.PurchaseToken, &t.DevicePlatform,
		&status, &verified, &t.Notes,
		&createdAt, &completedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = store.TransactionStatus(status)
	t.Verified = verified != 0
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing transaction %s created_at: %w", t.ID, err)
	}
	if t.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, fmt.Errorf("parsing transaction %s completed_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing transaction %s updated_at: %w", t.ID, err)
	}
	return &t, nil
}

// ---------- helpers ----------

// formatTime serialises a time for storage. Zero times become the empty
// string so "never" round-trips cleanly.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
