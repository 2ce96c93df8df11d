// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/neuralens-dev/neuralens/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "neuralens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, id, email string) *store.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	u := &store.User{
		ID:           id,
		Email:        email,
		Name:         "Test User",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		Subscription: store.Subscription{
			PlanID:      "free",
			StatusCode:  "F",
			PurchasedAt: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func seedTransaction(t *testing.T, s *Store, id, userID string, createdAt time.Time) *store.Transaction {
	t.Helper()
	txn := &store.Transaction{
		ID:            id,
		UserID:        userID,
		PlanID:        "week100",
		ProductID:     "neuralens_week100",
		AmountCents:   602,
		Currency:      "USD",
		PaymentMethod: "google_play",
		PurchaseToken: "tok-123",
		Status:        store.TransactionPending,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	require.NoError(t, s.Transactions().Create(context.Background(), txn))
	return txn
}

func TestUserRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	want := seedUser(t, s, "u1", "alice@example.com")

	got, err := s.Users().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.PasswordHash, got.PasswordHash)
	assert.Equal(t, "free", got.Subscription.PlanID)
	assert.Equal(t, "F", got.Subscription.StatusCode)
	assert.True(t, want.Subscription.PurchasedAt.Equal(got.Subscription.PurchasedAt))
	assert.True(t, got.Subscription.ExpiresAt.IsZero(), "zero expiry round-trips as never")
}

func TestUserGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Users().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserDuplicateEmailConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "u1", "alice@example.com")

	dup := &store.User{
		ID:           "u2",
		Email:        "ALICE@example.com",
		PasswordHash: "$2a$10$other",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	err := s.Users().Create(ctx, dup)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestUserEmptyEmailDoesNotConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Two OAuth users without email must both insert.
	for i, sub := range []string{"sub-1", "sub-2"} {
		u := &store.User{
			ID:            []string{"u1", "u2"}[i],
			OAuthProvider: "google",
			OAuthSubject:  sub,
			CreatedAt:     time.Now().UTC(),
			UpdatedAt:     time.Now().UTC(),
		}
		require.NoError(t, s.Users().Create(ctx, u))
	}
}

func TestUserLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := seedUser(t, s, "u1", "alice@example.com")
	_ = u

	byEmail, err := s.Users().GetByEmail(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)

	mobileUser := &store.User{
		ID:           "u2",
		Mobile:       "+15550001111",
		PasswordHash: "$2a$10$other",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.Users().Create(ctx, mobileUser))
	byMobile, err := s.Users().GetByMobile(ctx, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, "u2", byMobile.ID)

	oauthUser := &store.User{
		ID:            "u3",
		OAuthProvider: "google",
		OAuthSubject:  "sub-xyz",
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.Users().Create(ctx, oauthUser))
	byOAuth, err := s.Users().GetByOAuth(ctx, "google", "sub-xyz")
	require.NoError(t, err)
	assert.Equal(t, "u3", byOAuth.ID)

	_, err = s.Users().GetByOAuth(ctx, "facebook", "sub-xyz")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserUpdatePersistsSubscription(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "u1", "alice@example.com")

	u, err := s.Users().Get(ctx, "u1")
	require.NoError(t, err)
	expiry := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(time.Millisecond)
	u.Subscription = store.Subscription{
		PlanID:       "week100",
		StatusCode:   "FW",
		PurchasedAt:  time.Now().UTC().Truncate(time.Millisecond),
		ExpiresAt:    expiry,
		UsedImages:   3,
		QuotaAlerted: true,
	}
	require.NoError(t, s.Users().Update(ctx, u))

	got, err := s.Users().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "week100", got.Subscription.PlanID)
	assert.Equal(t, 3, got.Subscription.UsedImages)
	assert.True(t, got.Subscription.QuotaAlerted)
	assert.True(t, expiry.Equal(got.Subscription.ExpiresAt))
}

func TestUserUpdateMissing(t *testing.T) {
	s := newTestStore(t)
	ghost := &store.User{
		ID:           "ghost",
		Email:        "ghost@example.com",
		PasswordHash: "$2a$10$x",
	}
	err := s.Users().Update(context.Background(), ghost)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserDeleteCascadesTransactions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "u1", "alice@example.com")
	seedTransaction(t, s, "t1", "u1", time.Now().UTC())

	require.NoError(t, s.Users().Delete(ctx, "u1"))

	_, err := s.Transactions().Get(ctx, "t1")
	assert.ErrorIs(t, err, store.ErrNotFound, "foreign key cascade removes the ledger rows")
}

func TestTransactionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "u1", "alice@example.com")
	seedTransaction(t, s, "t1", "u1", time.Now().UTC().Truncate(time.Millisecond))

	got, err := s.Transactions().Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, store.TransactionPending, got.Status)
	assert.False(t, got.Verified)
	assert.True(t, got.CompletedAt.IsZero())

	require.NoError(t, s.Transactions().UpdateStatus(ctx, "t1", store.TransactionCompleted, true, "verified and activated"))

	got, err = s.Transactions().Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, store.TransactionCompleted, got.Status)
	assert.True(t, got.Verified)
	assert.Equal(t, "verified and activated", got.Notes)
	assert.False(t, got.CompletedAt.IsZero())

	// A second completion must not move completed_at.
	first := got.CompletedAt
	require.NoError(t, s.Transactions().UpdateStatus(ctx, "t1", store.TransactionCompleted, true, ""))
	got, err = s.Transactions().Get(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, first.Equal(got.CompletedAt))
	assert.Equal(t, "verified and activated", got.Notes, "empty notes leave the old value")
}

func TestTransactionFailedKeepsCompletedAtEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "u1", "alice@example.com")
	seedTransaction(t, s, "t1", "u1", time.Now().UTC())

	require.NoError(t, s.Transactions().UpdateStatus(ctx, "t1", store.TransactionFailed, false, "activation failed"))

	got, err := s.Transactions().Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, store.TransactionFailed, got.Status)
	assert.True(t, got.CompletedAt.IsZero())
}

func TestTransactionUpdateMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.Transactions().UpdateStatus(context.Background(), "nope", store.TransactionCompleted, true, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTransactionListByUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "u1", "alice@example.com")
	seedUser(t, s, "u2", "bob@example.com")

	base := time.Now().UTC().Truncate(time.Millisecond)
	seedTransaction(t, s, "t1", "u1", base)
	seedTransaction(t, s, "t2", "u1", base.Add(time.Minute))
	seedTransaction(t, s, "t3", "u1", base.Add(2*time.Minute))
	seedTransaction(t, s, "other", "u2", base)

	txns, err := s.Transactions().ListByUser(ctx, "u1", store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, "t3", txns[0].ID, "newest first")

	page, err := s.Transactions().ListByUser(ctx, "u1", store.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "t2", page[0].ID)

	empty, err := s.Transactions().ListByUser(ctx, "nobody", store.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTransactionValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.Transactions().Create(ctx, &store.Transaction{ID: "t1"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	err = s.Transactions().UpdateStatus(ctx, "t1", "exploded", false, "")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}
