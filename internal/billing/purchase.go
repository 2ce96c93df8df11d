// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/neuralens-dev/neuralens/internal/store"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// PurchaseVerifier checks a platform purchase receipt.
type PurchaseVerifier interface {
	// Verify returns nil when the receipt is genuine.
	Verify(ctx context.Context, productID, purchaseToken string) error
}

// GooglePlayVerifier accepts well-formed receipts at face value.
// TODO: validate purchase tokens against the Android Publisher API
// (purchases.products.get) once the service account ships.
type GooglePlayVerifier struct{}

var _ PurchaseVerifier = (*GooglePlayVerifier)(nil)

func (GooglePlayVerifier) Verify(ctx context.Context, productID, purchaseToken string) error {
	if purchaseToken == "" {
		return nlerr.New(nlerr.CodeBillingVerifyFailure, "billing: empty purchase token")
	}
	return nil
}

// PurchaseResult reports a completed purchase.
type PurchaseResult struct {
	TransactionID string
	Status        *Status
}

// Purchaser runs the purchase flow: record a pending transaction, verify
// the receipt, activate the plan, and settle the transaction either way.
type Purchaser struct {
	billing  *Service
	txns     store.TransactionStore
	verifier PurchaseVerifier
	logger   *slog.Logger

	nowFunc func() time.Time
}

// NewPurchaser creates the purchase flow.
func NewPurchaser(billing *Service, txns store.TransactionStore, verifier PurchaseVerifier, logger *slog.Logger) (*Purchaser, error) {
	if billing == nil || txns == nil {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "billing: purchaser needs the billing service and transaction store")
	}
	if verifier == nil {
		verifier = GooglePlayVerifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Purchaser{
		billing:  billing,
		txns:     txns,
		verifier: verifier,
		logger:   logger,
		nowFunc:  time.Now,
	}, nil
}

// VerifyPurchase settles a store purchase: the transaction is recorded
// before verification so failed activations still leave a ledger entry.
func (p *Purchaser) VerifyPurchase(ctx context.Context, userID, productID, purchaseToken string) (*PurchaseResult, error) {
	plan, err := PlanForProduct(productID)
	if err != nil {
		return nil, err
	}

	now := p.nowFunc().UTC()
	txn := &store.Transaction{
		ID:             uuid.New().String(),
		UserID:         userID,
		PlanID:         plan.ID,
		ProductID:      productID,
		AmountCents:    plan.PriceCents,
		Currency:       "USD",
		PaymentMethod:  "google_play",
		PurchaseToken:  purchaseToken,
		DevicePlatform: "android",
		Status:         store.TransactionPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.txns.Create(ctx, txn); err != nil {
		return nil, nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "billing: recording transaction")
	}

	if err := p.verifier.Verify(ctx, productID, purchaseToken); err != nil {
		p.settle(ctx, txn.ID, store.TransactionFailed, false, "receipt verification failed")
		return nil, nlerr.Wrapf(err, nlerr.CodeBillingVerifyFailure,
			"billing: verifying purchase of %s", productID)
	}

	status, err := p.billing.Activate(ctx, userID, plan.ID)
	if err != nil {
		p.settle(ctx, txn.ID, store.TransactionFailed, false, "plan activation failed")
		return nil, err
	}

	p.settle(ctx, txn.ID, store.TransactionCompleted, true, "purchase verified and subscription activated")
	p.logger.Info("purchase completed",
		"user_id", userID, "plan_id", plan.ID, "transaction_id", txn.ID)

	return &PurchaseResult{TransactionID: txn.ID, Status: status}, nil
}

// Transactions lists the user's ledger entries, newest first.
func (p *Purchaser) Transactions(ctx context.Context, userID string, opts store.ListOpts) ([]*store.Transaction, error) {
	txns, err := p.txns.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "billing: listing transactions")
	}
	return txns, nil
}

// Transaction loads one ledger entry.
func (p *Purchaser) Transaction(ctx context.Context, id string) (*store.Transaction, error) {
	txn, err := p.txns.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nlerr.Wrapf(err, nlerr.CodeLedgerTransactionNotFound, "billing: transaction %s", id)
	}
	if err != nil {
		return nil, nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "billing: loading transaction %s", id)
	}
	return txn, nil
}

// settle updates the transaction status, logging rather than failing the
// purchase when the ledger write itself breaks.
func (p *Purchaser) settle(ctx context.Context, id string, status store.TransactionStatus, verified bool, notes string) {
	if err := p.txns.UpdateStatus(ctx, id, status, verified, notes); err != nil {
		p.logger.Error("settling transaction failed", "transaction_id", id, "status", string(status), "error", err)
	}
}
