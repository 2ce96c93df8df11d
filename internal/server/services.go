// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package server

import (
	"context"
	"time"

	"github.com/neuralens-dev/neuralens/internal/auth"
	"github.com/neuralens-dev/neuralens/internal/billing"
	"github.com/neuralens-dev/neuralens/internal/dispatch"
	"github.com/neuralens-dev/neuralens/internal/store"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// AuthService provides account operations for REST handlers.
type AuthService interface {
	Signup(ctx context.Context, email, mobile, password, name string) (*auth.Session, error)
	Login(ctx context.Context, identifier, password string) (*auth.Session, error)
	OAuthLogin(ctx context.Context, provider, credential string) (*auth.Session, error)
	CurrentUser(ctx context.Context, token string) (*store.User, error)
	DeleteAccount(ctx context.Context, userID string) error
}

// BillingService provides subscription operations for REST handlers.
type BillingService interface {
	Status(ctx context.Context, userID string) (*billing.Status, error)
	Allow(ctx context.Context, userID string) error
	RecordUsage(ctx context.Context, userID string) error
	QuotaAlertPending(ctx context.Context, userID string) (bool, error)
	ClearQuotaAlert(ctx context.Context, userID string) error
}

// PurchaseService provides purchase verification and transaction history.
type PurchaseService interface {
	VerifyPurchase(ctx context.Context, userID, productID, purchaseToken string) (*billing.PurchaseResult, error)
	Transactions(ctx context.Context, userID string, opts store.ListOpts) ([]*store.Transaction, error)
	Transaction(ctx context.Context, id string) (*store.Transaction, error)
}

// ImageService runs image operations. Implemented by dispatch.Dispatcher.
type ImageService interface {
	Execute(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
	Registry() *dispatch.Registry
	Breakers() *dispatch.BreakerRegistry
}

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be faked in tests.
// Use NewServices to ensure all required services are provided.
type Services struct {
	auth      AuthService
	billing   BillingService
	purchases PurchaseService
	images    ImageService
}

// NewServices creates a Services instance with validation.
// Returns an error if any required service is nil.
func NewServices(authSvc AuthService, billingSvc BillingService, purchases PurchaseService, images ImageService) (*Services, error) {
	if authSvc == nil {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "auth service is required")
	}
	if billingSvc == nil {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "billing service is required")
	}
	if purchases == nil {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "purchase service is required")
	}
	if images == nil {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "image service is required")
	}
	return &Services{
		auth:      authSvc,
		billing:   billingSvc,
		purchases: purchases,
		images:    images,
	}, nil
}

// Auth returns the account service.
func (s *Services) Auth() AuthService {
	return s.auth
}

// Billing returns the subscription service.
func (s *Services) Billing() BillingService {
	return s.billing
}

// Purchases returns the purchase service.
func (s *Services) Purchases() PurchaseService {
	return s.purchases
}

// Images returns the image operation service.
func (s *Services) Images() ImageService {
	return s.images
}

// UserProfile is the REST representation of an account.
type UserProfile struct {
	ID       string `json:"id" doc:"User identifier"`
	Email    string `json:"email,omitempty" doc:"Account email"`
	Mobile   string `json:"mobile,omitempty" doc:"Account mobile number"`
	Name     string `json:"name,omitempty" doc:"Display name"`
	Provider string `json:"oauth_provider,omitempty" doc:"OAuth provider for social accounts"`
	PlanID   string `json:"plan_id" doc:"Active subscription plan"`
}

func profileOf(u *store.User) UserProfile {
	return UserProfile{
		ID:       u.ID,
		Email:    u.Email,
		Mobile:   u.Mobile,
		Name:     u.Name,
		Provider: u.OAuthProvider,
		PlanID:   u.Subscription.PlanID,
	}
}

// SubscriptionBody is the REST representation of a user's subscription state.
type SubscriptionBody struct {
	PlanID          string `json:"plan_id" doc:"Plan identifier"`
	StatusCode      string `json:"status_code" doc:"Plan status code"`
	PurchasedAt     string `json:"purchased_at,omitempty" doc:"Window start (RFC 3339)"`
	ExpiresAt       string `json:"expires_at,omitempty" doc:"Window end (RFC 3339); absent when the plan never expires"`
	UsedImages      int    `json:"used_images" doc:"Images consumed this window"`
	ImageQuota      int    `json:"image_quota" doc:"Images allowed per window; 0 = unlimited"`
	RemainingImages int    `json:"remaining_images" doc:"Images left this window; -1 = unlimited"`
	Expired         bool   `json:"expired" doc:"Whether the window has lapsed"`
	QuotaExceeded   bool   `json:"quota_exceeded" doc:"Whether the quota is used up"`
}

func subscriptionBodyOf(st *billing.Status) SubscriptionBody {
	body := SubscriptionBody{
		PlanID:          st.PlanID,
		StatusCode:      st.StatusCode,
		UsedImages:      st.UsedImages,
		ImageQuota:      st.ImageQuota,
		RemainingImages: st.RemainingImages,
		Expired:         st.Expired,
		QuotaExceeded:   st.QuotaExceeded,
	}
	if !st.PurchasedAt.IsZero() {
		body.PurchasedAt = st.PurchasedAt.UTC().Format(time.RFC3339)
	}
	if !st.ExpiresAt.IsZero() {
		body.ExpiresAt = st.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return body
}

// PlanBody is the REST representation of a purchasable plan.
type PlanBody struct {
	ID           string `json:"id" doc:"Plan identifier"`
	Name         string `json:"name" doc:"Display name"`
	PriceCents   int64  `json:"price_cents" doc:"Price in US cents"`
	ImageQuota   int    `json:"image_quota" doc:"Images per window; 0 = unlimited"`
	DurationDays int    `json:"duration_days" doc:"Window length in days; 0 = never expires"`
	AdSupported  bool   `json:"ad_supported" doc:"Whether the plan shows ads"`
}

func planBodyOf(p billing.Plan) PlanBody {
	return PlanBody{
		ID:           p.ID,
		Name:         p.Name,
		PriceCents:   p.PriceCents,
		ImageQuota:   p.ImageQuota,
		DurationDays: p.DurationDays,
		AdSupported:  p.AdSupported,
	}
}

// TransactionBody is the REST representation of a purchase transaction.
type TransactionBody struct {
	ID          string `json:"id" doc:"Transaction identifier"`
	PlanID      string `json:"plan_id" doc:"Plan purchased"`
	ProductID   string `json:"product_id" doc:"Store product identifier"`
	AmountCents int64  `json:"amount_cents" doc:"Amount in US cents"`
	Currency    string `json:"currency" doc:"ISO 4217 currency code"`
	Status      string `json:"status" doc:"pending, completed, failed, or refunded"`
	Verified    bool   `json:"verified" doc:"Whether the receipt passed verification"`
	CreatedAt   string `json:"created_at" doc:"Creation time (RFC 3339)"`
	CompletedAt string `json:"completed_at,omitempty" doc:"Completion time (RFC 3339)"`
}

func transactionBodyOf(t *store.Transaction) TransactionBody {
	body := TransactionBody{
		ID:          t.ID,
		PlanID:      t.PlanID,
		ProductID:   t.ProductID,
		AmountCents: t.AmountCents,
		Currency:    t.Currency,
		Status:      string(t.Status),
		Verified:    t.Verified,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !t.CompletedAt.IsZero() {
		body.CompletedAt = t.CompletedAt.UTC().Format(time.RFC3339)
	}
	return body
}

// OperationBody is the REST representation of a registered image operation.
type OperationBody struct {
	Name    string `json:"name" doc:"Operation identifier"`
	Summary string `json:"summary" doc:"What the operation does"`
}
