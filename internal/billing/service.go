// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

// Package billing implements subscription plans, quota accounting, and
// purchase verification.
package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/neuralens-dev/neuralens/internal/store"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// Status is the computed subscription state for one user.
type Status struct {
	UserID       string
	PlanID       string
	StatusCode   string
	PurchasedAt  time.Time
	ExpiresAt    time.Time // zero = never expires
	UsedImages   int
	ImageQuota   int // 0 = unlimited
	DurationDays int
	Expired      bool
	// RemainingImages is -1 for unlimited plans.
	RemainingImages int
	QuotaExceeded   bool
	QuotaAlerted    bool
}

// Service owns subscription state transitions on the user record.
type Service struct {
	users  store.UserStore
	logger *slog.Logger

	nowFunc func() time.Time
}

// NewService creates the billing service.
func NewService(users store.UserStore, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "billing: user store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, logger: logger, nowFunc: time.Now}, nil
}

// SetNowFunc overrides the clock. Tests only.
func (s *Service) SetNowFunc(f func() time.Time) { s.nowFunc = f }

// Status loads the user and computes their current subscription state.
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.statusFor(user), nil
}

func (s *Service) statusFor(user *store.User) *Status {
	sub := user.Subscription
	planID := sub.PlanID
	if planID == "" {
		planID = FreePlanID
	}
	plan, err := PlanByID(planID)
	if err != nil {
		// Unknown plan on the record: degrade to free rather than lock
		// the user out.
		plan, _ = PlanByID(FreePlanID)
		planID = FreePlanID
	}

	now := s.nowFunc().UTC()
	expired := !sub.ExpiresAt.IsZero() && now.After(sub.ExpiresAt)

	remaining := -1
	exceeded := false
	if !plan.Unlimited() {
		remaining = max(plan.ImageQuota-sub.UsedImages, 0)
		exceeded = sub.UsedImages >= plan.ImageQuota
	}

	statusCode := sub.StatusCode
	if statusCode == "" {
		statusCode = plan.StatusCode
	}

	return &Status{
		UserID:          user.ID,
		PlanID:          planID,
		StatusCode:      statusCode,
		PurchasedAt:     sub.PurchasedAt,
		ExpiresAt:       sub.ExpiresAt,
		UsedImages:      sub.UsedImages,
		ImageQuota:      plan.ImageQuota,
		DurationDays:    plan.DurationDays,
		Expired:         expired,
		RemainingImages: remaining,
		QuotaExceeded:   exceeded,
		QuotaAlerted:    sub.QuotaAlerted,
	}
}

// Activate puts the user on planID, resetting the usage window.
func (s *Service) Activate(ctx context.Context, userID, planID string) (*Status, error) {
	plan, err := PlanByID(planID)
	if err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc().UTC()
	sub := store.Subscription{
		PlanID:      plan.ID,
		StatusCode:  plan.StatusCode,
		PurchasedAt: now,
	}
	if plan.Expires() {
		sub.ExpiresAt = now.AddDate(0, 0, plan.DurationDays)
	}
	user.Subscription = sub

	if err := s.users.Update(ctx, user); err != nil {
		return nil, nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "billing: activating plan %s", plan.ID)
	}

	s.logger.Info("plan activated", "user_id", userID, "plan_id", plan.ID)
	return s.statusFor(user), nil
}

// Allow gates one image operation: renews rolled-over windows, then
// rejects expired or quota-exhausted subscriptions.
func (s *Service) Allow(ctx context.Context, userID string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if user, err = s.renewIfRolledOver(ctx, user); err != nil {
		return err
	}

	status := s.statusFor(user)
	if status.Expired {
		return nlerr.Errorf(nlerr.CodeBillingSubscriptionLapsed,
			"billing: plan %s expired for user %s", status.PlanID, userID)
	}
	if status.QuotaExceeded {
		return nlerr.Errorf(nlerr.CodeBillingQuotaExceeded,
			"billing: quota of %d images reached on plan %s", status.ImageQuota, status.PlanID)
	}
	return nil
}

// RecordUsage counts one processed image against the quota. Expired or
// already-exhausted subscriptions are left untouched.
func (s *Service) RecordUsage(ctx context.Context, userID string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if user, err = s.renewIfRolledOver(ctx, user); err != nil {
		return err
	}

	status := s.statusFor(user)
	if status.Expired || status.QuotaExceeded {
		return nil
	}

	user.Subscription.UsedImages++

	// First crossing of the quota raises the alert flag once.
	plan, _ := PlanByID(status.PlanID)
	if !plan.Unlimited() && user.Subscription.UsedImages >= plan.ImageQuota && !user.Subscription.QuotaAlerted {
		user.Subscription.QuotaAlerted = true
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "billing: recording usage")
	}
	return nil
}

// QuotaAlertPending reports whether the user has an unseen quota alert.
func (s *Service) QuotaAlertPending(ctx context.Context, userID string) (bool, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.Subscription.QuotaAlerted, nil
}

// ClearQuotaAlert marks the quota alert as seen.
func (s *Service) ClearQuotaAlert(ctx context.Context, userID string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.Subscription.QuotaAlerted {
		return nil
	}
	user.Subscription.QuotaAlerted = false
	if err := s.users.Update(ctx, user); err != nil {
		return nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "billing: clearing quota alert")
	}
	return nil
}

// renewIfRolledOver restarts the usage window for fixed-duration plans
// whose window has lapsed, simulating automatic renewal without a
// repurchase call.
func (s *Service) renewIfRolledOver(ctx context.Context, user *store.User) (*store.User, error) {
	sub := user.Subscription
	if sub.ExpiresAt.IsZero() {
		return user, nil
	}
	plan, err := PlanByID(sub.PlanID)
	if err != nil || !plan.Expires() {
		return user, nil
	}

	now := s.nowFunc().UTC()
	if !now.After(sub.ExpiresAt) {
		return user, nil
	}

	user.Subscription.UsedImages = 0
	user.Subscription.PurchasedAt = now
	user.Subscription.ExpiresAt = now.AddDate(0, 0, plan.DurationDays)
	user.Subscription.QuotaAlerted = false

	if err := s.users.Update(ctx, user); err != nil {
		return nil, nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "billing: renewing window")
	}
	s.logger.Info("subscription window renewed", "user_id", user.ID, "plan_id", plan.ID)
	return user, nil
}

func (s *Service) loadUser(ctx context.Context, userID string) (*store.User, error) {
	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nlerr.Wrapf(err, nlerr.CodeAuthUserNotFound, "billing: user %s not found", userID)
	}
	if err != nil {
		return nil, nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "billing: loading user")
	}
	return user, nil
}
