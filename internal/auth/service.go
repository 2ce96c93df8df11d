// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

// Package auth implements account management: signup, login, OAuth
// sign-in, and access-token issuance.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/neuralens-dev/neuralens/internal/store"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// Session is the result of a successful authentication.
type Session struct {
	User  *store.User
	Token string
}

// Service wires the user store, token issuer, and OAuth verifiers.
type Service struct {
	users     store.UserStore
	tokens    *TokenIssuer
	verifiers map[string]TokenVerifier
	logger    *slog.Logger

	nowFunc func() time.Time
}

// NewService creates the auth service. verifiers may be empty when OAuth
// sign-in is disabled.
func NewService(users store.UserStore, tokens *TokenIssuer, verifiers []TokenVerifier, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "auth: user store is required")
	}
	if tokens == nil {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "auth: token issuer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	byProvider := make(map[string]TokenVerifier, len(verifiers))
	for _, v := range verifiers {
		byProvider[v.Provider()] = v
	}

	return &Service{
		users:     users,
		tokens:    tokens,
		verifiers: byProvider,
		logger:    logger,
		nowFunc:   time.Now,
	}, nil
}

// SetNowFunc overrides the clock. Tests only.
func (s *Service) SetNowFunc(f func() time.Time) { s.nowFunc = f }

// Signup registers a password account keyed by email or mobile and returns
// an authenticated session.
func (s *Service) Signup(ctx context.Context, email, mobile, password, name string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	mobile = strings.TrimSpace(mobile)

	if email == "" && mobile == "" {
		return nil, nlerr.New(nlerr.CodeAuthCredentialsInvalid, "auth: email or mobile is required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc().UTC()
	user := &store.User{
		ID:           uuid.New().String(),
		Email:        email,
		Mobile:       mobile,
		Name:         name,
		PasswordHash: hash,
		Subscription: store.Subscription{
			PlanID:      "free",
			StatusCode:  "F",
			PurchasedAt: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nlerr.Wrapf(err, nlerr.CodeAuthUserConflict, "auth: account already exists")
		}
		if errors.Is(err, store.ErrInvalidInput) {
			return nil, nlerr.Wrapf(err, nlerr.CodeAuthCredentialsInvalid, "auth: invalid signup details")
		}
		return nil, nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "auth: creating user")
	}

	s.logger.Info("user signed up", "user_id", user.ID)
	return s.session(user)
}

// Login authenticates a password account by email or mobile.
func (s *Service) Login(ctx context.Context, identifier, password string) (*Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, nlerr.New(nlerr.CodeAuthCredentialsInvalid, "auth: identifier and password are required")
	}

	var user *store.User
	var err error
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.users.GetByMobile(ctx, identifier)
	}
	if errors.Is(err, store.ErrNotFound) {
		// Same error as a bad password so lookups can't probe for accounts.
		return nil, nlerr.New(nlerr.CodeAuthCredentialsInvalid, "auth: invalid credentials")
	}
	if err != nil {
		return nil, nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "auth: looking up user")
	}

	if user.PasswordHash == "" || !VerifyPassword(password, user.PasswordHash) {
		return nil, nlerr.New(nlerr.CodeAuthCredentialsInvalid, "auth: invalid credentials")
	}

	return s.session(user)
}

// OAuthLogin verifies a provider credential and signs the user in,
// creating the account on first sight.
func (s *Service) OAuthLogin(ctx context.Context, provider, credential string) (*Session, error) {
	verifier, ok := s.verifiers[provider]
	if !ok {
		return nil, nlerr.Errorf(nlerr.CodeAuthOAuthDenied, "auth: unsupported oauth provider %q", provider)
	}

	identity, err := verifier.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByOAuth(ctx, identity.Provider, identity.Subject)
	if err == nil {
		return s.session(user)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "auth: looking up oauth user")
	}

	now := s.nowFunc().UTC()
	user = &store.User{
		ID:            uuid.New().String(),
		Email:         strings.ToLower(identity.Email),
		Name:          identity.Name,
		OAuthProvider: identity.Provider,
		OAuthSubject:  identity.Subject,
		Subscription: store.Subscription{
			PlanID:      "free",
			StatusCode:  "F",
			PurchasedAt: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nlerr.Wrapf(err, nlerr.CodeAuthUserConflict, "auth: account already exists")
		}
		return nil, nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "auth: creating oauth user")
	}

	s.logger.Info("oauth user signed up", "user_id", user.ID, "provider", identity.Provider)
	return s.session(user)
}

// CurrentUser resolves an access token to its account.
func (s *Service) CurrentUser(ctx context.Context, token string) (*store.User, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nlerr.Wrapf(err, nlerr.CodeAuthUserNotFound, "auth: user %s no longer exists", userID)
	}
	if err != nil {
		return nil, nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "auth: loading user")
	}
	return user, nil
}

// DeleteAccount removes the user and, through the store, their ledger.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	err := s.users.Delete(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nlerr.Wrapf(err, nlerr.CodeAuthUserNotFound, "auth: user %s not found", userID)
	}
	if err != nil {
		return nlerr.Wrapf(err, nlerr.CodeStoreDatabaseFailure, "auth: deleting user")
	}
	s.logger.Info("user deleted", "user_id", userID)
	return nil
}

func (s *Service) session(user *store.User) (*Session, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token}, nil
}
