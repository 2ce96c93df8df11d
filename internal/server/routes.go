// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neuralens-dev/neuralens/internal/billing"
	"github.com/neuralens-dev/neuralens/internal/store"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

func (s *Server) registerRoutes() {
	// Account endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "signup",
		Method:      http.MethodPost,
		Path:        "/v1/auth/signup",
		Summary:     "Create an account",
		Tags:        []string{"auth"},
	}, s.handleSignup)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/v1/auth/login",
		Summary:     "Log in with email or mobile",
		Tags:        []string{"auth"},
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "oauth-login",
		Method:      http.MethodPost,
		Path:        "/v1/auth/oauth",
		Summary:     "Log in with an OAuth credential",
		Tags:        []string{"auth"},
	}, s.handleOAuthLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/v1/user",
		Summary:     "Get the authenticated account",
		Tags:        []string{"auth"},
	}, s.handleGetProfile)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-account",
		Method:      http.MethodDelete,
		Path:        "/v1/user",
		Summary:     "Delete the authenticated account",
		Tags:        []string{"auth"},
	}, s.handleDeleteAccount)

	// Subscription endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-plans",
		Method:      http.MethodGet,
		Path:        "/v1/plans",
		Summary:     "List purchasable plans",
		Tags:        []string{"billing"},
	}, s.handleListPlans)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-subscription",
		Method:      http.MethodGet,
		Path:        "/v1/subscription",
		Summary:     "Get the current subscription state",
		Tags:        []string{"billing"},
	}, s.handleGetSubscription)

	huma.Register(s.api, huma.Operation{
		OperationID: "ack-quota-alert",
		Method:      http.MethodPost,
		Path:        "/v1/subscription/alert/ack",
		Summary:     "Acknowledge the quota-exceeded alert",
		Tags:        []string{"billing"},
	}, s.handleAckQuotaAlert)

	huma.Register(s.api, huma.Operation{
		OperationID: "verify-purchase",
		Method:      http.MethodPost,
		Path:        "/v1/billing/purchases",
		Summary:     "Verify a store purchase and activate its plan",
		Tags:        []string{"billing"},
	}, s.handleVerifyPurchase)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-transactions",
		Method:      http.MethodGet,
		Path:        "/v1/transactions",
		Summary:     "List the account's purchase transactions",
		Tags:        []string{"billing"},
	}, s.handleListTransactions)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-transaction",
		Method:      http.MethodGet,
		Path:        "/v1/transactions/{id}",
		Summary:     "Get one purchase transaction",
		Tags:        []string{"billing"},
	}, s.handleGetTransaction)

	// Operation catalog
	huma.Register(s.api, huma.Operation{
		OperationID: "list-operations",
		Method:      http.MethodGet,
		Path:        "/v1/operations",
		Summary:     "List available image operations",
		Tags:        []string{"images"},
	}, s.handleListOperations)
}

// --- Request/Response types for huma ---

type signupInput struct {
	Body struct {
		Email    string `json:"email,omitempty" format:"email" doc:"Account email"`
		Mobile   string `json:"mobile,omitempty" doc:"Account mobile number"`
		Password string `json:"password" minLength:"8" doc:"Account password"`
		Name     string `json:"name,omitempty" doc:"Display name"`
	}
}

type loginInput struct {
	Body struct {
		Identifier string `json:"identifier" minLength:"1" doc:"Email or mobile number"`
		Password   string `json:"password" minLength:"1" doc:"Account password"`
	}
}

type oauthLoginInput struct {
	Body struct {
		Provider   string `json:"provider" enum:"google,facebook" doc:"OAuth provider"`
		Credential string `json:"credential" minLength:"1" doc:"Provider token (Google ID token or Facebook access token)"`
	}
}

type sessionOutput struct {
	Body struct {
		Token string      `json:"token" doc:"Bearer token for subsequent requests"`
		User  UserProfile `json:"user"`
	}
}

type profileOutput struct {
	Body UserProfile
}

type listPlansOutput struct {
	Body struct {
		Plans []PlanBody `json:"plans"`
	}
}

type subscriptionOutput struct {
	Body SubscriptionBody
}

type ackQuotaAlertOutput struct {
	Body struct {
		Alerted bool `json:"alerted" doc:"Whether an alert was pending before this call"`
	}
}

type verifyPurchaseInput struct {
	Body struct {
		ProductID     string `json:"product_id" minLength:"1" doc:"Store product identifier"`
		PurchaseToken string `json:"purchase_token" minLength:"1" doc:"Store purchase token"`
	}
}

type verifyPurchaseOutput struct {
	Body struct {
		TransactionID string           `json:"transaction_id" doc:"Settled transaction identifier"`
		Status        string           `json:"status" doc:"completed or failed"`
		Subscription  SubscriptionBody `json:"subscription"`
	}
}

type listTransactionsInput struct {
	Limit  int `query:"limit" minimum:"0" maximum:"200" doc:"Page size; 0 = all"`
	Offset int `query:"offset" minimum:"0" doc:"Page offset"`
}

type listTransactionsOutput struct {
	Body struct {
		Transactions []TransactionBody `json:"transactions"`
	}
}

type getTransactionInput struct {
	ID string `path:"id" doc:"Transaction identifier"`
}

type getTransactionOutput struct {
	Body TransactionBody
}

type listOperationsOutput struct {
	Body struct {
		Operations []OperationBody `json:"operations"`
	}
}

// --- Handlers ---

func (s *Server) handleSignup(ctx context.Context, input *signupInput) (*sessionOutput, error) {
	session, err := s.services.Auth().Signup(ctx, input.Body.Email, input.Body.Mobile, input.Body.Password, input.Body.Name)
	if err != nil {
		return nil, humaError(err)
	}
	return sessionOutputOf(session.Token, profileOf(session.User)), nil
}

func (s *Server) handleLogin(ctx context.Context, input *loginInput) (*sessionOutput, error) {
	session, err := s.services.Auth().Login(ctx, input.Body.Identifier, input.Body.Password)
	if err != nil {
		return nil, humaError(err)
	}
	return sessionOutputOf(session.Token, profileOf(session.User)), nil
}

func (s *Server) handleOAuthLogin(ctx context.Context, input *oauthLoginInput) (*sessionOutput, error) {
	session, err := s.services.Auth().OAuthLogin(ctx, input.Body.Provider, input.Body.Credential)
	if err != nil {
		return nil, humaError(err)
	}
	return sessionOutputOf(session.Token, profileOf(session.User)), nil
}

func sessionOutputOf(token string, profile UserProfile) *sessionOutput {
	out := &sessionOutput{}
	out.Body.Token = token
	out.Body.User = profile
	return out
}

func (s *Server) handleGetProfile(ctx context.Context, _ *struct{}) (*profileOutput, error) {
	user, err := userFrom(ctx)
	if err != nil {
		return nil, humaError(err)
	}
	return &profileOutput{Body: profileOf(user)}, nil
}

func (s *Server) handleDeleteAccount(ctx context.Context, _ *struct{}) (*struct{}, error) {
	user, err := userFrom(ctx)
	if err != nil {
		return nil, humaError(err)
	}
	if err := s.services.Auth().DeleteAccount(ctx, user.ID); err != nil {
		return nil, humaError(err)
	}
	return &struct{}{}, nil
}

func (s *Server) handleListPlans(_ context.Context, _ *struct{}) (*listPlansOutput, error) {
	out := &listPlansOutput{}
	for _, p := range billing.ListPlans() {
		out.Body.Plans = append(out.Body.Plans, planBodyOf(p))
	}
	return out, nil
}

func (s *Server) handleGetSubscription(ctx context.Context, _ *struct{}) (*subscriptionOutput, error) {
	user, err := userFrom(ctx)
	if err != nil {
		return nil, humaError(err)
	}
	status, err := s.services.Billing().Status(ctx, user.ID)
	if err != nil {
		return nil, humaError(err)
	}
	return &subscriptionOutput{Body: subscriptionBodyOf(status)}, nil
}

func (s *Server) handleAckQuotaAlert(ctx context.Context, _ *struct{}) (*ackQuotaAlertOutput, error) {
	user, err := userFrom(ctx)
	if err != nil {
		return nil, humaError(err)
	}

	pending, err := s.services.Billing().QuotaAlertPending(ctx, user.ID)
	if err != nil {
		return nil, humaError(err)
	}
	if pending {
		if err := s.services.Billing().ClearQuotaAlert(ctx, user.ID); err != nil {
			return nil, humaError(err)
		}
	}

	out := &ackQuotaAlertOutput{}
	out.Body.Alerted = pending
	return out, nil
}

func (s *Server) handleVerifyPurchase(ctx context.Context, input *verifyPurchaseInput) (*verifyPurchaseOutput, error) {
	user, err := userFrom(ctx)
	if err != nil {
		return nil, humaError(err)
	}

	result, err := s.services.Purchases().VerifyPurchase(ctx, user.ID, input.Body.ProductID, input.Body.PurchaseToken)
	if err != nil {
		return nil, humaError(err)
	}

	out := &verifyPurchaseOutput{}
	out.Body.TransactionID = result.TransactionID
	out.Body.Status = string(store.TransactionCompleted)
	out.Body.Subscription = subscriptionBodyOf(result.Status)
	return out, nil
}

func (s *Server) handleListTransactions(ctx context.Context, input *listTransactionsInput) (*listTransactionsOutput, error) {
	user, err := userFrom(ctx)
	if err != nil {
		return nil, humaError(err)
	}

	txns, err := s.services.Purchases().Transactions(ctx, user.ID, listOptsOf(input.Limit, input.Offset))
	if err != nil {
		return nil, humaError(err)
	}

	out := &listTransactionsOutput{}
	out.Body.Transactions = make([]TransactionBody, 0, len(txns))
	for _, t := range txns {
		out.Body.Transactions = append(out.Body.Transactions, transactionBodyOf(t))
	}
	return out, nil
}

func (s *Server) handleGetTransaction(ctx context.Context, input *getTransactionInput) (*getTransactionOutput, error) {
	user, err := userFrom(ctx)
	if err != nil {
		return nil, humaError(err)
	}

	txn, err := s.services.Purchases().Transaction(ctx, input.ID)
	if err != nil {
		return nil, humaError(err)
	}
	// A transaction is only visible to the account that made it.
	if txn.UserID != user.ID {
		return nil, humaError(nlerr.Errorf(nlerr.CodeLedgerTransactionNotFound, "transaction %s not found", input.ID))
	}
	return &getTransactionOutput{Body: transactionBodyOf(txn)}, nil
}

func (s *Server) handleListOperations(_ context.Context, _ *struct{}) (*listOperationsOutput, error) {
	out := &listOperationsOutput{}
	for _, op := range s.services.Images().Registry().List() {
		out.Body.Operations = append(out.Body.Operations, OperationBody{
			Name:    op.Name,
			Summary: op.Summary,
		})
	}
	return out, nil
}

func listOptsOf(limit, offset int) store.ListOpts {
	return store.ListOpts{Limit: limit, Offset: offset}
}

// humaError converts a coded service error into a huma status error.
func humaError(err error) error {
	return huma.NewError(nlerr.HTTPStatus(err), err.Error())
}
