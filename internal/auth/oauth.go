// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// Identity is the result of verifying an OAuth credential with its provider.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// TokenVerifier validates a provider-issued credential and resolves the
// identity behind it.
type TokenVerifier interface {
	Provider() string
	Verify(ctx context.Context, credential string) (Identity, error)
}

const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// GoogleVerifier validates Google ID tokens against the tokeninfo endpoint.
type GoogleVerifier struct {
	httpClient *http.Client
	baseURL    string
}

var _ TokenVerifier = (*GoogleVerifier)(nil)

// NewGoogleVerifier creates a verifier. baseURL overrides the Google
// endpoint for tests; pass "" for the real one.
func NewGoogleVerifier(baseURL string) *GoogleVerifier {
	if baseURL == "" {
		baseURL = googleTokenInfoURL
	}
	return &GoogleVerifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
	}
}

func (g *GoogleVerifier) Provider() string { return "google" }

func (g *GoogleVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, nlerr.New(nlerr.CodeAuthOAuthDenied, "auth: empty google id token")
	}

	endpoint := g.baseURL + "?id_token=" + url.QueryEscape(credential)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Identity{}, nlerr.Wrapf(err, nlerr.CodeAuthOAuthDenied, "auth: building google tokeninfo request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Identity{}, nlerr.Wrapf(err, nlerr.CodeAuthOAuthDenied, "auth: calling google tokeninfo")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return Identity{}, nlerr.Errorf(nlerr.CodeAuthOAuthDenied,
			"auth: google rejected id token (%d)", resp.StatusCode)
	}

	var payload struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Identity{}, nlerr.Wrapf(err, nlerr.CodeAuthOAuthDenied, "auth: decoding google tokeninfo response")
	}
	if payload.Sub == "" {
		return Identity{}, nlerr.New(nlerr.CodeAuthOAuthDenied, "auth: google tokeninfo carried no subject")
	}

	return Identity{Provider: "google", Subject: payload.Sub, Email: payload.Email, Name: payload.Name}, nil
}

const facebookGraphURL = "https://graph.facebook.com/me"

// FacebookVerifier validates Facebook access tokens against the Graph API.
type FacebookVerifier struct {
	httpClient *http.Client
	baseURL    string
}

var _ TokenVerifier = (*FacebookVerifier)(nil)

// NewFacebookVerifier creates a verifier. baseURL overrides the Graph API
// endpoint for tests; pass "" for the real one.
func NewFacebookVerifier(baseURL string) *FacebookVerifier {
	if baseURL == "" {
		baseURL = facebookGraphURL
	}
	return &FacebookVerifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
	}
}

func (f *FacebookVerifier) Provider() string { return "facebook" }

func (f *FacebookVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, nlerr.New(nlerr.CodeAuthOAuthDenied, "auth: empty facebook access token")
	}

	endpoint := fmt.Sprintf("%s?fields=id,name,email&access_token=%s", f.baseURL, url.QueryEscape(credential))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Identity{}, nlerr.Wrapf(err, nlerr.CodeAuthOAuthDenied, "auth: building facebook graph request")
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Identity{}, nlerr.Wrapf(err, nlerr.CodeAuthOAuthDenied, "auth: calling facebook graph api")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return Identity{}, nlerr.Errorf(nlerr.CodeAuthOAuthDenied,
			"auth: facebook rejected access token (%d)", resp.StatusCode)
	}

	var payload struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Identity{}, nlerr.Wrapf(err, nlerr.CodeAuthOAuthDenied, "auth: decoding facebook graph response")
	}
	if payload.ID == "" {
		return Identity{}, nlerr.New(nlerr.CodeAuthOAuthDenied, "auth: facebook graph carried no id")
	}

	return Identity{Provider: "facebook", Subject: payload.ID, Email: payload.Email, Name: payload.Name}, nil
}
