// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// Issuer is the iss claim stamped on every access token.
const Issuer = "neuralens"

// Claims carries the access-token payload.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration // 0 = non-expiring tokens

	nowFunc func() time.Time
}

// NewTokenIssuer creates a token issuer. A zero ttl produces tokens
// without an exp claim; they stay valid until the secret rotates.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "auth: jwt secret must not be empty")
	}
	return &TokenIssuer{
		secret:  []byte(secret),
		ttl:     ttl,
		nowFunc: time.Now,
	}, nil
}

// SetNowFunc overrides the clock. Tests only.
func (i *TokenIssuer) SetNowFunc(f func() time.Time) { i.nowFunc = f }

// Issue mints an access token for userID.
func (i *TokenIssuer) Issue(userID string) (string, error) {
	if userID == "" {
		return "", nlerr.New(nlerr.CodeAuthTokenInvalid, "auth: token subject must not be empty")
	}

	now := i.nowFunc()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			Issuer:   Issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nlerr.Wrapf(err, nlerr.CodeAuthTokenInvalid, "auth: signing token")
	}
	return signed, nil
}

// Verify parses and validates an access token, returning the user ID.
func (i *TokenIssuer) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, nlerr.Errorf(nlerr.CodeAuthTokenInvalid,
					"auth: unexpected signing method %v", t.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithTimeFunc(i.nowFunc),
		jwt.WithIssuer(Issuer),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", nlerr.Wrapf(err, nlerr.CodeAuthTokenExpired, "auth: token expired")
	}
	if err != nil {
		return "", nlerr.Wrapf(err, nlerr.CodeAuthTokenInvalid, "auth: invalid token")
	}
	if !token.Valid || claims.Subject == "" {
		return "", nlerr.New(nlerr.CodeAuthTokenInvalid, "auth: invalid token")
	}
	return claims.Subject, nil
}
