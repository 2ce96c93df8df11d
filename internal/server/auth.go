// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/neuralens-dev/neuralens/internal/store"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

type contextKey int

const userContextKey contextKey = iota

// publicPrefixes lists route prefixes that skip bearer-token validation.
var publicPrefixes = []string{
	"/health",
	"/openapi",
	"/docs",
	"/schemas",
	"/v1/auth/",
	"/v1/plans",
	"/v1/operations",
}

func isPublicPath(path string) bool {
	for _, prefix := range publicPrefixes {
		if path == strings.TrimSuffix(prefix, "/") || strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// authMiddleware validates the Authorization bearer token on protected
// routes and injects the resolved user into the request context.
func authMiddleware(authSvc AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				writeError(w, nlerr.New(nlerr.CodeServerAuthUnauthorized, "missing bearer token"))
				return
			}

			user, err := authSvc.CurrentUser(r.Context(), token)
			if err != nil {
				slog.Debug("rejecting request", "path", r.URL.Path, "error", err)
				writeError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// userFrom returns the authenticated user injected by authMiddleware.
func userFrom(ctx context.Context) (*store.User, error) {
	user, ok := ctx.Value(userContextKey).(*store.User)
	if !ok || user == nil {
		return nil, nlerr.New(nlerr.CodeServerAuthUnauthorized, "request is not authenticated")
	}
	return user, nil
}
