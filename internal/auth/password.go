// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package auth

import (
	"golang.org/x/crypto/bcrypt"

	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// HashPassword derives a bcrypt hash from the raw password.
func HashPassword(raw string) (string, error) {
	if raw == "" {
		return "", nlerr.New(nlerr.CodeAuthCredentialsInvalid, "password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", nlerr.Wrapf(err, nlerr.CodeAuthCredentialsInvalid, "hashing password")
	}
	return string(hash), nil
}

// VerifyPassword reports whether raw matches the stored bcrypt hash.
func VerifyPassword(raw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
