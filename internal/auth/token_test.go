// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package auth

import (
	"testing"
	"time"

	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer("", 0)
	require.Error(t, err)
	assert.Equal(t, nlerr.CodeServerConfigInvalid, nlerr.CodeOf(err))
}

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := issuer.Issue("user-42")
	require.NoError(t, err)

	userID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestTokenWithoutExpiryNeverExpires(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", 0)
	require.NoError(t, err)

	now := time.Now()
	issuer.SetNowFunc(func() time.Time { return now })

	token, err := issuer.Issue("user-42")
	require.NoError(t, err)

	// Ten years later the token still verifies.
	issuer.SetNowFunc(func() time.Time { return now.Add(10 * 365 * 24 * time.Hour) })
	userID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestTokenExpires(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Minute)
	require.NoError(t, err)

	now := time.Now()
	issuer.SetNowFunc(func() time.Time { return now })

	token, err := issuer.Issue("user-42")
	require.NoError(t, err)

	issuer.SetNowFunc(func() time.Time { return now.Add(2 * time.Minute) })
	_, err = issuer.Verify(token)
	require.Error(t, err)
	assert.Equal(t, nlerr.CodeAuthTokenExpired, nlerr.CodeOf(err))
}

func TestTokenWrongSecretRejected(t *testing.T) {
	a, err := NewTokenIssuer("secret-a", 0)
	require.NoError(t, err)
	b, err := NewTokenIssuer("secret-b", 0)
	require.NoError(t, err)

	token, err := a.Issue("user-42")
	require.NoError(t, err)

	_, err = b.Verify(token)
	require.Error(t, err)
	assert.Equal(t, nlerr.CodeAuthTokenInvalid, nlerr.CodeOf(err))
}

func TestTokenGarbageRejected(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", 0)
	require.NoError(t, err)

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		_, err := issuer.Verify(tok)
		require.Error(t, err, "token %q", tok)
		assert.Equal(t, nlerr.CodeAuthTokenInvalid, nlerr.CodeOf(err))
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", 0)
	require.NoError(t, err)

	_, err = issuer.Issue("")
	require.Error(t, err)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2-but-longer")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2-but-longer", hash)

	assert.True(t, VerifyPassword("hunter2-but-longer", hash))
	assert.False(t, VerifyPassword("wrong", hash))
	assert.False(t, VerifyPassword("hunter2-but-longer", "not-a-hash"))
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := HashPassword("")
	require.Error(t, err)
	assert.Equal(t, nlerr.CodeAuthCredentialsInvalid, nlerr.CodeOf(err))
}
