// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package main

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuralens-dev/neuralens/internal/secrets"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string // key → value (service is always "neuralens")
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data[k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Store(_, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mockSecretStore) Retrieve(_, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", nlerr.Errorf(nlerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(_, key string) error {
	if _, ok := m.data[key]; !ok {
		return nlerr.Errorf(nlerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, key)
	return nil
}

func (m *mockSecretStore) List(_ string) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func withMockSecretStore(t *testing.T, mock *mockSecretStore) {
	t.Helper()
	origFactory := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return mock }
	t.Cleanup(func() { secretStoreFactory = origFactory })
}

func TestSecretSet(t *testing.T) {
	mock := newMockSecretStore()
	withMockSecretStore(t, mock)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"secret", "set", "gemini-api-key", "gm-secret"})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "keyring://neuralens/gemini-api-key")
	assert.Equal(t, "gm-secret", mock.data["gemini-api-key"])
}

func TestSecretList(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		wantKeys []string
		wantMsg  string // exact output for empty case
	}{
		{
			name:    "empty store",
			keys:    nil,
			wantMsg: "No secrets stored.\n",
		},
		{
			name:     "single key",
			keys:     []string{"gemini-api-key"},
			wantKeys: []string{"gemini-api-key"},
		},
		{
			name:     "multiple keys",
			keys:     []string{"gemini-api-key", "jwt-secret"},
			wantKeys: []string{"gemini-api-key", "jwt-secret"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withMockSecretStore(t, newMockSecretStore(tt.keys...))

			cmd := NewRootCmd()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs([]string{"secret", "list"})

			err := cmd.Execute()
			require.NoError(t, err)

			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, buf.String())
			} else {
				// Sort output lines for deterministic comparison (map iteration order).
				got := strings.Split(strings.TrimSpace(buf.String()), "\n")
				sort.Strings(got)
				want := append([]string(nil), tt.wantKeys...)
				sort.Strings(want)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestSecretDelete(t *testing.T) {
	tests := []struct {
		name       string
		keys       []string
		deleteKey  string
		wantOutput string
		wantErr    bool
		wantCode   nlerr.Code
	}{
		{
			name:       "delete existing key",
			keys:       []string{"gemini-api-key"},
			deleteKey:  "gemini-api-key",
			wantOutput: "Deleted secret: gemini-api-key\n",
		},
		{
			name:      "delete non-existent key",
			keys:      nil,
			deleteKey: "missing-key",
			wantErr:   true,
			wantCode:  nlerr.CodeSecretNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withMockSecretStore(t, newMockSecretStore(tt.keys...))

			cmd := NewRootCmd()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs([]string{"secret", "delete", tt.deleteKey})

			err := cmd.Execute()

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, nlerr.HasCode(err, tt.wantCode),
					"expected error code %s, got: %v", tt.wantCode, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantOutput, buf.String())
			}
		})
	}
}
