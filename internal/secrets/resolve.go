// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package secrets

import (
	"log/slog"
	"strings"

	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
	"github.com/spf13/viper"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
// Returns an error if the URI is malformed.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", nlerr.Errorf(nlerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	path := strings.TrimPrefix(uri, keyringScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", nlerr.Errorf(nlerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}

	return parts[0], parts[1], nil
}

// ResolveKeyringURI resolves a single keyring:// URI to its secret value.
// Returns the original value unchanged if it is not a keyring URI.
func ResolveKeyringURI(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Retrieve(service, key)
	if err != nil {
		return "", nlerr.Wrapf(err, nlerr.CodeSecretResolveFailure,
			"resolving keyring URI %q", value)
	}

	return secret, nil
}

// ResolveViperSecrets walks all keys in a Viper instance and resolves any
// string values that use the keyring:// URI scheme. This is a post-load
// resolution step, not a Viper decoder hook.
//
// An unresolvable URI fails the whole load: a server booting with a
// literal keyring:// string where an API key belongs is worse than one
// that refuses to start.
func ResolveViperSecrets(v *viper.Viper, store Store) error {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}

		resolved, err := ResolveKeyringURI(store, val)
		if err != nil {
			return nlerr.Wrapf(err, nlerr.CodeSecretResolveFailure,
				"resolving config key %s (%s)", key, val)
		}

		slog.Debug("resolved keyring secret", "config_key", key)
		v.Set(key, resolved)
	}
	return nil
}
