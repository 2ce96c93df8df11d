// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neuralens-dev/neuralens/internal/secrets"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// serviceName is the keyring service name under which NeuraLens stores secrets.
const serviceName = "neuralens"

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
		Long:  "Store, list, and delete secrets kept under the NeuraLens service in the operating system keyring. Config values may reference them as keyring://neuralens/<name>.",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Store a secret under the given name",
		Args:  cobra.ExactArgs(2),
		RunE:  runSecretSet,
	}
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored secret names",
		RunE:  runSecretList,
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret by name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	name, value := args[0], args[1]
	store := secretStoreFactory()

	if err := store.Store(serviceName, name, value); err != nil {
		return nlerr.Wrapf(err, nlerr.CodeSecretStoreFailure, "storing secret %q", name)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret: %s (reference it as keyring://%s/%s)\n", name, serviceName, name)
	return nil
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	store := secretStoreFactory()
	keys, err := store.List(serviceName)
	if err != nil {
		return nlerr.Errorf(nlerr.CodeSecretListFailure, "listing secrets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}

	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	store := secretStoreFactory()

	if err := store.Delete(serviceName, name); err != nil {
		if nlerr.HasCode(err, nlerr.CodeSecretNotFound) {
			return nlerr.Errorf(nlerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return nlerr.Errorf(nlerr.CodeSecretDeleteFailure, "deleting secret %q: %w", name, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}
