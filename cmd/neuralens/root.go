// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root neuralens command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "neuralens",
		Short:         "NeuraLens — AI photo editing server",
		Long:          "NeuraLens serves AI photo edits with automatic local fallback, accounts, and subscription quotas.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	// Register subcommands
	root.AddCommand(
		newStartCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}
