// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neuralens-dev/neuralens/internal/config"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the neuralens server",
		Long:  "Load configuration, initialize all subsystems, and start the HTTP server.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(verbose)

	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		cfgPath = discoverConfig()
	}

	config.WarnInsecurePermissions(cfgPath)

	cfg, err := config.Load(cfgPath, secretStoreFactory())
	if err != nil {
		return nlerr.Wrap(err, nlerr.CodeCLISetupFailure, "loading config")
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := WireApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("closing app", "error", err)
		}
	}()

	slog.Info("starting neuralens",
		"listen", cfg.Server.Listen,
		"provider", cfg.Provider.Name,
		"storage", cfg.Storage.Backend,
	)

	return app.Start(ctx)
}

// discoverConfig returns the default config path if a file exists there,
// bootstrapping a commented default on first run. Empty string means run
// on defaults and environment variables alone.
func discoverConfig() string {
	path, err := config.DefaultConfigPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return config.BootstrapConfig()
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
