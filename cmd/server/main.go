// Package main is the entry point for the CodeCanvas server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main"
// package. The main package should be kept minimal. Its job is to:
// 1. Read configuration (environment variables and an optional .env file)
// 2. Create dependencies (logger, tracing, the optional JavaScript runner)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server,
// internal/handler, etc.).
//
// COMMANDS:
//
//	server          run the HTTP server (default)
//	server routes   print the page route table with its access rules
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sakif/codecanvas/internal/config"
	"github.com/sakif/codecanvas/internal/executor"
	"github.com/sakif/codecanvas/internal/executor/docker"
	"github.com/sakif/codecanvas/internal/routes"
	"github.com/sakif/codecanvas/internal/server"
	"github.com/sakif/codecanvas/internal/telemetry"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "server",
		Short:         "CodeCanvas: write, preview and share HTML/CSS/JS pens",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional file of KEY=value settings")

	root.AddCommand(&cobra.Command{
		Use:   "routes",
		Short: "Print the page routes and who may open them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printRoutes(cmd)
		},
	})

	return root
}

func run(ctx context.Context, envFile string) error {
	// === 1. READ CONFIGURATION ===
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	// === 2. SET UP LOGGING ===
	// LOG_LEVEL picks the level (debug, info, warn, error), LOG_FORMAT
	// picks text for the terminal or json for log shippers.
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	// === 3. TRACING ===
	// Opt-in: without OTEL_ENDPOINT nothing is exported.
	shutdown, err := telemetry.Setup(ctx, cfg.OTELEndpoint)
	if err != nil {
		logger.Error("failed to set up tracing", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("flushing traces", slog.String("error", err.Error()))
		}
	}()

	// === 4. DATABASE DIRECTORY ===
	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			return err
		}
	}

	// === 5. INITIALIZE EXECUTOR ===
	// The Docker runner is optional: the server starts without it and
	// /api/run answers 503.
	var exec executor.Executor
	if cfg.Runner.Enabled {
		dockerExec, err := docker.New(ctx, docker.Config{
			Image:    cfg.Runner.Image,
			Timeout:  cfg.Runner.Timeout,
			PoolSize: cfg.Runner.PoolSize,
		}, logger)
		if err != nil {
			logger.Warn("Docker executor unavailable, /api/run is disabled",
				slog.String("error", err.Error()),
			)
		} else {
			defer dockerExec.Close()
			exec = dockerExec
		}
	}

	// === 6. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger, exec)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func printRoutes(cmd *cobra.Command) error {
	access, err := routes.LoadAccessConfig()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tVIEW\tACCESS\tLAYOUT")
	for _, r := range routes.Table(access) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Path, r.View, r.Access, r.Layout)
	}
	return tw.Flush()
}
