// Package main is the entry point for the ecochallenge server.
//
// The main package stays minimal. Its job is to:
//  1. Read configuration (defaults, YAML file, .env, ECO_* variables)
//  2. Build the logger
//  3. Hand both to internal/server and block until a stop signal
//
// COMMANDS:
//
//	ecochallenge            same as "serve"
//	ecochallenge serve      run the HTTP server
//	ecochallenge migrate    apply pending migrations and print the schema version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/ecochallenge/internal/config"
	sqliteRepo "github.com/sakif/ecochallenge/internal/repository/sqlite"
	"github.com/sakif/ecochallenge/internal/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context()) },
	}

	root := &cobra.Command{
		Use:           "ecochallenge",
		Short:         "Ecosystem challenge community backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.AddCommand(serve, &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return runMigrate(cmd) },
	})
	return root
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	logger := newLogger(cfg)

	if err := ensureDir(cfg.DBPath); err != nil {
		logger.Error("failed to create database directory", slog.String("error", err.Error()))
		return err
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Ctrl+C or SIGTERM cancels ctx, which starts the graceful shutdown.
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func runMigrate(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	if err := ensureDir(cfg.DBPath); err != nil {
		return err
	}

	// Opening the database applies every pending migration.
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer db.Close()

	version, dirty, err := db.SchemaVersion()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d (dirty=%t)\n", cfg.DBPath, version, dirty)
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	// Validate has already restricted LogLevel to names slog understands.
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// ensureDir creates the directory holding a file-backed database.
func ensureDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
