// Package cmd holds the strand CLI.
//
// Commands:
//   - serve: HTTP API server with SSE turn streaming
//   - chat: interactive terminal session against the turn engine
//   - index: load files, directories, and URLs into the knowledge base
//   - mcp: Model Context Protocol server on stdio
//   - sessions: list, show, and delete stored sessions
//
// Every command that needs the full application calls app.Setup and
// closes the result on exit. Signal handling goes through
// signal.NotifyContext so Ctrl+C drains instead of killing mid-write.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/strand-ai/strand/internal/app"
	"github.com/strand-ai/strand/internal/config"
	"github.com/strand-ai/strand/internal/log"
)

var (
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "strand",
	Short: "Knowledge-grounded agent chat",
	Long: `Strand runs configurable agents and teams over a PostgreSQL-backed
knowledge base. Answers stream as they are generated, tool activity is
reconciled into the transcript, and sources are cited in the final text.

Run "strand serve" for the HTTP API or "strand chat" for a terminal
session.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON instead of text")
}

// newLogger builds the process logger from the persistent flags.
// Output goes to stderr, which keeps stdout clean for chat output and
// the MCP stdio transport.
func newLogger() (log.Logger, error) {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	return log.New(log.Config{Level: level, JSON: logJSON}), nil
}

// setupApp loads configuration and assembles the application. The
// caller owns the returned App and must Close it.
func setupApp(ctx context.Context) (*app.App, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize application: %w", err)
	}
	return a, nil
}

// closeApp releases the application, logging instead of failing the
// command when shutdown stumbles.
func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		a.Logger.Warn("shutdown error", "error", err)
	}
}
