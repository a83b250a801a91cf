package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/strand-ai/strand/internal/config"
	"github.com/strand-ai/strand/internal/database"
	"github.com/strand-ai/strand/internal/session"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage stored chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session and its transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session, its messages, and its notes",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to list")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// openSessionStore connects straight to Postgres. Session management
// needs no model provider, so it skips the full application setup.
func openSessionStore(ctx context.Context) (*session.Store, *pgxpool.Pool, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return session.NewStore(database.New(pool), pool, logger), pool, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, pool, err := openSessionStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	limit := int32(sessionsLimit)
	if limit < 1 {
		limit = 1
	}
	list, err := store.List(ctx, limit, 0)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, s := range list {
		fmt.Printf("%s  %-40s %s\n", shortID(s.ID), titleOrUntitled(s.Title), formatRelativeTime(s.UpdatedAt))
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session id %q", args[0])
	}

	store, pool, err := openSessionStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	sess, err := store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	fmt.Printf("session %s\n", sess.ID)
	fmt.Printf("  title:   %s\n", titleOrUntitled(sess.Title))
	if sess.AgentKey != "" {
		fmt.Printf("  agent:   %s\n", sess.AgentKey)
	}
	fmt.Printf("  created: %s\n", sess.CreatedAt.Local().Format(time.RFC3339))
	fmt.Printf("  updated: %s\n", formatRelativeTime(sess.UpdatedAt))

	messages, err := store.Messages(ctx, id, 0)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if len(messages) == 0 {
		fmt.Println("\n(no messages)")
		return nil
	}
	fmt.Println()
	for _, m := range messages {
		fmt.Printf("[%s]\n%s\n\n", m.Role, m.Content)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session id %q", args[0])
	}

	store, pool, err := openSessionStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	// Forget the resume pointer if it referenced the deleted session.
	if baseDir, err := session.StateBaseDir(); err == nil {
		if current, err := session.LoadCurrentSessionID(baseDir); err == nil && current != nil && *current == id {
			if err := session.ClearCurrentSessionID(baseDir); err != nil {
				slog.Warn("failed to clear current session pointer", "error", err)
			}
		}
	}

	fmt.Printf("deleted %s\n", shortID(id))
	return nil
}

// formatRelativeTime renders a timestamp the way humans scan lists:
// recent entries as an age, older ones as a date.
func formatRelativeTime(t time.Time) string {
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	case age < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	default:
		return t.Local().Format("2006-01-02")
	}
}
