// Package app assembles the application: configuration in, a ready turn
// engine and its stores out. Every entry point (serve, chat, index, mcp)
// calls [Setup] and works against the returned App.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strand-ai/strand/internal/config"
	"github.com/strand-ai/strand/internal/knowledge"
	"github.com/strand-ai/strand/internal/log"
	"github.com/strand-ai/strand/internal/session"
	"github.com/strand-ai/strand/internal/turn"
)

// App is the assembled application. Fields are set once by Setup and
// read-only afterwards.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit    *genkit.Genkit
	Pool      *pgxpool.Pool
	Knowledge *knowledge.Store
	Retriever *knowledge.Retriever
	Sessions  *session.Store
	Engine    *turn.Engine

	tracingShutdown func(context.Context) error
}

// Close releases everything Setup acquired: pending spans are flushed
// first, then the database pool closes. Safe on a partially built App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down")
	}

	if a.tracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracingShutdown(ctx); err != nil && a.Logger != nil {
			a.Logger.Warn("tracer shutdown failed", "error", err)
		}
	}

	if a.Pool != nil {
		a.Pool.Close()
		if a.Logger != nil {
			a.Logger.Debug("database pool closed")
		}
	}
	return nil
}
