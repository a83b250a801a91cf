package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strand-ai/strand/internal/log"
)

// readinessTimeout bounds the database ping so a wedged pool cannot hang
// orchestrator probes.
const readinessTimeout = 2 * time.Second

// health is the liveness probe. It answers as long as the process runs.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, nil)
}

// readiness builds the readiness probe. With a pool wired it pings the
// database; without one it reports ready, since nothing else can fail.
func readiness(pool *pgxpool.Pool, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, logger)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			logger.Error("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "database_unreachable", "database not ready", logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, logger)
	}
}
