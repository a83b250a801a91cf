// Package testutil provides shared test infrastructure: a scripted model,
// deterministic embeddings, disposable PostgreSQL containers, and SSE
// stream parsing.
//
// The helpers follow the pattern of standard library packages like
// net/http/httptest: plain constructors, cleanup registered on the test,
// no global state.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/strand-ai/strand/db"
	"github.com/strand-ai/strand/internal/database"
)

// TestDB bundles a PostgreSQL test container with a ready connection pool.
//
// The container runs the pgvector image and has the full schema applied,
// so stores can be tested against the same SQL they run in production.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts a pgvector-enabled PostgreSQL container, applies the
// embedded schema migrations, and connects a pool through the production
// database.Connect path (which registers pgvector types). Cleanup is
// registered on tb; callers do not terminate the container themselves.
//
// Example:
//
//	func TestSessionStore(t *testing.T) {
//	    testDB := testutil.SetupTestDB(t)
//	    store := session.NewStore(database.New(testDB.Pool), testDB.Pool, logger)
//	    ...
//	}
func SetupTestDB(tb testing.TB) *TestDB {
	tb.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("strand_test"),
		postgres.WithUsername("strand_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		tb.Fatalf("starting PostgreSQL container: %v", err)
	}
	tb.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		tb.Fatalf("getting connection string: %v", err)
	}

	if err := db.Migrate(connStr); err != nil {
		tb.Fatalf("running migrations: %v", err)
	}

	pool, err := database.Connect(ctx, connStr)
	if err != nil {
		tb.Fatalf("connecting pool: %v", err)
	}
	tb.Cleanup(pool.Close)

	return &TestDB{
		Container: pgContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}
