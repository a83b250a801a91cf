package testutil

import (
	"testing"

	"github.com/strand-ai/strand/internal/database"
	"github.com/strand-ai/strand/internal/knowledge"
	"github.com/strand-ai/strand/internal/log"
)

// KnowledgeSetup bundles a knowledge store backed by a real database and a
// deterministic embedder.
//
// Because testutil imports the knowledge package, tests using this helper
// must live in an external test package (package knowledge_test).
type KnowledgeSetup struct {
	DB       *TestDB
	Store    *knowledge.Store
	Embedder *MockEmbedder
}

// SetupKnowledge creates a knowledge store over a pgvector test container
// with the mock embedder, so vector search runs against real SQL without
// any API key. Embedding dimension matches the schema (768).
//
// Use Embedder.SetVector to control similarity ordering precisely.
func SetupKnowledge(tb testing.TB) *KnowledgeSetup {
	tb.Helper()

	testDB := SetupTestDB(tb)
	embedder := NewMockEmbedder(768)
	store := knowledge.New(database.New(testDB.Pool), embedder, log.NewNop())

	return &KnowledgeSetup{
		DB:       testDB,
		Store:    store,
		Embedder: embedder,
	}
}
