package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/strand-ai/strand/internal/log"
)

// GoogleAISetup contains the resources for tests that exercise the real
// Gemini API.
type GoogleAISetup struct {
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Logger   log.Logger
}

// SetupGoogleAI initializes Genkit with the Google AI plugin and returns a
// real embedder. Tests calling it are integration tests against the live
// API and are skipped when GEMINI_API_KEY is not set.
//
// Example:
//
//	func TestStore_RealEmbedder(t *testing.T) {
//	    setup := testutil.SetupGoogleAI(t)
//	    store := knowledge.New(queries, setup.Embedder, setup.Logger)
//	    ...
//	}
func SetupGoogleAI(tb testing.TB) *GoogleAISetup {
	tb.Helper()

	if os.Getenv("GEMINI_API_KEY") == "" {
		tb.Skip("GEMINI_API_KEY not set - skipping test requiring live Gemini API")
	}

	g := genkit.Init(context.Background(),
		genkit.WithPlugins(&googlegenai.GoogleAI{}))

	embedder := googlegenai.GoogleAIEmbedder(g, "text-embedding-004")
	if embedder == nil {
		tb.Fatal("GoogleAIEmbedder returned nil")
	}

	return &GoogleAISetup{
		Genkit:   g,
		Embedder: embedder,
		Logger:   log.NewNop(),
	}
}
