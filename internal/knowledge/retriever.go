package knowledge

import (
	"context"

	"github.com/strand-ai/strand/internal/log"
)

// Retriever adapts the store to the turn engine's context-retrieval
// contract.
type Retriever struct {
	store  *Store
	topK   int32
	logger log.Logger
}

// NewRetriever creates a Retriever returning at most topK snippets per
// query. Non-positive topK falls back to the store default.
func NewRetriever(store *Store, topK int32, logger log.Logger) *Retriever {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{store: store, topK: topK, logger: logger}
}

// Query returns citation-ready snippets for the prompt, best match first.
func (r *Retriever) Query(ctx context.Context, prompt string) ([]Snippet, error) {
	opts := []SearchOption{}
	if r.topK > 0 {
		opts = append(opts, WithTopK(r.topK))
	}

	results, err := r.store.Search(ctx, prompt, opts...)
	if err != nil {
		return nil, err
	}

	snippets := make([]Snippet, 0, len(results))
	for _, res := range results {
		snippets = append(snippets, res.Snippet())
	}

	r.logger.Debug("retrieved context", "hits", len(snippets))
	return snippets, nil
}
