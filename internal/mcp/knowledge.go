package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/strand-ai/strand/internal/knowledge"
	"github.com/strand-ai/strand/internal/tools"
)

// ToolSearchKnowledge is the name the tool is registered under.
const ToolSearchKnowledge = "search_knowledge"

// SearchKnowledgeInput is the MCP input schema for search_knowledge.
type SearchKnowledgeInput struct {
	Query      string `json:"query" jsonschema:"the search query"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results, defaults to the server setting"`
	SourceType string `json:"source_type,omitempty" jsonschema:"restrict results to one source type: file or web"`
}

// knowledgeHit is one search result on the wire.
type knowledgeHit struct {
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// searchData is the success payload of a search_knowledge call.
type searchData struct {
	Query string         `json:"query"`
	Count int            `json:"count"`
	Hits  []knowledgeHit `json:"hits"`
}

func (s *Server) registerSearchKnowledge() error {
	schema, err := jsonschema.For[SearchKnowledgeInput](nil)
	if err != nil {
		return fmt.Errorf("input schema: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolSearchKnowledge,
		Description: "Search the strand knowledge base using semantic similarity. " +
			"Returns matching passages with their source metadata and similarity scores.",
		InputSchema: schema,
	}, s.SearchKnowledge)

	return nil
}

// SearchKnowledge handles the search_knowledge MCP tool call.
func (s *Server) SearchKnowledge(ctx context.Context, _ *mcp.CallToolRequest, input SearchKnowledgeInput) (*mcp.CallToolResult, any, error) {
	return resultToMCP(s.search(ctx, input), s.logger), nil, nil
}

// search validates the input and runs the store query. Failures come back
// as error results, not Go errors: clients should see what went wrong and
// retry with corrected input.
func (s *Server) search(ctx context.Context, input SearchKnowledgeInput) tools.Result {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return tools.Result{
			Status: tools.StatusError,
			Error: &tools.Error{
				Code:    tools.ErrCodeValidation,
				Message: "query must not be empty",
			},
		}
	}

	opts := make([]knowledge.SearchOption, 0, 2)
	if input.Limit > 0 {
		opts = append(opts, knowledge.WithTopK(int32(input.Limit)))
	} else {
		opts = append(opts, knowledge.WithTopK(s.topK))
	}
	if sourceType := strings.TrimSpace(input.SourceType); sourceType != "" {
		opts = append(opts, knowledge.WithFilter("source_type", sourceType))
	}

	results, err := s.store.Search(ctx, query, opts...)
	if err != nil {
		s.logger.Error("knowledge search failed", "query_length", len(query), "error", err)
		return tools.Result{
			Status: tools.StatusError,
			Error: &tools.Error{
				Code:    tools.ErrCodeExecution,
				Message: "knowledge search failed",
			},
		}
	}

	hits := make([]knowledgeHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, knowledgeHit{
			Content:    r.Document.Content,
			Similarity: r.Similarity,
			Metadata:   r.Document.Metadata,
		})
	}

	s.logger.Debug("knowledge search served", "query_length", len(query), "hits", len(hits))
	return tools.Result{
		Status: tools.StatusSuccess,
		Data: searchData{
			Query: query,
			Count: len(hits),
			Hits:  hits,
		},
	}
}
