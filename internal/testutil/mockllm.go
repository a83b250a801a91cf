package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLM provides deterministic model responses for testing. It matches
// the last user message against registered patterns and replies with the
// scripted response, optionally streaming it in increments or requesting
// tool calls first.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	calls    []MockCall
}

type mockRule struct {
	pattern  string            // substring match on the last user message
	response string            // final text response
	chunks   []string          // streamed increments; empty streams response whole
	tools    []*ai.ToolRequest // tool calls requested on the first pass
}

// MockCall is the record kept for each generate call.
type MockCall struct {
	UserMessage    string   // last user message text
	Response       string   // text response returned
	ToolsRequested []string // tool names requested, nil for text responses
}

// NewMockLLM creates a mock model that answers fallback whenever no
// registered pattern matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse scripts a reply: when the last user message contains
// pattern (case-insensitive), response comes back. Rules are checked in
// registration order and the first match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// AddStreamedResponse registers a response delivered through the streaming
// callback in the given increments. The final message text is the
// concatenation of all chunks.
func (m *MockLLM) AddStreamedResponse(pattern string, chunks ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: strings.Join(chunks, ""),
		chunks:   chunks,
	})
}

// AddToolResponse registers a pattern that requests the given tool calls.
// The first matching generate pass returns only the tool requests; once the
// conversation carries a tool response, the same pattern answers with the
// final text. One tool round therefore terminates the generate loop.
func (m *MockLLM) AddToolResponse(pattern string, tools []*ai.ToolRequest, finalResponse string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: finalResponse,
		tools:    tools,
	})
}

// Calls returns a snapshot of every call seen so far.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Reset drops the call record while keeping registered responses.
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// RegisterModel defines the mock under the name "mock/test-model" and
// returns the model reference.
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
			Media:      false,
		},
	}, m.generate)
}

// generate implements the Genkit model contract.
func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	userText := lastUserMessage(req)
	toolRound := hasToolResponse(req.Messages)

	m.mu.Lock()
	var matched *mockRule
	lower := strings.ToLower(userText)
	for i := range m.rules {
		if strings.Contains(lower, m.rules[i].pattern) {
			matched = &m.rules[i]
			break
		}
	}

	responseText := m.fallback
	var chunks []string
	var tools []*ai.ToolRequest
	if matched != nil {
		responseText = matched.response
		chunks = matched.chunks
		if !toolRound {
			tools = matched.tools
		}
	}

	call := MockCall{UserMessage: userText, Response: responseText}
	if len(tools) > 0 {
		// Tool pass carries no text; the follow-up call delivers it.
		call.Response = ""
		for _, tr := range tools {
			call.ToolsRequested = append(call.ToolsRequested, tr.Name)
		}
	}
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	if len(tools) > 0 {
		parts := make([]*ai.Part, 0, len(tools))
		for _, tr := range tools {
			parts = append(parts, &ai.Part{
				Kind:        ai.PartToolRequest,
				ToolRequest: tr,
			})
		}
		return &ai.ModelResponse{
			Request: req,
			Message: &ai.Message{Role: ai.RoleModel, Content: parts},
		}, nil
	}

	if len(chunks) == 0 && responseText != "" {
		chunks = []string{responseText}
	}
	if cb != nil {
		for _, chunk := range chunks {
			err := cb(ctx, &ai.ModelResponseChunk{
				Content: []*ai.Part{ai.NewTextPart(chunk)},
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		},
	}, nil
}

// lastUserMessage extracts the text of the most recent user message.
func lastUserMessage(req *ai.ModelRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			return req.Messages[i].Text()
		}
	}
	return ""
}

// hasToolResponse reports whether the conversation already contains a tool
// response, meaning this call is the follow-up pass of a tool round.
func hasToolResponse(messages []*ai.Message) bool {
	for _, msg := range messages {
		for _, p := range msg.Content {
			if p.Kind == ai.PartToolResponse {
				return true
			}
		}
	}
	return false
}

// MockEmbedder produces repeatable embedding vectors.
//
// It implements ai.Embedder directly so stores can consume it without a
// Genkit instance. Content hashes to a stable unit vector through
// SHA-256; SetVector pins exact vectors when a test needs controlled
// cosine similarity.
//
// Thread-safe for concurrent use.
type MockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dim     int
}

// NewMockEmbedder creates a mock embedder emitting dim-length vectors.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// SetVector pins the vector returned for content, giving a test exact
// control over similarity between inputs.
func (e *MockEmbedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[content] = vec
}

// Name implements ai.Embedder.
func (e *MockEmbedder) Name() string { return "mock/test-embedder" }

// Register implements ai.Embedder. The mock needs no registry state.
func (e *MockEmbedder) Register(api.Registry) {}

// Embed implements ai.Embedder.
func (e *MockEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		embeddings[i] = &ai.Embedding{
			Embedding: e.vectorFor(documentText(doc)),
		}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// RegisterEmbedder registers the mock with Genkit for call sites that
// resolve embedders by name. The embedder name will be "mock/test-embedder".
func (e *MockEmbedder) RegisterEmbedder(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, "mock/test-embedder", &ai.EmbedderOptions{
		Label:      "Mock Test Embedder",
		Dimensions: e.dim,
	}, e.Embed)
}

// vectorFor prefers a pinned vector and falls back to the content hash.
func (e *MockEmbedder) vectorFor(content string) []float32 {
	e.mu.Lock()
	if v, ok := e.vectors[content]; ok {
		e.mu.Unlock()
		return v
	}
	e.mu.Unlock()

	return deterministicVector(content, e.dim)
}

// documentText concatenates the text parts of a document.
func documentText(doc *ai.Document) string {
	var sb strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// deterministicVector generates a normalized vector from content using
// SHA-256. The same content always produces the same vector.
func deterministicVector(content string, dim int) []float32 {
	hash := sha256.Sum256([]byte(content))
	vec := make([]float32, dim)

	for i := range vec {
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32],
			hash[(idx+1)%32],
			hash[(idx+2)%32],
			hash[(idx+3)%32],
		})
		// Map to [-1, 1] range
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	// Normalize to unit vector
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec
}
