package testutil

import (
	"context"
	"math"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestMockLLM_PatternMatching(t *testing.T) {
	t.Parallel()

	type rule struct{ pattern, response string }
	tests := []struct {
		name  string
		rules []rule
		input string
		want  string
	}{
		{
			name:  "no rules falls back",
			input: "what is the pgvector index strategy",
			want:  "I don't know",
		},
		{
			name:  "substring match",
			rules: []rule{{"deploy", "Check the runbook first."}},
			input: "how do I deploy to staging",
			want:  "Check the runbook first.",
		},
		{
			name:  "matching ignores case",
			rules: []rule{{"pgvector", "HNSW with cosine distance."}},
			input: "Tell me about PGVECTOR indexes",
			want:  "HNSW with cosine distance.",
		},
		{
			name: "registration order decides ties",
			rules: []rule{
				{"deploy", "answer A"},
				{"deploy", "answer B"},
			},
			input: "deploy it",
			want:  "answer A",
		},
		{
			name:  "unmatched input falls back",
			rules: []rule{{"deploy", "runbook"}},
			input: "unrelated question",
			want:  "I don't know",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewMockLLM("I don't know")
			for _, r := range tt.rules {
				m.AddResponse(r.pattern, r.response)
			}

			req := &ai.ModelRequest{
				Messages: []*ai.Message{
					ai.NewUserMessage(ai.NewTextPart(tt.input)),
				},
			}

			resp, err := m.generate(context.Background(), req, nil)
			if err != nil {
				t.Fatalf("generate() unexpected error: %v", err)
			}
			if got := resp.Message.Text(); got != tt.want {
				t.Errorf("generate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMockLLM_CallRecording(t *testing.T) {
	t.Parallel()
	m := NewMockLLM("no match")
	m.AddResponse("incident", "page the on-call")

	for _, prompt := range []string{"morning standup", "incident in us-east"} {
		req := &ai.ModelRequest{
			Messages: []*ai.Message{ai.NewUserMessage(ai.NewTextPart(prompt))},
		}
		if _, err := m.generate(context.Background(), req, nil); err != nil {
			t.Fatalf("generate(%q) unexpected error: %v", prompt, err)
		}
	}

	want := []MockCall{
		{UserMessage: "morning standup", Response: "no match"},
		{UserMessage: "incident in us-east", Response: "page the on-call"},
	}
	if diff := cmp.Diff(want, m.Calls()); diff != "" {
		t.Errorf("Calls() mismatch (-want +got):\n%s", diff)
	}

	m.Reset()
	if got := len(m.Calls()); got != 0 {
		t.Errorf("Calls() after Reset() len = %d, want 0", got)
	}
}

func TestMockLLM_Streaming(t *testing.T) {
	t.Parallel()

	t.Run("single chunk by default", func(t *testing.T) {
		t.Parallel()
		m := NewMockLLM("streamed")

		var chunks []string
		cb := func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			for _, p := range chunk.Content {
				chunks = append(chunks, p.Text)
			}
			return nil
		}

		req := &ai.ModelRequest{
			Messages: []*ai.Message{ai.NewUserMessage(ai.NewTextPart("test"))},
		}

		if _, err := m.generate(context.Background(), req, cb); err != nil {
			t.Fatalf("generate() unexpected error: %v", err)
		}

		if diff := cmp.Diff([]string{"streamed"}, chunks); diff != "" {
			t.Errorf("streaming chunks mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("registered increments stream separately", func(t *testing.T) {
		t.Parallel()
		m := NewMockLLM("fallback")
		m.AddStreamedResponse("tell me", "The answer ", "arrives ", "in pieces.")

		var chunks []string
		cb := func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			for _, p := range chunk.Content {
				chunks = append(chunks, p.Text)
			}
			return nil
		}

		req := &ai.ModelRequest{
			Messages: []*ai.Message{ai.NewUserMessage(ai.NewTextPart("tell me something"))},
		}

		resp, err := m.generate(context.Background(), req, cb)
		if err != nil {
			t.Fatalf("generate() unexpected error: %v", err)
		}

		wantChunks := []string{"The answer ", "arrives ", "in pieces."}
		if diff := cmp.Diff(wantChunks, chunks); diff != "" {
			t.Errorf("streaming chunks mismatch (-want +got):\n%s", diff)
		}
		if got, want := resp.Message.Text(), "The answer arrives in pieces."; got != want {
			t.Errorf("final message = %q, want %q", got, want)
		}
	})

	t.Run("empty response streams nothing", func(t *testing.T) {
		t.Parallel()
		m := NewMockLLM("fallback")
		m.AddResponse("silent", "")

		var calls int
		cb := func(context.Context, *ai.ModelResponseChunk) error {
			calls++
			return nil
		}

		req := &ai.ModelRequest{
			Messages: []*ai.Message{ai.NewUserMessage(ai.NewTextPart("silent treatment"))},
		}

		resp, err := m.generate(context.Background(), req, cb)
		if err != nil {
			t.Fatalf("generate() unexpected error: %v", err)
		}
		if calls != 0 {
			t.Errorf("streaming callback calls = %d, want 0 for empty response", calls)
		}
		if got := resp.Message.Text(); got != "" {
			t.Errorf("final message = %q, want empty", got)
		}
	})
}

func TestMockLLM_ToolRound(t *testing.T) {
	t.Parallel()
	m := NewMockLLM("fallback")
	m.AddToolResponse("what time", []*ai.ToolRequest{
		{Name: "current_time", Input: map[string]any{}},
	}, "It is noon.")

	userMsg := ai.NewUserMessage(ai.NewTextPart("what time is it"))

	// First pass: the model requests the tool and carries no text.
	first, err := m.generate(context.Background(), &ai.ModelRequest{
		Messages: []*ai.Message{userMsg},
	}, nil)
	if err != nil {
		t.Fatalf("generate() unexpected error: %v", err)
	}
	if got, want := len(first.Message.Content), 1; got != want {
		t.Fatalf("first pass parts = %d, want %d", got, want)
	}
	if first.Message.Content[0].Kind != ai.PartToolRequest {
		t.Fatalf("first pass part kind = %v, want tool request", first.Message.Content[0].Kind)
	}
	if got, want := first.Message.Content[0].ToolRequest.Name, "current_time"; got != want {
		t.Errorf("requested tool = %q, want %q", got, want)
	}

	// Second pass: the conversation now carries a tool response, so the
	// same pattern yields the final text instead of looping.
	toolMsg := &ai.Message{
		Role: ai.RoleTool,
		Content: []*ai.Part{{
			Kind:         ai.PartToolResponse,
			ToolResponse: &ai.ToolResponse{Name: "current_time", Output: map[string]any{"time": "12:00"}},
		}},
	}
	second, err := m.generate(context.Background(), &ai.ModelRequest{
		Messages: []*ai.Message{userMsg, first.Message, toolMsg},
	}, nil)
	if err != nil {
		t.Fatalf("generate() unexpected error: %v", err)
	}
	if got, want := second.Message.Text(), "It is noon."; got != want {
		t.Errorf("second pass text = %q, want %q", got, want)
	}

	calls := m.Calls()
	if got, want := len(calls), 2; got != want {
		t.Fatalf("Calls() len = %d, want %d", got, want)
	}
	if diff := cmp.Diff([]string{"current_time"}, calls[0].ToolsRequested); diff != "" {
		t.Errorf("first call tools mismatch (-want +got):\n%s", diff)
	}
	if calls[1].ToolsRequested != nil {
		t.Errorf("second call tools = %v, want nil", calls[1].ToolsRequested)
	}
}

func TestMockLLM_RegisterModel(t *testing.T) {
	t.Parallel()
	m := NewMockLLM("registered")
	g := genkit.Init(context.Background())

	model := m.RegisterModel(g)
	if model == nil {
		t.Fatal("RegisterModel() returned nil")
	}
	if got := model.Name(); got != "mock/test-model" {
		t.Errorf("model name = %q, want mock/test-model", got)
	}
	if genkit.LookupModel(g, "mock/test-model") == nil {
		t.Fatal("registered model not resolvable by name")
	}
}

func TestMockEmbedder_DeterministicVector(t *testing.T) {
	t.Parallel()
	e := NewMockEmbedder(768)

	first := e.vectorFor("section 3 of the deploy runbook")
	again := e.vectorFor("section 3 of the deploy runbook")
	if diff := cmp.Diff(first, again); diff != "" {
		t.Errorf("same content embedded twice diverged:\n%s", diff)
	}

	if other := e.vectorFor("unrelated meeting notes"); cmp.Equal(first, other) {
		t.Error("distinct content collided to the same vector")
	}

	// Cosine similarity math in the stores assumes unit vectors.
	var norm float64
	for _, val := range first {
		norm += float64(val) * float64(val)
	}
	if norm = math.Sqrt(norm); math.Abs(norm-1.0) > 0.01 {
		t.Errorf("vector norm = %f, want ~1.0", norm)
	}
}

func TestMockEmbedder_ExplicitVector(t *testing.T) {
	t.Parallel()
	e := NewMockEmbedder(3)

	pinned := []float32{0.1, 0.2, 0.3}
	e.SetVector("pinned chunk", pinned)

	if diff := cmp.Diff(pinned, e.vectorFor("pinned chunk"), cmpopts.EquateApprox(0, 0.001)); diff != "" {
		t.Errorf("explicit vector not returned verbatim (-want +got):\n%s", diff)
	}
	if cmp.Equal(pinned, e.vectorFor("some other chunk")) {
		t.Error("unpinned content returned the pinned vector")
	}
}

func TestMockEmbedder_RegisterEmbedder(t *testing.T) {
	t.Parallel()
	e := NewMockEmbedder(768)
	g := genkit.Init(context.Background())

	embedder := e.RegisterEmbedder(g)
	if embedder == nil {
		t.Fatal("RegisterEmbedder() returned nil")
	}
	if got := embedder.Name(); got != "mock/test-embedder" {
		t.Errorf("embedder name = %q, want mock/test-embedder", got)
	}
}

func TestMockEmbedder_Embed(t *testing.T) {
	t.Parallel()
	e := NewMockEmbedder(768)

	req := &ai.EmbedRequest{
		Input: []*ai.Document{
			ai.DocumentFromText("postgres connection pooling guide", nil),
			ai.DocumentFromText("incident postmortem template", nil),
		},
	}

	resp, err := e.Embed(context.Background(), req)
	if err != nil {
		t.Fatalf("Embed() unexpected error: %v", err)
	}
	if got := len(resp.Embeddings); got != 2 {
		t.Fatalf("Embed() returned %d embeddings, want 2", got)
	}
	for i, emb := range resp.Embeddings {
		if got := len(emb.Embedding); got != 768 {
			t.Errorf("embedding[%d] dim = %d, want 768", i, got)
		}
	}
	if cmp.Equal(resp.Embeddings[0].Embedding, resp.Embeddings[1].Embedding) {
		t.Error("different documents embedded identically")
	}
}
