package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/strand-ai/strand/internal/config"
	"github.com/strand-ai/strand/internal/log"
	"github.com/strand-ai/strand/internal/stream"
	"github.com/strand-ai/strand/internal/tools"
)

// Backend event labels. Member runs and single agents use the bare labels,
// the team synthesis pass prefixes them with the team scope so the
// reconciler can tell coordinator output from member drafts.
const (
	runStartedKind        = "run_started"
	runContentKind        = "run_content"
	runCompletedKind      = "run_completed"
	runResponseKind       = "run_response"
	toolCallStartedKind   = "tool_call_started"
	toolCallCompletedKind = "tool_call_completed"

	teamScope = "team_"
)

// eventBuffer absorbs bursts of model chunks while the consumer renders.
const eventBuffer = 100

// defaultMaxTurns bounds the generate-tool-generate loop of one leaf run.
const defaultMaxTurns = 5

// Runner executes handles against genkit and adapts generation output to
// the labeled raw events the reconciler consumes.
type Runner struct {
	g      *genkit.Genkit
	logger log.Logger
}

// NewRunner creates a runner over a shared genkit instance.
func NewRunner(g *genkit.Genkit, logger log.Logger) (*Runner, error) {
	if g == nil {
		return nil, errors.New("genkit instance is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Runner{g: g, logger: logger}, nil
}

// Stream runs the handle and returns the event channel. The channel closes
// when the run finishes. Once streaming has started, generation failures
// surface as a channel that closes without a final event, never as an
// error: the caller's fallback covers the empty outcome.
//
// With wantEvents set the run emits start, content delta, tool call and
// completion events as generation progresses. Without it the run stays
// silent until the end and emits a single response event carrying the
// whole answer.
func (r *Runner) Stream(ctx context.Context, h *Handle, payload string, media []Media, wantEvents bool) (<-chan stream.RawEvent, error) {
	if h == nil {
		return nil, errors.New("agent handle is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan stream.RawEvent, eventBuffer)
	go func() {
		defer close(ch)
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("agent run panicked", "agent", h.Name(), "panic", rec)
			}
		}()

		if h.Kind() == KindTeam {
			r.runTeam(ctx, ch, h, payload, media, wantEvents)
			return
		}
		_, err := r.runLeaf(ctx, ch, h, leafRun{
			cfg:           h.cfg,
			history:       h.history,
			payload:       payload,
			media:         media,
			wantEvents:    wantEvents,
			carryResponse: true,
		})
		if err != nil {
			r.logger.Warn("agent run failed", "agent", h.Name(), "error", err)
		}
	}()
	return ch, nil
}

// memberFinding is one member's contribution to the synthesis payload.
type memberFinding struct {
	name string
	role string
	text string
}

// runTeam runs the selected members in roster order, then synthesizes the
// final answer with the coordinator model. Members see only the payload;
// history and attachments go to the synthesis pass. A failed member is
// logged and skipped, the coordinator answers from whatever survived.
func (r *Runner) runTeam(ctx context.Context, ch chan<- stream.RawEvent, h *Handle, payload string, media []Media, wantEvents bool) {
	findings := make([]memberFinding, 0, len(h.cfg.Members))

	for _, member := range h.cfg.Members {
		if ctx.Err() != nil {
			return
		}
		text, err := r.runLeaf(ctx, ch, h, leafRun{
			cfg:        member,
			payload:    payload,
			wantEvents: wantEvents,
		})
		if err != nil {
			r.logger.Warn("team member run failed",
				"team", h.Name(), "member", member.Name, "error", err)
			continue
		}
		if strings.TrimSpace(text) != "" {
			findings = append(findings, memberFinding{name: member.Name, role: member.Role, text: text})
		}
	}
	if ctx.Err() != nil {
		return
	}

	_, err := r.runLeaf(ctx, ch, h, leafRun{
		cfg:           h.cfg,
		scope:         teamScope,
		history:       h.history,
		payload:       synthesisPayload(payload, findings),
		media:         media,
		wantEvents:    wantEvents,
		carryResponse: true,
	})
	if err != nil {
		r.logger.Warn("team synthesis failed", "team", h.Name(), "error", err)
	}
}

// leafRun parameterizes one generate call. carryResponse marks the run
// whose completion event carries the authoritative answer; member runs
// leave it unset so their drafts never finalize the turn.
type leafRun struct {
	cfg           Config
	scope         string
	history       []*ai.Message
	payload       string
	media         []Media
	wantEvents    bool
	carryResponse bool
}

// runLeaf performs one generate call and adapts its output to labeled
// events. It returns the response text for synthesis regardless of what
// was emitted.
func (r *Runner) runLeaf(ctx context.Context, ch chan<- stream.RawEvent, h *Handle, run leafRun) (string, error) {
	messages := make([]*ai.Message, 0, len(run.history)+1)
	messages = append(messages, run.history...)
	messages = append(messages, ai.NewUserMessage(mediaParts(run.media, run.payload)...))

	opts := []ai.GenerateOption{
		ai.WithModelName(run.cfg.Model),
		ai.WithMessages(messages...),
		ai.WithMaxTurns(defaultMaxTurns),
	}
	if instructions := systemText(run.cfg); instructions != "" {
		opts = append(opts, ai.WithSystem(instructions))
	}
	if gc := generationConfig(run.cfg); gc != nil {
		opts = append(opts, ai.WithConfig(gc))
	}
	if refs := h.toolsFor(ctx, run.cfg.Tools); len(refs) > 0 {
		opts = append(opts, ai.WithTools(refs...))
	}

	genCtx := ctx
	if run.wantEvents {
		if !emit(ctx, ch, stream.RawEvent{Kind: run.scope + runStartedKind}) {
			return "", ctx.Err()
		}
		// Local tools announce themselves through the context emitter,
		// model chunks carry text deltas and provider tool requests.
		genCtx = tools.ContextWithEmitter(ctx, &streamEmitter{ctx: ctx, ch: ch, scope: run.scope})
		opts = append(opts, ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			return emitChunk(ctx, ch, run.scope, chunk)
		}))
	}

	resp, err := genkit.Generate(genCtx, r.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generate for %q: %w", run.cfg.Name, err)
	}

	text := resp.Text()
	switch {
	case run.carryResponse && run.wantEvents:
		emit(ctx, ch, stream.RawEvent{
			Kind:     run.scope + runCompletedKind,
			Response: text,
			Tools:    requestedTools(resp),
		})
	case run.carryResponse:
		emit(ctx, ch, stream.RawEvent{
			Kind:     run.scope + runResponseKind,
			Response: text,
			Tools:    requestedTools(resp),
		})
	case run.wantEvents:
		// Member completion: lifecycle and tool telemetry only. The text
		// already went out as deltas and stays overridable by team output.
		emit(ctx, ch, stream.RawEvent{
			Kind:  run.scope + runCompletedKind,
			Tools: requestedTools(resp),
		})
	}
	return text, nil
}

// emit delivers one event unless the turn is already cancelled.
func emit(ctx context.Context, ch chan<- stream.RawEvent, ev stream.RawEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitChunk adapts one model chunk: a tool call event per tool request
// part and a single content delta for the chunk text.
func emitChunk(ctx context.Context, ch chan<- stream.RawEvent, scope string, chunk *ai.ModelResponseChunk) error {
	if chunk == nil {
		return nil
	}

	var text strings.Builder
	for _, part := range chunk.Content {
		if part == nil {
			continue
		}
		if part.ToolRequest != nil && part.ToolRequest.Name != "" {
			ev := stream.RawEvent{
				Kind: scope + toolCallStartedKind,
				Tool: &stream.ToolRef{
					Name: part.ToolRequest.Name,
					Args: toolArgs(part.ToolRequest.Input),
				},
			}
			if !emit(ctx, ch, ev) {
				return ctx.Err()
			}
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}

	if text.Len() > 0 {
		if !emit(ctx, ch, stream.RawEvent{Kind: scope + runContentKind, Delta: text.String()}) {
			return ctx.Err()
		}
	}
	return nil
}

// streamEmitter forwards local tool lifecycle callbacks into the event
// stream. Errors map to completion: the invocation ended either way and
// the result travels back to the model, not the renderer.
type streamEmitter struct {
	ctx   context.Context
	ch    chan<- stream.RawEvent
	scope string
}

func (e *streamEmitter) OnToolStart(name string) {
	emit(e.ctx, e.ch, stream.RawEvent{
		Kind: e.scope + toolCallStartedKind,
		Tool: &stream.ToolRef{Name: name},
	})
}

func (e *streamEmitter) OnToolComplete(name string) {
	emit(e.ctx, e.ch, stream.RawEvent{
		Kind: e.scope + toolCallCompletedKind,
		Tool: &stream.ToolRef{Name: name},
	})
}

func (e *streamEmitter) OnToolError(name string) {
	emit(e.ctx, e.ch, stream.RawEvent{
		Kind: e.scope + toolCallCompletedKind,
		Tool: &stream.ToolRef{Name: name},
	})
}

// requestedTools converts the tool requests of a finished response to the
// snapshot attached to completion events.
func requestedTools(resp *ai.ModelResponse) []stream.ToolRef {
	requests := resp.ToolRequests()
	if len(requests) == 0 {
		return nil
	}
	refs := make([]stream.ToolRef, 0, len(requests))
	for _, req := range requests {
		if req == nil || req.Name == "" {
			continue
		}
		refs = append(refs, stream.ToolRef{Name: req.Name, Args: toolArgs(req.Input)})
	}
	return refs
}

// toolArgs normalizes a tool request input to the argument map tool
// references carry.
func toolArgs(input any) map[string]any {
	if input == nil {
		return nil
	}
	if m, ok := input.(map[string]any); ok {
		return m
	}
	return map[string]any{"input": input}
}

// generationConfig returns the provider-native sampling settings for a
// run. Only Gemini models take the genai config shape; other providers
// keep their defaults.
func generationConfig(cfg Config) *genai.GenerateContentConfig {
	if !strings.HasPrefix(cfg.Model, config.ProviderGoogleAI+"/") {
		return nil
	}
	return &genai.GenerateContentConfig{
		Temperature: genai.Ptr(cfg.Temperature),
	}
}

// systemText composes the system instructions for one leaf run.
func systemText(cfg Config) string {
	var parts []string
	if cfg.Role != "" {
		parts = append(parts, "You are "+cfg.Name+", "+cfg.Role+".")
	}
	if cfg.Instructions != "" {
		parts = append(parts, cfg.Instructions)
	}
	return strings.Join(parts, "\n\n")
}

// synthesisPayload appends member findings to the user payload for the
// coordinator pass.
func synthesisPayload(payload string, findings []memberFinding) string {
	if len(findings) == 0 {
		return payload
	}

	var b strings.Builder
	b.WriteString(payload)
	b.WriteString("\n\nFindings from team members:\n")
	for _, f := range findings {
		b.WriteString("\n### ")
		b.WriteString(f.name)
		if f.role != "" {
			b.WriteString(" (")
			b.WriteString(f.role)
			b.WriteString(")")
		}
		b.WriteString("\n")
		b.WriteString(f.text)
		b.WriteString("\n")
	}
	return b.String()
}
