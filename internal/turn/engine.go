// Package turn orchestrates one user turn end to end: knowledge
// retrieval, payload assembly, member routing, agent construction,
// capability acquisition, the streamed run with reconciliation, the
// synchronous fallback, citation and telemetry.
//
// A turn never fails on degraded collaborators. Retrieval errors drop
// the context sections, capability failures feed the breaker and the run
// proceeds with fewer tools, and a stream that dies or says nothing is
// replaced by the fallback generator. The only errors Run returns are
// admission rejection and caller cancellation.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/strand-ai/strand/internal/agent"
	"github.com/strand-ai/strand/internal/capability"
	"github.com/strand-ai/strand/internal/citation"
	"github.com/strand-ai/strand/internal/knowledge"
	"github.com/strand-ai/strand/internal/log"
	"github.com/strand-ai/strand/internal/routing"
	"github.com/strand-ai/strand/internal/stream"
)

// defaultMCPTimeout bounds the capability acquisition phase of a turn.
const defaultMCPTimeout = 15 * time.Second

var tracer = otel.Tracer("strand/internal/turn")

// Config wires an Engine. Factory, Backend, Fallback and Logger are
// required; everything else degrades gracefully when absent.
type Config struct {
	// Retriever supplies knowledge context. Nil disables retrieval.
	Retriever Retriever

	// Factory builds the per-turn agent handle.
	Factory Factory

	// Backend runs the built handle and streams raw events.
	Backend Backend

	// Fallback produces the synchronous answer when streaming yields
	// nothing.
	Fallback Fallback

	// Capabilities manages external MCP connections. Nil disables
	// acquisition; runs then see only builtin tools.
	Capabilities *capability.Manager

	// Limiter gates turn admission. Nil admits everything.
	Limiter *rate.Limiter

	Logger log.Logger

	// MCPTimeout bounds capability acquisition. Zero takes the default.
	MCPTimeout time.Duration
}

func (cfg Config) validate() error {
	if cfg.Factory == nil {
		return errors.New("factory is required")
	}
	if cfg.Backend == nil {
		return errors.New("backend is required")
	}
	if cfg.Fallback == nil {
		return errors.New("fallback generator is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Engine runs turns. It is stateless across turns: every Run owns its
// input and intermediate state exclusively, so concurrent turns share
// nothing but the capability breaker table.
type Engine struct {
	retriever    Retriever
	factory      Factory
	backend      Backend
	fallback     Fallback
	capabilities *capability.Manager
	limiter      *rate.Limiter
	logger       log.Logger
	mcpTimeout   time.Duration
}

// NewEngine validates cfg and builds a turn engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MCPTimeout <= 0 {
		cfg.MCPTimeout = defaultMCPTimeout
	}
	return &Engine{
		retriever:    cfg.Retriever,
		factory:      cfg.Factory,
		backend:      cfg.Backend,
		fallback:     cfg.Fallback,
		capabilities: cfg.Capabilities,
		limiter:      cfg.Limiter,
		logger:       cfg.Logger,
		mcpTimeout:   cfg.MCPTimeout,
	}, nil
}

// Run executes one turn and returns the annotated answer with its trace.
// It returns ErrRateLimited when the admission limiter rejects the turn
// and the context error when the caller cancels mid-turn; every other
// failure degrades into the fallback answer.
func (e *Engine) Run(ctx context.Context, input Input) (Result, error) {
	if e.limiter != nil && !e.limiter.Allow() {
		e.logger.Warn("turn rejected by rate limiter", "agent", input.Agent.Name)
		return Result{}, ErrRateLimited
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "turn.run")
	defer span.End()

	snippets := e.retrieve(ctx, input.Prompt)
	payload := buildPayload(input.Prompt, input.SelectedSources, input.Notes, snippets)

	cfg, selected := e.route(input)

	handle, err := e.factory.Build(ctx, cfg, buildOptions(input))
	if err != nil {
		e.logger.Warn("agent build failed, taking the fallback path",
			"agent", cfg.Name, "error", err)
		handle = nil
	}

	var capEvents, capNames []string
	if set := e.acquire(ctx, handle); set != nil {
		defer set.Release(ctx)
		capEvents = set.Events()
		capNames = set.Names()
	}

	emit := newEmitTracker(input.OnPartial)
	outcome, streamResult := e.streamTurn(ctx, handle, payload, input, emit)

	text := strings.TrimSpace(outcome.Text)
	usedFallback := streamResult != StreamOK
	if usedFallback {
		text, err = e.fallback.Generate(ctx, agent.FallbackRequest{
			Config:  cfg,
			Payload: payload,
			History: input.History,
		})
		if err != nil {
			return Result{}, fmt.Errorf("fallback generation: %w", err)
		}
	}

	text = citation.Apply(text, input.SelectedSources, snippets)
	emit.Final(text)

	telemetry := Telemetry{
		Model:            cfg.Model,
		SelectedMembers:  selected,
		Tools:            toolNames(outcome.Tools),
		ExternalEvents:   capEvents,
		StreamMode:       input.StreamEvents,
		StreamResult:     streamResult,
		LatencyMS:        time.Since(start).Milliseconds(),
		KnowledgeHits:    len(snippets),
		KnowledgeSources: knowledge.SourceNames(snippets),
		UsedFallback:     usedFallback,
	}

	span.SetAttributes(
		attribute.String("turn.agent", cfg.Name),
		attribute.String("turn.kind", string(cfg.Kind)),
		attribute.String("turn.model", cfg.Model),
		attribute.String("turn.stream_result", streamResult),
		attribute.Bool("turn.used_fallback", usedFallback),
		attribute.Int64("turn.latency_ms", telemetry.LatencyMS),
		attribute.Int("turn.knowledge_hits", telemetry.KnowledgeHits),
	)

	e.logger.Info("turn completed",
		"agent", cfg.Name,
		"kind", string(cfg.Kind),
		"model", telemetry.Model,
		"stream_result", telemetry.StreamResult,
		"used_fallback", telemetry.UsedFallback,
		"latency_ms", telemetry.LatencyMS,
		"knowledge_hits", telemetry.KnowledgeHits,
		"tools", telemetry.Tools,
		"external_events", telemetry.ExternalEvents,
	)

	return Result{
		Response:     text,
		ToolCalls:    outcome.Tools,
		UsedFallback: usedFallback,
		Trace: Trace{
			Payload:           payload,
			Response:          text,
			AgentName:         cfg.Name,
			AgentKind:         string(cfg.Kind),
			RuntimeTools:      runtimeTools(cfg, capNames),
			TeamMembers:       memberNames(cfg),
			SelectedMemberIDs: selected,
			Telemetry:         telemetry,
		},
	}, nil
}

// retrieve queries the knowledge base, degrading to no context on error.
func (e *Engine) retrieve(ctx context.Context, prompt string) []knowledge.Snippet {
	if e.retriever == nil {
		return nil
	}
	snippets, err := e.retriever.Query(ctx, prompt)
	if err != nil {
		e.logger.Warn("knowledge retrieval failed, continuing without context",
			"error", err)
		return nil
	}
	return snippets
}

// route applies the routing policy to team rosters. Single agents pass
// through untouched. The returned ids are what the policy chose, before
// an empty selection collapses the team to a direct run.
func (e *Engine) route(input Input) (agent.Config, []string) {
	cfg := input.Agent
	if cfg.Kind != agent.KindTeam {
		return cfg, nil
	}
	selected := routing.SelectMembers(cfg.Coordination, input.Prompt, cfg.RoutingMembers())
	routed := cfg.KeepMembers(selected)
	if routed.Kind != agent.KindTeam {
		e.logger.Debug("routing collapsed team to a direct run",
			"team", cfg.Name, "mode", cfg.Coordination)
	}
	return routed, selected
}

// acquire connects the handle's declared capabilities. The dial timeout
// bounds acquisition only: connections stay usable for the rest of the
// turn and are closed by the deferred Set.Release.
func (e *Engine) acquire(ctx context.Context, h *agent.Handle) *capability.Set {
	if e.capabilities == nil || h == nil {
		return nil
	}
	refs := h.Capabilities()
	if len(refs) == 0 {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, e.mcpTimeout)
	defer cancel()
	return e.capabilities.Acquire(dialCtx, h.Dialer(), refs)
}

// streamTurn runs the backend stream through a fresh reconciler and maps
// what happened onto a stream result label. A nil handle, a backend
// error and cancellation all count as "none": the stream never produced
// a usable flow.
func (e *Engine) streamTurn(ctx context.Context, h *agent.Handle, payload string, input Input, emit *emitTracker) (stream.Outcome, string) {
	if h == nil {
		return stream.Outcome{}, StreamNone
	}

	events, err := e.backend.Stream(ctx, h, payload, input.Media, input.StreamEvents)
	if err != nil {
		e.logger.Warn("backend stream unavailable", "agent", h.Name(), "error", err)
		return stream.Outcome{}, StreamNone
	}
	if events == nil {
		e.logger.Warn("backend returned no event stream", "agent", h.Name())
		return stream.Outcome{}, StreamNone
	}

	rec := stream.NewReconciler(stream.ReconcilerConfig{
		Classifier: stream.NewClassifier(h.FinalEventKinds()),
		Logger:     e.logger,
		OnPartial:  emit.Partial,
		OnTools:    input.OnTools,
		EmitDeltas: input.StreamEvents,
	})
	outcome, err := rec.Consume(ctx, events)
	if err != nil {
		e.logger.Warn("stream cancelled before completion",
			"agent", h.Name(), "events", outcome.Events, "error", err)
		return outcome, StreamNone
	}
	if strings.TrimSpace(outcome.Text) == "" {
		e.logger.Warn("stream reconciled to empty text",
			"agent", h.Name(), "events", outcome.Events)
		return outcome, StreamEmpty
	}
	return outcome, StreamOK
}

func buildOptions(input Input) agent.BuildOptions {
	sessionID := ""
	if input.SessionID != uuid.Nil {
		sessionID = input.SessionID.String()
	}
	return agent.BuildOptions{
		Prompt:    input.Prompt,
		SessionID: sessionID,
		UserID:    input.UserID,
		History:   input.History,
	}
}

// emitTracker wraps the caller's OnPartial so the turn can guarantee the
// final annotated text is the last emission without repeating it when
// the stream already delivered exactly that text.
type emitTracker struct {
	fn   func(string)
	last string
	sent bool
}

func newEmitTracker(fn func(string)) *emitTracker {
	return &emitTracker{fn: fn}
}

// Partial forwards an intermediate emission.
func (t *emitTracker) Partial(text string) {
	if t.fn == nil {
		return
	}
	t.fn(text)
	t.last = text
	t.sent = true
}

// Final emits text unless it was already the last emission.
func (t *emitTracker) Final(text string) {
	if t.fn == nil || (t.sent && t.last == text) {
		return
	}
	t.fn(text)
	t.last = text
	t.sent = true
}

// runtimeTools lists what the run could call: the roster's declared
// builtin tools plus the capability providers that connected.
func runtimeTools(cfg agent.Config, connected []string) []string {
	var tools []string
	seen := make(map[string]struct{})
	add := func(names []string) {
		for _, n := range names {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			tools = append(tools, n)
		}
	}
	add(cfg.Tools)
	for _, m := range cfg.Members {
		add(m.Tools)
	}
	add(connected)
	return tools
}

func toolNames(tools []stream.ToolRef) []string {
	if len(tools) == 0 {
		return nil
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}

func memberNames(cfg agent.Config) []string {
	if len(cfg.Members) == 0 {
		return nil
	}
	names := make([]string, 0, len(cfg.Members))
	for _, m := range cfg.Members {
		names = append(names, m.Name)
	}
	return names
}

