package turn

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/strand-ai/strand/internal/agent"
	"github.com/strand-ai/strand/internal/knowledge"
	"github.com/strand-ai/strand/internal/stream"
)

// Stream result labels recorded in telemetry. They name the path a turn
// took through the streaming step.
const (
	// StreamOK means the reconciled stream produced the answer.
	StreamOK = "ok"

	// StreamEmpty means the stream closed cleanly but reconciled to no
	// text, so the fallback generator produced the answer.
	StreamEmpty = "empty"

	// StreamNone means the stream never produced a usable event flow:
	// the agent could not be built, the backend call failed, or the turn
	// was cancelled mid-stream.
	StreamNone = "none"
)

// ErrRateLimited is returned by Engine.Run when the admission limiter
// rejects the turn before any work starts.
var ErrRateLimited = errors.New("turn rejected by rate limiter")

// Input is one user turn. The engine treats it as read-only; concurrent
// turns never share an Input.
type Input struct {
	// Prompt is the user's question.
	Prompt string

	// SelectedSources are the knowledge source names the user pinned for
	// this turn. They render into the payload and drive the citation
	// policy.
	SelectedSources []string

	// Notes are free-form annotations attached to the conversation. Only
	// the trailing few render into the payload.
	Notes []string

	SessionID uuid.UUID
	UserID    string

	// Agent is the roster entry to run, single agent or team.
	Agent agent.Config

	// History is the prior conversation, oldest first.
	History []agent.Message

	// Media are image attachments forwarded to the run.
	Media []agent.Media

	// StreamEvents selects the evented backend run and live delta
	// emission through OnPartial.
	StreamEvents bool

	// OnPartial receives the accumulated answer text as it grows. It is
	// guaranteed one invocation carrying the final annotated text on
	// every path a turn can take. Optional.
	OnPartial func(text string)

	// OnTools receives the deduplicated tool list each time it grows.
	// Optional.
	OnTools func(tools []stream.ToolRef)
}

// Result is the outcome of one turn.
type Result struct {
	// Response is the final answer with citations applied.
	Response string

	// ToolCalls lists the distinct tools the run invoked, in first-seen
	// order. They are carried even when the turn fell back after an
	// empty stream.
	ToolCalls []stream.ToolRef

	// Trace is the diagnostic record of everything the turn did.
	Trace Trace

	// UsedFallback reports that the answer came from the fallback
	// generator rather than the stream.
	UsedFallback bool
}

// Trace records what a turn actually did. It backs the diagnostics
// surfaces and is never consumed by the engine itself.
type Trace struct {
	// Payload is the grounded prompt sent to the backend.
	Payload string

	// Response is the final annotated answer, identical to
	// Result.Response.
	Response string

	AgentName string
	AgentKind string

	// RuntimeTools lists what the run could call: declared builtin tools
	// plus the external capability providers that connected.
	RuntimeTools []string

	// TeamMembers are the display names of the members that ran, after
	// routing. Empty for single agents.
	TeamMembers []string

	// SelectedMemberIDs are the member ids the routing policy chose.
	SelectedMemberIDs []string

	Telemetry Telemetry
}

// Telemetry is the structured per-turn record emitted to the log and the
// trace span.
type Telemetry struct {
	Model            string
	SelectedMembers  []string
	Tools            []string
	ExternalEvents   []string
	StreamMode       bool
	StreamResult     string
	LatencyMS        int64
	KnowledgeHits    int
	KnowledgeSources []string
	UsedFallback     bool
}

// Retriever supplies knowledge snippets for the prompt. Retrieval
// failures degrade the turn to an uncontextualized payload, never fail
// it.
type Retriever interface {
	Query(ctx context.Context, prompt string) ([]knowledge.Snippet, error)
}

// Factory builds the runnable agent or team for one turn.
type Factory interface {
	Build(ctx context.Context, cfg agent.Config, opts agent.BuildOptions) (*agent.Handle, error)
}

// Backend runs the built handle and feeds raw events to the reconciler.
// The returned channel must be closed when the run ends and its producer
// must unblock when ctx is done.
type Backend interface {
	Stream(ctx context.Context, h *agent.Handle, payload string, media []agent.Media, wantEvents bool) (<-chan stream.RawEvent, error)
}

// Fallback produces a synchronous answer when the stream yields nothing.
// Implementations degrade internally; an error is fatal for the turn and
// expected only when ctx is already dead.
type Fallback interface {
	Generate(ctx context.Context, req agent.FallbackRequest) (string, error)
}
