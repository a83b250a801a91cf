package stream

import "strings"

// Kind is the normalized classification of a backend event.
type Kind int

const (
	// ContentDelta carries a text fragment to merge into the accumulated answer.
	ContentDelta Kind = iota

	// ContentFinal carries the authoritative final answer text.
	ContentFinal

	// ToolStarted announces a single tool invocation.
	ToolStarted

	// ToolBatch carries a snapshot list of tool invocations.
	ToolBatch
)

// String returns a human-readable kind name for logging.
func (k Kind) String() string {
	switch k {
	case ContentDelta:
		return "content_delta"
	case ContentFinal:
		return "content_final"
	case ToolStarted:
		return "tool_started"
	case ToolBatch:
		return "tool_batch"
	default:
		return "unknown"
	}
}

// ToolRef identifies one tool invocation observed during a turn.
// Identity is the Name alone: two refs with the same name are the same
// invocation even when their arguments differ between sightings.
type ToolRef struct {
	Name    string
	Args    map[string]any
	Content string
}

// RawEvent is the read-only view of one event emitted by a backend run.
// Only the fields a given backend fills are set; all shape sniffing is
// centralized in Classifier.Classify.
type RawEvent struct {
	// Kind is the backend-specific event label, e.g. "run_content",
	// "RunEvent.RunCompleted" or "team_run_completed".
	Kind string

	// Delta is an incremental or cumulative text fragment.
	Delta string

	// Response is the full response text, present on completion events and
	// on backends that only report whole snapshots.
	Response string

	// Tool is a single tool invocation attached to tool-start events.
	Tool *ToolRef

	// Tools is a snapshot list of invocations attached to batch events.
	Tools []ToolRef
}

// Event is the classified form of a RawEvent.
// Tool and Tools are carried independently of Kind because backends attach
// tool payloads to content events as well.
type Event struct {
	Kind       Kind
	TeamScoped bool
	Text       string
	Tool       *ToolRef
	Tools      []ToolRef
}

// Classifier maps raw backend events to normalized events. It is pure and
// never fails: unknown labels classify as ContentDelta.
type Classifier struct {
	finalKinds map[string]struct{}
}

// NewClassifier builds a classifier. extraFinalKinds are backend-supplied
// sentinel labels (beyond the "*completed" convention) whose events carry
// the authoritative final answer; they are matched after normalization.
func NewClassifier(extraFinalKinds []string) *Classifier {
	c := &Classifier{finalKinds: make(map[string]struct{}, len(extraFinalKinds))}
	for _, kind := range extraFinalKinds {
		if normalized := normalizeKind(kind); normalized != "" {
			c.finalKinds[normalized] = struct{}{}
		}
	}
	return c
}

// Classify maps one raw event to its normalized form.
//
// Final-ness combines label matching and field presence: a label ending in
// "completed", a sentinel label, or a full-response payload on an event
// whose label never matched a final form all count as final. Team scope is
// any label beginning with "team" after normalization.
func (c *Classifier) Classify(raw RawEvent) Event {
	label := normalizeKind(raw.Kind)

	ev := Event{
		TeamScoped: strings.HasPrefix(label, "team"),
		Tools:      raw.Tools,
	}

	// A single tool payload only counts on an explicit tool-start event;
	// backends attach stale Tool fields to unrelated events.
	if isToolStartLabel(label) {
		ev.Tool = raw.Tool
	}

	final := label != "" && strings.HasSuffix(label, "completed")
	if !final {
		_, final = c.finalKinds[label]
	}
	if !final && raw.Response != "" {
		// A full-response payload without a recognizable final label still
		// carries the authoritative answer.
		final = true
	}

	if final {
		ev.Text = raw.Response
		if ev.Text == "" {
			ev.Text = raw.Delta
		}
	} else {
		ev.Text = raw.Delta
	}

	switch {
	case final:
		ev.Kind = ContentFinal
	case ev.Tool != nil:
		ev.Kind = ToolStarted
	case len(raw.Tools) > 0 && ev.Text == "":
		ev.Kind = ToolBatch
	default:
		ev.Kind = ContentDelta
	}

	return ev
}

// normalizeKind makes label comparison case- and format-insensitive:
// lowercase, separators removed, and the event-enum prefix stripped, so
// "RunEvent.RunCompleted", "run_event.run_completed" and "runcompleted"
// all compare equal.
func normalizeKind(kind string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '.', '_', '-', ' ':
			return -1
		default:
			return r
		}
	}, strings.ToLower(strings.TrimSpace(kind)))
	if s != "runevent" {
		s = strings.TrimPrefix(s, "runevent")
	}
	return s
}

func isToolStartLabel(label string) bool {
	return label == "toolcallstarted" || label == "teamtoolcallstarted"
}

// toolEventLabels are the normalized labels recorded for tool telemetry.
var toolEventLabels = map[string]struct{}{
	"toolcallstarted":       {},
	"toolcallcompleted":     {},
	"teamtoolcallstarted":   {},
	"teamtoolcallcompleted": {},
}

// isToolEventLabel reports whether the raw kind denotes a tool lifecycle
// event worth recording in turn telemetry.
func isToolEventLabel(kind string) (string, bool) {
	label := normalizeKind(kind)
	_, ok := toolEventLabels[label]
	return label, ok
}
