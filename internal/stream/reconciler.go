package stream

import (
	"context"
	"strings"

	"github.com/strand-ai/strand/internal/log"
)

// ReconcilerConfig configures a single-turn Reconciler.
type ReconcilerConfig struct {
	// Classifier maps raw events to normalized ones. A default classifier
	// with no extra final kinds is used when nil.
	Classifier *Classifier

	// Logger receives debug-level reconciliation traces. Defaults to a
	// no-op logger.
	Logger log.Logger

	// OnPartial is invoked with the full accumulated text whenever it is
	// worth re-rendering: on every change when EmitDeltas is set, on
	// finalization, and once at stream end if no final event arrived.
	OnPartial func(text string)

	// OnTools is invoked with the deduplicated tool list whenever it grows.
	OnTools func(tools []ToolRef)

	// EmitDeltas enables OnPartial calls for intermediate merges. When
	// false, OnPartial still fires on finalization and at stream end.
	EmitDeltas bool
}

// Outcome is the reconciled result of one event stream.
type Outcome struct {
	// Text is the final answer text, empty when the stream produced none.
	Text string

	// Tools lists the distinct tool invocations observed, in first-seen order.
	Tools []ToolRef

	// ToolEvents records the normalized labels of tool lifecycle events
	// for telemetry.
	ToolEvents []string

	// Events counts every raw event received, including ignored ones.
	Events int

	// Finalized reports whether an authoritative final event was observed.
	Finalized bool
}

// Reconciler folds one backend event stream into a single answer. It is
// single-use: create one per turn and call Consume exactly once.
//
// Reconciliation runs in two phases. While accumulating, content fragments
// merge via MergeText and tool references dedupe via MergeTools. The first
// final event with non-blank text switches the reconciler to finalized,
// replaces the accumulated text verbatim, and latches: every later event
// is ignored. Team-scoped events supersede member output, so the first
// team event discards any member text accumulated before it, and member
// events arriving after team output has started contribute nothing.
type Reconciler struct {
	cfg ReconcilerConfig

	text            string
	tools           []ToolRef
	toolEvents      []string
	events          int
	finalized       bool
	teamActive      bool
	sawMemberOutput bool
}

// NewReconciler builds a Reconciler for one turn.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.Classifier == nil {
		cfg.Classifier = NewClassifier(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Reconciler{cfg: cfg}
}

// Consume reads events until the channel closes or ctx is done and returns
// the reconciled outcome.
//
// On a clean close, if no final event was observed and text accumulated,
// the text is emitted one last time so partial consumers are not left
// behind. On cancellation Consume returns the partial outcome together
// with ctx.Err() and skips that trailing emission; the producer is
// responsible for unblocking its own sends when ctx is done.
func (r *Reconciler) Consume(ctx context.Context, events <-chan RawEvent) (Outcome, error) {
	for {
		select {
		case <-ctx.Done():
			return r.outcome(), ctx.Err()
		case raw, ok := <-events:
			if !ok {
				r.finish()
				return r.outcome(), nil
			}
			r.apply(raw)
		}
	}
}

// apply folds a single raw event into the reconciler state.
func (r *Reconciler) apply(raw RawEvent) {
	r.events++
	if r.finalized {
		return
	}

	ev := r.cfg.Classifier.Classify(raw)

	if ev.TeamScoped {
		if !r.teamActive {
			r.teamActive = true
			if r.sawMemberOutput {
				r.cfg.Logger.Debug("team output started, discarding member text",
					"discarded_len", len(r.text))
				r.text = ""
			}
		}
	} else if r.teamActive {
		// Member chatter after the team has taken over.
		return
	}

	if label, ok := isToolEventLabel(raw.Kind); ok {
		r.toolEvents = append(r.toolEvents, label)
	}
	r.mergeTools(ev)

	switch ev.Kind {
	case ContentFinal:
		if strings.TrimSpace(ev.Text) == "" {
			return
		}
		r.text = ev.Text
		r.finalized = true
		r.cfg.Logger.Debug("stream finalized", "len", len(r.text), "team", ev.TeamScoped)
		r.emit()
	case ContentDelta:
		if ev.Text == "" {
			return
		}
		merged := MergeText(r.text, ev.Text)
		if merged == r.text {
			return
		}
		r.text = merged
		if !ev.TeamScoped {
			r.sawMemberOutput = true
		}
		if r.cfg.EmitDeltas {
			r.emit()
		}
	}
}

// mergeTools folds the event's tool payloads into the deduplicated list.
func (r *Reconciler) mergeTools(ev Event) {
	changed := false
	if ev.Tool != nil {
		r.tools, changed = MergeTools(r.tools, *ev.Tool)
	}
	if len(ev.Tools) > 0 {
		var batchChanged bool
		r.tools, batchChanged = MergeTools(r.tools, ev.Tools...)
		changed = changed || batchChanged
	}
	if changed && r.cfg.OnTools != nil {
		r.cfg.OnTools(r.tools)
	}
}

// finish performs the trailing safety emission for streams that ended
// without a final event.
func (r *Reconciler) finish() {
	if r.finalized || r.text == "" {
		return
	}
	r.cfg.Logger.Debug("stream ended without final event, emitting accumulated text",
		"len", len(r.text))
	r.emit()
}

func (r *Reconciler) emit() {
	if r.cfg.OnPartial != nil {
		r.cfg.OnPartial(r.text)
	}
}

func (r *Reconciler) outcome() Outcome {
	return Outcome{
		Text:       r.text,
		Tools:      r.tools,
		ToolEvents: r.toolEvents,
		Events:     r.events,
		Finalized:  r.finalized,
	}
}
