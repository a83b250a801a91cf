package stream

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/goleak"
)

// consumeAll feeds the events through a fresh reconciler and returns the
// outcome of the fully drained stream.
func consumeAll(t *testing.T, cfg ReconcilerConfig, events ...RawEvent) Outcome {
	t.Helper()

	ch := make(chan RawEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)

	out, err := NewReconciler(cfg).Consume(context.Background(), ch)
	if err != nil {
		t.Fatalf("Consume() unexpected error: %v", err)
	}
	return out
}

func TestReconciler_MergesDeltaStream(t *testing.T) {
	t.Parallel()

	out := consumeAll(t, ReconcilerConfig{},
		RawEvent{Kind: "RunContent", Delta: "Hel"},
		RawEvent{Kind: "RunContent", Delta: "Hello"},
		RawEvent{Kind: "RunContent", Delta: ", world"},
	)

	if out.Text != "Hello, world" {
		t.Errorf("Text = %q, want %q", out.Text, "Hello, world")
	}
	if out.Finalized {
		t.Error("stream without final event should not be finalized")
	}
	if out.Events != 3 {
		t.Errorf("Events = %d, want 3", out.Events)
	}
}

func TestReconciler_FinalReplacesDrafts(t *testing.T) {
	t.Parallel()

	out := consumeAll(t, ReconcilerConfig{},
		RawEvent{Kind: "RunContent", Delta: "Let me think"},
		RawEvent{Kind: "RunEvent.RunCompleted", Response: "Clean Answer"},
	)

	if out.Text != "Clean Answer" {
		t.Errorf("Text = %q, want %q", out.Text, "Clean Answer")
	}
	if !out.Finalized {
		t.Error("final event should finalize the stream")
	}
}

func TestReconciler_FinalizationLatch(t *testing.T) {
	t.Parallel()

	out := consumeAll(t, ReconcilerConfig{},
		RawEvent{Kind: "run_completed", Response: "Done."},
		RawEvent{Kind: "RunContent", Delta: "post-final noise"},
		RawEvent{Kind: "run_completed", Response: "Different answer"},
		RawEvent{Kind: "ToolCallStarted", Tool: &ToolRef{Name: "late"}},
	)

	if out.Text != "Done." {
		t.Errorf("Text = %q, want %q", out.Text, "Done.")
	}
	if len(out.Tools) != 0 {
		t.Errorf("Tools = %v, want none after finalization", out.Tools)
	}
	if len(out.ToolEvents) != 0 {
		t.Errorf("ToolEvents = %v, want none after finalization", out.ToolEvents)
	}
	// Every event is still counted for telemetry.
	if out.Events != 4 {
		t.Errorf("Events = %d, want 4", out.Events)
	}
}

func TestReconciler_TeamOutputOverridesMember(t *testing.T) {
	t.Parallel()

	out := consumeAll(t, ReconcilerConfig{},
		RawEvent{Kind: "RunContent", Delta: "noisy"},
		RawEvent{Kind: "TeamRunContent", Delta: "Clean"},
		RawEvent{Kind: "TeamRunContent", Delta: " Answer"},
	)

	if out.Text != "Clean Answer" {
		t.Errorf("Text = %q, want %q", out.Text, "Clean Answer")
	}
}

func TestReconciler_MemberEventsAfterTeamIgnored(t *testing.T) {
	t.Parallel()

	out := consumeAll(t, ReconcilerConfig{},
		RawEvent{Kind: "TeamRunContent", Delta: "Team view"},
		RawEvent{Kind: "RunContent", Delta: " plus member chatter"},
		RawEvent{Kind: "ToolCallStarted", Tool: &ToolRef{Name: "member_tool"}},
		RawEvent{Kind: "TeamRunCompleted", Response: "Team view."},
	)

	if out.Text != "Team view." {
		t.Errorf("Text = %q, want %q", out.Text, "Team view.")
	}
	if len(out.Tools) != 0 {
		t.Errorf("Tools = %v, want member tools dropped after team takeover", out.Tools)
	}
}

func TestReconciler_TeamToolCallTriggersTakeover(t *testing.T) {
	t.Parallel()

	// A team-scoped tool call is the first sign of delegation: member
	// drafts accumulated before it are superseded.
	out := consumeAll(t, ReconcilerConfig{},
		RawEvent{Kind: "RunContent", Delta: "member draft"},
		RawEvent{Kind: "TeamToolCallStarted", Tool: &ToolRef{Name: "delegate"}},
		RawEvent{Kind: "RunContent", Delta: "more member text"},
		RawEvent{Kind: "TeamRunContent", Delta: "Final words"},
	)

	if out.Text != "Final words" {
		t.Errorf("Text = %q, want %q", out.Text, "Final words")
	}
	if len(out.Tools) != 1 || out.Tools[0].Name != "delegate" {
		t.Errorf("Tools = %v, want the delegation tool only", out.Tools)
	}
}

func TestReconciler_EmptyFinalDoesNotLatch(t *testing.T) {
	t.Parallel()

	out := consumeAll(t, ReconcilerConfig{},
		RawEvent{Kind: "RunContent", Delta: "draft"},
		RawEvent{Kind: "run_completed", Response: "   \n"},
		RawEvent{Kind: "RunContent", Delta: " continues"},
	)

	if out.Text != "draft continues" {
		t.Errorf("Text = %q, want %q", out.Text, "draft continues")
	}
	if out.Finalized {
		t.Error("blank final event should not finalize")
	}
}

func TestReconciler_ToolDeduplication(t *testing.T) {
	t.Parallel()

	var notified [][]ToolRef
	cfg := ReconcilerConfig{
		OnTools: func(tools []ToolRef) {
			notified = append(notified, append([]ToolRef(nil), tools...))
		},
	}

	out := consumeAll(t, cfg,
		RawEvent{Kind: "ToolCallStarted", Tool: &ToolRef{Name: "search", Args: map[string]any{"q": "go"}}},
		RawEvent{Kind: "RunContent", Delta: "x", Tools: []ToolRef{{Name: "search"}, {Name: "fetch"}}},
		RawEvent{Kind: "ToolCallStarted", Tool: &ToolRef{Name: "search", Args: map[string]any{"q": "rust"}}},
	)

	if len(out.Tools) != 2 {
		t.Fatalf("Tools length = %d, want 2", len(out.Tools))
	}
	if out.Tools[0].Name != "search" || out.Tools[1].Name != "fetch" {
		t.Errorf("Tools = %v, want [search fetch]", out.Tools)
	}
	// Notified once per change, not once per event.
	if len(notified) != 2 {
		t.Errorf("OnTools calls = %d, want 2", len(notified))
	}
}

func TestReconciler_ToolEventTelemetry(t *testing.T) {
	t.Parallel()

	out := consumeAll(t, ReconcilerConfig{},
		RawEvent{Kind: "ToolCallStarted", Tool: &ToolRef{Name: "search"}},
		RawEvent{Kind: "RunEvent.ToolCallCompleted"},
		RawEvent{Kind: "TeamToolCallStarted", Tool: &ToolRef{Name: "delegate"}},
		RawEvent{Kind: "team_tool_call_completed"},
	)

	want := []string{"toolcallstarted", "toolcallcompleted", "teamtoolcallstarted", "teamtoolcallcompleted"}
	if len(out.ToolEvents) != len(want) {
		t.Fatalf("ToolEvents = %v, want %v", out.ToolEvents, want)
	}
	for i, label := range want {
		if out.ToolEvents[i] != label {
			t.Errorf("ToolEvents[%d] = %q, want %q", i, out.ToolEvents[i], label)
		}
	}
	// Tool completion events carry no content and must not finalize.
	if out.Finalized {
		t.Error("tool completion events should not finalize the stream")
	}
}

func TestReconciler_ToolsOnFinalEventRecorded(t *testing.T) {
	t.Parallel()

	out := consumeAll(t, ReconcilerConfig{},
		RawEvent{Kind: "run_completed", Response: "Done.", Tools: []ToolRef{{Name: "search"}}},
	)

	if out.Text != "Done." {
		t.Errorf("Text = %q, want %q", out.Text, "Done.")
	}
	if len(out.Tools) != 1 || out.Tools[0].Name != "search" {
		t.Errorf("Tools = %v, want [search]", out.Tools)
	}
}

func TestReconciler_SafetyEmission(t *testing.T) {
	t.Parallel()

	t.Run("without final event", func(t *testing.T) {
		t.Parallel()

		var partials []string
		cfg := ReconcilerConfig{OnPartial: func(text string) { partials = append(partials, text) }}

		consumeAll(t, cfg,
			RawEvent{Kind: "RunContent", Delta: "Hello"},
			RawEvent{Kind: "RunContent", Delta: " there"},
		)

		// EmitDeltas is off, so the only emission is the trailing one.
		if len(partials) != 1 || partials[0] != "Hello there" {
			t.Errorf("partials = %v, want single trailing emission", partials)
		}
	})

	t.Run("with final event", func(t *testing.T) {
		t.Parallel()

		var partials []string
		cfg := ReconcilerConfig{OnPartial: func(text string) { partials = append(partials, text) }}

		consumeAll(t, cfg,
			RawEvent{Kind: "RunContent", Delta: "draft"},
			RawEvent{Kind: "run_completed", Response: "Final."},
		)

		// The final emission fires once; no trailing emission follows it.
		if len(partials) != 1 || partials[0] != "Final." {
			t.Errorf("partials = %v, want single final emission", partials)
		}
	})

	t.Run("empty stream", func(t *testing.T) {
		t.Parallel()

		var partials []string
		cfg := ReconcilerConfig{OnPartial: func(text string) { partials = append(partials, text) }}

		out := consumeAll(t, cfg)
		if out.Text != "" || out.Events != 0 {
			t.Errorf("outcome = %+v, want zero outcome", out)
		}
		if len(partials) != 0 {
			t.Errorf("partials = %v, want none for empty stream", partials)
		}
	})
}

func TestReconciler_EmitDeltas(t *testing.T) {
	t.Parallel()

	var partials []string
	cfg := ReconcilerConfig{
		EmitDeltas: true,
		OnPartial:  func(text string) { partials = append(partials, text) },
	}

	consumeAll(t, cfg,
		RawEvent{Kind: "RunContent", Delta: "A"},
		RawEvent{Kind: "RunContent", Delta: "A"}, // duplicate, no change
		RawEvent{Kind: "RunContent", Delta: "B"},
	)

	// One emission per change plus the trailing safety emission.
	want := []string{"A", "AB", "AB"}
	if len(partials) != len(want) {
		t.Fatalf("partials = %v, want %v", partials, want)
	}
	for i := range want {
		if partials[i] != want[i] {
			t.Errorf("partials[%d] = %q, want %q", i, partials[i], want[i])
		}
	}
}

func TestReconciler_Cancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan RawEvent)
	done := make(chan struct{})

	// Producer hands over three deltas, then cancels instead of closing,
	// simulating a backend cut off mid-stream.
	go func() {
		defer close(done)
		for _, delta := range []string{"a", "b", "c"} {
			select {
			case events <- RawEvent{Kind: "RunContent", Delta: delta}:
			case <-ctx.Done():
				return
			}
		}
		cancel()
	}()

	var partials []string
	r := NewReconciler(ReconcilerConfig{
		OnPartial: func(text string) { partials = append(partials, text) },
	})

	out, err := r.Consume(ctx, events)
	<-done

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Consume() error = %v, want context.Canceled", err)
	}
	if out.Text != "abc" {
		t.Errorf("Text = %q, want %q", out.Text, "abc")
	}
	// No trailing emission on cancellation; the caller discards the partial.
	if len(partials) != 0 {
		t.Errorf("partials = %v, want none on cancellation", partials)
	}
}
