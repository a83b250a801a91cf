package testutil

import (
	"strings"
	"testing"
)

// SSEEvent is one event parsed from a recorded text/event-stream body.
type SSEEvent struct {
	Type string
	Data string // multi-line payloads joined with \n
}

// ParseSSEEvents splits an event-stream body into events. Blocks are
// separated by blank lines; within a block, field order does not matter.
// The parser is deliberately strict: an unknown field or a stream that
// ends mid-event fails the test immediately, since both point at a
// broken writer rather than an exotic client.
func ParseSSEEvents(t *testing.T, body string) []SSEEvent {
	t.Helper()

	if body != "" && !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("event stream ended without a blank-line terminator: %q", streamTail(body))
	}

	var events []SSEEvent
	for _, block := range strings.Split(body, "\n\n") {
		if block == "" {
			continue
		}
		if ev, ok := parseEventBlock(t, block); ok {
			events = append(events, ev)
		}
	}
	return events
}

// parseEventBlock reads one blank-line-delimited block. Comment-only
// blocks (keepalives) report ok=false. An event with data but no
// event: field gets the protocol default type "message".
func parseEventBlock(t *testing.T, block string) (SSEEvent, bool) {
	t.Helper()

	var ev SSEEvent
	var data []string
	seenData := false

	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, ":"):
			// Comment line, typically a keepalive.
		case strings.HasPrefix(line, "event:"):
			ev.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			seenData = true
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
			// Legal fields our handlers never emit; tolerated so the
			// helper stays usable against other servers.
		default:
			t.Fatalf("unexpected line in event stream: %q", line)
		}
	}

	if ev.Type == "" && !seenData {
		return SSEEvent{}, false
	}
	if ev.Type == "" {
		ev.Type = "message"
	}
	ev.Data = strings.Join(data, "\n")
	return ev, true
}

// streamTail trims a long body down to its end, where the interesting
// part of a truncation failure lives.
func streamTail(s string) string {
	const keep = 64
	if len(s) <= keep {
		return s
	}
	return "..." + s[len(s)-keep:]
}

// FindEvent returns the first event of the given type, or nil.
func FindEvent(events []SSEEvent, eventType string) *SSEEvent {
	for i := range events {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

// FindAllEvents returns every event of the given type, in stream order.
func FindAllEvents(events []SSEEvent, eventType string) []SSEEvent {
	var found []SSEEvent
	for _, e := range events {
		if e.Type == eventType {
			found = append(found, e)
		}
	}
	return found
}
