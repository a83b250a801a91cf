package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/strand-ai/strand/internal/agent"
	"github.com/strand-ai/strand/internal/config"
	"github.com/strand-ai/strand/internal/log"
	"github.com/strand-ai/strand/internal/session"
	"github.com/strand-ai/strand/internal/stream"
	"github.com/strand-ai/strand/internal/turn"
)

// Request validation bounds.
const (
	// maxRequestBodySize caps the turn request body. Media attachments
	// ride in the body base64-encoded, so this is well above the prompt
	// cap.
	maxRequestBodySize = 8 << 20

	// maxPromptLength caps the prompt in bytes.
	maxPromptLength = 32 << 10

	// maxMediaAttachments caps image attachments per turn.
	maxMediaAttachments = 4

	// recentNotesLimit is how many pinned notes load into the turn. The
	// payload builder trims further; this only bounds the query.
	recentNotesLimit = 10
)

// SSE event types for turn streaming.
const (
	eventDelta = "delta" // incremental answer text
	eventTools = "tools" // deduplicated tool list, re-sent as it grows
	eventDone  = "done"  // final annotated answer with turn metadata
	eventError = "error" // turn-level failure
)

// TurnRunner runs one turn. *turn.Engine satisfies it.
type TurnRunner interface {
	Run(ctx context.Context, input turn.Input) (turn.Result, error)
}

// turnRequest is the POST /api/turns body.
type turnRequest struct {
	SessionID string            `json:"sessionId"`
	Prompt    string            `json:"prompt"`
	Agent     string            `json:"agent,omitempty"`
	Sources   []string          `json:"sources,omitempty"`
	Media     []mediaAttachment `json:"media,omitempty"`
}

// mediaAttachment is one image riding in the request body. Data is
// base64 on the wire, per encoding/json's []byte convention.
type mediaAttachment struct {
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// deltaPayload is the SSE data payload for delta events.
type deltaPayload struct {
	Text string `json:"text"`
}

// toolItem is one invoked tool in tools and done payloads. Results stay
// server-side; only identity and arguments cross the wire.
type toolItem struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// toolsPayload is the SSE data payload for tools events. It always
// carries the full list, not an increment, so clients replace rather
// than append.
type toolsPayload struct {
	Tools []toolItem `json:"tools"`
}

// donePayload is the SSE data payload when a turn completes.
type donePayload struct {
	Response     string     `json:"response"`
	SessionID    string     `json:"sessionId"`
	Tools        []toolItem `json:"tools,omitempty"`
	UsedFallback bool       `json:"usedFallback"`
}

// errorPayload is the SSE data payload when a turn fails.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// turnsHandler bridges POST /api/turns onto the turn engine.
type turnsHandler struct {
	engine   TurnRunner
	sessions SessionStore
	cfg      *config.Config
	logger   log.Logger
}

// run validates the request, then switches the connection to SSE and
// streams the turn. Validation failures are plain HTTP errors; anything
// after the stream starts is an SSE error event, since headers are
// already committed.
func (h *turnsHandler) run(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large",
				fmt.Sprintf("request body exceeds %d bytes", maxRequestBodySize), h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", h.logger)
		return
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt_required", "prompt is required", h.logger)
		return
	}
	if len(prompt) > maxPromptLength {
		writeError(w, http.StatusRequestEntityTooLarge, "prompt_too_long",
			fmt.Sprintf("prompt exceeds %d bytes", maxPromptLength), h.logger)
		return
	}

	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_required", "sessionId is required", h.logger)
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session", "sessionId is not a valid UUID", h.logger)
		return
	}

	spec := h.cfg.DefaultAgentSpec()
	if req.Agent != "" {
		var ok bool
		spec, ok = h.cfg.AgentByID(req.Agent)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown_agent",
				fmt.Sprintf("agent %q is not configured", req.Agent), h.logger)
			return
		}
	}

	media, err := decodeAttachments(req.Media)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_media", err.Error(), h.logger)
		return
	}

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "session does not exist", h.logger)
			return
		}
		h.logger.Error("load session", "error", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "session_lookup_failed", "failed to load session", h.logger)
		return
	}

	history, err := h.sessions.History(r.Context(), sessionID, h.cfg.MaxHistoryMessages)
	if err != nil {
		h.logger.Error("load history", "error", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "history_failed", "failed to load conversation history", h.logger)
		return
	}

	// Notes enrich the payload; a failed lookup degrades the turn rather
	// than failing it.
	var notes []string
	if recent, err := h.sessions.RecentNotes(r.Context(), sessionID, recentNotesLimit); err != nil {
		h.logger.Warn("load notes", "error", err, "session_id", sessionID)
	} else {
		notes = make([]string, len(recent))
		for i, n := range recent {
			notes[i] = n.Content
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Cancel the turn when an event write fails: the client is gone and
	// nothing downstream should keep burning model tokens.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var prev string
	input := turn.Input{
		Prompt:          prompt,
		SelectedSources: req.Sources,
		Notes:           notes,
		SessionID:       sessionID,
		UserID:          sess.UserID,
		Agent:           agent.FromSpec(spec, h.cfg),
		History:         history,
		Media:           media,
		StreamEvents:    true,
		OnPartial: func(text string) {
			if text == prev {
				return
			}
			if strings.HasPrefix(text, prev) {
				delta := text[len(prev):]
				prev = text
				if err := writeEvent(w, flusher, eventDelta, deltaPayload{Text: delta}); err != nil {
					cancel()
				}
				return
			}
			// The final annotated text can rewrite earlier content
			// (citations). The done event carries it in full, so no
			// delta goes out here.
			prev = text
		},
		OnTools: func(tools []stream.ToolRef) {
			if err := writeEvent(w, flusher, eventTools, toolsPayload{Tools: toolItems(tools)}); err != nil {
				cancel()
			}
		},
	}

	result, err := h.engine.Run(ctx, input)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.logger.Info("client disconnected mid-turn", "session_id", sessionID)
			return
		}
		code, message := classifyTurnError(err)
		h.logger.Error("turn failed", "error", err, "code", code, "session_id", sessionID)
		if writeErr := writeEvent(w, flusher, eventError, errorPayload{Code: code, Message: message}); writeErr != nil {
			h.logger.Debug("write error event", "error", writeErr)
		}
		return
	}

	// The answer already streamed; losing persistence is logged, not
	// surfaced as a turn failure.
	transcript := []session.Message{
		{Role: agent.RoleUser, Content: prompt},
		{Role: agent.RoleModel, Content: result.Response},
	}
	if err := h.sessions.AppendMessages(r.Context(), sessionID, transcript); err != nil {
		h.logger.Error("append transcript", "error", err, "session_id", sessionID)
	}

	_ = writeEvent(w, flusher, eventDone, donePayload{
		Response:     result.Response,
		SessionID:    sessionID.String(),
		Tools:        toolItems(result.ToolCalls),
		UsedFallback: result.UsedFallback,
	})

	h.logger.Info("turn streamed",
		"session_id", sessionID,
		"agent", spec.ID,
		"tools", len(result.ToolCalls),
		"used_fallback", result.UsedFallback,
	)
}

// decodeAttachments validates request media and converts it for the run.
func decodeAttachments(attachments []mediaAttachment) ([]agent.Media, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	if len(attachments) > maxMediaAttachments {
		return nil, fmt.Errorf("at most %d media attachments per turn, got %d", maxMediaAttachments, len(attachments))
	}

	media := make([]agent.Media, len(attachments))
	for i, a := range attachments {
		if !strings.HasPrefix(a.ContentType, "image/") {
			return nil, fmt.Errorf("media[%d]: content type %q is not an image", i, a.ContentType)
		}
		if len(a.Data) == 0 {
			return nil, fmt.Errorf("media[%d]: empty data", i)
		}
		media[i] = agent.Media{ContentType: a.ContentType, Data: a.Data}
	}
	return media, nil
}

// toolItems converts reconciler tool refs to their wire form.
func toolItems(tools []stream.ToolRef) []toolItem {
	if len(tools) == 0 {
		return nil
	}
	items := make([]toolItem, len(tools))
	for i, t := range tools {
		items[i] = toolItem{Name: t.Name, Args: t.Args}
	}
	return items
}

// classifyTurnError maps engine errors to wire codes.
func classifyTurnError(err error) (code, message string) {
	switch {
	case errors.Is(err, turn.ErrRateLimited):
		return "rate_limited", "too many concurrent turns, retry shortly"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", "the turn timed out"
	default:
		return "turn_failed", "failed to produce a response"
	}
}

// writeEvent writes one SSE event with a JSON-encoded payload.
// Format: "event: <type>\ndata: <json>\n\n".
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}

	flusher.Flush()
	return nil
}
