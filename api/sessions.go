package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strand-ai/strand/internal/agent"
	"github.com/strand-ai/strand/internal/config"
	"github.com/strand-ai/strand/internal/log"
	"github.com/strand-ai/strand/internal/session"
)

const (
	// maxTitleLength caps session titles.
	maxTitleLength = 256

	// maxNoteLength caps pinned note content.
	maxNoteLength = 4 << 10

	defaultListLimit = 50
	maxListLimit     = 200

	defaultMessagesLimit = 200
	maxMessagesLimit     = 1000
)

// SessionStore is the persistence surface the handlers need.
// *session.Store satisfies it.
type SessionStore interface {
	Create(ctx context.Context, params session.CreateParams) (session.Session, error)
	Get(ctx context.Context, id uuid.UUID) (session.Session, error)
	List(ctx context.Context, limit, offset int32) ([]session.Session, error)
	Rename(ctx context.Context, id uuid.UUID, title string) error
	Delete(ctx context.Context, id uuid.UUID) error
	AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []session.Message) error
	Messages(ctx context.Context, sessionID uuid.UUID, limit int32) ([]session.Message, error)
	History(ctx context.Context, sessionID uuid.UUID, limit int32) ([]agent.Message, error)
	AddNote(ctx context.Context, sessionID uuid.UUID, content string) (session.Note, error)
	RecentNotes(ctx context.Context, sessionID uuid.UUID, limit int32) ([]session.Note, error)
	DeleteNote(ctx context.Context, id int64) error
}

// sessionItem is the wire form of a session.
type sessionItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	AgentKey  string `json:"agentKey,omitempty"`
	UserID    string `json:"userId,omitempty"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// messageItem is the wire form of one transcript message.
type messageItem struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Sequence  int32  `json:"sequence"`
	CreatedAt string `json:"createdAt"`
}

// noteItem is the wire form of one pinned note.
type noteItem struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// sessionsHandler serves the session CRUD, transcript and note routes.
type sessionsHandler struct {
	store  SessionStore
	cfg    *config.Config
	logger log.Logger
}

type createSessionRequest struct {
	Title  string `json:"title,omitempty"`
	Agent  string `json:"agent,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// create handles POST /api/sessions. All fields are optional; an agent
// key, when given, must match a configured agent.
func (h *sessionsHandler) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", h.logger)
		return
	}

	title := strings.TrimSpace(req.Title)
	if len(title) > maxTitleLength {
		writeError(w, http.StatusBadRequest, "title_too_long",
			fmt.Sprintf("title exceeds %d characters", maxTitleLength), h.logger)
		return
	}
	if req.Agent != "" {
		if _, ok := h.cfg.AgentByID(req.Agent); !ok {
			writeError(w, http.StatusBadRequest, "unknown_agent",
				fmt.Sprintf("agent %q is not configured", req.Agent), h.logger)
			return
		}
	}

	sess, err := h.store.Create(r.Context(), session.CreateParams{
		UserID:   strings.TrimSpace(req.UserID),
		Title:    title,
		AgentKey: req.Agent,
	})
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create session", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionItem(sess), h.logger)
}

// list handles GET /api/sessions, most recently updated first.
func (h *sessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", defaultListLimit, 1, maxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, 1<<30)

	sessions, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list sessions", h.logger)
		return
	}

	items := make([]sessionItem, len(sessions))
	for i, sess := range sessions {
		items[i] = toSessionItem(sess)
	}
	writeJSON(w, http.StatusOK, items, h.logger)
}

// get handles GET /api/sessions/{id}.
func (h *sessionsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.notFoundOrError(w, err, id, "get session")
		return
	}

	writeJSON(w, http.StatusOK, toSessionItem(sess), h.logger)
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

// rename handles PATCH /api/sessions/{id}.
func (h *sessionsHandler) rename(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	var req renameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", h.logger)
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title_required", "title is required", h.logger)
		return
	}
	if len(title) > maxTitleLength {
		writeError(w, http.StatusBadRequest, "title_too_long",
			fmt.Sprintf("title exceeds %d characters", maxTitleLength), h.logger)
		return
	}

	// Rename is a no-op on missing rows, so existence gets checked first
	// to keep 404 semantics.
	if _, err := h.store.Get(r.Context(), id); err != nil {
		h.notFoundOrError(w, err, id, "get session")
		return
	}

	if err := h.store.Rename(r.Context(), id, title); err != nil {
		h.logger.Error("rename session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "rename_failed", "failed to rename session", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// delete handles DELETE /api/sessions/{id}. Deleting a missing session
// succeeds; the end state is the same.
func (h *sessionsHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete session", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// messages handles GET /api/sessions/{id}/messages in transcript order.
func (h *sessionsHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if _, err := h.store.Get(r.Context(), id); err != nil {
		h.notFoundOrError(w, err, id, "get session")
		return
	}

	limit := parseIntParam(r, "limit", defaultMessagesLimit, 1, maxMessagesLimit)
	messages, err := h.store.Messages(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("list messages", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "messages_failed", "failed to list messages", h.logger)
		return
	}

	items := make([]messageItem, len(messages))
	for i, m := range messages {
		items[i] = messageItem{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Sequence:  m.Sequence,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, items, h.logger)
}

// notes handles GET /api/sessions/{id}/notes in chronological order.
func (h *sessionsHandler) notes(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if _, err := h.store.Get(r.Context(), id); err != nil {
		h.notFoundOrError(w, err, id, "get session")
		return
	}

	limit := parseIntParam(r, "limit", defaultListLimit, 1, maxListLimit)
	notes, err := h.store.RecentNotes(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("list notes", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "notes_failed", "failed to list notes", h.logger)
		return
	}

	items := make([]noteItem, len(notes))
	for i, n := range notes {
		items[i] = toNoteItem(n)
	}
	writeJSON(w, http.StatusOK, items, h.logger)
}

type addNoteRequest struct {
	Content string `json:"content"`
}

// addNote handles POST /api/sessions/{id}/notes.
func (h *sessionsHandler) addNote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	var req addNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", h.logger)
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content_required", "note content is required", h.logger)
		return
	}
	if len(content) > maxNoteLength {
		writeError(w, http.StatusBadRequest, "content_too_long",
			fmt.Sprintf("note exceeds %d bytes", maxNoteLength), h.logger)
		return
	}

	if _, err := h.store.Get(r.Context(), id); err != nil {
		h.notFoundOrError(w, err, id, "get session")
		return
	}

	note, err := h.store.AddNote(r.Context(), id, content)
	if err != nil {
		h.logger.Error("add note", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "add_note_failed", "failed to add note", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, toNoteItem(note), h.logger)
}

// deleteNote handles DELETE /api/notes/{id}. Missing notes delete
// cleanly.
func (h *sessionsHandler) deleteNote(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "note id must be an integer", h.logger)
		return
	}

	if err := h.store.DeleteNote(r.Context(), id); err != nil {
		h.logger.Error("delete note", "error", err, "note_id", id)
		writeError(w, http.StatusInternalServerError, "delete_note_failed", "failed to delete note", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// sessionID extracts and parses the {id} path segment, writing the
// error response itself when the value is not a UUID.
func (h *sessionsHandler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "session id must be a UUID", h.logger)
		return uuid.Nil, false
	}
	return id, true
}

// notFoundOrError maps store lookup failures to 404 or 500.
func (h *sessionsHandler) notFoundOrError(w http.ResponseWriter, err error, id uuid.UUID, op string) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session_not_found", "session does not exist", h.logger)
		return
	}
	h.logger.Error(op, "error", err, "session_id", id)
	writeError(w, http.StatusInternalServerError, "lookup_failed", "failed to load session", h.logger)
}

func toSessionItem(sess session.Session) sessionItem {
	return sessionItem{
		ID:        sess.ID.String(),
		Title:     sess.Title,
		AgentKey:  sess.AgentKey,
		UserID:    sess.UserID,
		CreatedAt: sess.CreatedAt.Format(time.RFC3339),
		UpdatedAt: sess.UpdatedAt.Format(time.RFC3339),
	}
}

func toNoteItem(n session.Note) noteItem {
	return noteItem{
		ID:        n.ID,
		Content:   n.Content,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
}

// parseIntParam reads an integer query parameter, falling back to def
// on absence or garbage and clamping to [min, max].
func parseIntParam(r *http.Request, name string, def, min, max int32) int32 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return def
	}
	n := int32(v)
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
