package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/strand-ai/strand/internal/agent"
	"github.com/strand-ai/strand/internal/log"
	"github.com/strand-ai/strand/internal/session"
)

func newSessionsHandler(store SessionStore) *sessionsHandler {
	return &sessionsHandler{
		store:  store,
		cfg:    newTestConfig(),
		logger: log.NewNop(),
	}
}

func TestSessions_Create(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	h := newSessionsHandler(store)

	r := httptest.NewRequest(http.MethodPost, "/api/sessions",
		strings.NewReader(`{"title": "go questions", "agent": "research", "userId": "u-1"}`))
	w := httptest.NewRecorder()
	h.create(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %q)", w.Code, http.StatusCreated, w.Body.String())
	}

	var item sessionItem
	decodeData(t, w, &item)
	if item.Title != "go questions" {
		t.Errorf("title = %q, want %q", item.Title, "go questions")
	}
	if item.AgentKey != "research" {
		t.Errorf("agentKey = %q, want research", item.AgentKey)
	}
	if item.UserID != "u-1" {
		t.Errorf("userId = %q, want u-1", item.UserID)
	}
	if _, err := uuid.Parse(item.ID); err != nil {
		t.Errorf("id %q is not a UUID: %v", item.ID, err)
	}

	stored, err := store.Get(context.Background(), uuid.MustParse(item.ID))
	if err != nil {
		t.Fatalf("created session not in store: %v", err)
	}
	if stored.Title != "go questions" {
		t.Errorf("stored title = %q, want %q", stored.Title, "go questions")
	}
}

func TestSessions_Create_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"invalid json", "{nope", "invalid_json"},
		{"unknown agent", `{"agent": "nope"}`, "unknown_agent"},
		{"title too long", fmt.Sprintf(`{"title": %q}`, strings.Repeat("t", maxTitleLength+1)), "title_too_long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newSessionsHandler(newFakeStore())
			r := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.create(w, r)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if got := decodeErrorEnvelope(t, w).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestSessions_List(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	for i := 0; i < 3; i++ {
		if _, err := store.Create(context.Background(), session.CreateParams{Title: fmt.Sprintf("chat %d", i)}); err != nil {
			t.Fatalf("seed session: %v", err)
		}
	}
	h := newSessionsHandler(store)

	r := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	w := httptest.NewRecorder()
	h.list(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var items []sessionItem
	decodeData(t, w, &items)
	if len(items) != 3 {
		t.Errorf("got %d sessions, want 3", len(items))
	}

	r = httptest.NewRequest(http.MethodGet, "/api/sessions?limit=2", nil)
	w = httptest.NewRecorder()
	h.list(w, r)

	decodeData(t, w, &items)
	if len(items) != 2 {
		t.Errorf("got %d sessions with limit=2, want 2", len(items))
	}
}

func TestSessions_Get(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sess, err := store.Create(context.Background(), session.CreateParams{Title: "found"})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	h := newSessionsHandler(store)

	tests := []struct {
		name       string
		id         string
		wantStatus int
		wantCode   string
	}{
		{"existing", sess.ID.String(), http.StatusOK, ""},
		{"malformed id", "not-a-uuid", http.StatusBadRequest, "invalid_id"},
		{"missing", uuid.NewString(), http.StatusNotFound, "session_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/api/sessions/"+tt.id, nil)
			r.SetPathValue("id", tt.id)
			w := httptest.NewRecorder()
			h.get(w, r)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if got := decodeErrorEnvelope(t, w).Code; got != tt.wantCode {
					t.Errorf("code = %q, want %q", got, tt.wantCode)
				}
				return
			}

			var item sessionItem
			decodeData(t, w, &item)
			if item.Title != "found" {
				t.Errorf("title = %q, want found", item.Title)
			}
		})
	}
}

func TestSessions_Rename(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sess, err := store.Create(context.Background(), session.CreateParams{Title: "old"})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	h := newSessionsHandler(store)

	rename := func(id, body string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPatch, "/api/sessions/"+id, strings.NewReader(body))
		r.SetPathValue("id", id)
		w := httptest.NewRecorder()
		h.rename(w, r)
		return w
	}

	w := rename(sess.ID.String(), `{"title": "new"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d (body %q)", w.Code, http.StatusNoContent, w.Body.String())
	}
	got, err := store.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("get renamed session: %v", err)
	}
	if got.Title != "new" {
		t.Errorf("title = %q, want new", got.Title)
	}

	w = rename(sess.ID.String(), `{"title": "  "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank title status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := decodeErrorEnvelope(t, w).Code; code != "title_required" {
		t.Errorf("code = %q, want title_required", code)
	}

	w = rename(uuid.NewString(), `{"title": "new"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSessions_Delete(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sess, err := store.Create(context.Background(), session.CreateParams{})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	h := newSessionsHandler(store)

	del := func(id string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil)
		r.SetPathValue("id", id)
		w := httptest.NewRecorder()
		h.delete(w, r)
		return w
	}

	if w := del(sess.ID.String()); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if _, err := store.Get(context.Background(), sess.ID); err == nil {
		t.Error("session still present after delete")
	}

	// Deleting again converges on the same state.
	if w := del(sess.ID.String()); w.Code != http.StatusNoContent {
		t.Fatalf("repeat delete status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestSessions_Messages(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sess, err := store.Create(context.Background(), session.CreateParams{})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := store.AppendMessages(context.Background(), sess.ID, []session.Message{
		{Role: agent.RoleUser, Content: "hi"},
		{Role: agent.RoleModel, Content: "hello"},
	}); err != nil {
		t.Fatalf("seed messages: %v", err)
	}
	h := newSessionsHandler(store)

	r := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sess.ID.String()+"/messages", nil)
	r.SetPathValue("id", sess.ID.String())
	w := httptest.NewRecorder()
	h.messages(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var items []messageItem
	decodeData(t, w, &items)
	if len(items) != 2 {
		t.Fatalf("got %d messages, want 2", len(items))
	}
	if items[0].Role != agent.RoleUser || items[0].Content != "hi" {
		t.Errorf("first message = %+v", items[0])
	}
	if items[1].Sequence <= items[0].Sequence {
		t.Errorf("sequences not increasing: %d then %d", items[0].Sequence, items[1].Sequence)
	}

	missing := uuid.NewString()
	r = httptest.NewRequest(http.MethodGet, "/api/sessions/"+missing+"/messages", nil)
	r.SetPathValue("id", missing)
	w = httptest.NewRecorder()
	h.messages(w, r)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSessions_Notes(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sess, err := store.Create(context.Background(), session.CreateParams{})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	h := newSessionsHandler(store)

	addNote := func(body string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/sessions/"+sess.ID.String()+"/notes", strings.NewReader(body))
		r.SetPathValue("id", sess.ID.String())
		w := httptest.NewRecorder()
		h.addNote(w, r)
		return w
	}

	w := addNote(`{"content": "prefers Go examples"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %q)", w.Code, http.StatusCreated, w.Body.String())
	}
	var created noteItem
	decodeData(t, w, &created)
	if created.Content != "prefers Go examples" {
		t.Errorf("content = %q, want %q", created.Content, "prefers Go examples")
	}
	if created.ID == 0 {
		t.Error("note id not assigned")
	}

	w = addNote(`{"content": "  "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank note status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := decodeErrorEnvelope(t, w).Code; code != "content_required" {
		t.Errorf("code = %q, want content_required", code)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sess.ID.String()+"/notes", nil)
	r.SetPathValue("id", sess.ID.String())
	w = httptest.NewRecorder()
	h.notes(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", w.Code, http.StatusOK)
	}
	var items []noteItem
	decodeData(t, w, &items)
	if len(items) != 1 {
		t.Fatalf("got %d notes, want 1", len(items))
	}

	deleteNote := func(id string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodDelete, "/api/notes/"+id, nil)
		r.SetPathValue("id", id)
		w := httptest.NewRecorder()
		h.deleteNote(w, r)
		return w
	}

	if w := deleteNote(fmt.Sprint(created.ID)); w.Code != http.StatusNoContent {
		t.Fatalf("delete note status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w := deleteNote("abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad note id status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestParseIntParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  int32
	}{
		{"missing", "", 50},
		{"garbage", "limit=abc", 50},
		{"valid", "limit=25", 25},
		{"below min", "limit=0", 1},
		{"above max", "limit=9999", 200},
		{"negative", "limit=-3", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/api/sessions?"+tt.query, nil)
			if got := parseIntParam(r, "limit", 50, 1, 200); got != tt.want {
				t.Errorf("parseIntParam() = %d, want %d", got, tt.want)
			}
		})
	}
}
