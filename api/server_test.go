package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/strand-ai/strand/internal/config"
	"github.com/strand-ai/strand/internal/log"
	"github.com/strand-ai/strand/internal/session"
	"github.com/strand-ai/strand/internal/testutil"
	"github.com/strand-ai/strand/internal/turn"
)

func TestNewServer_Validation(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{runFunc: func(context.Context, turn.Input) (turn.Result, error) {
		return turn.Result{}, nil
	}}
	store := newFakeStore()
	cfg := newTestConfig()

	tests := []struct {
		name    string
		sc      ServerConfig
		wantErr string
	}{
		{
			name:    "missing engine",
			sc:      ServerConfig{Sessions: store, Config: cfg},
			wantErr: "turn engine",
		},
		{
			name:    "missing sessions",
			sc:      ServerConfig{Engine: engine, Config: cfg},
			wantErr: "session store",
		},
		{
			name:    "missing config",
			sc:      ServerConfig{Engine: engine, Sessions: store},
			wantErr: "config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewServer(tt.sc)
			if err == nil {
				t.Fatal("NewServer() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func newTestServer(t *testing.T, engine TurnRunner, store SessionStore) *Server {
	t.Helper()

	cfg := newTestConfig()
	cfg.Server = config.ServerConfig{
		CORSOrigins: []string{"https://app.example.com"},
	}

	srv, err := NewServer(ServerConfig{
		Logger:   log.NewNop(),
		Engine:   engine,
		Sessions: store,
		Config:   cfg,
	})
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	return srv
}

func TestServer_Routes(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{runFunc: func(_ context.Context, input turn.Input) (turn.Result, error) {
		input.OnPartial("routed")
		return turn.Result{Response: "routed"}, nil
	}}
	store := newFakeStore()
	sess, err := store.Create(context.Background(), session.CreateParams{Title: "routing"})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	handler := newTestServer(t, engine, store).Handler()

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var r *http.Request
		if body == "" {
			r = httptest.NewRequest(method, path, nil)
		} else {
			r = httptest.NewRequest(method, path, strings.NewReader(body))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	if w := do(http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", w.Code)
	}
	if w := do(http.MethodGet, "/ready", ""); w.Code != http.StatusOK {
		t.Errorf("GET /ready = %d, want 200", w.Code)
	}
	if w := do(http.MethodPost, "/api/sessions", `{"title": "x"}`); w.Code != http.StatusCreated {
		t.Errorf("POST /api/sessions = %d, want 201 (body %q)", w.Code, w.Body.String())
	}
	if w := do(http.MethodGet, "/api/sessions", ""); w.Code != http.StatusOK {
		t.Errorf("GET /api/sessions = %d, want 200", w.Code)
	}
	if w := do(http.MethodGet, "/api/sessions/"+sess.ID.String(), ""); w.Code != http.StatusOK {
		t.Errorf("GET /api/sessions/{id} = %d, want 200", w.Code)
	}
	if w := do(http.MethodGet, "/api/sessions/not-a-uuid", ""); w.Code != http.StatusBadRequest {
		t.Errorf("GET /api/sessions/not-a-uuid = %d, want 400", w.Code)
	}
	if w := do(http.MethodGet, "/api/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET /api/nope = %d, want 404", w.Code)
	}
	if w := do(http.MethodDelete, "/api/turns", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /api/turns = %d, want 405", w.Code)
	}
}

// TestServer_TurnStreamsThroughMiddleware runs a turn through the full
// chain, which requires every wrapper to pass Flush down to the
// recorder.
func TestServer_TurnStreamsThroughMiddleware(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{runFunc: func(_ context.Context, input turn.Input) (turn.Result, error) {
		input.OnPartial("streamed ")
		input.OnPartial("streamed answer")
		return turn.Result{Response: "streamed answer"}, nil
	}}
	store := newFakeStore()
	sess, err := store.Create(context.Background(), session.CreateParams{})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	handler := newTestServer(t, engine, store).Handler()

	body := fmt.Sprintf(`{"sessionId": %q, "prompt": "hello"}`, sess.ID)
	r := httptest.NewRequest(http.MethodPost, "/api/turns", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", w.Code, w.Body.String())
	}
	if !w.Flushed {
		t.Error("response never flushed; SSE would sit in a buffer")
	}

	events := testutil.ParseSSEEvents(t, w.Body.String())
	if len(testutil.FindAllEvents(events, eventDelta)) != 2 {
		t.Errorf("delta events = %d, want 2", len(testutil.FindAllEvents(events, eventDelta)))
	}
	if testutil.FindEvent(events, eventDone) == nil {
		t.Error("no done event")
	}
}

// TestServer_ProbesSkipCORS pins health endpoints outside the
// middleware chain: same origin, different routes, no CORS headers.
func TestServer_ProbesSkipCORS(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{runFunc: func(context.Context, turn.Input) (turn.Result, error) {
		return turn.Result{}, nil
	}}
	handler := newTestServer(t, engine, newFakeStore()).Handler()

	probe := httptest.NewRequest(http.MethodGet, "/health", nil)
	probe.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, probe)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("/health Access-Control-Allow-Origin = %q, want empty", got)
	}

	apiReq := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	apiReq.Header.Set("Origin", "https://app.example.com")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, apiReq)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("/api Access-Control-Allow-Origin = %q, want the origin echoed", got)
	}
}
