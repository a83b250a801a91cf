package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/strand-ai/strand/internal/agent"
	"github.com/strand-ai/strand/internal/session"
	"github.com/strand-ai/strand/internal/turn"
)

// fakeEngine satisfies TurnRunner with a function field so each test
// scripts its own turn.
type fakeEngine struct {
	runFunc func(ctx context.Context, input turn.Input) (turn.Result, error)
}

func (f *fakeEngine) Run(ctx context.Context, input turn.Input) (turn.Result, error) {
	return f.runFunc(ctx, input)
}

// fakeStore is an in-memory SessionStore. Zero value is not usable;
// construct with newFakeStore.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]session.Session
	messages map[uuid.UUID][]session.Message
	notes    map[uuid.UUID][]session.Note
	nextNote int64
	nextMsg  int64

	appendErr error
	notesErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[uuid.UUID]session.Session),
		messages: make(map[uuid.UUID][]session.Message),
		notes:    make(map[uuid.UUID][]session.Note),
	}
}

// seedSession inserts a session directly, bypassing Create.
func (f *fakeStore) seedSession(sess session.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sess.ID] = sess
}

func (f *fakeStore) Create(_ context.Context, params session.CreateParams) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now().UTC()
	sess := session.Session{
		ID:        uuid.New(),
		UserID:    params.UserID,
		Title:     params.Title,
		AgentKey:  params.AgentKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.sessions[sess.ID] = sess
	return sess, nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sess, ok := f.sessions[id]
	if !ok {
		return session.Session{}, fmt.Errorf("session %s: %w", id, session.ErrNotFound)
	}
	return sess, nil
}

func (f *fakeStore) List(_ context.Context, limit, offset int32) ([]session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := make([]session.Session, 0, len(f.sessions))
	for _, sess := range f.sessions {
		all = append(all, sess)
	}
	if int(offset) >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if int(limit) < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeStore) Rename(_ context.Context, id uuid.UUID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sess, ok := f.sessions[id]; ok {
		sess.Title = title
		f.sessions[id] = sess
	}
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.sessions, id)
	delete(f.messages, id)
	delete(f.notes, id)
	return nil
}

func (f *fakeStore) AppendMessages(_ context.Context, sessionID uuid.UUID, messages []session.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.appendErr != nil {
		return f.appendErr
	}
	if _, ok := f.sessions[sessionID]; !ok {
		return fmt.Errorf("session %s: %w", sessionID, session.ErrNotFound)
	}
	seq := int32(len(f.messages[sessionID]))
	for _, m := range messages {
		f.nextMsg++
		seq++
		m.ID = f.nextMsg
		m.SessionID = sessionID
		m.Sequence = seq
		m.CreatedAt = time.Now().UTC()
		f.messages[sessionID] = append(f.messages[sessionID], m)
	}
	return nil
}

func (f *fakeStore) Messages(_ context.Context, sessionID uuid.UUID, limit int32) ([]session.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := f.messages[sessionID]
	if int(limit) < len(msgs) {
		msgs = msgs[:limit]
	}
	out := make([]session.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (f *fakeStore) History(_ context.Context, sessionID uuid.UUID, limit int32) ([]agent.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := f.messages[sessionID]
	if int(limit) < len(msgs) {
		msgs = msgs[len(msgs)-int(limit):]
	}
	out := make([]agent.Message, len(msgs))
	for i, m := range msgs {
		out[i] = agent.Message{Role: m.Role, Text: m.Content}
	}
	return out, nil
}

func (f *fakeStore) AddNote(_ context.Context, sessionID uuid.UUID, content string) (session.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextNote++
	note := session.Note{
		ID:        f.nextNote,
		SessionID: sessionID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	f.notes[sessionID] = append(f.notes[sessionID], note)
	return note, nil
}

func (f *fakeStore) RecentNotes(_ context.Context, sessionID uuid.UUID, limit int32) ([]session.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.notesErr != nil {
		return nil, f.notesErr
	}
	notes := f.notes[sessionID]
	if int(limit) < len(notes) {
		notes = notes[len(notes)-int(limit):]
	}
	out := make([]session.Note, len(notes))
	copy(out, notes)
	return out, nil
}

func (f *fakeStore) DeleteNote(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sessionID, notes := range f.notes {
		for i, n := range notes {
			if n.ID == id {
				f.notes[sessionID] = append(notes[:i], notes[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

// storedMessages reads back the appended transcript for assertions.
func (f *fakeStore) storedMessages(sessionID uuid.UUID) []session.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]session.Message, len(f.messages[sessionID]))
	copy(out, f.messages[sessionID])
	return out
}

// decodeData unwraps the success envelope into target.
func decodeData(t *testing.T, w *httptest.ResponseRecorder, target any) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, w.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		t.Fatalf("decode data: %v (data %q)", err, envelope.Data)
	}
}

// decodeErrorEnvelope unwraps the error envelope.
func decodeErrorEnvelope(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()

	var envelope struct {
		Error errorBody `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (body %q)", err, w.Body.String())
	}
	return envelope.Error
}
