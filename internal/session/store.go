package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strand-ai/strand/internal/agent"
	"github.com/strand-ai/strand/internal/database"
	"github.com/strand-ai/strand/internal/log"
)

// ErrNotFound reports that the requested session does not exist. Callers
// distinguish it from infrastructure failures with errors.Is.
var ErrNotFound = errors.New("session not found")

// Result windows applied when the caller passes a non-positive limit.
const (
	defaultListLimit    int32 = 50
	defaultMessageLimit int32 = 500
	defaultNoteLimit    int32 = 20
)

// Querier is the database surface the store consumes outside of
// transactions. *database.Queries satisfies it; the transactional append
// path constructs its own queries over the open transaction.
type Querier interface {
	CreateSession(ctx context.Context, arg database.CreateSessionParams) (database.SessionRow, error)
	GetSession(ctx context.Context, id uuid.UUID) (database.SessionRow, error)
	ListSessions(ctx context.Context, arg database.ListSessionsParams) ([]database.SessionRow, error)
	UpdateSessionTitle(ctx context.Context, id uuid.UUID, title string) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	GetMessages(ctx context.Context, arg database.GetMessagesParams) ([]database.MessageRow, error)
	RecentMessages(ctx context.Context, arg database.GetMessagesParams) ([]database.MessageRow, error)
	AddNote(ctx context.Context, arg database.AddNoteParams) (database.NoteRow, error)
	ListRecentNotes(ctx context.Context, arg database.ListRecentNotesParams) ([]database.NoteRow, error)
	DeleteNote(ctx context.Context, id int64) error
}

// Store persists sessions, transcripts and notes.
type Store struct {
	queries Querier
	pool    *pgxpool.Pool
	logger  log.Logger
}

// NewStore creates a Store. The pool backs the transactional append path;
// a nil logger disables store logging.
func NewStore(queries Querier, pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{queries: queries, pool: pool, logger: logger}
}

// CreateParams are the optional attributes of a new session. Blank fields
// store SQL NULL.
type CreateParams struct {
	UserID   string
	Title    string
	AgentKey string
}

// Create starts a new session.
func (s *Store) Create(ctx context.Context, params CreateParams) (Session, error) {
	row, err := s.queries.CreateSession(ctx, database.CreateSessionParams{
		UserID:   nullable(params.UserID),
		Title:    nullable(params.Title),
		AgentKey: nullable(params.AgentKey),
	})
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	sess := rowToSession(row)
	s.logger.Debug("session created", "id", sess.ID, "title", sess.Title)
	return sess, nil
}

// Get fetches one session, returning ErrNotFound when it does not exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	row, err := s.queries.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return rowToSession(row), nil
}

// List returns sessions most recently updated first.
func (s *Store) List(ctx context.Context, limit, offset int32) ([]Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.queries.ListSessions(ctx, database.ListSessionsParams{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, rowToSession(row))
	}
	return sessions, nil
}

// Rename replaces the session title and bumps its recency.
func (s *Store) Rename(ctx context.Context, id uuid.UUID, title string) error {
	if err := s.queries.UpdateSessionTitle(ctx, id, title); err != nil {
		return fmt.Errorf("rename session %s: %w", id, err)
	}
	return nil
}

// Delete removes a session; its messages and notes cascade. Deleting a
// session that does not exist is not an error.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.queries.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	s.logger.Debug("session deleted", "id", id)
	return nil
}

// AppendMessages appends a turn's transcript entries in order, assigning
// consecutive sequence numbers after the session's current maximum. The
// session row is locked first, so concurrent appends to the same session
// serialize; the whole batch commits or rolls back as one transaction.
func (s *Store) AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	if s.pool == nil {
		return errors.New("session store has no database pool")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := database.New(tx)

	if err := q.LockSession(ctx, sessionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return fmt.Errorf("lock session %s: %w", sessionID, err)
	}

	seq, err := q.MaxSequence(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("max sequence for session %s: %w", sessionID, err)
	}

	for i, msg := range messages {
		seq++
		if err := q.AddMessage(ctx, database.AddMessageParams{
			SessionID: sessionID,
			Role:      msg.Role,
			Content:   msg.Content,
			Sequence:  seq,
		}); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if err := q.TouchSession(ctx, sessionID); err != nil {
		return fmt.Errorf("touch session %s: %w", sessionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debug("messages appended",
		"session_id", sessionID, "count", len(messages), "last_sequence", seq)
	return nil
}

// Messages returns a session's transcript oldest first.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID, limit int32) ([]Message, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	rows, err := s.queries.GetMessages(ctx, database.GetMessagesParams{
		SessionID: sessionID,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("messages for session %s: %w", sessionID, err)
	}

	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, rowToMessage(row))
	}
	return messages, nil
}

// History returns the trailing window of a session's transcript in the
// shape the turn engine consumes. Unlike Messages it keeps the newest
// entries when the transcript exceeds the limit.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID, limit int32) ([]agent.Message, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	rows, err := s.queries.RecentMessages(ctx, database.GetMessagesParams{
		SessionID: sessionID,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("history for session %s: %w", sessionID, err)
	}

	history := make([]agent.Message, 0, len(rows))
	for _, row := range rows {
		history = append(history, agent.Message{Role: row.Role, Text: row.Content})
	}
	return history, nil
}

// AddNote pins a note to the session. Notes ride along in turn payloads
// until deleted.
func (s *Store) AddNote(ctx context.Context, sessionID uuid.UUID, content string) (Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Note{}, errors.New("note content is empty")
	}

	row, err := s.queries.AddNote(ctx, database.AddNoteParams{
		SessionID: sessionID,
		Content:   content,
	})
	if err != nil {
		return Note{}, fmt.Errorf("add note to session %s: %w", sessionID, err)
	}
	return rowToNote(row), nil
}

// RecentNotes returns the newest notes in chronological order.
func (s *Store) RecentNotes(ctx context.Context, sessionID uuid.UUID, limit int32) ([]Note, error) {
	if limit <= 0 {
		limit = defaultNoteLimit
	}

	rows, err := s.queries.ListRecentNotes(ctx, database.ListRecentNotesParams{
		SessionID: sessionID,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("notes for session %s: %w", sessionID, err)
	}

	// The query returns newest first; flip to reading order.
	notes := make([]Note, len(rows))
	for i, row := range rows {
		notes[len(rows)-1-i] = rowToNote(row)
	}
	return notes, nil
}

// DeleteNote removes one note.
func (s *Store) DeleteNote(ctx context.Context, id int64) error {
	if err := s.queries.DeleteNote(ctx, id); err != nil {
		return fmt.Errorf("delete note %d: %w", id, err)
	}
	return nil
}

func rowToSession(row database.SessionRow) Session {
	sess := Session{
		ID:        row.ID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.UserID != nil {
		sess.UserID = *row.UserID
	}
	if row.Title != nil {
		sess.Title = *row.Title
	}
	if row.AgentKey != nil {
		sess.AgentKey = *row.AgentKey
	}
	return sess
}

func rowToMessage(row database.MessageRow) Message {
	return Message{
		ID:        row.ID,
		SessionID: row.SessionID,
		Role:      row.Role,
		Content:   row.Content,
		Sequence:  row.Sequence,
		CreatedAt: row.CreatedAt,
	}
}

func rowToNote(row database.NoteRow) Note {
	return Note{
		ID:        row.ID,
		SessionID: row.SessionID,
		Content:   row.Content,
		CreatedAt: row.CreatedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
