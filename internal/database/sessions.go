package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// SessionRow is one row of the sessions table.
type SessionRow struct {
	ID        uuid.UUID
	UserID    *string
	Title     *string
	AgentKey  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRow is one row of the session_messages table.
type MessageRow struct {
	ID        int64
	SessionID uuid.UUID
	Role      string
	Content   string
	Sequence  int32
	CreatedAt time.Time
}

// NoteRow is one row of the session_notes table.
type NoteRow struct {
	ID        int64
	SessionID uuid.UUID
	Content   string
	CreatedAt time.Time
}

// CreateSessionParams are the inputs for CreateSession. Nil pointers store
// SQL NULL.
type CreateSessionParams struct {
	UserID   *string
	Title    *string
	AgentKey *string
}

const createSession = `
INSERT INTO sessions (user_id, title, agent_key)
VALUES ($1, $2, $3)
RETURNING id, user_id, title, agent_key, created_at, updated_at
`

// CreateSession inserts a session and returns the stored row.
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (SessionRow, error) {
	row := q.db.QueryRow(ctx, createSession, arg.UserID, arg.Title, arg.AgentKey)
	return scanSession(row)
}

const getSession = `
SELECT id, user_id, title, agent_key, created_at, updated_at
FROM sessions
WHERE id = $1
`

// GetSession fetches one session by ID.
func (q *Queries) GetSession(ctx context.Context, id uuid.UUID) (SessionRow, error) {
	return scanSession(q.db.QueryRow(ctx, getSession, pgUUID(id)))
}

// ListSessionsParams are the inputs for ListSessions.
type ListSessionsParams struct {
	Limit  int32
	Offset int32
}

const listSessions = `
SELECT id, user_id, title, agent_key, created_at, updated_at
FROM sessions
ORDER BY updated_at DESC
LIMIT $1 OFFSET $2
`

// ListSessions returns sessions most recently updated first.
func (q *Queries) ListSessions(ctx context.Context, arg ListSessionsParams) ([]SessionRow, error) {
	rows, err := q.db.Query(ctx, listSessions, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionRow
	for rows.Next() {
		s, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

const touchSession = `UPDATE sessions SET updated_at = now() WHERE id = $1`

// TouchSession bumps a session's updated_at so it sorts to the top of
// recency-ordered listings.
func (q *Queries) TouchSession(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, touchSession, pgUUID(id))
	return err
}

const updateSessionTitle = `UPDATE sessions SET title = $2, updated_at = now() WHERE id = $1`

// UpdateSessionTitle replaces a session's title.
func (q *Queries) UpdateSessionTitle(ctx context.Context, id uuid.UUID, title string) error {
	_, err := q.db.Exec(ctx, updateSessionTitle, pgUUID(id), title)
	return err
}

const deleteSession = `DELETE FROM sessions WHERE id = $1`

// DeleteSession removes a session; messages and notes cascade.
func (q *Queries) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteSession, pgUUID(id))
	return err
}

const lockSession = `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`

// LockSession takes a row lock on the session for the duration of the
// surrounding transaction, serializing sequence-number assignment.
func (q *Queries) LockSession(ctx context.Context, id uuid.UUID) error {
	var locked pgtype.UUID
	if err := q.db.QueryRow(ctx, lockSession, pgUUID(id)).Scan(&locked); err != nil {
		return err
	}
	return nil
}

// AddMessageParams are the inputs for AddMessage.
type AddMessageParams struct {
	SessionID uuid.UUID
	Role      string
	Content   string
	Sequence  int32
}

const addMessage = `
INSERT INTO session_messages (session_id, role, content, sequence)
VALUES ($1, $2, $3, $4)
`

// AddMessage appends one message at the given sequence number.
func (q *Queries) AddMessage(ctx context.Context, arg AddMessageParams) error {
	_, err := q.db.Exec(ctx, addMessage,
		pgUUID(arg.SessionID), arg.Role, arg.Content, arg.Sequence)
	return err
}

// GetMessagesParams are the inputs for GetMessages.
type GetMessagesParams struct {
	SessionID uuid.UUID
	Limit     int32
}

const getMessages = `
SELECT id, session_id, role, content, sequence, created_at
FROM session_messages
WHERE session_id = $1
ORDER BY sequence ASC
LIMIT $2
`

// GetMessages returns a session's messages in conversation order.
func (q *Queries) GetMessages(ctx context.Context, arg GetMessagesParams) ([]MessageRow, error) {
	rows, err := q.db.Query(ctx, getMessages, pgUUID(arg.SessionID), arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

const recentMessages = `
SELECT id, session_id, role, content, sequence, created_at
FROM (
    SELECT id, session_id, role, content, sequence, created_at
    FROM session_messages
    WHERE session_id = $1
    ORDER BY sequence DESC
    LIMIT $2
) tail
ORDER BY sequence ASC
`

// RecentMessages returns the trailing window of a session's messages in
// conversation order: the newest LIMIT rows, oldest of those first.
func (q *Queries) RecentMessages(ctx context.Context, arg GetMessagesParams) ([]MessageRow, error) {
	rows, err := q.db.Query(ctx, recentMessages, pgUUID(arg.SessionID), arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]MessageRow, error) {
	var messages []MessageRow
	for rows.Next() {
		var m MessageRow
		var sid pgtype.UUID
		if err := rows.Scan(&m.ID, &sid, &m.Role, &m.Content, &m.Sequence, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SessionID = uuid.UUID(sid.Bytes)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

const maxSequence = `
SELECT COALESCE(MAX(sequence), 0) FROM session_messages WHERE session_id = $1
`

// MaxSequence returns the highest sequence number in the session, 0 when
// the session has no messages.
func (q *Queries) MaxSequence(ctx context.Context, sessionID uuid.UUID) (int32, error) {
	var seq int32
	err := q.db.QueryRow(ctx, maxSequence, pgUUID(sessionID)).Scan(&seq)
	return seq, err
}

// AddNoteParams are the inputs for AddNote.
type AddNoteParams struct {
	SessionID uuid.UUID
	Content   string
}

const addNote = `
INSERT INTO session_notes (session_id, content)
VALUES ($1, $2)
RETURNING id, session_id, content, created_at
`

// AddNote stores a pinned note for the session.
func (q *Queries) AddNote(ctx context.Context, arg AddNoteParams) (NoteRow, error) {
	row := q.db.QueryRow(ctx, addNote, pgUUID(arg.SessionID), arg.Content)
	return scanNote(row)
}

// ListRecentNotesParams are the inputs for ListRecentNotes.
type ListRecentNotesParams struct {
	SessionID uuid.UUID
	Limit     int32
}

const listRecentNotes = `
SELECT id, session_id, content, created_at
FROM session_notes
WHERE session_id = $1
ORDER BY id DESC
LIMIT $2
`

// ListRecentNotes returns the newest notes first; callers wanting
// chronological order reverse the slice.
func (q *Queries) ListRecentNotes(ctx context.Context, arg ListRecentNotesParams) ([]NoteRow, error) {
	rows, err := q.db.Query(ctx, listRecentNotes, pgUUID(arg.SessionID), arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []NoteRow
	for rows.Next() {
		n, scanErr := scanNote(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

const deleteNote = `DELETE FROM session_notes WHERE id = $1`

// DeleteNote removes one note by ID.
func (q *Queries) DeleteNote(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, deleteNote, id)
	return err
}

func scanSession(row pgx.Row) (SessionRow, error) {
	var s SessionRow
	var id pgtype.UUID
	if err := row.Scan(&id, &s.UserID, &s.Title, &s.AgentKey, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return SessionRow{}, err
	}
	s.ID = uuid.UUID(id.Bytes)
	return s, nil
}

func scanNote(row pgx.Row) (NoteRow, error) {
	var n NoteRow
	var sid pgtype.UUID
	if err := row.Scan(&n.ID, &sid, &n.Content, &n.CreatedAt); err != nil {
		return NoteRow{}, err
	}
	n.SessionID = uuid.UUID(sid.Bytes)
	return n, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
