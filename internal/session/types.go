package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is one conversation: the unit transcripts and notes attach to.
type Session struct {
	ID        uuid.UUID
	UserID    string
	Title     string
	AgentKey  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one transcript entry. Roles follow the agent package's
// conversation role constants.
type Message struct {
	ID        int64
	SessionID uuid.UUID
	Role      string
	Content   string
	Sequence  int32
	CreatedAt time.Time
}

// Note is a pinned user note. Chat surfaces inject recent notes into
// every turn payload until the note is deleted.
type Note struct {
	ID        int64
	SessionID uuid.UUID
	Content   string
	CreatedAt time.Time
}
