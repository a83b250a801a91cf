// Package session persists conversations in PostgreSQL: sessions, their
// ordered message transcripts, and pinned notes.
//
// A session is the unit of history. After every completed turn the chat
// surfaces append the user and model messages through
// [Store.AppendMessages]; [Store.History] returns the trailing transcript
// window in the shape the turn engine consumes, and notes from
// [Store.RecentNotes] travel inside turn payloads.
//
// # Transaction Safety
//
// [Store.AppendMessages] locks the session row (SELECT ... FOR UPDATE)
// before reading the current maximum sequence number, so concurrent
// appends to the same session serialize instead of racing on sequence
// numbers. The whole batch commits or rolls back as one transaction.
//
// # Concurrency
//
// Store is safe for concurrent use. All state lives in PostgreSQL; the
// store holds no mutable Go-side state.
//
// # Local State
//
// [SaveCurrentSessionID] and [LoadCurrentSessionID] persist the CLI's
// active session under the user's home directory using atomic writes
// (temp file + rename) guarded by a [github.com/gofrs/flock] file lock,
// so concurrent CLI invocations never observe partial writes.
package session
