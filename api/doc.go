// Package api provides the JSON HTTP server for strand.
//
// # Architecture
//
// The server uses Go 1.22+ routing with a layered middleware stack:
//
//	Recovery → Logging → CORS → Routes
//
// Probes (/health, /ready) hang off the outer mux ahead of the
// middleware stack, so they stay fast and unfiltered.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /health — liveness, returns {"status":"ok"}
//   - GET /ready  — readiness, pings the database pool when one is wired
//
// Turns:
//   - POST /api/turns — run one turn and stream the answer over SSE
//
// Session CRUD:
//   - GET    /api/sessions               — list sessions, most recent first
//   - POST   /api/sessions               — create a session
//   - GET    /api/sessions/{id}          — get one session
//   - PATCH  /api/sessions/{id}          — rename a session
//   - DELETE /api/sessions/{id}          — delete a session and its transcript
//   - GET    /api/sessions/{id}/messages — transcript, oldest first
//
// Notes:
//   - GET    /api/sessions/{id}/notes — recent notes, newest first
//   - POST   /api/sessions/{id}/notes — pin a note to the session
//   - DELETE /api/notes/{id}          — delete a note
//
// # Error Handling
//
// Every response body is wrapped in an envelope:
//
//	Success: {"data": <payload>}
//	Error:   {"error": {"code": "...", "message": "..."}}
//
// Turn failures after streaming starts are sent as SSE events
// (event: error), not HTTP error responses, since SSE headers are
// already committed.
//
// # SSE Streaming
//
// POST /api/turns streams typed events:
//
//   - delta: incremental answer text
//   - tools: the deduplicated tool list, re-sent each time it grows
//   - done:  final annotated answer with turn metadata
//   - error: turn-level failure
package api
