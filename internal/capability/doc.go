// Package capability manages connections to external tool providers for
// the duration of a turn.
//
// A [Ref] names one provider and how to reach it, either a local command
// speaking the tool protocol over stdio or a streamable HTTP endpoint.
// The [Manager] acquires connections for every provider an agent or team
// references, retrying transient failures and consulting a process-wide
// [Breaker] so providers that keep failing are skipped for a cooldown
// period instead of stalling every turn. Acquired connections are bundled
// in a [Set] and released in reverse acquisition order at turn end, on
// every exit path including cancellation.
//
// The [Breaker] is created once at startup and injected; it is the only
// state this package shares across concurrent turns.
package capability
