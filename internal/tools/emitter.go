package tools

import (
	"context"
)

// emitterKey is an unexported context key; the empty struct costs nothing.
type emitterKey struct{}

// Emitter receives tool lifecycle callbacks. It carries only the tool
// name; how an event is rendered or forwarded is the consumer's business.
//
// The streaming backend binds an Emitter per run and stores it in the
// generation context via ContextWithEmitter. Wrapped tool handlers
// retrieve it with EmitterFromContext and report start, completion, and
// failure around the actual work.
type Emitter interface {
	// OnToolStart signals that the named tool began executing.
	OnToolStart(name string)

	// OnToolComplete signals that the named tool finished successfully.
	OnToolComplete(name string)

	// OnToolError signals that the named tool returned an error.
	OnToolError(name string)
}

// EmitterFromContext retrieves the Emitter from ctx. It returns nil when
// none is set; callers treat that as "emit nothing", so non-streaming
// paths need no special handling.
func EmitterFromContext(ctx context.Context) Emitter {
	emitter, _ := ctx.Value(emitterKey{}).(Emitter)
	return emitter
}

// ContextWithEmitter stores an Emitter in ctx for the duration of one run.
func ContextWithEmitter(ctx context.Context, emitter Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, emitter)
}
