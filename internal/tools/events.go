package tools

import (
	"github.com/firebase/genkit/go/ai"
)

// WithEvents wraps a typed tool handler so it reports lifecycle
// transitions to the Emitter carried in the call context. With no emitter
// set the wrapper is a pass-through, which keeps non-streaming callers
// (the fallback generator, MCP clients) oblivious to event plumbing.
func WithEvents[In, Out any](name string, fn func(*ai.ToolContext, In) (Out, error)) func(*ai.ToolContext, In) (Out, error) {
	return func(ctx *ai.ToolContext, input In) (Out, error) {
		emitter := EmitterFromContext(ctx.Context)
		if emitter == nil {
			return fn(ctx, input)
		}

		emitter.OnToolStart(name)
		result, err := fn(ctx, input)
		if err != nil {
			emitter.OnToolError(name)
			return result, err
		}
		emitter.OnToolComplete(name)
		return result, nil
	}
}
