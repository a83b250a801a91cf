package tools_test

import (
	"context"
	"testing"

	"github.com/strand-ai/strand/internal/tools"
)

// recordingEmitter captures lifecycle callbacks for assertions.
type recordingEmitter struct {
	startCalls    []string
	completeCalls []string
	errorCalls    []string
}

func (m *recordingEmitter) OnToolStart(name string) {
	m.startCalls = append(m.startCalls, name)
}

func (m *recordingEmitter) OnToolComplete(name string) {
	m.completeCalls = append(m.completeCalls, name)
}

func (m *recordingEmitter) OnToolError(name string) {
	m.errorCalls = append(m.errorCalls, name)
}

var _ tools.Emitter = (*recordingEmitter)(nil)

func TestContextWithEmitter(t *testing.T) {
	t.Parallel()

	t.Run("stores emitter in context", func(t *testing.T) {
		t.Parallel()

		emitter := &recordingEmitter{}
		ctx := tools.ContextWithEmitter(context.Background(), emitter)

		retrieved := tools.EmitterFromContext(ctx)
		if retrieved == nil {
			t.Fatal("EmitterFromContext returned nil, want stored emitter")
		}
		retrieved.OnToolStart("probe")
		if len(emitter.startCalls) != 1 {
			t.Error("retrieved emitter does not match stored emitter")
		}
	})

	t.Run("overwrites previous emitter", func(t *testing.T) {
		t.Parallel()

		first := &recordingEmitter{}
		second := &recordingEmitter{}

		ctx := tools.ContextWithEmitter(context.Background(), first)
		ctx = tools.ContextWithEmitter(ctx, second)

		tools.EmitterFromContext(ctx).OnToolStart("probe")
		if len(second.startCalls) != 1 {
			t.Error("second emitter should receive calls")
		}
		if len(first.startCalls) != 0 {
			t.Error("first emitter should not receive calls after overwrite")
		}
	})
}

func TestEmitterFromContext_Missing(t *testing.T) {
	t.Parallel()

	if emitter := tools.EmitterFromContext(context.Background()); emitter != nil {
		t.Errorf("EmitterFromContext(empty) = %v, want nil", emitter)
	}
}
