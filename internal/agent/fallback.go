package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/strand-ai/strand/internal/log"
)

// FallbackResponseMessage is the last-resort reply when generation failed
// on both the streaming and the synchronous path.
const FallbackResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// FallbackRequest carries everything the synchronous retry needs. Payload
// is the composed prompt of the failed turn, knowledge context included.
type FallbackRequest struct {
	Config  Config
	Payload string
	History []Message
}

// Generator produces a plain synchronous completion when streaming yielded
// nothing usable. It runs without tools and without capability
// connections: by the time it is called those already failed once.
type Generator struct {
	g      *genkit.Genkit
	logger log.Logger
}

// NewGenerator creates a fallback generator.
func NewGenerator(g *genkit.Genkit, logger log.Logger) (*Generator, error) {
	if g == nil {
		return nil, errors.New("genkit instance is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Generator{g: g, logger: logger}, nil
}

// Generate retries the turn synchronously. Generation failures and empty
// completions degrade to the apology message; the only error returned is
// context cancellation, so a broken provider never sinks the turn twice.
func (f *Generator) Generate(ctx context.Context, req FallbackRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Config.Model == "" || strings.TrimSpace(req.Payload) == "" {
		return FallbackResponseMessage, nil
	}

	messages := make([]*ai.Message, 0, len(req.History)+1)
	messages = append(messages, historyMessages(req.History)...)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(req.Payload)))

	opts := []ai.GenerateOption{
		ai.WithModelName(req.Config.Model),
		ai.WithMessages(messages...),
	}
	if instructions := systemText(req.Config); instructions != "" {
		opts = append(opts, ai.WithSystem(instructions))
	}
	if gc := generationConfig(req.Config); gc != nil {
		opts = append(opts, ai.WithConfig(gc))
	}

	resp, err := genkit.Generate(ctx, f.g, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		f.logger.Warn("fallback generation failed", "agent", req.Config.Name, "error", err)
		return FallbackResponseMessage, nil
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		f.logger.Warn("fallback generation returned empty text", "agent", req.Config.Name)
		return FallbackResponseMessage, nil
	}
	return text, nil
}
