package tools

import (
	"errors"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/strand-ai/strand/internal/log"
)

// CurrentTimeName is the Genkit tool name for retrieving the current time.
const CurrentTimeName = "current_time"

// CurrentTimeInput defines input for the current_time tool (none needed).
type CurrentTimeInput struct{}

// Clock answers current-time questions. Models cannot know the date on
// their own; the roster gives research agents this tool so relative-time
// answers stay grounded.
type Clock struct {
	now    func() time.Time
	logger log.Logger
}

// NewClock creates a Clock reading the system time.
func NewClock(logger log.Logger) (*Clock, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Clock{now: time.Now, logger: logger}, nil
}

// RegisterClock registers the current_time tool with Genkit.
func RegisterClock(g *genkit.Genkit, c *Clock) ([]ai.Tool, error) {
	if g == nil {
		return nil, errors.New("genkit instance is required")
	}
	if c == nil {
		return nil, errors.New("clock is required")
	}

	return []ai.Tool{
		genkit.DefineTool(g, CurrentTimeName,
			"Get the current system date and time. "+
				"Returns: formatted time string, Unix timestamp, and ISO 8601 format. "+
				"Use this to: check the current time, calculate relative times, timestamp outputs. "+
				"Always returns the server's local time zone. "+
				"IMPORTANT: Call this before answering ANY question about current dates, times, "+
				"ages, durations, or how long ago something happened.",
			WithEvents(CurrentTimeName, c.CurrentTime)),
	}, nil
}

// CurrentTime returns the current date and time in multiple formats.
func (c *Clock) CurrentTime(_ *ai.ToolContext, _ CurrentTimeInput) (Result, error) {
	now := c.now()
	c.logger.Debug("CurrentTime called", "time", now.Format(time.RFC3339))
	return Result{
		Status: StatusSuccess,
		Data: map[string]any{
			"time":      now.Format("2006-01-02 15:04:05"),
			"timestamp": now.Unix(),
			"iso8601":   now.Format(time.RFC3339),
			"weekday":   now.Weekday().String(),
		},
	}, nil
}
