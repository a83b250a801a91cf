package cmd

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// answerWrapWidth is the word-wrap width for rendered answers. Fixed
// rather than terminal-derived: chat output scrolls, and a stable width
// keeps transcripts readable when copied.
const answerWrapWidth = 100

// answerRenderer turns the final markdown answer into styled terminal
// output. A zero renderer passes text through unchanged, so rendering
// problems never block the conversation.
type answerRenderer struct {
	renderer *glamour.TermRenderer
}

func newAnswerRenderer() *answerRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(answerWrapWidth),
	)
	if err != nil {
		return &answerRenderer{}
	}
	return &answerRenderer{renderer: r}
}

// Render styles the markdown, falling back to the raw text on any
// failure.
func (a *answerRenderer) Render(markdown string) string {
	if a == nil || a.renderer == nil {
		return markdown
	}
	rendered, err := a.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}
