package agent

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// Media is one attachment sent along with a turn, typically an image the
// user wants analyzed together with the prompt.
type Media struct {
	ContentType string
	Data        []byte
}

// LoadMedia reads an attachment from disk and detects its content type from
// the leading bytes. Extensions are only consulted when detection does not
// produce an image type, since extensions can be wrong or missing.
func LoadMedia(path string) (Media, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path chosen by the local caller
	if err != nil {
		return Media{}, fmt.Errorf("reading attachment %s: %w", path, err)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		ext := strings.ToLower(filepath.Ext(path))
		switch ext {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".gif":
			contentType = "image/gif"
		case ".webp":
			contentType = "image/webp"
		default:
			return Media{}, fmt.Errorf("attachment %s is not an image (detected %s)", path, contentType)
		}
	}

	return Media{ContentType: contentType, Data: data}, nil
}

// part converts the attachment to a genkit media part carrying a base64
// data URL, the form every model plugin accepts.
func (m Media) part() *ai.Part {
	encoded := base64.StdEncoding.EncodeToString(m.Data)
	return ai.NewMediaPart(m.ContentType, "data:"+m.ContentType+";base64,"+encoded)
}

// mediaParts converts attachments to message parts, appending the prompt
// text last so the model reads the attachments in context.
func mediaParts(media []Media, prompt string) []*ai.Part {
	parts := make([]*ai.Part, 0, len(media)+1)
	for _, m := range media {
		parts = append(parts, m.part())
	}
	parts = append(parts, ai.NewTextPart(prompt))
	return parts
}
