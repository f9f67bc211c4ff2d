// Package render drives the external Manim and ffmpeg binaries.
package render

import (
	"context"
	"strings"

	"github.com/example/mathvideo/internal/models"
)

// Renderer turns a scene script into a video.
type Renderer interface {
	Render(ctx context.Context, scriptPath, className, mediaDir string) models.RenderResult
}

// MaxErrorChars bounds error text passed back to models and API clients.
const MaxErrorChars = 500

// TailError keeps the last n characters of s, where the traceback usually ends.
func TailError(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func failure(text string) models.RenderResult {
	return models.RenderResult{Status: models.RenderFailure, ErrorText: text}
}
