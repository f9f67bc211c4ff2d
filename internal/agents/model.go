// Package agents holds the model-driven pipeline stages: task classification,
// storyboard planning, scene code generation, visual critique and asset hints.
package agents

import (
	"context"

	"github.com/example/mathvideo/internal/providers/llm"
)

// Model is the slice of the model gateway the agents use.
type Model interface {
	CompleteText(ctx context.Context, prompt string, opts llm.Options) (string, error)
	CompleteJSON(ctx context.Context, tmpl string, vars any, opts llm.Options, out any) error
	CompleteVision(ctx context.Context, prompt string, images []llm.Image, opts llm.Options) (string, error)
	HasVision() bool
}
