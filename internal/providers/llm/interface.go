package llm

import (
	"context"
)

// Options tune a single completion.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Image is an encoded still passed to vision models.
type Image struct {
	MIMEType string
	Data     []byte
}

// Client is a text completion provider.
type Client interface {
	Name() string
	CompleteText(ctx context.Context, prompt string, opts Options) (string, error)
}

// VisionClient is a provider that also accepts images.
type VisionClient interface {
	Client
	CompleteVision(ctx context.Context, prompt string, images []Image, opts Options) (string, error)
}

func maxTokens(opts Options, def int) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return def
}
