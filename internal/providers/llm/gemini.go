package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiClient talks to the native Gemini API for both text and images.
type GeminiClient struct {
	client      *genai.Client
	TextModel   string
	VisionModel string
}

func NewGeminiClient(ctx context.Context, apiKey, textModel, visionModel string) (*GeminiClient, error) {
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{client: c, TextModel: textModel, VisionModel: visionModel}, nil
}

func (g *GeminiClient) Name() string { return "gemini" }

func (g *GeminiClient) Close() error { return g.client.Close() }

func (g *GeminiClient) CompleteText(ctx context.Context, prompt string, opts Options) (string, error) {
	resp, err := g.model(g.TextModel, opts).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGemini(err)
	}
	return joinText(resp)
}

func (g *GeminiClient) CompleteVision(ctx context.Context, prompt string, images []Image, opts Options) (string, error) {
	parts := []genai.Part{genai.Text(prompt)}
	for _, img := range images {
		parts = append(parts, genai.ImageData(imageFormat(img.MIMEType), img.Data))
	}
	resp, err := g.model(g.VisionModel, opts).GenerateContent(ctx, parts...)
	if err != nil {
		return "", classifyGemini(err)
	}
	return joinText(resp)
}

func (g *GeminiClient) model(name string, opts Options) *genai.GenerativeModel {
	m := g.client.GenerativeModel(name)
	m.SetTemperature(opts.Temperature)
	if opts.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	return m
}

func joinText(r *genai.GenerateContentResponse) (string, error) {
	if r == nil {
		return "", ErrNoResult
	}
	var b strings.Builder
	for _, c := range r.Candidates {
		if c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return "", ErrNoResult
	}
	return b.String(), nil
}

func classifyGemini(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return NewTransientError(err)
	}
	return err
}

// imageFormat turns "image/png" into "png" for genai.ImageData.
func imageFormat(mime string) string {
	if f := strings.TrimPrefix(mime, "image/"); f != "" && f != mime {
		return f
	}
	return "png"
}
