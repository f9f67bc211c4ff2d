package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient speaks the chat completions protocol. Pointed at Gemini's
// OpenAI-compatible endpoint it serves as the secondary vision provider.
type OpenAIClient struct {
	client *openai.Client
	label  string
	Model  string
}

func NewOpenAIClient(label, apiKey, baseURL, model string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	if label == "" {
		label = "openai"
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), label: label, Model: model}
}

func (c *OpenAIClient) Name() string { return c.label }

func (c *OpenAIClient) CompleteText(ctx context.Context, prompt string, opts Options) (string, error) {
	return c.complete(ctx, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	}, opts)
}

func (c *OpenAIClient) CompleteVision(ctx context.Context, prompt string, images []Image, opts Options) (string, error) {
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: prompt}}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL(img),
				Detail: openai.ImageURLDetailLow,
			},
		})
	}
	return c.complete(ctx, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	}, opts)
}

func (c *OpenAIClient) complete(ctx context.Context, msg openai.ChatCompletionMessage, opts Options) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.Model,
		Messages:    []openai.ChatCompletionMessage{msg},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", classifyStatus(apiErr.HTTPStatusCode, err)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", classifyStatus(reqErr.HTTPStatusCode, err)
		}
		if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			return "", NewTransientError(err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrNoResult
	}
	return resp.Choices[0].Message.Content, nil
}

func dataURL(img Image) string {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
