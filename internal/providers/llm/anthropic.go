package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicDefaultURL = "https://api.anthropic.com/v1/messages"
	anthropicVersion    = "2023-06-01"
	anthropicMaxTokens  = 8192
	anthropicAttempts   = 3
)

// AnthropicClient calls the Messages API directly over HTTP.
type AnthropicClient struct {
	APIKey  string
	Model   string
	URL     string
	Timeout time.Duration
}

func (c *AnthropicClient) Name() string { return "anthropic" }

func (c *AnthropicClient) CompleteText(ctx context.Context, prompt string, opts Options) (string, error) {
	body := map[string]any{
		"model":       c.Model,
		"max_tokens":  maxTokens(opts, anthropicMaxTokens),
		"temperature": opts.Temperature,
		"messages": []map[string]any{{
			"role":    "user",
			"content": []map[string]string{{"type": "text", "text": prompt}},
		}},
	}
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := c.postJSON(ctx, body, &resp); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", ErrNoResult
	}
	return b.String(), nil
}

func (c *AnthropicClient) postJSON(ctx context.Context, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return NewFatalError(err)
	}
	url := c.URL
	if url == "" {
		url = anthropicDefaultURL
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	var lastErr error
	for attempt := 0; attempt < anthropicAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(attempt-1)); err != nil {
				return err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return NewFatalError(err)
		}
		req.Header.Set("x-api-key", c.APIKey)
		req.Header.Set("anthropic-version", anthropicVersion)
		req.Header.Set("content-type", "application/json")

		done, err := c.do(httpClient, req, out)
		if done {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// do performs one request. done reports whether the caller should stop retrying.
func (c *AnthropicClient) do(httpClient *http.Client, req *http.Request, out any) (bool, error) {
	res, err := httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return false, NewTransientError(err)
		}
		return true, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return true, json.NewDecoder(res.Body).Decode(out)
	}
	var eresp map[string]any
	_ = json.NewDecoder(res.Body).Decode(&eresp)
	statusErr := classifyStatus(res.StatusCode, fmt.Errorf("anthropic status %d: %v", res.StatusCode, eresp))
	return !retryableStatus(res.StatusCode), statusErr
}
