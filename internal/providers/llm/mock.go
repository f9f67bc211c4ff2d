package llm

import (
	"context"
	"errors"
	"sync"
)

// MockClient is a scripted provider for tests and offline runs. Respond takes
// precedence over Replies; Replies are consumed in order and the last one repeats.
type MockClient struct {
	Label         string
	Replies       []string
	Respond       func(prompt string) (string, error)
	RespondVision func(prompt string, images []Image) (string, error)

	mu          sync.Mutex
	prompts     []string
	visionCalls int
}

func (m *MockClient) Name() string {
	if m.Label != "" {
		return m.Label
	}
	return "mock"
}

func (m *MockClient) CompleteText(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	n := len(m.prompts)
	m.mu.Unlock()

	if m.Respond != nil {
		return m.Respond(prompt)
	}
	if len(m.Replies) == 0 {
		return "", errors.New("mock: no scripted reply")
	}
	if n > len(m.Replies) {
		n = len(m.Replies)
	}
	return m.Replies[n-1], nil
}

func (m *MockClient) CompleteVision(ctx context.Context, prompt string, images []Image, opts Options) (string, error) {
	m.mu.Lock()
	m.visionCalls++
	m.mu.Unlock()
	if m.RespondVision == nil {
		return "", ErrNoResult
	}
	return m.RespondVision(prompt, images)
}

// Prompts returns a copy of every text prompt received so far.
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *MockClient) VisionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visionCalls
}
