package agents

import (
	"context"
	"strings"
	"sync"

	"github.com/example/mathvideo/internal/providers/llm"
)

// scripted routes prompts to replies by a marker they contain.
type scripted struct {
	mu     sync.Mutex
	routes []route
	calls  map[string]int
}

type route struct {
	marker  string
	replies []string
}

func newScripted(routes ...route) *scripted {
	return &scripted{routes: routes, calls: map[string]int{}}
}

func (s *scripted) respond(prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.routes {
		if !strings.Contains(prompt, r.marker) {
			continue
		}
		n := s.calls[r.marker]
		s.calls[r.marker]++
		if n >= len(r.replies) {
			n = len(r.replies) - 1
		}
		return r.replies[n], nil
	}
	return "", llm.ErrNoResult
}

func (s *scripted) count(marker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[marker]
}

func gatewayWith(m *llm.MockClient) *llm.Gateway {
	return llm.NewGateway([]llm.Client{m}, []llm.VisionClient{m})
}

func textOnly(m *llm.MockClient) *llm.Gateway {
	return llm.NewGateway([]llm.Client{m}, nil)
}

var bg = context.Background()
