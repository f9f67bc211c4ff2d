package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/mathvideo/internal/jsonrepair"
	"github.com/example/mathvideo/internal/progress"
)

func TestGatewayNoProvider(t *testing.T) {
	g := NewGateway(nil, nil)

	_, err := g.CompleteText(context.Background(), "hi", Options{})
	assert.True(t, errors.Is(err, ErrNoProvider))

	_, err = g.CompleteVision(context.Background(), "look", nil, Options{})
	assert.True(t, errors.Is(err, ErrNoProvider))
	assert.False(t, g.HasVision())
}

func TestGatewayFallsBackInOrder(t *testing.T) {
	primary := &MockClient{Label: "primary", Respond: func(string) (string, error) { return "", errors.New("boom") }}
	secondary := &MockClient{Label: "secondary", Replies: []string{"answer"}}

	var lines []string
	ctx := progress.With(context.Background(), progress.Func(func(_ progress.Level, msg string) { lines = append(lines, msg) }))

	out, err := NewGateway([]Client{primary, secondary}, nil).CompleteText(ctx, "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Len(t, primary.Prompts(), 1)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "falling back to secondary")
}

func TestGatewayVisionFallbackAndSoftFailure(t *testing.T) {
	empty := &MockClient{Label: "a", RespondVision: func(string, []Image) (string, error) { return "  ", nil }}
	good := &MockClient{Label: "b", RespondVision: func(_ string, imgs []Image) (string, error) {
		return "saw " + string(rune('0'+len(imgs))), nil
	}}

	g := NewGateway(nil, []VisionClient{empty, good})
	out, err := g.CompleteVision(context.Background(), "p", []Image{{Data: []byte{1}}, {Data: []byte{2}}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "saw 2", out)

	g = NewGateway(nil, []VisionClient{empty})
	_, err = g.CompleteVision(context.Background(), "p", nil, Options{})
	assert.True(t, errors.Is(err, ErrNoResult))
}

func TestGatewayCallTimeout(t *testing.T) {
	slow := &MockClient{Respond: func(string) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "late", nil
	}}
	blocking := &blockingClient{}
	g := NewGateway([]Client{blocking, slow}, nil, WithTimeout(20*time.Millisecond))

	out, err := g.CompleteText(context.Background(), "q", Options{})
	require.NoError(t, err, "slow mock ignores ctx, so it still answers")
	assert.Equal(t, "late", out)
	assert.True(t, blocking.sawDeadline)
}

type blockingClient struct{ sawDeadline bool }

func (b *blockingClient) Name() string { return "blocking" }
func (b *blockingClient) CompleteText(ctx context.Context, _ string, _ Options) (string, error) {
	<-ctx.Done()
	b.sawDeadline = errors.Is(ctx.Err(), context.DeadlineExceeded)
	return "", ctx.Err()
}

func TestCompleteJSONRendersTemplateAndRepairs(t *testing.T) {
	m := &MockClient{Respond: func(prompt string) (string, error) {
		assert.Contains(t, prompt, "topic: circles")
		return "```json\n{\"topic\": \"the \"unit\" circle\"}\n```", nil
	}}
	var out struct {
		Topic string `json:"topic"`
	}
	err := NewGateway([]Client{m}, nil).CompleteJSON(context.Background(), "topic: {{.Topic}}", map[string]string{"Topic": "circles"}, Options{}, &out)
	require.NoError(t, err)
	assert.Equal(t, `the "unit" circle`, out.Topic)
}

func TestCompleteJSONUsesModelFixer(t *testing.T) {
	m := &MockClient{Replies: []string{"{topic: nope", `{"topic": "fixed"}`}}
	var out map[string]string
	err := NewGateway([]Client{m}, nil).CompleteJSON(context.Background(), "x", nil, Options{}, &out)
	require.NoError(t, err)
	assert.Equal(t, "fixed", out["topic"])
	prompts := m.Prompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "{topic: nope")
}

func TestCompleteJSONFailureIsSentinel(t *testing.T) {
	m := &MockClient{Replies: []string{"no json here"}}
	var out map[string]any
	err := NewGateway([]Client{m}, nil).CompleteJSON(context.Background(), "x", nil, Options{}, &out)
	assert.True(t, errors.Is(err, jsonrepair.ErrUnrepairable))
	assert.Nil(t, out)
}

func TestAnthropicRetriesTransientStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"slow down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"hello "},{"type":"text","text":"world"}]}`))
	}))
	defer srv.Close()

	c := &AnthropicClient{APIKey: "k", Model: "m", URL: srv.URL}
	out, err := c.CompleteText(context.Background(), "p", Options{Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
	assert.Equal(t, 2, calls)
}

func TestAnthropicFatalStatusStopsImmediately(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &AnthropicClient{APIKey: "bad", Model: "m", URL: srv.URL}
	_, err := c.CompleteText(context.Background(), "p", Options{})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, calls)
}
