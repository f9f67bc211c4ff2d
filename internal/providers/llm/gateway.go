package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/example/mathvideo/internal/jsonrepair"
	"github.com/example/mathvideo/internal/metrics"
	"github.com/example/mathvideo/internal/progress"
)

const defaultCallTimeout = 120 * time.Second

const fixJSONPrompt = `The following text was supposed to be a single JSON document but it does not parse.
Return the corrected JSON document and nothing else: no prose, no markdown fences.
Keep every field and value; only fix syntax such as unescaped quotes or missing commas.

`

// Gateway is the single entry point for model calls. Providers are tried in
// order and the first non-empty reply wins.
type Gateway struct {
	text    []Client
	vision  []VisionClient
	timeout time.Duration
	metrics *metrics.Metrics

	noTextOnce   sync.Once
	noVisionOnce sync.Once
}

type GatewayOption func(*Gateway)

// WithTimeout bounds every provider call.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

func NewGateway(text []Client, vision []VisionClient, opts ...GatewayOption) *Gateway {
	g := &Gateway{text: text, vision: vision, timeout: defaultCallTimeout}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) HasText() bool   { return len(g.text) > 0 }
func (g *Gateway) HasVision() bool { return len(g.vision) > 0 }

// Providers lists configured provider names for diagnostics.
func (g *Gateway) Providers() (text, vision []string) {
	for _, c := range g.text {
		text = append(text, c.Name())
	}
	for _, c := range g.vision {
		vision = append(vision, c.Name())
	}
	return text, vision
}

func (g *Gateway) CompleteText(ctx context.Context, prompt string, opts Options) (string, error) {
	if len(g.text) == 0 {
		g.noTextOnce.Do(func() { log.Warn("no text model provider configured; model calls will return no result") })
		return "", ErrNoProvider
	}
	var errs []error
	for i, c := range g.text {
		out, err := g.call(ctx, c.Name(), "text", func(ctx context.Context) (string, error) {
			return c.CompleteText(ctx, prompt, opts)
		})
		if err == nil {
			return out, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		if i < len(g.text)-1 {
			progress.Warn(ctx, fmt.Sprintf("%s failed, falling back to %s", c.Name(), g.text[i+1].Name()))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%w: %w", ErrNoResult, errors.Join(errs...))
}

func (g *Gateway) CompleteVision(ctx context.Context, prompt string, images []Image, opts Options) (string, error) {
	if len(g.vision) == 0 {
		g.noVisionOnce.Do(func() { log.Warn("no vision model provider configured; visual feedback disabled") })
		return "", ErrNoProvider
	}
	var errs []error
	for i, c := range g.vision {
		out, err := g.call(ctx, c.Name(), "vision", func(ctx context.Context) (string, error) {
			return c.CompleteVision(ctx, prompt, images, opts)
		})
		if err == nil {
			return out, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		if i < len(g.vision)-1 {
			progress.Warn(ctx, fmt.Sprintf("vision provider %s failed, trying %s", c.Name(), g.vision[i+1].Name()))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%w: %w", ErrNoResult, errors.Join(errs...))
}

// CompleteJSON renders tmpl with vars, completes it, and decodes the reply into
// out through the JSON repair cascade. The gateway itself is the last-resort fixer.
func (g *Gateway) CompleteJSON(ctx context.Context, tmpl string, vars any, opts Options, out any) error {
	prompt, err := Render(tmpl, vars)
	if err != nil {
		return err
	}
	raw, err := g.CompleteText(ctx, prompt, opts)
	if err != nil {
		return err
	}
	strategy, err := jsonrepair.Decode(ctx, raw, g.fixer(opts), out)
	if err != nil {
		return err
	}
	if strategy != jsonrepair.StrategyStrict {
		progress.Warn(ctx, fmt.Sprintf("model JSON recovered via %s", strategy))
	}
	return nil
}

func (g *Gateway) fixer(opts Options) jsonrepair.Fixer {
	return func(ctx context.Context, broken string) (string, error) {
		return g.CompleteText(ctx, fixJSONPrompt+broken, Options{Temperature: 0, MaxTokens: opts.MaxTokens})
	}
}

func (g *Gateway) call(ctx context.Context, provider, kind string, fn func(context.Context) (string, error)) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	start := time.Now()
	out, err := fn(callCtx)
	if err == nil && strings.TrimSpace(out) == "" {
		err = ErrNoResult
	}
	g.metrics.ModelCall(provider, kind, err == nil)
	entry := log.WithFields(log.Fields{"provider": provider, "kind": kind, "elapsed": time.Since(start).Round(time.Millisecond)})
	if err != nil {
		entry.WithError(err).Warn("model call failed")
		return "", err
	}
	entry.Debug("model call ok")
	return out, nil
}

// Render executes a text/template prompt. Missing keys render empty.
func Render(tmpl string, vars any) (string, error) {
	t, err := template.New("prompt").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return buf.String(), nil
}
