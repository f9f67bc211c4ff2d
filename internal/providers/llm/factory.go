package llm

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/example/mathvideo/internal/config"
	"github.com/example/mathvideo/internal/metrics"
)

// NewFromConfig builds a gateway from whichever providers have credentials.
// Text order: anthropic, gemini, openai-compatible. Vision order: gemini native,
// then openai-compatible. With nothing configured the gateway still works and
// every call reports ErrNoProvider.
func NewFromConfig(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Gateway, func()) {
	var (
		text    []Client
		vision  []VisionClient
		closers []func() error
	)

	if cfg.LLM.AnthropicAPIKey != "" {
		text = append(text, &AnthropicClient{
			APIKey:  cfg.LLM.AnthropicAPIKey,
			Model:   cfg.LLM.AnthropicModel,
			URL:     cfg.LLM.AnthropicURL,
			Timeout: cfg.HTTPTimeout(),
		})
	}
	if cfg.LLM.GeminiAPIKey != "" {
		g, err := NewGeminiClient(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiModel, cfg.LLM.GeminiVisionModel)
		if err != nil {
			log.WithError(err).Warn("gemini provider unavailable")
		} else {
			text = append(text, g)
			vision = append(vision, g)
			closers = append(closers, g.Close)
		}
	}
	if cfg.LLM.OpenAIAPIKey != "" {
		label := "openai"
		if cfg.LLM.OpenAIAPIKey == cfg.LLM.GeminiAPIKey {
			label = "gemini-openai"
		}
		o := NewOpenAIClient(label, cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIBaseURL, cfg.LLM.OpenAIModel, cfg.HTTPTimeout())
		text = append(text, o)
		vision = append(vision, o)
	}

	gw := NewGateway(text, vision, WithTimeout(cfg.LLMTimeout()), WithMetrics(m))
	tNames, vNames := gw.Providers()
	log.WithFields(log.Fields{"text": tNames, "vision": vNames}).Info("model providers configured")

	return gw, func() {
		for _, c := range closers {
			_ = c()
		}
	}
}
