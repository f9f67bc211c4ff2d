package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) applyEnv() {
	setString(&c.LLM.AnthropicAPIKey, "CLAUDE_API_KEY", "ANTHROPIC_API_KEY")
	setString(&c.LLM.AnthropicModel, "CLAUDE_MODEL_NAME")
	setString(&c.LLM.AnthropicURL, "ANTHROPIC_API_URL")
	setString(&c.LLM.GeminiAPIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	setString(&c.LLM.GeminiModel, "GEMINI_MODEL")
	setString(&c.LLM.GeminiVisionModel, "GEMINI_VISION_MODEL")
	setString(&c.LLM.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.LLM.OpenAIBaseURL, "OPENAI_BASE_URL", "OPENAI_API_BASE")
	setString(&c.LLM.OpenAIModel, "OPENAI_MODEL")
	setInt(&c.LLM.HTTPTimeoutMS, "LLM_HTTP_TIMEOUT_MS")
	setInt(&c.LLM.TimeoutSeconds, "LLM_TIMEOUT_SECONDS")

	setString(&c.Paths.OutputDir, "OUTPUT_DIR")
	setString(&c.Paths.SkillsDir, "SKILLS_DIR")
	setString(&c.Paths.TaskDB, "TASK_DB")
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		c.Paths.APIBind = ":" + port
	}

	setString(&c.Render.Python, "MANIM_PYTHON")
	setString(&c.Render.FFmpeg, "FFMPEG_PATH")
	setInt(&c.Render.MaxRetries, "MAX_RETRIES")

	setBool(&c.Features.Assets, "USE_ASSETS")
	setBool(&c.Features.VisualFeedback, "USE_VISUAL_FEEDBACK")

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
}

func (c *Config) normalize() error {
	c.LLM.OpenAIBaseURL = strings.TrimSpace(c.LLM.OpenAIBaseURL)
	// The OpenAI-compatible client doubles as the Gemini fallback when no
	// dedicated OpenAI key is configured.
	if c.LLM.OpenAIAPIKey == "" && c.LLM.OpenAIBaseURL == defaultOpenAIBaseURL {
		c.LLM.OpenAIAPIKey = c.LLM.GeminiAPIKey
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Render.Quality = strings.TrimSpace(c.Render.Quality)

	for _, p := range []*string{&c.Paths.OutputDir, &c.Paths.SkillsDir, &c.Paths.TaskDB} {
		if strings.TrimSpace(*p) == "" {
			continue
		}
		abs, err := filepath.Abs(filepath.Clean(*p))
		if err != nil {
			return fmt.Errorf("resolve absolute path for %q: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

func setString(dst *string, keys ...string) {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			*dst = v
			return
		}
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
