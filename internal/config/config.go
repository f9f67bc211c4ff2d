package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Paths holds filesystem locations and the API bind address.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	SkillsDir string `toml:"skills_dir"`
	TaskDB    string `toml:"task_db"`
	APIBind   string `toml:"api_bind"`
}

// LLM holds provider credentials and model names.
type LLM struct {
	AnthropicAPIKey   string `toml:"anthropic_api_key"`
	AnthropicModel    string `toml:"anthropic_model"`
	AnthropicURL      string `toml:"anthropic_url"`
	GeminiAPIKey      string `toml:"gemini_api_key"`
	GeminiModel       string `toml:"gemini_model"`
	GeminiVisionModel string `toml:"gemini_vision_model"`
	OpenAIAPIKey      string `toml:"openai_api_key"`
	OpenAIBaseURL     string `toml:"openai_base_url"`
	OpenAIModel       string `toml:"openai_model"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	HTTPTimeoutMS     int    `toml:"http_timeout_ms"`
}

// Render holds settings for the manim and ffmpeg subprocesses.
type Render struct {
	Python         string `toml:"python"`
	FFmpeg         string `toml:"ffmpeg"`
	Quality        string `toml:"quality"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

// Features toggles optional pipeline stages.
type Features struct {
	Assets         bool `toml:"assets"`
	VisualFeedback bool `toml:"visual_feedback"`
}

// Server holds websocket timing.
type Server struct {
	SubscriberWaitMS int `toml:"subscriber_wait_ms"`
	HeartbeatSeconds int `toml:"heartbeat_seconds"`
}

// Logging holds log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the full mathvideo configuration.
//
// Values are layered: defaults, then the TOML file, then a .env file, then
// process environment variables.
type Config struct {
	Paths    Paths    `toml:"paths"`
	LLM      LLM      `toml:"llm"`
	Render   Render   `toml:"render"`
	Features Features `toml:"features"`
	Server   Server   `toml:"server"`
	Logging  Logging  `toml:"logging"`
}

// Load locates, parses, and validates a configuration file. An empty path falls
// back to $MATHVIDEO_CONFIG and then ./mathvideo.toml; a missing file is not an error.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env never overrides variables already present in the process environment.
	if err := godotenv.Load(defaultEnvFileName); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("load %s: %w", defaultEnvFileName, err)
	}
	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = os.Getenv("MATHVIDEO_CONFIG")
	}
	if path == "" {
		path = defaultConfigFileName
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", false, fmt.Errorf("resolve config path %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", abs)
	}
	return abs, true, nil
}

// EnsureDirectories creates the output root.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory %q: %w", c.Paths.OutputDir, err)
	}
	return nil
}

// LLMTimeout is the per-call bound for model requests.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// HTTPTimeout is the transport timeout for hand-rolled provider clients. It
// never undercuts LLMTimeout, which bounds the whole call.
func (c *Config) HTTPTimeout() time.Duration {
	return max(time.Duration(c.LLM.HTTPTimeoutMS)*time.Millisecond, c.LLMTimeout())
}

// RenderTimeout bounds a single manim or ffmpeg subprocess.
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.Render.TimeoutSeconds) * time.Second
}

// SubscriberWait is how long a new task waits for its first listener.
func (c *Config) SubscriberWait() time.Duration {
	return time.Duration(c.Server.SubscriberWaitMS) * time.Millisecond
}

// Heartbeat is the idle interval after which websocket clients get a heartbeat.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.Server.HeartbeatSeconds) * time.Second
}

// HasVision reports whether any vision-capable provider has credentials.
func (c *Config) HasVision() bool {
	return c.LLM.GeminiAPIKey != "" || c.LLM.OpenAIAPIKey != ""
}
