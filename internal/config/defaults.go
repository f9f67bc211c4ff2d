package config

const (
	defaultOutputDir          = "output"
	defaultSkillsDir          = "skills"
	defaultTaskDB             = ""
	defaultAPIBind            = ":8000"
	defaultAnthropicModel     = "claude-opus-4-5-20251101"
	defaultAnthropicURL       = "https://api.anthropic.com/v1/messages"
	defaultGeminiModel        = "gemini-2.0-flash"
	defaultGeminiVisionModel  = "gemini-2.0-flash"
	defaultOpenAIBaseURL      = "https://generativelanguage.googleapis.com/v1beta/openai/"
	defaultOpenAIModel        = "gemini-2.0-flash"
	defaultLLMTimeoutSeconds  = 120
	defaultLLMHTTPTimeoutMS   = 120000
	defaultPython             = "python"
	defaultFFmpeg             = "ffmpeg"
	defaultRenderQuality      = "l"
	defaultRenderTimeout      = 600
	defaultMaxRetries         = 3
	defaultSubscriberWaitMS   = 5000
	defaultHeartbeatSeconds   = 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultConfigFileName     = "mathvideo.toml"
	defaultEnvFileName        = ".env"
	defaultFeatureAssets      = true
	defaultFeatureVisualCheck = true
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			SkillsDir: defaultSkillsDir,
			TaskDB:    defaultTaskDB,
			APIBind:   defaultAPIBind,
		},
		LLM: LLM{
			AnthropicModel:    defaultAnthropicModel,
			AnthropicURL:      defaultAnthropicURL,
			GeminiModel:       defaultGeminiModel,
			GeminiVisionModel: defaultGeminiVisionModel,
			OpenAIBaseURL:     defaultOpenAIBaseURL,
			OpenAIModel:       defaultOpenAIModel,
			TimeoutSeconds:    defaultLLMTimeoutSeconds,
			HTTPTimeoutMS:     defaultLLMHTTPTimeoutMS,
		},
		Render: Render{
			Python:         defaultPython,
			FFmpeg:         defaultFFmpeg,
			Quality:        defaultRenderQuality,
			TimeoutSeconds: defaultRenderTimeout,
			MaxRetries:     defaultMaxRetries,
		},
		Features: Features{
			Assets:         defaultFeatureAssets,
			VisualFeedback: defaultFeatureVisualCheck,
		},
		Server: Server{
			SubscriberWaitMS: defaultSubscriberWaitMS,
			HeartbeatSeconds: defaultHeartbeatSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
