package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/mathvideo/internal/config"
)

var envKeys = []string{
	"MATHVIDEO_CONFIG", "CLAUDE_API_KEY", "ANTHROPIC_API_KEY", "CLAUDE_MODEL_NAME",
	"GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_API_BASE",
	"OUTPUT_DIR", "PORT", "MAX_RETRIES", "USE_ASSETS", "USE_VISUAL_FEEDBACK", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, resolved, exists, err := config.Load("")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, filepath.Join(dir, "mathvideo.toml"), resolved)
	assert.Equal(t, filepath.Join(dir, "output"), cfg.Paths.OutputDir)
	assert.Equal(t, 3, cfg.Render.MaxRetries)
	assert.True(t, cfg.Features.VisualFeedback)
	assert.False(t, cfg.HasVision())
	assert.Equal(t, config.Default().LLM.AnthropicModel, cfg.LLM.AnthropicModel)
}

func TestLoadLayersFileDotenvAndEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	toml := "[render]\nmax_retries = 5\n\n[logging]\nlevel = \"debug\"\n\n[paths]\noutput_dir = \"videos\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mathvideo.toml"), []byte(toml), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CLAUDE_MODEL_NAME=from-dotenv\nGEMINI_API_KEY=g-key\n"), 0o644))
	t.Setenv("MAX_RETRIES", "2")
	t.Setenv("PORT", "9090")

	cfg, _, exists, err := config.Load("")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 2, cfg.Render.MaxRetries, "environment wins over file")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, filepath.Join(dir, "videos"), cfg.Paths.OutputDir)
	assert.Equal(t, "from-dotenv", cfg.LLM.AnthropicModel)
	assert.Equal(t, ":9090", cfg.Paths.APIBind)
	assert.Equal(t, "g-key", cfg.LLM.OpenAIAPIKey, "gemini key reused for the compatible endpoint")
	assert.True(t, cfg.HasVision())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[render]\nmax_retries = -1\n"), 0o644))

	_, _, _, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_retries")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[render\n"), 0o644))

	_, _, _, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestHTTPTimeoutCoversModelCalls(t *testing.T) {
	cfg := config.Default()
	assert.GreaterOrEqual(t, cfg.HTTPTimeout(), cfg.LLMTimeout())
	assert.Equal(t, 120*time.Second, cfg.HTTPTimeout())

	cfg.LLM.HTTPTimeoutMS = 45000
	assert.Equal(t, cfg.LLMTimeout(), cfg.HTTPTimeout(), "a short transport timeout is raised to the call bound")

	cfg.LLM.HTTPTimeoutMS = 300000
	assert.Equal(t, 300*time.Second, cfg.HTTPTimeout())
}
