package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/fluid-api/internal/llm"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FLUID_CONFIG", "FLUID_PROVIDER", "FLUID_MODEL", "OPENAI_API_KEY", "OPENAI_BASE_URL",
		"GEMINI_API_KEY", "FLUID_HTTP_TIMEOUT", "FLUID_LLM_TIMEOUT", "FLUID_VERBOSE",
		"FLUID_LOG_FILE", "DATABASE_URL", "JWT_SECRET", "PORT", "FLUID_RETRY_ATTEMPTS",
		"FLUID_RETRY_INITIAL", "FLUID_RETRY_MAX", "FLUID_REGENERATE",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fluid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func strPtr(s string) *string { return &s }

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", Overrides{}, nil)

	require.NoError(t, err)
	assert.Equal(t, llm.ProviderOpenAI, cfg.Provider)
	assert.Empty(t, cfg.Model)
	assert.Equal(t, llm.DefaultOpenAIBaseURL, cfg.OpenAIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout)
	assert.Equal(t, RetryConfig{Attempts: 3, Initial: 2 * time.Second, Max: 10 * time.Second}, cfg.Retry)
	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.Verbose)
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
provider: gemini
model: from-file
port: "9000"
http-timeout: 5s
retry:
  attempts: 5
  initial: 100ms
`)
	t.Setenv("FLUID_MODEL", "from-env")
	t.Setenv("PORT", "9100")

	cfg, err := Load(path, Overrides{Model: strPtr("from-flag")}, nil)

	require.NoError(t, err)
	assert.Equal(t, llm.ProviderGemini, cfg.Provider)
	assert.Equal(t, "from-flag", cfg.Model)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.Initial)
	assert.Equal(t, 10*time.Second, cfg.Retry.Max)
}

func TestLoad_ConfigFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLUID_CONFIG", writeConfig(t, "verbose: true\n"))

	cfg, err := Load("", Overrides{}, nil)

	require.NoError(t, err)
	assert.True(t, cfg.Verbose)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLUID_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("FLUID_HTTP_TIMEOUT", "1m")
	t.Setenv("FLUID_RETRY_ATTEMPTS", "1")
	t.Setenv("FLUID_VERBOSE", "true")
	t.Setenv("FLUID_REGENERATE", "1")

	cfg, err := Load("", Overrides{}, nil)

	require.NoError(t, err)
	assert.Equal(t, llm.ProviderOpenAI, cfg.Provider)
	assert.Equal(t, time.Minute, cfg.HTTPTimeout)
	assert.Equal(t, 1, cfg.Retry.Attempts)
	assert.True(t, cfg.Verbose)
	assert.True(t, cfg.RegenerateOnMalformed)

	assert.Equal(t, llm.Config{
		Provider: llm.ProviderOpenAI,
		APIKey:   "sk-test",
		BaseURL:  "http://localhost:11434/v1",
		Timeout:  120 * time.Second,
	}, cfg.LLM())

	opts := cfg.Options("docs", true)
	assert.Equal(t, "docs", opts.Documentation)
	assert.True(t, opts.Raw)
	assert.True(t, opts.RegenerateOnMalformed)
	assert.Equal(t, 1, opts.ParseRetry.MaxAttempts)
	assert.Equal(t, time.Minute, opts.Executor.Timeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		path  func(t *testing.T) string
		error string
	}{
		{
			name:  "unknown provider",
			env:   map[string]string{"FLUID_PROVIDER": "anthropic"},
			error: `unsupported provider "anthropic"`,
		},
		{
			name:  "bad duration",
			env:   map[string]string{"FLUID_HTTP_TIMEOUT": "soon"},
			error: "invalid FLUID_HTTP_TIMEOUT",
		},
		{
			name:  "bad attempts",
			env:   map[string]string{"FLUID_RETRY_ATTEMPTS": "0"},
			error: "retry attempts must be at least 1",
		},
		{
			name:  "missing file",
			path:  func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
			error: "failed to read config file",
		},
		{
			name:  "invalid yaml",
			path:  func(t *testing.T) string { return writeConfig(t, "retry: [1, 2") },
			error: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			path := ""
			if tt.path != nil {
				path = tt.path(t)
			}

			cfg, err := Load(path, Overrides{}, nil)

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.error)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	require.NoError(t, LoadDotEnv(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FLUID_MODEL=from-dotenv\nPORT=7000\n"), 0o600))
	t.Setenv("PORT", "7100")
	require.NoError(t, os.Unsetenv("FLUID_MODEL"))
	t.Cleanup(func() { os.Unsetenv("FLUID_MODEL") })

	require.NoError(t, LoadDotEnv(dir))

	assert.Equal(t, "from-dotenv", os.Getenv("FLUID_MODEL"))
	assert.Equal(t, "7100", os.Getenv("PORT"))
}
