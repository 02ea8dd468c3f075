// Package config resolves runtime settings from defaults, an optional YAML file,
// the environment and explicit overrides, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/bizmatters/agent-builder/fluid-api/internal/llm"
	"github.com/bizmatters/agent-builder/fluid-api/internal/orchestration"
)

// RetryConfig bounds the parse and HTTP retries
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Initial  time.Duration `yaml:"initial"`
	Max      time.Duration `yaml:"max"`
}

// Config holds every setting of the CLI and the API server
type Config struct {
	Provider              string        `yaml:"provider"`
	Model                 string        `yaml:"model"`
	OpenAIAPIKey          string        `yaml:"openai-api-key"`
	OpenAIBaseURL         string        `yaml:"openai-base-url"`
	GeminiAPIKey          string        `yaml:"gemini-api-key"`
	HTTPTimeout           time.Duration `yaml:"http-timeout"`
	LLMTimeout            time.Duration `yaml:"llm-timeout"`
	RegenerateOnMalformed bool          `yaml:"regenerate-on-malformed"`
	Retry                 RetryConfig   `yaml:"retry"`
	Verbose               bool          `yaml:"verbose"`
	LogFile               string        `yaml:"log-file"`
	DatabaseURL           string        `yaml:"database-url"`
	JWTSecret             string        `yaml:"jwt-secret"`
	AdminEmail            string        `yaml:"admin-email"`
	AdminPassword         string        `yaml:"admin-password"`
	Port                  string        `yaml:"port"`
}

// Overrides are explicit values, typically command-line flags. Nil fields are left alone.
type Overrides struct {
	Provider *string
	Model    *string
	Verbose  *bool
	LogFile  *string
	Port     *string
}

// Default returns the built-in settings
func Default() *Config {
	retry := orchestration.DefaultRetryPolicy()
	return &Config{
		Provider:      llm.ProviderOpenAI,
		OpenAIBaseURL: llm.DefaultOpenAIBaseURL,
		HTTPTimeout:   30 * time.Second,
		LLMTimeout:    llm.DefaultTimeout,
		Retry: RetryConfig{
			Attempts: retry.MaxAttempts,
			Initial:  retry.InitialInterval,
			Max:      retry.MaxInterval,
		},
		Port: "8080",
	}
}

// LoadDotEnv loads dir/.env into the environment without overriding variables already set.
// A missing file is not an error.
func LoadDotEnv(dir string) error {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load resolves the configuration. path names a YAML file; when empty FLUID_CONFIG is used,
// and when that is empty no file is read.
func Load(path string, overrides Overrides, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("FLUID_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		logger.Debug("loaded config file", zap.String("path", path))
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.apply(overrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.warnDefaults(logger)
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Provider, "FLUID_PROVIDER")
	setString(&c.Model, "FLUID_MODEL")
	setString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&c.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.LogFile, "FLUID_LOG_FILE")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.AdminEmail, "FLUID_ADMIN_EMAIL")
	setString(&c.AdminPassword, "FLUID_ADMIN_PASSWORD")
	setString(&c.Port, "PORT")

	var errs []error
	errs = append(errs,
		setDuration(&c.HTTPTimeout, "FLUID_HTTP_TIMEOUT"),
		setDuration(&c.LLMTimeout, "FLUID_LLM_TIMEOUT"),
		setDuration(&c.Retry.Initial, "FLUID_RETRY_INITIAL"),
		setDuration(&c.Retry.Max, "FLUID_RETRY_MAX"),
		setInt(&c.Retry.Attempts, "FLUID_RETRY_ATTEMPTS"),
		setBool(&c.Verbose, "FLUID_VERBOSE"),
		setBool(&c.RegenerateOnMalformed, "FLUID_REGENERATE"),
	)
	return errors.Join(errs...)
}

func (c *Config) apply(o Overrides) {
	if o.Provider != nil {
		c.Provider = *o.Provider
	}
	if o.Model != nil {
		c.Model = *o.Model
	}
	if o.Verbose != nil {
		c.Verbose = *o.Verbose
	}
	if o.LogFile != nil {
		c.LogFile = *o.LogFile
	}
	if o.Port != nil {
		c.Port = *o.Port
	}
}

// Validate rejects settings no component can work with
func (c *Config) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	switch c.Provider {
	case llm.ProviderOpenAI, llm.ProviderGemini:
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.Retry.Attempts)
	}
	if c.HTTPTimeout <= 0 || c.LLMTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

func (c *Config) warnDefaults(logger *zap.Logger) {
	switch c.Provider {
	case llm.ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			logger.Warn("OPENAI_API_KEY not set, requests to the provider will be unauthenticated",
				zap.String("base_url", c.OpenAIBaseURL))
		}
	case llm.ProviderGemini:
		if c.GeminiAPIKey == "" {
			logger.Warn("GEMINI_API_KEY not set")
		}
	}
}

// LLM returns the generator settings for the selected provider
func (c *Config) LLM() llm.Config {
	cfg := llm.Config{
		Provider: c.Provider,
		Model:    c.Model,
		Timeout:  c.LLMTimeout,
	}
	if c.Provider == llm.ProviderGemini {
		cfg.APIKey = c.GeminiAPIKey
	} else {
		cfg.APIKey = c.OpenAIAPIKey
		cfg.BaseURL = c.OpenAIBaseURL
	}
	return cfg
}

// RetryPolicy converts the retry settings into the pipeline policy
func (c *Config) RetryPolicy() orchestration.RetryPolicy {
	policy := orchestration.DefaultRetryPolicy()
	policy.MaxAttempts = c.Retry.Attempts
	policy.InitialInterval = c.Retry.Initial
	policy.MaxInterval = c.Retry.Max
	return policy
}

// Options builds orchestrator options from the configuration
func (c *Config) Options(documentation string, raw bool) orchestration.Options {
	policy := c.RetryPolicy()
	return orchestration.Options{
		Documentation:         documentation,
		Raw:                   raw,
		RegenerateOnMalformed: c.RegenerateOnMalformed,
		ParseRetry:            policy,
		Executor: orchestration.ExecutorConfig{
			Timeout: c.HTTPTimeout,
			Retry:   policy,
		},
	}
}

func setString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, key string) error {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}
