package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// ErrEmptyCompletion is returned when the provider answers without any text
var ErrEmptyCompletion = errors.New("completion has no content")

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// NewOpenAIClient creates a chat completions client
func NewOpenAIClient(cfg Config, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "openai-client"))

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
		logger.Debug("base URL not set, using default", zap.String("base_url", baseURL))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &OpenAIClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.modelOrDefault(),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tracer:  otel.Tracer("openai-client"),
		breaker: newBreaker("openai", logger),
		logger:  logger,
	}
}

// Model returns the model requested on every completion
func (c *OpenAIClient) Model() string {
	return c.model
}

// Generate sends the system prompt and task as a two-message conversation and returns
// the content of the first choice
func (c *OpenAIClient) Generate(ctx context.Context, systemPrompt, task string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "openai.generate")
	defer span.End()

	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("task.length", len(task)),
	)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.generateInternal(ctx, systemPrompt, task)
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}

	content := result.(string)
	span.SetAttributes(attribute.Int("completion.length", len(content)))
	return content, nil
}

func (c *OpenAIClient) generateInternal(ctx context.Context, systemPrompt, task string) (string, error) {
	jsonData, err := json.Marshal(chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: task},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := gjson.GetBytes(body, "error.message").String()
		if message == "" {
			message = string(body)
		}
		return "", fmt.Errorf("openai returned status %d: %s", resp.StatusCode, message)
	}

	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("failed to decode response: invalid JSON")
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || strings.TrimSpace(content.String()) == "" {
		return "", ErrEmptyCompletion
	}

	c.logger.Debug("completion received",
		zap.String("model", c.model),
		zap.Int64("total_tokens", gjson.GetBytes(body, "usage.total_tokens").Int()),
		zap.Duration("latency", time.Since(start)),
	)
	return content.String(), nil
}

// IsHealthy reports whether the models endpoint answers and the breaker is closed
func (c *OpenAIClient) IsHealthy(ctx context.Context) bool {
	ctx, span := c.tracer.Start(ctx, "openai.health_check")
	defer span.End()

	if c.breaker.State() == gobreaker.StateOpen {
		span.SetAttributes(attribute.Bool("healthy", false), attribute.String("reason", "circuit_breaker_open"))
		return false
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		span.RecordError(err)
		return false
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return false
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode == http.StatusOK
	span.SetAttributes(attribute.Bool("healthy", healthy))
	return healthy
}
