package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient generates text with the Gemini API
type GeminiClient struct {
	client  *genai.Client
	model   string
	tracer  trace.Tracer
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewGeminiClient creates a Gemini client. The API key is required.
func NewGeminiClient(ctx context.Context, cfg Config, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "gemini-client"))

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		tracer:  otel.Tracer("gemini-client"),
		breaker: newBreaker("gemini", logger),
		logger:  logger,
	}, nil
}

// Model returns the model used for generation
func (c *GeminiClient) Model() string {
	return c.model
}

// Generate sends task with systemPrompt as the system instruction
func (c *GeminiClient) Generate(ctx context.Context, systemPrompt, task string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "gemini.generate")
	defer span.End()

	span.SetAttributes(attribute.String("llm.model", c.model))

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.Models.GenerateContent(ctx, c.model,
			genai.Text(task),
			&genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			},
		)
		if err != nil {
			return nil, err
		}

		text := resp.Text()
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyCompletion
		}
		return text, nil
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := result.(string)
	span.SetAttributes(attribute.Int("completion.length", len(text)))
	c.logger.Debug("content generated", zap.String("model", c.model), zap.Int("length", len(text)))
	return text, nil
}

// IsHealthy reports whether the breaker still lets calls through
func (c *GeminiClient) IsHealthy(context.Context) bool {
	return c.breaker.State() != gobreaker.StateOpen
}
