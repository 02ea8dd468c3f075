package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// RegenerateFunc produces fresh generator output between parse attempts
type RegenerateFunc func(ctx context.Context) (string, error)

// ResponseParser decodes generator output into an untyped request object
type ResponseParser struct {
	policy RetryPolicy
	logger *zap.Logger
}

// NewResponseParser creates a parser retrying under policy
func NewResponseParser(policy RetryPolicy, logger *zap.Logger) *ResponseParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseParser{
		policy: policy.withDefaults(),
		logger: logger.With(zap.String("component", "parser")),
	}
}

// Parse decodes text as a single JSON object. A decode failure is retried under the
// parser's policy even though the input does not change between attempts; after the
// last attempt it surfaces as a MalformedResponseError.
func (p *ResponseParser) Parse(ctx context.Context, text string) (map[string]any, error) {
	return p.ParseWith(ctx, text, nil)
}

// ParseWith behaves like Parse but asks regenerate for new text before every attempt
// after the first, so a retry can actually change the outcome.
func (p *ResponseParser) ParseWith(ctx context.Context, text string, regenerate RegenerateFunc) (map[string]any, error) {
	var lastErr error

	obj, attempts, err := retry(ctx, p.policy, p.logger, "parse", func(attempt int) (map[string]any, error) {
		if attempt > 1 && regenerate != nil {
			fresh, err := regenerate(ctx)
			if err != nil {
				return nil, permanent(&GenerationError{Err: err})
			}
			text = fresh
		}

		p.logger.Debug("parsing generator response", zap.Int("attempt", attempt), zap.Int("length", len(text)))
		obj, err := decodeObject(text)
		if err != nil {
			lastErr = err
			p.logger.Error("failed to decode generator response as JSON", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		return obj, nil
	})
	if err != nil {
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return nil, genErr
		}
		if lastErr == nil {
			lastErr = err
		}
		return nil, &MalformedResponseError{Attempts: attempts, Err: lastErr}
	}

	p.logger.Debug("parsed generator response", zap.Any("request", obj))
	return obj, nil
}

// decodeObject accepts exactly one JSON object, surrounded by whitespace at most
func decodeObject(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var trailing json.RawMessage
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected content after JSON object")
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %s", jsonKind(value))
	}
	return obj, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
