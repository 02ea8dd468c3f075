package orchestration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBodyBytes  = 512
)

// ExecutorConfig configures an HTTPExecutor
type ExecutorConfig struct {
	Timeout time.Duration
	Retry   RetryPolicy
	Metrics MetricsRecorder
	// NewClient overrides the per-call client construction
	NewClient func(timeout time.Duration) *http.Client
}

// HTTPExecutor issues validated requests against third-party APIs
type HTTPExecutor struct {
	timeout   time.Duration
	policy    RetryPolicy
	metrics   MetricsRecorder
	newClient func(timeout time.Duration) *http.Client
	tracer    trace.Tracer
	logger    *zap.Logger
}

// statusError is returned for a response outside the 2xx range
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("target returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("target returned status %d: %s", e.StatusCode, e.Body)
}

// NewHTTPExecutor creates an executor
func NewHTTPExecutor(cfg ExecutorConfig, logger *zap.Logger) *HTTPExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}
	if cfg.NewClient == nil {
		cfg.NewClient = newOneShotClient
	}

	return &HTTPExecutor{
		timeout:   cfg.Timeout,
		policy:    cfg.Retry.withDefaults(),
		metrics:   cfg.Metrics,
		newClient: cfg.NewClient,
		tracer:    otel.Tracer("http-executor"),
		logger:    logger.With(zap.String("component", "executor")),
	}
}

// newOneShotClient builds a client whose connections are not reused across calls
func newOneShotClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			DisableKeepAlives: true,
		},
	}
}

// Execute sends spec and wraps the response. Network errors, timeouts and non-2xx
// statuses are retried under the executor's policy; the final failure is a
// TransportFailureError. With raw set the body is returned as unparsed text.
func (e *HTTPExecutor) Execute(ctx context.Context, spec *models.RequestSpec, raw bool) (*models.ResponseEnvelope, error) {
	ctx, span := e.tracer.Start(ctx, "executor.execute")
	defer span.End()

	span.SetAttributes(
		attribute.String("http.method", spec.Method),
		attribute.String("http.url", spec.URL),
		attribute.Bool("raw", raw),
	)

	var lastStatus int
	envelope, attempts, err := retry(ctx, e.policy, e.logger, "execute", func(attempt int) (*models.ResponseEnvelope, error) {
		env, status, err := e.do(ctx, spec, raw)
		e.metrics.RecordHTTPAttempt(ctx, spec.Method, status)
		lastStatus = status
		if err != nil {
			e.logger.Error("API call failed",
				zap.Int("attempt", attempt),
				zap.String("method", spec.Method),
				zap.String("url", spec.URL),
				zap.Error(err),
			)
		}
		return env, err
	})
	span.SetAttributes(attribute.Int("attempts", attempts))

	if err != nil {
		failure := &TransportFailureError{Attempts: attempts, Err: err}
		if lastStatus >= 300 || lastStatus < 200 {
			failure.StatusCode = lastStatus
		}
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		return nil, failure
	}

	span.SetAttributes(attribute.Int("http.status_code", envelope.StatusCode))
	return envelope, nil
}

// do performs one attempt and reports the status code received, zero if none
func (e *HTTPExecutor) do(ctx context.Context, spec *models.RequestSpec, raw bool) (*models.ResponseEnvelope, int, error) {
	req, err := buildRequest(ctx, spec)
	if err != nil {
		return nil, 0, permanent(err)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	client := e.newClient(e.timeout)
	defer client.CloseIdleConnections()

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to make request: %w", err)
	}
	elapsed := time.Since(start)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &statusError{StatusCode: resp.StatusCode, Body: excerpt(payload)}
	}

	var body any
	if raw {
		body = string(payload)
	} else if len(bytes.TrimSpace(payload)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return &models.ResponseEnvelope{
		ID:          uuid.NewString(),
		Request:     *spec,
		Response:    body,
		StatusCode:  resp.StatusCode,
		ElapsedTime: elapsed.Seconds(),
		Metadata:    responseMetadata(resp),
	}, resp.StatusCode, nil
}

func buildRequest(ctx context.Context, spec *models.RequestSpec) (*http.Request, error) {
	var body io.Reader
	if len(spec.Body) > 0 {
		encoded, err := json.Marshal(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range spec.Headers {
		if strings.EqualFold(key, "Host") {
			req.Host = value
			continue
		}
		req.Header.Set(key, value)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// responseMetadata collects content type, length and headers; unknown values are nil
func responseMetadata(resp *http.Response) map[string]any {
	var contentType any
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			contentType = mediaType
		} else {
			contentType = ct
		}
	}

	var contentLength any
	if resp.ContentLength >= 0 {
		contentLength = resp.ContentLength
	}

	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		headers[key] = strings.Join(values, ", ")
	}

	return map[string]any{
		models.MetadataContentType:   contentType,
		models.MetadataContentLength: contentLength,
		models.MetadataHeaders:       headers,
	}
}

func excerpt(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBodyBytes {
		return text[:maxErrorBodyBytes] + "..."
	}
	return text
}
