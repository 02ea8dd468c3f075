package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
)

// TextGenerator turns a system prompt and a task into generated text
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, task string) (string, error)
}

// Options configures an Orchestrator
type Options struct {
	// Documentation is appended to the system prompt as grounding context
	Documentation string
	// Raw returns response bodies as unparsed text
	Raw bool
	// RegenerateOnMalformed re-invokes the generator between parse attempts
	RegenerateOnMalformed bool
	ParseRetry            RetryPolicy
	Executor              ExecutorConfig
	Metrics               MetricsRecorder
}

// Orchestrator runs the generate -> parse -> validate -> execute pipeline for one task at a time
type Orchestrator struct {
	generator    TextGenerator
	systemPrompt string
	raw          bool
	regenerate   bool
	parser       *ResponseParser
	validator    *SchemaValidator
	executor     *HTTPExecutor
	metrics      MetricsRecorder
	tracer       trace.Tracer
	logger       *zap.Logger
}

// NewOrchestrator binds a generator to a fixed configuration. The generator is used as
// given for every task; nothing is cached beyond it.
func NewOrchestrator(generator TextGenerator, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.Executor.Metrics == nil {
		opts.Executor.Metrics = opts.Metrics
	}

	return &Orchestrator{
		generator:    generator,
		systemPrompt: BuildSystemPrompt(opts.Documentation),
		raw:          opts.Raw,
		regenerate:   opts.RegenerateOnMalformed,
		parser:       NewResponseParser(opts.ParseRetry, logger),
		validator:    NewSchemaValidator(logger),
		executor:     NewHTTPExecutor(opts.Executor, logger),
		metrics:      opts.Metrics,
		tracer:       otel.Tracer("task-orchestrator"),
		logger:       logger.With(zap.String("component", "orchestrator")),
	}
}

// SystemPrompt returns the prompt sent with every task
func (o *Orchestrator) SystemPrompt() string {
	return o.systemPrompt
}

// Run processes one task. A failure at any stage is returned unchanged.
func (o *Orchestrator) Run(ctx context.Context, task string) (*models.ResponseEnvelope, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run")
	defer span.End()

	start := time.Now()
	o.metrics.RecordTaskStarted(ctx)
	o.logger.Info("task received", zap.String("task", task))

	envelope, err := o.run(ctx, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.RecordTaskFailed(ctx, ErrorCode(err), time.Since(start))
		o.logger.Error("task failed", zap.String("task", task), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("envelope.id", envelope.ID),
		attribute.Int("http.status_code", envelope.StatusCode),
	)
	o.metrics.RecordTaskSucceeded(ctx, time.Since(start))
	o.logger.Info("task completed",
		zap.String("task", task),
		zap.Int("status_code", envelope.StatusCode),
		zap.Float64("elapsed_time", envelope.ElapsedTime),
	)
	return envelope, nil
}

func (o *Orchestrator) run(ctx context.Context, task string) (*models.ResponseEnvelope, error) {
	output, err := o.generate(ctx, task)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("generator response", zap.String("output", output))

	var regenerate RegenerateFunc
	if o.regenerate {
		regenerate = func(ctx context.Context) (string, error) {
			return o.generator.Generate(ctx, o.systemPrompt, task)
		}
	}

	obj, err := o.parser.ParseWith(ctx, output, regenerate)
	if err != nil {
		return nil, err
	}

	spec, err := o.validator.Validate(obj)
	if err != nil {
		return nil, err
	}

	envelope, err := o.executor.Execute(ctx, spec, o.raw)
	if err != nil {
		return nil, err
	}
	envelope.Task = task

	o.logger.Debug("API response", zap.Any("envelope", envelope))
	return envelope, nil
}

func (o *Orchestrator) generate(ctx context.Context, task string) (string, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.generate")
	defer span.End()

	output, err := o.generator.Generate(ctx, o.systemPrompt, task)
	if err != nil {
		span.RecordError(err)
		return "", &GenerationError{Err: err}
	}
	span.SetAttributes(attribute.Int("output.length", len(output)))
	return output, nil
}

// RunJSON runs task and returns the envelope as indented JSON
func (o *Orchestrator) RunJSON(ctx context.Context, task string) (string, error) {
	envelope, err := o.Run(ctx, task)
	if err != nil {
		return "", err
	}
	return EncodeEnvelope(envelope)
}

// EncodeEnvelope renders an envelope with four-space indentation
func EncodeEnvelope(envelope *models.ResponseEnvelope) (string, error) {
	out, err := json.MarshalIndent(envelope, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	return string(out), nil
}
