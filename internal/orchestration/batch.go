package orchestration

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
)

// TaskRunner runs a single task; Orchestrator implements it
type TaskRunner interface {
	Run(ctx context.Context, task string) (*models.ResponseEnvelope, error)
}

// BatchItem is the outcome of one task, reported as soon as the task finishes
type BatchItem struct {
	Index    int
	Task     string
	Envelope *models.ResponseEnvelope
	Failure  *TaskFailure
}

// BatchResult holds the envelopes of successful tasks in input order and the failures
// of the others, each carrying its input index
type BatchResult struct {
	Envelopes []*models.ResponseEnvelope
	Failures  []*TaskFailure
}

// Err aggregates the failures, nil when every task succeeded
func (r *BatchResult) Err() error {
	var result *multierror.Error
	for _, failure := range r.Failures {
		result = multierror.Append(result, failure)
	}
	return result.ErrorOrNil()
}

// BatchRunner applies a TaskRunner to a list of tasks, strictly one after another
type BatchRunner struct {
	runner TaskRunner
	logger *zap.Logger
}

// NewBatchRunner creates a batch runner
func NewBatchRunner(runner TaskRunner, logger *zap.Logger) *BatchRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchRunner{
		runner: runner,
		logger: logger.With(zap.String("component", "batch")),
	}
}

// RunBatch runs tasks in order. A failed task is logged and skipped; the remaining tasks
// still run. onResult, when non-nil, observes every outcome as it happens. Once ctx is
// done no further task is started and the remaining ones are reported as failed.
func (b *BatchRunner) RunBatch(ctx context.Context, tasks []string, onResult func(BatchItem)) *BatchResult {
	result := &BatchResult{
		Envelopes: make([]*models.ResponseEnvelope, 0, len(tasks)),
	}
	total := len(tasks)
	b.logger.Info("starting batch processing", zap.Int("tasks", total))

	for i, task := range tasks {
		item := BatchItem{Index: i, Task: task}

		if err := ctx.Err(); err != nil {
			item.Failure = &TaskFailure{Index: i, Task: task, Err: err}
		} else {
			b.logger.Info("processing task", zap.Int("task", i+1), zap.Int("of", total))
			envelope, err := b.runner.Run(ctx, task)
			if err != nil {
				item.Failure = &TaskFailure{Index: i, Task: task, Err: err}
			} else {
				item.Envelope = envelope
			}
		}

		if item.Failure != nil {
			b.logger.Error("failed to process task",
				zap.Int("task", i+1),
				zap.Int("of", total),
				zap.Error(item.Failure.Err),
			)
			result.Failures = append(result.Failures, item.Failure)
		} else {
			result.Envelopes = append(result.Envelopes, item.Envelope)
		}

		if onResult != nil {
			onResult(item)
		}
	}

	b.logger.Info("completed batch processing",
		zap.Int("succeeded", len(result.Envelopes)),
		zap.Int("failed", len(result.Failures)),
	)
	if err := result.Err(); err != nil {
		b.logger.Warn("batch finished with failed tasks", zap.Error(err))
	}
	return result
}

// RunBatchJSON runs tasks and joins the indented envelopes of the successful ones with a
// blank line
func (b *BatchRunner) RunBatchJSON(ctx context.Context, tasks []string) (string, error) {
	result := b.RunBatch(ctx, tasks, nil)

	encoded := make([]string, 0, len(result.Envelopes))
	for _, envelope := range result.Envelopes {
		out, err := EncodeEnvelope(envelope)
		if err != nil {
			return "", err
		}
		encoded = append(encoded, out)
	}
	return strings.Join(encoded, "\n\n"), nil
}
