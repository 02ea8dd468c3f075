package orchestration

import (
	"errors"
	"fmt"

	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
)

// Sentinels matched through errors.Is on the typed errors below
var (
	ErrSchemaViolation   = errors.New("schema violation")
	ErrMalformedResponse = errors.New("malformed response")
	ErrTransportFailure  = errors.New("transport failure")
	ErrGeneration        = errors.New("generation failed")
	ErrTaskFailure       = errors.New("task failed")
)

// SchemaViolationError reports generator output that does not have the RequestSpec shape.
// It is deterministic and never retried.
type SchemaViolationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *SchemaViolationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema violation: %s", e.Reason)
	}
	return fmt.Sprintf("schema violation on %q: %s", e.Field, e.Reason)
}

func (e *SchemaViolationError) Unwrap() error { return e.Err }

func (e *SchemaViolationError) Is(target error) bool { return target == ErrSchemaViolation }

// MalformedResponseError reports generator output that could not be decoded as a JSON object
type MalformedResponseError struct {
	Attempts int
	Err      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response after %d attempts: %v", e.Attempts, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

// TransportFailureError reports a network error or a non-2xx status from the target API.
// StatusCode is zero when no response was received.
type TransportFailureError struct {
	Attempts   int
	StatusCode int
	Err        error
}

func (e *TransportFailureError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport failure after %d attempts (status %d): %v", e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport failure after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportFailureError) Unwrap() error { return e.Err }

func (e *TransportFailureError) Is(target error) bool { return target == ErrTransportFailure }

// GenerationError wraps a failure of the text-generation collaborator
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generation failed: %v", e.Err) }

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// TaskFailure isolates the failure of one task inside a batch
type TaskFailure struct {
	Index int
	Task  string
	Err   error
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("task %d (%q) failed: %v", e.Index+1, e.Task, e.Err)
}

func (e *TaskFailure) Unwrap() error { return e.Err }

func (e *TaskFailure) Is(target error) bool { return target == ErrTaskFailure }

// Info converts the failure into its API representation
func (e *TaskFailure) Info() models.TaskFailureInfo {
	return models.TaskFailureInfo{
		Index: e.Index,
		Task:  e.Task,
		Error: e.Err.Error(),
		Code:  ErrorCode(e.Err),
	}
}

// ErrorCode maps a pipeline error to its API error code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrSchemaViolation):
		return models.ErrCodeSchemaViolation
	case errors.Is(err, ErrMalformedResponse):
		return models.ErrCodeMalformedResponse
	case errors.Is(err, ErrTransportFailure):
		return models.ErrCodeTransportFailure
	case errors.Is(err, ErrGeneration):
		return models.ErrCodeGenerationFailed
	case errors.Is(err, ErrTaskFailure):
		return models.ErrCodeTaskFailed
	default:
		return models.ErrCodeInternalError
	}
}
