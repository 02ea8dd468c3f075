package orchestration

import (
	"context"
	"time"
)

// MetricsRecorder receives pipeline measurements. metrics.TaskMetrics implements it.
type MetricsRecorder interface {
	RecordTaskStarted(ctx context.Context)
	RecordTaskSucceeded(ctx context.Context, duration time.Duration)
	RecordTaskFailed(ctx context.Context, errorCode string, duration time.Duration)
	RecordHTTPAttempt(ctx context.Context, method string, statusCode int)
}

type nopRecorder struct{}

func (nopRecorder) RecordTaskStarted(context.Context)                       {}
func (nopRecorder) RecordTaskSucceeded(context.Context, time.Duration)      {}
func (nopRecorder) RecordTaskFailed(context.Context, string, time.Duration) {}
func (nopRecorder) RecordHTTPAttempt(context.Context, string, int)          {}
