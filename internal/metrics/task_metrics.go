package metrics

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("task-metrics")

// TaskMetrics records pipeline measurements through the global meter provider
type TaskMetrics struct {
	tasksStartedCounter   metric.Int64Counter
	tasksSucceededCounter metric.Int64Counter
	tasksFailedCounter    metric.Int64Counter
	taskDurationHistogram metric.Float64Histogram
	tasksActiveGauge      metric.Int64UpDownCounter
	httpAttemptsCounter   metric.Int64Counter
}

// NewTaskMetrics creates the task instruments
func NewTaskMetrics() (*TaskMetrics, error) {
	tasksStartedCounter, err := meter.Int64Counter(
		"fluid_api.tasks.started",
		metric.WithDescription("Total number of tasks started"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	tasksSucceededCounter, err := meter.Int64Counter(
		"fluid_api.tasks.succeeded",
		metric.WithDescription("Total number of tasks that produced a response envelope"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	tasksFailedCounter, err := meter.Int64Counter(
		"fluid_api.tasks.failed",
		metric.WithDescription("Total number of tasks that failed"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	taskDurationHistogram, err := meter.Float64Histogram(
		"fluid_api.task.duration",
		metric.WithDescription("Duration of task processing in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tasksActiveGauge, err := meter.Int64UpDownCounter(
		"fluid_api.tasks.active",
		metric.WithDescription("Number of tasks in flight"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	httpAttemptsCounter, err := meter.Int64Counter(
		"fluid_api.http.attempts",
		metric.WithDescription("Outbound API call attempts, including retries"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &TaskMetrics{
		tasksStartedCounter:   tasksStartedCounter,
		tasksSucceededCounter: tasksSucceededCounter,
		tasksFailedCounter:    tasksFailedCounter,
		taskDurationHistogram: taskDurationHistogram,
		tasksActiveGauge:      tasksActiveGauge,
		httpAttemptsCounter:   httpAttemptsCounter,
	}, nil
}

// RecordTaskStarted records a task entering the pipeline
func (tm *TaskMetrics) RecordTaskStarted(ctx context.Context) {
	tm.tasksStartedCounter.Add(ctx, 1)
	tm.tasksActiveGauge.Add(ctx, 1)
}

// RecordTaskSucceeded records a task that returned an envelope
func (tm *TaskMetrics) RecordTaskSucceeded(ctx context.Context, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", "succeeded"))
	tm.tasksSucceededCounter.Add(ctx, 1, attrs)
	tm.taskDurationHistogram.Record(ctx, duration.Seconds(), attrs)
	tm.tasksActiveGauge.Add(ctx, -1)
}

// RecordTaskFailed records a task that failed with errorCode
func (tm *TaskMetrics) RecordTaskFailed(ctx context.Context, errorCode string, duration time.Duration) {
	tm.tasksFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", "failed"),
			attribute.String("error.code", errorCode),
		),
	)
	tm.taskDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("status", "failed")),
	)
	tm.tasksActiveGauge.Add(ctx, -1)
}

// RecordHTTPAttempt records one outbound call; statusCode is zero when no response arrived
func (tm *TaskMetrics) RecordHTTPAttempt(ctx context.Context, method string, statusCode int) {
	status := "none"
	if statusCode != 0 {
		status = strconv.Itoa(statusCode)
	}
	tm.httpAttemptsCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.status_code", status),
		),
	)
}
