package models

// RequestSpec describes a single HTTP request generated from a natural-language task
type RequestSpec struct {
	Method  string            `json:"method" mapstructure:"method" validate:"required,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	URL     string            `json:"url" mapstructure:"url" validate:"required,http_url"`
	Headers map[string]string `json:"headers" mapstructure:"headers" validate:"required"`
	Body    map[string]any    `json:"body" mapstructure:"body" validate:"required"`
}

// ResponseEnvelope wraps an executed request together with its response, status and timing
type ResponseEnvelope struct {
	ID          string         `json:"id,omitempty"`
	Task        string         `json:"task,omitempty"`
	Request     RequestSpec    `json:"request"`
	Response    any            `json:"response"`
	StatusCode  int            `json:"status_code"`
	ElapsedTime float64        `json:"elapsed_time"` // seconds
	Metadata    map[string]any `json:"metadata"`
}

// Metadata keys captured by the executor
const (
	MetadataContentType   = "content_type"
	MetadataContentLength = "content_length"
	MetadataHeaders       = "headers"
)

// TaskFailureInfo is the serializable form of a failed batch task
type TaskFailureInfo struct {
	Index int    `json:"index"`
	Task  string `json:"task"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RunRequest is the API payload for a single task
type RunRequest struct {
	Task          string `json:"task" binding:"required"`
	Documentation string `json:"documentation"`
	Raw           bool   `json:"raw"`
}

// BatchRequest is the API payload for a batch of tasks
type BatchRequest struct {
	Tasks         []string `json:"tasks" binding:"required,min=1,dive,required"`
	Documentation string   `json:"documentation"`
	Raw           bool     `json:"raw"`
}

// BatchResponse is returned by the batch endpoint
type BatchResponse struct {
	BatchID   string             `json:"batch_id"`
	Envelopes []ResponseEnvelope `json:"envelopes"`
	Failures  []TaskFailureInfo  `json:"failures"`
}

// BatchEvent is a single websocket message emitted while a batch runs
type BatchEvent struct {
	EventType string            `json:"event_type"`
	BatchID   string            `json:"batch_id"`
	Index     int               `json:"index"`
	Envelope  *ResponseEnvelope `json:"envelope,omitempty"`
	Failure   *TaskFailureInfo  `json:"failure,omitempty"`
	Succeeded int               `json:"succeeded,omitempty"`
	Failed    int               `json:"failed,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Batch event types
const (
	EventTypeTaskCompleted  = "task.completed"
	EventTypeTaskFailed     = "task.failed"
	EventTypeBatchCompleted = "batch.completed"
	EventTypeBatchError     = "batch.error"
)
