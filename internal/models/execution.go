package models

import "time"

// Execution statuses
const (
	ExecutionSucceeded = "succeeded"
	ExecutionFailed    = "failed"
)

// Execution is the stored outcome of one task submitted through the API
type Execution struct {
	ID        string            `json:"id"`
	BatchID   string            `json:"batch_id,omitempty"`
	UserID    string            `json:"user_id"`
	Task      string            `json:"task"`
	Status    string            `json:"status"`
	ErrorCode string            `json:"error_code,omitempty"`
	Error     string            `json:"error,omitempty"`
	Envelope  *ResponseEnvelope `json:"envelope,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
