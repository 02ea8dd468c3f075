package models

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeSchemaViolation   = "SCHEMA_VIOLATION"
	ErrCodeMalformedResponse = "MALFORMED_RESPONSE"
	ErrCodeTransportFailure  = "TRANSPORT_FAILURE"
	ErrCodeGenerationFailed  = "GENERATION_FAILED"
	ErrCodeTaskFailed        = "TASK_FAILED"
)
