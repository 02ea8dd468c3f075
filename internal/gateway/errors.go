package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
	"github.com/bizmatters/agent-builder/fluid-api/internal/orchestration"
)

// StatusForError maps a pipeline error to an HTTP status
func StatusForError(err error) int {
	switch {
	case errors.Is(err, orchestration.ErrSchemaViolation), errors.Is(err, orchestration.ErrMalformedResponse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, orchestration.ErrTransportFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondPipelineError(c *gin.Context, err error, executionID string) {
	response := models.ErrorResponse{
		Error:   err.Error(),
		Code:    orchestration.ErrorCode(err),
		Details: map[string]string{"execution_id": executionID},
	}

	var violation *orchestration.SchemaViolationError
	if errors.As(err, &violation) && violation.Field != "" {
		response.Details["field"] = violation.Field
	}

	c.JSON(StatusForError(err), response)
}

func respondError(c *gin.Context, status int, code, message string, cause error) {
	response := models.ErrorResponse{Error: message, Code: code}
	if cause != nil {
		response.Details = map[string]string{"cause": cause.Error()}
	}
	c.JSON(status, response)
}
