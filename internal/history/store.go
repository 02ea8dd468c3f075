// Package history persists executed tasks and the operators allowed to submit them.
package history

import (
	"context"
	"errors"

	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
)

// ErrNotFound is returned when a lookup matches nothing
var ErrNotFound = errors.New("not found")

// ExecutionStore records task outcomes
type ExecutionStore interface {
	SaveExecution(ctx context.Context, execution *models.Execution) error
	GetExecution(ctx context.Context, id string) (*models.Execution, error)
	ListBatch(ctx context.Context, batchID string) ([]*models.Execution, error)
}

// UserStore manages operators
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Store is the full persistence surface used by the API
type Store interface {
	ExecutionStore
	UserStore
	Ping(ctx context.Context) error
}
