package history

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
)

// newTestPostgresStore connects to FLUID_TEST_DATABASE_URL or skips the test
func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	databaseURL := os.Getenv("FLUID_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("FLUID_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pool.Ping(ctx))

	store := NewPostgresStore(pool)
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestPostgresStore_Executions(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	batchID := uuid.NewString()

	succeeded := &models.Execution{
		ID:      uuid.NewString(),
		BatchID: batchID,
		UserID:  "user-1",
		Task:    "Get a random cat fact",
		Status:  models.ExecutionSucceeded,
		Envelope: &models.ResponseEnvelope{
			Request:    models.RequestSpec{Method: "GET", URL: "https://catfact.ninja/fact", Headers: map[string]string{}, Body: map[string]any{}},
			Response:   map[string]any{"fact": "Cats sleep a lot."},
			StatusCode: 200,
			Metadata:   map[string]any{"content_type": "application/json"},
		},
	}
	failed := &models.Execution{
		ID:        uuid.NewString(),
		BatchID:   batchID,
		UserID:    "user-1",
		Task:      "Do the impossible",
		Status:    models.ExecutionFailed,
		ErrorCode: models.ErrCodeSchemaViolation,
		Error:     "schema violation",
	}

	require.NoError(t, store.SaveExecution(ctx, succeeded))
	require.NoError(t, store.SaveExecution(ctx, failed))
	assert.False(t, succeeded.CreatedAt.IsZero())

	found, err := store.GetExecution(ctx, succeeded.ID)
	require.NoError(t, err)
	assert.Equal(t, succeeded.Task, found.Task)
	require.NotNil(t, found.Envelope)
	assert.Equal(t, "https://catfact.ninja/fact", found.Envelope.Request.URL)
	assert.Equal(t, map[string]any{"fact": "Cats sleep a lot."}, found.Envelope.Response)

	found, err = store.GetExecution(ctx, failed.ID)
	require.NoError(t, err)
	assert.Nil(t, found.Envelope)
	assert.Equal(t, models.ErrCodeSchemaViolation, found.ErrorCode)

	executions, err := store.ListBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Len(t, executions, 2)

	_, err = store.GetExecution(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_Users(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	email := uuid.NewString() + "@example.com"

	user := &models.User{Name: "Operator", Email: email, HashedPassword: "hash", Roles: []string{models.RoleAdmin}}
	require.NoError(t, store.CreateUser(ctx, user))
	assert.NotEmpty(t, user.ID)

	found, err := store.GetUserByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, []string{models.RoleAdmin}, found.Roles)

	assert.ErrorIs(t, store.CreateUser(ctx, &models.User{Name: "Again", Email: email, HashedPassword: "x"}), ErrDuplicateUser)

	_, err = store.GetUserByEmail(ctx, "missing-"+email)
	assert.ErrorIs(t, err, ErrNotFound)
}
