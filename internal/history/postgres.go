package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	hashed_password TEXT NOT NULL,
	roles TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	batch_id TEXT,
	user_id TEXT NOT NULL,
	task TEXT NOT NULL,
	status TEXT NOT NULL,
	error_code TEXT,
	error TEXT,
	envelope JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS executions_batch_id_idx ON executions (batch_id);
`

// ErrDuplicateUser is returned when the email is already registered
var ErrDuplicateUser = errors.New("user already exists")

// PostgresStore keeps history in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables when they do not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveExecution inserts or replaces an execution record
func (s *PostgresStore) SaveExecution(ctx context.Context, execution *models.Execution) error {
	var envelope []byte
	if execution.Envelope != nil {
		var err error
		envelope, err = json.Marshal(execution.Envelope)
		if err != nil {
			return fmt.Errorf("failed to marshal envelope: %w", err)
		}
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO executions (id, batch_id, user_id, task, status, error_code, error, envelope, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			error = EXCLUDED.error,
			envelope = EXCLUDED.envelope
		RETURNING created_at
	`, execution.ID, execution.BatchID, execution.UserID, execution.Task, execution.Status,
		execution.ErrorCode, execution.Error, envelope).Scan(&execution.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// GetExecution loads one execution
func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, COALESCE(batch_id, ''), user_id, task, status, COALESCE(error_code, ''),
			COALESCE(error, ''), envelope, created_at
		FROM executions
		WHERE id = $1
	`, id)

	execution, err := scanExecution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return execution, nil
}

// ListBatch returns the executions of a batch in submission order
func (s *PostgresStore) ListBatch(ctx context.Context, batchID string) ([]*models.Execution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(batch_id, ''), user_id, task, status, COALESCE(error_code, ''),
			COALESCE(error, ''), envelope, created_at
		FROM executions
		WHERE batch_id = $1
		ORDER BY created_at, id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch: %w", err)
	}
	defer rows.Close()

	var executions []*models.Execution
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, execution)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list batch: %w", err)
	}
	return executions, nil
}

func scanExecution(row pgx.Row) (*models.Execution, error) {
	var (
		execution models.Execution
		envelope  []byte
	)
	if err := row.Scan(
		&execution.ID, &execution.BatchID, &execution.UserID, &execution.Task, &execution.Status,
		&execution.ErrorCode, &execution.Error, &envelope, &execution.CreatedAt,
	); err != nil {
		return nil, err
	}

	if len(envelope) > 0 {
		execution.Envelope = &models.ResponseEnvelope{}
		if err := json.Unmarshal(envelope, execution.Envelope); err != nil {
			return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
		}
	}
	return &execution, nil
}

// CreateUser inserts user and fills in its generated id and creation time
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, hashed_password, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at
	`, user.Name, strings.ToLower(user.Email), user.HashedPassword, roles).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail loads a user for authentication
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, hashed_password, roles, created_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(email)).Scan(&user.ID, &user.Name, &user.Email, &user.HashedPassword, &user.Roles, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
