package history

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
)

// MemoryStore keeps history in process memory. It is used when no database is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	executions map[string]*models.Execution
	order      map[string]int
	users      map[string]*models.User
	seq        int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: make(map[string]*models.Execution),
		order:      make(map[string]int),
		users:      make(map[string]*models.User),
	}
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// SaveExecution stores a copy of execution
func (s *MemoryStore) SaveExecution(_ context.Context, execution *models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.executions[execution.ID]; ok {
		execution.CreatedAt = existing.CreatedAt
	} else {
		execution.CreatedAt = time.Now().UTC()
		s.seq++
		s.order[execution.ID] = s.seq
	}

	stored := *execution
	s.executions[execution.ID] = &stored
	return nil
}

// GetExecution returns a copy of the stored execution
func (s *MemoryStore) GetExecution(_ context.Context, id string) (*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execution, ok := s.executions[id]
	if !ok {
		return nil, ErrNotFound
	}
	found := *execution
	return &found, nil
}

// ListBatch returns the executions of a batch in the order they were saved
func (s *MemoryStore) ListBatch(_ context.Context, batchID string) ([]*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var executions []*models.Execution
	for _, execution := range s.executions {
		if execution.BatchID == batchID {
			found := *execution
			executions = append(executions, &found)
		}
	}
	sort.Slice(executions, func(i, j int) bool {
		return s.order[executions[i].ID] < s.order[executions[j].ID]
	})
	return executions, nil
}

// CreateUser registers user under its lower-cased email
func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := s.users[email]; ok {
		return ErrDuplicateUser
	}

	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	stored := *user
	stored.Email = email
	s.users[email] = &stored
	return nil
}

// GetUserByEmail looks a user up case-insensitively
func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	found := *user
	return &found, nil
}
