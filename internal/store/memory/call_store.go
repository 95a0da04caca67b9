// Package memory provides in-memory store implementations with the same
// conditional-update semantics as the PostgreSQL stores. They back unit
// tests and local dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/backitlabs/backit-oracle/internal/domain"
)

// CallStore is a mutex-guarded in-memory domain.CallStore.
type CallStore struct {
	mu     sync.Mutex
	nextID int64
	calls  map[int64]*domain.Call
}

// NewCallStore creates an empty CallStore.
func NewCallStore() *CallStore {
	return &CallStore{
		nextID: 1,
		calls:  make(map[int64]*domain.Call),
	}
}

// Create inserts a call and assigns its ID and CreatedAt.
func (s *CallStore) Create(ctx context.Context, call *domain.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	call.ID = s.nextID
	s.nextID++
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}

	cp := *call
	s.calls[call.ID] = &cp
	return nil
}

// GetByID returns a copy of the stored call.
func (s *CallStore) GetByID(ctx context.Context, id int64) (domain.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[id]
	if !ok {
		return domain.Call{}, fmt.Errorf("memory: call %d: %w", id, domain.ErrNotFound)
	}
	return *c, nil
}

// ListDue returns every call matching the due predicate at asOf.
func (s *CallStore) ListDue(ctx context.Context, asOf time.Time) ([]domain.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []domain.Call
	for _, c := range s.calls {
		if c.Due(asOf) {
			due = append(due, *c)
		}
	}
	return due, nil
}

// ListPending returns every non-terminal call.
func (s *CallStore) ListPending(ctx context.Context) ([]domain.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []domain.Call
	for _, c := range s.calls {
		if !c.Terminal() {
			pending = append(pending, *c)
		}
	}
	return pending, nil
}

// MarkFailed conditionally transitions the call to failed.
func (s *CallStore) MarkFailed(ctx context.Context, id int64, reason string, attempts int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[id]
	if !ok {
		return fmt.Errorf("memory: call %d: %w", id, domain.ErrNotFound)
	}
	if c.Terminal() {
		return fmt.Errorf("memory: mark call %d failed: %w", id, domain.ErrAlreadySettled)
	}

	failedAt := at
	c.FailedAt = &failedAt
	c.FailureReason = reason
	c.Attempts = attempts
	return nil
}

// markProcessed is the conditional claim used by the outcome store. Callers
// must hold no lock; it takes the store's own.
func (s *CallStore) markProcessed(id int64, attempts int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[id]
	if !ok {
		return fmt.Errorf("memory: call %d: %w", id, domain.ErrNotFound)
	}
	if c.Terminal() {
		return fmt.Errorf("memory: claim call %d: %w", id, domain.ErrAlreadySettled)
	}

	processedAt := at
	c.ProcessedAt = &processedAt
	c.Attempts = attempts
	return nil
}

// Compile-time interface check.
var _ domain.CallStore = (*CallStore)(nil)
