package memory

import (
	"context"
	"sync"
	"time"

	"github.com/backitlabs/backit-oracle/internal/domain"
)

// OutcomeStore is a mutex-guarded in-memory domain.OutcomeStore. It claims
// calls through the paired CallStore so the processed/outcome invariant holds
// exactly as in PostgreSQL.
type OutcomeStore struct {
	mu       sync.Mutex
	nextID   int64
	calls    *CallStore
	outcomes []domain.Outcome
}

// NewOutcomeStore creates an OutcomeStore that claims calls in calls.
func NewOutcomeStore(calls *CallStore) *OutcomeStore {
	return &OutcomeStore{
		nextID: 1,
		calls:  calls,
	}
}

// Record conditionally marks the call processed and appends the outcome.
// When the claim fails nothing is written and domain.ErrAlreadySettled is
// returned, mirroring the transactional behavior of the PostgreSQL store.
func (s *OutcomeStore) Record(ctx context.Context, outcome *domain.Outcome, attempts int, processedAt time.Time) error {
	if err := s.calls.markProcessed(outcome.CallID, attempts, processedAt); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	outcome.ID = s.nextID
	s.nextID++
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now().UTC()
	}
	s.outcomes = append(s.outcomes, *outcome)
	return nil
}

// ListByCall returns all outcomes for a call in insertion order.
func (s *OutcomeStore) ListByCall(ctx context.Context, callID int64) ([]domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Outcome
	for _, o := range s.outcomes {
		if o.CallID == callID {
			out = append(out, o)
		}
	}
	return out, nil
}

// CountForCall returns how many outcomes exist for a call.
func (s *OutcomeStore) CountForCall(ctx context.Context, callID int64) (int64, error) {
	out, _ := s.ListByCall(ctx, callID)
	return int64(len(out)), nil
}

// Compile-time interface check.
var _ domain.OutcomeStore = (*OutcomeStore)(nil)
