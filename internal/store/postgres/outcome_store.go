package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/backitlabs/backit-oracle/internal/domain"
)

// OutcomeStore implements domain.OutcomeStore using PostgreSQL.
type OutcomeStore struct {
	pool *pgxpool.Pool
}

// NewOutcomeStore creates an OutcomeStore backed by the given connection pool.
func NewOutcomeStore(pool *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

// Record marks the call processed and inserts its outcome in one
// transaction. The mark is a conditional update on the call not already
// being terminal; when a concurrent attempt won the race, zero rows match,
// the transaction rolls back, and domain.ErrAlreadySettled is returned. This
// is what makes "first writer wins" hold even for a slow retry overlapping a
// fresh scan.
func (s *OutcomeStore) Record(ctx context.Context, outcome *domain.Outcome, attempts int, processedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin record outcome: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const claim = `
		UPDATE calls
		SET processed_at = $2, attempts = $3
		WHERE id = $1
		  AND processed_at IS NULL
		  AND failed_at IS NULL`

	tag, err := tx.Exec(ctx, claim, outcome.CallID, processedAt, attempts)
	if err != nil {
		return fmt.Errorf("postgres: claim call %d: %w", outcome.CallID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: claim call %d: %w", outcome.CallID, domain.ErrAlreadySettled)
	}

	const insert = `
		INSERT INTO outcomes (call_id, price, outcome, signature, tx_ref)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err = tx.QueryRow(ctx, insert,
		outcome.CallID, outcome.Price, string(outcome.Value),
		outcome.SignatureHex, outcome.TxRef,
	).Scan(&outcome.ID, &outcome.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert outcome for call %d: %w", outcome.CallID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit outcome for call %d: %w", outcome.CallID, err)
	}
	return nil
}

// ListByCall returns all outcomes recorded for a call, oldest first.
func (s *OutcomeStore) ListByCall(ctx context.Context, callID int64) ([]domain.Outcome, error) {
	const query = `
		SELECT id, call_id, price, outcome, signature, tx_ref, created_at
		FROM outcomes
		WHERE call_id = $1
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, callID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes for call %d: %w", callID, err)
	}
	defer rows.Close()

	var outcomes []domain.Outcome
	for rows.Next() {
		var o domain.Outcome
		var value string
		if err := rows.Scan(&o.ID, &o.CallID, &o.Price, &value, &o.SignatureHex, &o.TxRef, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan outcome: %w", err)
		}
		o.Value = domain.OutcomeValue(value)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// CountForCall returns how many outcomes exist for a call.
func (s *OutcomeStore) CountForCall(ctx context.Context, callID int64) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM outcomes WHERE call_id = $1", callID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count outcomes for call %d: %w", callID, err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.OutcomeStore = (*OutcomeStore)(nil)
