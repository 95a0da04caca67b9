package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/backitlabs/backit-oracle/internal/domain"
)

// CallStore implements domain.CallStore using PostgreSQL.
type CallStore struct {
	pool *pgxpool.Pool
}

// NewCallStore creates a CallStore backed by the given connection pool.
func NewCallStore(pool *pgxpool.Pool) *CallStore {
	return &CallStore{pool: pool}
}

const callColumns = `
	id, pair_address, base_token, quote_token, strike_price,
	resolution_time, processed_at, failed_at, failure_reason,
	attempts, created_at`

// Create inserts a new call and populates its ID and CreatedAt.
func (s *CallStore) Create(ctx context.Context, call *domain.Call) error {
	const query = `
		INSERT INTO calls (
			pair_address, base_token, quote_token, strike_price, resolution_time
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, query,
		call.PairAddress, call.BaseToken, call.QuoteToken,
		call.StrikePrice, call.ResolutionTime,
	).Scan(&call.ID, &call.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create call: %w", err)
	}
	return nil
}

// GetByID returns a single call by its ID.
func (s *CallStore) GetByID(ctx context.Context, id int64) (domain.Call, error) {
	const query = `SELECT ` + callColumns + ` FROM calls WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	call, err := scanCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Call{}, fmt.Errorf("postgres: call %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Call{}, fmt.Errorf("postgres: get call %d: %w", id, err)
	}
	return call, nil
}

// ListDue returns every call whose resolution time has passed and that has
// not reached a terminal state.
func (s *CallStore) ListDue(ctx context.Context, asOf time.Time) ([]domain.Call, error) {
	const query = `
		SELECT ` + callColumns + `
		FROM calls
		WHERE resolution_time <= $1
		  AND processed_at IS NULL
		  AND failed_at IS NULL`

	rows, err := s.pool.Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due calls: %w", err)
	}
	defer rows.Close()

	return collectCalls(rows)
}

// ListPending returns every non-terminal call.
func (s *CallStore) ListPending(ctx context.Context) ([]domain.Call, error) {
	const query = `
		SELECT ` + callColumns + `
		FROM calls
		WHERE processed_at IS NULL
		  AND failed_at IS NULL`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending calls: %w", err)
	}
	defer rows.Close()

	return collectCalls(rows)
}

// MarkFailed transitions a call to the failed terminal state. The update is
// conditional on the call not already being terminal; losing that condition
// returns domain.ErrAlreadySettled with nothing written.
func (s *CallStore) MarkFailed(ctx context.Context, id int64, reason string, attempts int, at time.Time) error {
	const query = `
		UPDATE calls
		SET failed_at = $2, failure_reason = $3, attempts = $4
		WHERE id = $1
		  AND processed_at IS NULL
		  AND failed_at IS NULL`

	tag, err := s.pool.Exec(ctx, query, id, at, reason, attempts)
	if err != nil {
		return fmt.Errorf("postgres: mark call %d failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark call %d failed: %w", id, domain.ErrAlreadySettled)
	}
	return nil
}

func scanCall(row pgx.Row) (domain.Call, error) {
	var c domain.Call
	err := row.Scan(
		&c.ID, &c.PairAddress, &c.BaseToken, &c.QuoteToken, &c.StrikePrice,
		&c.ResolutionTime, &c.ProcessedAt, &c.FailedAt, &c.FailureReason,
		&c.Attempts, &c.CreatedAt,
	)
	return c, err
}

func collectCalls(rows pgx.Rows) ([]domain.Call, error) {
	var calls []domain.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan call: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate calls: %w", err)
	}
	return calls, nil
}

// Compile-time interface check.
var _ domain.CallStore = (*CallStore)(nil)
