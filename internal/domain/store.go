package domain

import (
	"context"
	"time"
)

// CallStore persists calls and their settlement state. Implementations must
// make every settlement-state mutation conditional on the call not already
// being terminal, so that overlapping attempts lose deterministically.
type CallStore interface {
	Create(ctx context.Context, call *Call) error
	GetByID(ctx context.Context, id int64) (Call, error)

	// ListDue returns every call whose resolution time is at or before asOf
	// and that has neither been processed nor failed. Ordering is
	// unspecified.
	ListDue(ctx context.Context, asOf time.Time) ([]Call, error)

	// ListPending returns every non-terminal call regardless of due-ness.
	ListPending(ctx context.Context) ([]Call, error)

	// MarkFailed records a terminal failure. It returns ErrAlreadySettled if
	// the call already reached a terminal state, in which case nothing is
	// written.
	MarkFailed(ctx context.Context, id int64, reason string, attempts int, at time.Time) error
}

// OutcomeStore persists settlement outcomes.
type OutcomeStore interface {
	// Record atomically marks the call processed and inserts the outcome.
	// The mark is conditional on the call not already being terminal; if the
	// condition fails, nothing is written and ErrAlreadySettled is returned.
	// This is the only way a call becomes processed, which keeps the
	// "outcome exists iff processed" invariant store-enforced.
	Record(ctx context.Context, outcome *Outcome, attempts int, processedAt time.Time) error

	ListByCall(ctx context.Context, callID int64) ([]Outcome, error)
	CountForCall(ctx context.Context, callID int64) (int64, error)
}

// PriceCache caches recently observed pair prices so retries within a short
// window do not hammer the upstream source.
type PriceCache interface {
	Get(ctx context.Context, pairAddress string) (float64, bool, error)
	Set(ctx context.Context, pairAddress string, price float64) error
}

// CallLocker serializes settlement work on a single call across worker
// replicas. Acquire returns ErrLockHeld when another holder owns the lock.
// The store-level conditional updates remain the correctness backstop; the
// lock only avoids duplicate upstream traffic.
type CallLocker interface {
	Acquire(ctx context.Context, callID int64, ttl time.Duration) (func(), error)
}

// AttestationArchiver stores a durable copy of a signed attestation for
// off-database audit. Archival is best-effort; failures must not affect
// settlement.
type AttestationArchiver interface {
	ArchiveAttestation(ctx context.Context, outcome Outcome, publicKeyHex string) error
}
