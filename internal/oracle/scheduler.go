package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/backitlabs/backit-oracle/internal/domain"
)

// Scheduler periodically scans the call store for due calls and dispatches
// each to the settlement pipeline. A cycle that fails is logged and skipped;
// the loop itself never stops on a cycle error. Ticks are wall-clock based
// and may drift under load, which is fine because due-ness is a monotonic
// predicate, not an exact-time trigger.
type Scheduler struct {
	calls     domain.CallStore
	processor *Processor
	locker    domain.CallLocker // may be nil
	interval  time.Duration
	logger    *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// lockTTL bounds how long a replica can hold a per-call lock. It comfortably
// covers a full retry envelope so a crashed holder does not block the call
// for long.
const lockTTL = 5 * time.Minute

// NewScheduler creates a Scheduler that scans every interval. locker may be
// nil, in which case calls are dispatched without cross-replica locking (the
// store's conditional updates still prevent double settlement).
func NewScheduler(calls domain.CallStore, processor *Processor, locker domain.CallLocker, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		calls:     calls,
		processor: processor,
		locker:    locker,
		interval:  interval,
		logger:    logger.With(slog.String("component", "scheduler")),
	}
}

// Run scans immediately, then on every tick until ctx is cancelled. Returns
// ctx.Err() on shutdown. Cancellation stops new dispatches; a call already
// in its pipeline is left to finish (it runs on a context detached from the
// shutdown signal).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler starting",
		slog.Duration("poll_interval", s.interval),
	)

	if err := s.RunCycle(ctx); err != nil {
		s.logger.ErrorContext(ctx, "settlement cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				s.logger.ErrorContext(ctx, "settlement cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunCycle executes a single due-call scan and settles every call it finds.
// It is exported so tests and operator tooling can trigger a scan without
// waiting for a tick.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	due, err := s.calls.ListDue(ctx, s.clock())
	if err != nil {
		return fmt.Errorf("listing due calls: %w", err)
	}
	if len(due) == 0 {
		s.logger.DebugContext(ctx, "no due calls")
		return nil
	}

	s.logger.InfoContext(ctx, "found due calls", slog.Int("count", len(due)))

	for _, call := range due {
		// Stop dispatching on shutdown, but never cancel a pipeline that has
		// already started.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.dispatch(ctx, call)
	}
	return nil
}

// dispatch runs one call's pipeline, guarded by the per-call lock when a
// locker is configured.
func (s *Scheduler) dispatch(ctx context.Context, call domain.Call) {
	if s.locker != nil {
		unlock, err := s.locker.Acquire(ctx, call.ID, lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "call locked by another worker, skipping",
				slog.Int64("call_id", call.ID),
			)
			return
		}
		if err != nil {
			// Lock service trouble must not stall settlement; the store's
			// conditional claim still guarantees single settlement.
			s.logger.WarnContext(ctx, "call lock unavailable, proceeding without it",
				slog.Int64("call_id", call.ID),
				slog.String("error", err.Error()),
			)
		} else {
			defer unlock()
		}
	}

	// Detach from the shutdown signal so an in-flight pipeline finishes its
	// current attempt cleanly.
	if err := s.processor.Settle(context.WithoutCancel(ctx), call); err != nil {
		s.logger.ErrorContext(ctx, "call settlement ended in failure",
			slog.Int64("call_id", call.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}
