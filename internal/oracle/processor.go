package oracle

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/backitlabs/backit-oracle/internal/domain"
)

// ContractClient delivers a signed attestation to the external settlement
// contract and returns the resulting transaction reference.
type ContractClient interface {
	SubmitOutcome(ctx context.Context, req SubmissionRequest) (txRef string, err error)
}

// SubmissionRequest is the settlement contract call payload: the fields the
// verifier needs to reconstruct and check the canonical message.
type SubmissionRequest struct {
	CallID          int64
	Value           domain.OutcomeValue
	Price           float64
	TimestampMillis uint64
	Signature       []byte
	PublicKeyHex    string
}

// Notifier delivers operator alerts for settlement events.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// errBadAttestationInput marks failures that indicate a bug rather than a
// flaky upstream; retrying them would sign the same malformed input again.
var errBadAttestationInput = errors.New("invalid attestation input")

// ProcessorConfig tunes the retry envelope of the settlement pipeline.
type ProcessorConfig struct {
	// MaxAttempts is the total number of pipeline attempts per call before
	// the call is marked failed.
	MaxAttempts int

	// BackoffBase is the delay before the first retry; each subsequent retry
	// doubles it.
	BackoffBase time.Duration
}

// Processor runs the per-call settlement pipeline: fetch price, determine
// outcome, encode, sign, submit, persist. Retries cover the whole pipeline,
// not just the network steps.
type Processor struct {
	calls    domain.CallStore
	outcomes domain.OutcomeStore
	prices   PriceFetcher
	signer   *Signer
	contract ContractClient
	archiver domain.AttestationArchiver // may be nil
	notifier Notifier                   // may be nil
	cfg      ProcessorConfig
	logger   *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewProcessor creates a Processor. archiver and notifier may be nil.
func NewProcessor(
	calls domain.CallStore,
	outcomes domain.OutcomeStore,
	prices PriceFetcher,
	signer *Signer,
	contract ContractClient,
	archiver domain.AttestationArchiver,
	notifier Notifier,
	cfg ProcessorConfig,
	logger *slog.Logger,
) *Processor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Processor{
		calls:    calls,
		outcomes: outcomes,
		prices:   prices,
		signer:   signer,
		contract: contract,
		archiver: archiver,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "processor")),
	}
}

// Settle drives one call to a terminal state. It returns nil when the call
// was settled by this or a concurrent attempt, and the terminal error after
// the retry budget is exhausted (by which point the failure has already been
// recorded on the call).
func (p *Processor) Settle(ctx context.Context, call domain.Call) error {
	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		err := p.attempt(ctx, call, attempt)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrAlreadySettled) {
			// Another attempt won the race; our work is a harmless duplicate.
			p.logger.InfoContext(ctx, "call settled concurrently, discarding attempt",
				slog.Int64("call_id", call.ID),
			)
			return nil
		}

		lastErr = err
		p.logger.ErrorContext(ctx, "settlement attempt failed",
			slog.Int64("call_id", call.ID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.cfg.MaxAttempts),
			slog.String("error", err.Error()),
		)

		// A malformed canonical input is a bug; burning the remaining budget
		// on it would only re-sign garbage.
		if errors.Is(err, errBadAttestationInput) {
			break
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}

		delay := p.cfg.BackoffBase << (attempt - 1)
		select {
		case <-ctx.Done():
			// Shutdown mid-backoff: the call stays non-terminal and the next
			// process picks it up again via the due scan.
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return p.markFailed(ctx, call, lastErr)
}

// attempt executes one full pass of the pipeline.
func (p *Processor) attempt(ctx context.Context, call domain.Call, attempt int) error {
	price, ok, err := p.prices.FetchPrice(ctx, call.PairAddress, call.BaseToken, call.QuoteToken)
	if err != nil {
		return fmt.Errorf("fetching price: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: pair %s", domain.ErrNoPrice, call.PairAddress)
	}

	value := Determine(price, call.StrikePrice)
	ts := uint64(p.clock().UnixMilli())

	msg, err := EncodeMessage(uint64(call.ID), value, price, ts)
	if err != nil {
		return fmt.Errorf("%w: %w", errBadAttestationInput, err)
	}

	sig := p.signer.Sign(msg)

	txRef, err := p.contract.SubmitOutcome(ctx, SubmissionRequest{
		CallID:          call.ID,
		Value:           value,
		Price:           price,
		TimestampMillis: ts,
		Signature:       sig,
		PublicKeyHex:    p.signer.PublicKeyHex(),
	})
	if err != nil {
		return fmt.Errorf("submitting outcome: %w", err)
	}

	outcome := &domain.Outcome{
		CallID:       call.ID,
		Price:        price,
		Value:        value,
		SignatureHex: hex.EncodeToString(sig),
		TxRef:        txRef,
	}

	// First writer wins: Record conditionally claims the call and inserts
	// the outcome in one transaction. Nothing was persisted for any earlier
	// partial failure of this attempt.
	if err := p.outcomes.Record(ctx, outcome, attempt, p.clock()); err != nil {
		return fmt.Errorf("recording outcome: %w", err)
	}

	p.logger.InfoContext(ctx, "call settled",
		slog.Int64("call_id", call.ID),
		slog.String("outcome", string(value)),
		slog.Float64("price", price),
		slog.String("tx_ref", txRef),
		slog.Int("attempt", attempt),
	)

	if p.archiver != nil {
		if aerr := p.archiver.ArchiveAttestation(ctx, *outcome, p.signer.PublicKeyHex()); aerr != nil {
			p.logger.WarnContext(ctx, "attestation archive failed",
				slog.Int64("call_id", call.ID),
				slog.String("error", aerr.Error()),
			)
		}
	}
	p.notify(ctx, "settlement_processed", "Call settled",
		fmt.Sprintf("call %d settled %s at price %v (tx %s)", call.ID, value, price, txRef))

	return nil
}

// markFailed transitions the call to its terminal failed state.
func (p *Processor) markFailed(ctx context.Context, call domain.Call, cause error) error {
	reason := "settlement failed"
	if cause != nil {
		reason = cause.Error()
	}

	err := p.calls.MarkFailed(ctx, call.ID, reason, p.cfg.MaxAttempts, p.clock())
	if errors.Is(err, domain.ErrAlreadySettled) {
		p.logger.InfoContext(ctx, "call settled concurrently, skipping failure mark",
			slog.Int64("call_id", call.ID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("marking call %d failed: %w", call.ID, err)
	}

	p.logger.ErrorContext(ctx, "call permanently failed",
		slog.Int64("call_id", call.ID),
		slog.Int("attempts", p.cfg.MaxAttempts),
		slog.String("reason", reason),
	)
	p.notify(ctx, "settlement_failed", "Call settlement failed",
		fmt.Sprintf("call %d failed after %d attempts: %s", call.ID, p.cfg.MaxAttempts, reason))

	return fmt.Errorf("call %d failed after %d attempts: %w", call.ID, p.cfg.MaxAttempts, cause)
}

func (p *Processor) notify(ctx context.Context, event, title, message string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, event, title, message); err != nil {
		p.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Processor) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now().UTC()
}
