package oracle

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/backitlabs/backit-oracle/internal/domain"
	"github.com/backitlabs/backit-oracle/internal/store/memory"
)

// fakePriceFetcher returns scripted responses and counts calls. failuresFirst
// attempts report no price before the configured price kicks in.
type fakePriceFetcher struct {
	price         float64
	ok            bool
	failuresFirst int
	calls         int
}

func (f *fakePriceFetcher) FetchPrice(ctx context.Context, pairAddress, baseToken, quoteToken string) (float64, bool, error) {
	f.calls++
	if f.calls <= f.failuresFirst {
		return 0, false, nil
	}
	return f.price, f.ok, nil
}

// fakeContract returns a fixed tx reference or a scripted error.
type fakeContract struct {
	txRef string
	err   error
	calls int
}

func (f *fakeContract) SubmitOutcome(ctx context.Context, req SubmissionRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.txRef, nil
}

type capturedNotification struct {
	event, title, message string
}

type fakeNotifier struct {
	notifications []capturedNotification
}

func (f *fakeNotifier) Notify(ctx context.Context, event, title, message string) error {
	f.notifications = append(f.notifications, capturedNotification{event, title, message})
	return nil
}

type processorFixture struct {
	calls    *memory.CallStore
	outcomes *memory.OutcomeStore
	prices   *fakePriceFetcher
	contract *fakeContract
	notifier *fakeNotifier
	signer   *Signer
	proc     *Processor
}

func newProcessorFixture(t *testing.T, cfg ProcessorConfig) *processorFixture {
	t.Helper()

	signer, err := NewSigner(KeyConfig{SeedHex: testSeedHex}, testLogger())
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	calls := memory.NewCallStore()
	f := &processorFixture{
		calls:    calls,
		outcomes: memory.NewOutcomeStore(calls),
		prices:   &fakePriceFetcher{},
		contract: &fakeContract{txRef: "tx-abc123"},
		notifier: &fakeNotifier{},
		signer:   signer,
	}
	f.proc = NewProcessor(f.calls, f.outcomes, f.prices, signer, f.contract, nil, f.notifier, cfg, testLogger())
	return f
}

func (f *processorFixture) createCall(t *testing.T, strike float64) domain.Call {
	t.Helper()
	call := domain.Call{
		PairAddress:    "CAPAIR000001",
		BaseToken:      "BTC:GISSUER",
		QuoteToken:     "USDC:GISSUER",
		StrikePrice:    strike,
		ResolutionTime: time.Now().Add(-time.Minute),
	}
	if err := f.calls.Create(context.Background(), &call); err != nil {
		t.Fatalf("create call: %v", err)
	}
	return call
}

func TestProcessor_SettleSuccess(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, ProcessorConfig{MaxAttempts: 3, BackoffBase: time.Millisecond})
	f.prices.price = 105
	f.prices.ok = true

	fixed := time.UnixMilli(1700000000000).UTC()
	f.proc.now = func() time.Time { return fixed }

	call := f.createCall(t, 100)

	if err := f.proc.Settle(ctx, call); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// Exactly one outcome, and the call is processed.
	outcomes, err := f.outcomes.ListByCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("list outcomes: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	got, err := f.calls.GetByID(ctx, call.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if got.ProcessedAt == nil {
		t.Fatal("call was not marked processed")
	}
	if got.FailedAt != nil {
		t.Fatal("call was also marked failed")
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}

	o := outcomes[0]
	if o.Value != domain.OutcomeYes {
		t.Errorf("outcome = %s, want YES", o.Value)
	}
	if o.Price != 105 {
		t.Errorf("outcome price = %v, want 105", o.Price)
	}
	if o.TxRef != "tx-abc123" {
		t.Errorf("tx ref = %q, want tx-abc123", o.TxRef)
	}
	if o.TxRef == o.SignatureHex {
		t.Error("tx ref must not be the signature")
	}

	// The stored signature verifies against the canonical message for the
	// pinned timestamp.
	msg, err := EncodeMessage(uint64(call.ID), domain.OutcomeYes, 105, uint64(fixed.UnixMilli()))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	sig, err := hex.DecodeString(o.SignatureHex)
	if err != nil {
		t.Fatalf("signature is not hex: %v", err)
	}
	if !ed25519.Verify(f.signer.PublicKey(), msg, sig) {
		t.Error("stored signature does not verify against the canonical message")
	}

	if f.contract.calls != 1 {
		t.Errorf("contract submissions = %d, want 1", f.contract.calls)
	}
	if len(f.notifier.notifications) != 1 || f.notifier.notifications[0].event != "settlement_processed" {
		t.Errorf("unexpected notifications: %+v", f.notifier.notifications)
	}
}

func TestProcessor_RetryCeilingOnNoPrice(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, ProcessorConfig{MaxAttempts: 3, BackoffBase: time.Millisecond})
	f.prices.ok = false // price source always fails

	call := f.createCall(t, 100)

	err := f.proc.Settle(ctx, call)
	if err == nil {
		t.Fatal("expected a terminal error")
	}
	if !errors.Is(err, domain.ErrNoPrice) {
		t.Errorf("terminal error = %v, want ErrNoPrice in the chain", err)
	}

	if f.prices.calls != 3 {
		t.Errorf("price fetch attempts = %d, want exactly 3", f.prices.calls)
	}

	got, err := f.calls.GetByID(ctx, call.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if got.FailedAt == nil {
		t.Fatal("call was not marked failed")
	}
	if got.FailureReason == "" {
		t.Error("failure reason is empty")
	}
	if got.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", got.Attempts)
	}

	count, _ := f.outcomes.CountForCall(ctx, call.ID)
	if count != 0 {
		t.Errorf("outcome rows = %d, want 0", count)
	}

	// A failed call leaves the due set permanently.
	due, err := f.calls.ListDue(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	for _, c := range due {
		if c.ID == call.ID {
			t.Error("failed call still shows up in the due scan")
		}
	}

	if len(f.notifier.notifications) != 1 || f.notifier.notifications[0].event != "settlement_failed" {
		t.Errorf("unexpected notifications: %+v", f.notifier.notifications)
	}
}

func TestProcessor_SubmissionFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, ProcessorConfig{MaxAttempts: 2, BackoffBase: time.Millisecond})
	f.prices.price = 105
	f.prices.ok = true
	f.contract.err = errors.New("gateway timeout")

	call := f.createCall(t, 100)

	if err := f.proc.Settle(ctx, call); err == nil {
		t.Fatal("expected a terminal error")
	}

	// Signing succeeded on every attempt, but no outcome may exist for a
	// partially failed attempt.
	count, _ := f.outcomes.CountForCall(ctx, call.ID)
	if count != 0 {
		t.Errorf("outcome rows = %d, want 0", count)
	}

	got, _ := f.calls.GetByID(ctx, call.ID)
	if got.FailedAt == nil {
		t.Fatal("call was not marked failed")
	}
	if !strings.Contains(got.FailureReason, "gateway timeout") {
		t.Errorf("failure reason %q does not mention the cause", got.FailureReason)
	}
}

func TestProcessor_RetriesRecoverWithinBudget(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, ProcessorConfig{MaxAttempts: 3, BackoffBase: time.Millisecond})

	// Price source fails once, then recovers below the strike.
	f.prices.failuresFirst = 1
	f.prices.price = 99
	f.prices.ok = true

	call := f.createCall(t, 100)

	if err := f.proc.Settle(ctx, call); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if f.prices.calls != 2 {
		t.Errorf("price fetch attempts = %d, want 2", f.prices.calls)
	}

	outcomes, _ := f.outcomes.ListByCall(ctx, call.ID)
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0].Value != domain.OutcomeNo {
		t.Errorf("outcome = %s, want NO (99 < 100)", outcomes[0].Value)
	}
}

func TestProcessor_ConcurrentSettlementIsHarmlessDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, ProcessorConfig{MaxAttempts: 3, BackoffBase: time.Millisecond})
	f.prices.price = 105
	f.prices.ok = true

	call := f.createCall(t, 100)

	// Simulate a fresh scan winning the race before our pipeline commits.
	winner := &domain.Outcome{CallID: call.ID, Price: 105, Value: domain.OutcomeYes, SignatureHex: "aa", TxRef: "tx-winner"}
	if err := f.outcomes.Record(ctx, winner, 1, time.Now()); err != nil {
		t.Fatalf("record winning outcome: %v", err)
	}

	if err := f.proc.Settle(ctx, call); err != nil {
		t.Fatalf("settle should absorb the duplicate, got: %v", err)
	}

	count, _ := f.outcomes.CountForCall(ctx, call.ID)
	if count != 1 {
		t.Errorf("outcome rows = %d, want 1 (duplicate discarded)", count)
	}
}

func TestProcessor_LateFailureDoesNotOverrideSettlement(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, ProcessorConfig{MaxAttempts: 1, BackoffBase: time.Millisecond})
	f.prices.ok = false

	call := f.createCall(t, 100)

	// The call settles concurrently while our only attempt is failing.
	winner := &domain.Outcome{CallID: call.ID, Price: 105, Value: domain.OutcomeYes, SignatureHex: "aa", TxRef: "tx-winner"}
	if err := f.outcomes.Record(ctx, winner, 1, time.Now()); err != nil {
		t.Fatalf("record winning outcome: %v", err)
	}

	if err := f.proc.Settle(ctx, call); err != nil {
		t.Fatalf("settle should absorb the lost race, got: %v", err)
	}

	got, _ := f.calls.GetByID(ctx, call.ID)
	if got.FailedAt != nil {
		t.Error("a processed call was additionally marked failed")
	}
}

func TestProcessor_BackoffDelaysBetweenAttempts(t *testing.T) {
	ctx := context.Background()
	base := 30 * time.Millisecond
	f := newProcessorFixture(t, ProcessorConfig{MaxAttempts: 3, BackoffBase: base})
	f.prices.ok = false

	call := f.createCall(t, 100)

	start := time.Now()
	_ = f.proc.Settle(ctx, call)
	elapsed := time.Since(start)

	// Delays are base and 2*base between the three attempts.
	if want := 3 * base; elapsed < want {
		t.Errorf("settle returned after %v, want at least %v of backoff", elapsed, want)
	}
}
