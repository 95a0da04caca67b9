package oracle

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/backitlabs/backit-oracle/internal/domain"
)

func TestEncodeMessage_Layout(t *testing.T) {
	// Equivalent of a settled call: strike=100, fetched price=105.
	msg, err := EncodeMessage(42, domain.OutcomeYes, 105, 1700000000000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if len(msg) != EncodedMessageLen {
		t.Fatalf("expected %d bytes, got %d", EncodedMessageLen, len(msg))
	}

	if !bytes.HasPrefix(msg, []byte("BACKit:Outcome:")) {
		t.Fatalf("message does not start with the canonical prefix: %q", msg[:16])
	}
	off := len("BACKit:Outcome:")

	if got := binary.BigEndian.Uint64(msg[off : off+8]); got != 42 {
		t.Errorf("call id field = %d, want 42", got)
	}
	off += 8

	if msg[off] != ':' {
		t.Errorf("expected ':' after call id, got %q", msg[off])
	}
	off++

	if msg[off] != '1' {
		t.Errorf("outcome digit = %q, want '1'", msg[off])
	}
	off++

	if msg[off] != ':' {
		t.Errorf("expected ':' after outcome, got %q", msg[off])
	}
	off++

	// 16-byte price field: high 8 bytes zero, low 8 bytes 105 * 10^7.
	high := msg[off : off+8]
	if !bytes.Equal(high, make([]byte, 8)) {
		t.Errorf("high price bytes = %x, want all zero", high)
	}
	if got := binary.BigEndian.Uint64(msg[off+8 : off+16]); got != 105*PriceScale {
		t.Errorf("scaled price = %d, want %d", got, uint64(105*PriceScale))
	}
	off += 16

	if msg[off] != ':' {
		t.Errorf("expected ':' after price, got %q", msg[off])
	}
	off++

	if got := binary.BigEndian.Uint64(msg[off : off+8]); got != 1700000000000 {
		t.Errorf("timestamp field = %d, want 1700000000000", got)
	}
}

func TestEncodeMessage_Deterministic(t *testing.T) {
	first, err := EncodeMessage(7, domain.OutcomeNo, 0.1234567, 1699999999999)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := EncodeMessage(7, domain.OutcomeNo, 0.1234567, 1699999999999)
		if err != nil {
			t.Fatalf("encode run %d: %v", i, err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("run %d produced different bytes:\n  %x\n  %x", i, first, again)
		}
	}
}

func TestEncodeMessage_NoOutcomeDigit(t *testing.T) {
	msg, err := EncodeMessage(1, domain.OutcomeNo, 1, 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	digitOff := len(MessagePrefix) + 8 + 1
	if msg[digitOff] != '0' {
		t.Errorf("outcome digit = %q, want '0'", msg[digitOff])
	}
}

func TestEncodeMessage_PriceTruncation(t *testing.T) {
	// 1.23456789 * 10^7 = 12345678.9; truncation, not rounding.
	msg, err := EncodeMessage(1, domain.OutcomeYes, 1.23456789, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	priceOff := len(MessagePrefix) + 8 + 1 + 1 + 1 + 8
	if got := binary.BigEndian.Uint64(msg[priceOff : priceOff+8]); got != 12345678 {
		t.Errorf("scaled price = %d, want 12345678 (truncated)", got)
	}
}

func TestEncodeMessage_RejectsMalformedInputs(t *testing.T) {
	cases := []struct {
		name  string
		value domain.OutcomeValue
		price float64
	}{
		{"invalid outcome", domain.OutcomeValue("MAYBE"), 1},
		{"nan price", domain.OutcomeYes, math.NaN()},
		{"positive infinity", domain.OutcomeYes, math.Inf(1)},
		{"negative price", domain.OutcomeYes, -0.01},
		{"scaled overflow", domain.OutcomeYes, math.MaxFloat64},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := EncodeMessage(1, tc.value, tc.price, 0); err == nil {
				t.Fatal("expected an error, got nil")
			}
		})
	}
}
