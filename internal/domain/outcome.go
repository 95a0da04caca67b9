package domain

import "time"

// OutcomeValue is the binary settlement result of a call.
type OutcomeValue string

const (
	OutcomeYes OutcomeValue = "YES"
	OutcomeNo  OutcomeValue = "NO"
)

// Digit returns the single ASCII byte used for the outcome in the canonical
// attestation message: '1' for YES, '0' for NO.
func (v OutcomeValue) Digit() byte {
	if v == OutcomeYes {
		return '1'
	}
	return '0'
}

// Valid reports whether v is one of the two defined outcome values.
func (v OutcomeValue) Valid() bool {
	return v == OutcomeYes || v == OutcomeNo
}

// Outcome is the immutable record of a settled call: the observed price, the
// derived YES/NO value, the oracle's attestation signature, and the reference
// of the settlement transaction that carried it. Outcomes are append-only and
// exist if and only if their call has been marked processed.
type Outcome struct {
	ID           int64
	CallID       int64
	Price        float64
	Value        OutcomeValue
	SignatureHex string
	TxRef        string
	CreatedAt    time.Time
}
