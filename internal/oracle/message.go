package oracle

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/backitlabs/backit-oracle/internal/domain"
)

// MessagePrefix is the ASCII prefix of every canonical attestation message.
// The prefix doubles as the format version: any change to the layout below
// requires a new prefix, because the on-chain verifier reconstructs the exact
// same bytes from its own inputs.
const MessagePrefix = "BACKit:Outcome:"

// PriceScale is the fixed-point scaling factor applied to the observed price
// before it is written into the message (7 decimal digits, the usual Stellar
// asset precision). Conversion truncates; it never rounds.
const PriceScale = 10_000_000

// EncodedMessageLen is the exact length of every canonical message:
// prefix + 8-byte call id + ':' + outcome digit + ':' + 16-byte price +
// ':' + 8-byte timestamp.
const EncodedMessageLen = len(MessagePrefix) + 8 + 1 + 1 + 1 + 16 + 1 + 8

// EncodeMessage serializes the attestation fields into the frozen canonical
// byte layout. All integers are big-endian and fixed width. The scaled price
// occupies a 16-byte field with only the low 8 bytes populated, a simplified
// representation of the contract's i128 price type.
//
// Malformed inputs indicate a bug upstream, not a retryable condition, so
// they fail with an error rather than being coerced into signable bytes.
func EncodeMessage(callID uint64, value domain.OutcomeValue, price float64, timestampMillis uint64) ([]byte, error) {
	if !value.Valid() {
		return nil, fmt.Errorf("oracle: invalid outcome value %q", value)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("oracle: price is not a finite number: %v", price)
	}
	if price < 0 {
		return nil, fmt.Errorf("oracle: price must not be negative: %v", price)
	}

	scaled := math.Trunc(price * PriceScale)
	if scaled > math.MaxInt64 {
		return nil, fmt.Errorf("oracle: scaled price %v overflows the wire field", scaled)
	}

	msg := make([]byte, 0, EncodedMessageLen)
	msg = append(msg, MessagePrefix...)
	msg = binary.BigEndian.AppendUint64(msg, callID)
	msg = append(msg, ':')
	msg = append(msg, value.Digit())
	msg = append(msg, ':')
	// 16-byte price field: high 8 bytes zero, low 8 bytes big-endian.
	msg = append(msg, 0, 0, 0, 0, 0, 0, 0, 0)
	msg = binary.BigEndian.AppendUint64(msg, uint64(int64(scaled)))
	msg = append(msg, ':')
	msg = binary.BigEndian.AppendUint64(msg, timestampMillis)

	return msg, nil
}
