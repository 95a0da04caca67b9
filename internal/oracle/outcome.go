package oracle

import "github.com/backitlabs/backit-oracle/internal/domain"

// Determine maps an observed price and a strike price to the binary call
// outcome. Equality resolves YES: the comparison is inclusive (>=) and the
// tie-break must never change, since real stakes settle on it.
func Determine(observed, strike float64) domain.OutcomeValue {
	if observed >= strike {
		return domain.OutcomeYes
	}
	return domain.OutcomeNo
}
