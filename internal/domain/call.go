package domain

import "time"

// Call is a market proposition awaiting settlement: will the pair's price be
// at or above the strike when the resolution time arrives?
type Call struct {
	ID             int64
	PairAddress    string
	BaseToken      string
	QuoteToken     string
	StrikePrice    float64
	ResolutionTime time.Time

	// Settlement state. ProcessedAt and FailedAt are mutually exclusive and
	// each is written at most once, by the settlement worker.
	ProcessedAt   *time.Time
	FailedAt      *time.Time
	FailureReason string

	// Attempts records how many settlement attempts the last pipeline run
	// made. Informational only; the retry budget is not resumed from it.
	Attempts int

	CreatedAt time.Time
}

// Due reports whether the call should be picked up by a settlement scan at
// the given instant: its resolution time has passed and it has not reached a
// terminal state.
func (c Call) Due(asOf time.Time) bool {
	return !c.ResolutionTime.After(asOf) && c.ProcessedAt == nil && c.FailedAt == nil
}

// Terminal reports whether the call has been settled or permanently failed.
func (c Call) Terminal() bool {
	return c.ProcessedAt != nil || c.FailedAt != nil
}
