package recon

// Outcome classifies what happened to one record of a batch. Nothing is
// silently swallowed: a record either changed the store, lost the timestamp
// comparison, waits for a missing parent, or failed outright.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeIgnored Outcome = "ignored" // older or equal timestamp, local wins
	OutcomeSkipped Outcome = "skipped" // missing parent, retry in a later batch
	OutcomeFailed  Outcome = "failed"
)

// RecordResult reports the outcome of one record by its batch position.
type RecordResult struct {
	Index   int     `json:"index"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// Summary aggregates a batch. Replayed batches short-circuit with zero
// counts.
type Summary struct {
	Applied  int            `json:"applied"`
	Ignored  int            `json:"ignored"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
	Replayed bool           `json:"replayed,omitempty"`
	Results  []RecordResult `json:"results,omitempty"`
}
