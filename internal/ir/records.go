package ir

// Tier names the queue a unit run was dispatched from.
type Tier string

const (
	TierUnit     Tier = "unit"
	TierEvent    Tier = "event"
	TierReaction Tier = "reaction"
)

// Outcome is the result class of one unit run.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeError   Outcome = "error"
	OutcomeSkipped Outcome = "skipped" // unit storage absent
)

// RunRecord describes one dispatch of a unit during a drain.
type RunRecord struct {
	ID            string  `json:"id"` // Content-addressed
	DrainID       string  `json:"drain_id"`
	Seq           int64   `json:"seq"` // Logical clock
	Unit          Entity  `json:"unit"`
	Name          string  `json:"name"`
	Tier          Tier    `json:"tier"`
	TriggerKind   string  `json:"trigger_kind,omitempty"`
	TriggerName   string  `json:"trigger_name,omitempty"`
	TriggerTarget Entity  `json:"trigger_target,omitempty"`
	Outcome       Outcome `json:"outcome"`
	Error         string  `json:"error,omitempty"`
}

// DrainRecord summarizes one top-level drain.
type DrainRecord struct {
	ID    string `json:"id"`
	Seq   int64  `json:"seq"` // Clock value when the drain started
	Steps int    `json:"steps"`
	Error string `json:"error,omitempty"`
}
