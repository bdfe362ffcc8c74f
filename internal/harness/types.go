package harness

import "github.com/roach88/ripple/internal/ir"

// TraceEvent is one unit run as seen by a scenario: the run record with
// entities replaced by their labels.
type TraceEvent struct {
	Step          int    `json:"step"`
	Seq           int64  `json:"seq"`
	DrainID       string `json:"drain_id"`
	Name          string `json:"name"`
	Tier          string `json:"tier"`
	TriggerKind   string `json:"trigger_kind,omitempty"`
	TriggerName   string `json:"trigger_name,omitempty"`
	TriggerTarget string `json:"trigger_target,omitempty"`
	Outcome       string `json:"outcome"`
	Error         string `json:"error,omitempty"`
}

// Skipped reports whether the run found no unit to dispatch.
func (e TraceEvent) Skipped() bool {
	return e.Outcome == string(ir.OutcomeSkipped)
}

// StepResult is the outcome of one step.
type StepResult struct {
	DrainIDs []string `json:"drain_ids"`
	Error    string   `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step behaved as expected and all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains every unit run across all steps, in dispatch order.
	Trace []TraceEvent `json:"trace"`

	// Steps holds one entry per executed step.
	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Resources is the final resource state.
	Resources ir.Object `json:"resources,omitempty"`

	// Entities maps each live labelled entity to its final components.
	// Reactor units are not included.
	Entities map[string]ir.Object `json:"entities,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Steps:     []StepResult{},
		Errors:    []string{},
		Resources: ir.Object{},
		Entities:  make(map[string]ir.Object),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Names returns the unit names of non-skipped runs, optionally restricted to
// one step (step < 0 means all).
func (r *Result) Names(step int) []string {
	names := []string{}
	for _, e := range r.Trace {
		if e.Skipped() || (step >= 0 && e.Step != step) {
			continue
		}
		names = append(names, e.Name)
	}
	return names
}
