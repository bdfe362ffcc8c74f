package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxSteps is the default maximum number of unit runs per drain.
const DefaultMaxSteps = 1000

// QuotaEnforcer counts unit runs within one drain and enforces a maximum.
//
// Each drain gets its own enforcer. It catches linear explosions (A → B → C
// → ... → Z) that never revisit a trigger; the RefireDetector catches the
// cyclic ones.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a quota enforcer with the given limit. A limit of
// zero or less disables the quota.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check counts one step and reports StepsExceededError once the limit is
// passed.
func (q *QuotaEnforcer) Check(drainID string) error {
	q.current++
	if q.maxSteps > 0 && q.current > q.maxSteps {
		return &StepsExceededError{
			DrainID: drainID,
			Steps:   q.current,
			Limit:   q.maxSteps,
		}
	}
	return nil
}

// Reset resets the step counter to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a drain exceeds the max steps quota.
// It terminates the whole drain.
type StepsExceededError struct {
	DrainID string
	Steps   int
	Limit   int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("drain %s exceeded max steps quota: %d steps > %d limit",
		e.DrainID, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
