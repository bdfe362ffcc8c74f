package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/ripple/internal/ir"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// Configuration errors, reported by the call that caused them.
	ErrCodeDuplicateTrigger ErrorCode = "DUPLICATE_TRIGGER"
	ErrCodeDuplicateReactor ErrorCode = "DUPLICATE_REACTOR"
	ErrCodeEmptyTriggers    ErrorCode = "EMPTY_TRIGGERS"
	ErrCodeInvalidTrigger   ErrorCode = "INVALID_TRIGGER"
	ErrCodeUnknownReactor   ErrorCode = "UNKNOWN_REACTOR"
	ErrCodeUnknownUnit      ErrorCode = "UNKNOWN_UNIT"
	ErrCodeNotInitialized   ErrorCode = "NOT_INITIALIZED"
	ErrCodeClosed           ErrorCode = "ENGINE_CLOSED"

	// Runtime errors, which abort the drain they occur in.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeRefireLimit   ErrorCode = "REFIRE_LIMIT"
	ErrCodeCanceled      ErrorCode = "CANCELED"

	// ErrCodeUnitFailed marks a callable error escalated by the fatal policy.
	ErrCodeUnitFailed ErrorCode = "UNIT_FAILED"
)

// ConfigError is a setup mistake: duplicate triggers, empty trigger sets on
// self-cleaning reactors, unknown reactors, or use of an engine that was never
// initialized or is already closed. Not recoverable by retrying.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Reactor ir.Entity // Zero when not reactor-specific
	Trigger string    // Offending trigger, if any
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	switch {
	case e.Reactor != ir.Any && e.Trigger != "":
		return fmt.Sprintf("%s: %s (reactor=%s, trigger=%s)", e.Code, e.Message, e.Reactor, e.Trigger)
	case e.Reactor != ir.Any:
		return fmt.Sprintf("%s: %s (reactor=%s)", e.Code, e.Message, e.Reactor)
	case e.Trigger != "":
		return fmt.Sprintf("%s: %s (trigger=%s)", e.Code, e.Message, e.Trigger)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RuntimeError is raised while draining: runaway recursion or cancellation.
// The drain is abandoned and its remaining queued work discarded.
type RuntimeError struct {
	Code    ErrorCode
	Message string
	DrainID string
	Reactor ir.Entity
	Details map[string]string
	Err     error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.DrainID != "" && e.Reactor != ir.Any {
		return fmt.Sprintf("%s: %s (drain=%s, reactor=%s)", e.Code, e.Message, e.DrainID, e.Reactor)
	}
	if e.DrainID != "" {
		return fmt.Sprintf("%s: %s (drain=%s)", e.Code, e.Message, e.DrainID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// UnitError wraps an error returned by a unit's callable.
type UnitError struct {
	Unit ir.Entity
	Name string
	Tier ir.Tier
	Err  error
}

// Error implements the error interface.
func (e *UnitError) Error() string {
	return fmt.Sprintf("%s: unit %s (%s) failed in %s tier: %v", ErrCodeUnitFailed, e.Name, e.Unit, e.Tier, e.Err)
}

// Unwrap exposes the callable's error.
func (e *UnitError) Unwrap() error {
	return e.Err
}

// IsConfigError returns true if err is a ConfigError.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsQuotaError returns true if the drain exceeded its step quota.
// Matches both RuntimeError with ErrCodeQuotaExceeded and StepsExceededError.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) && re.Code == ErrCodeQuotaExceeded {
		return true
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// IsRefireError returns true if a reactor hit the refire limit.
func IsRefireError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeRefireLimit
	}
	return false
}

// IsUnitError returns true if err carries a callable failure.
func IsUnitError(err error) bool {
	var ue *UnitError
	return errors.As(err, &ue)
}

// CodeOf extracts the ErrorCode from any engine error in err's chain.
// Returns "" when none is found.
func CodeOf(err error) ErrorCode {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	var ue *UnitError
	if errors.As(err, &ue) {
		return ErrCodeUnitFailed
	}
	return ""
}

func configErr(code ErrorCode, reactor ir.Entity, format string, args ...any) *ConfigError {
	return &ConfigError{Code: code, Message: fmt.Sprintf(format, args...), Reactor: reactor}
}

// NewQuotaError creates a RuntimeError for an exceeded step quota.
func NewQuotaError(drainID string, cause *StepsExceededError) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("drain exceeded max steps (%d > %d)", cause.Steps, cause.Limit),
		DrainID: drainID,
		Details: map[string]string{
			"steps":     fmt.Sprintf("%d", cause.Steps),
			"max_steps": fmt.Sprintf("%d", cause.Limit),
		},
		Err: cause,
	}
}

// NewRefireError creates a RuntimeError for a reactor that keeps re-firing
// on the same trigger within one drain.
func NewRefireError(drainID string, reactor ir.Entity, trigger string, count, limit int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeRefireLimit,
		Message: fmt.Sprintf("reactor fired %d times on %s (limit %d)", count, trigger, limit),
		DrainID: drainID,
		Reactor: reactor,
		Details: map[string]string{
			"trigger": trigger,
			"count":   fmt.Sprintf("%d", count),
			"limit":   fmt.Sprintf("%d", limit),
		},
	}
}

func canceledErr(drainID string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCanceled,
		Message: "drain canceled",
		DrainID: drainID,
		Err:     cause,
	}
}
