package engine

import (
	"fmt"

	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/world"
)

// Callable is the body of a unit. Mutations are recorded through
// c.Commands() and applied after the call returns; a returned error is
// handled by the unit's Policy and never stops the drain.
type Callable func(c *Context) error

// Policy decides what happens to a callable's error.
type Policy uint8

const (
	// PolicyLog logs the error and continues.
	PolicyLog Policy = iota
	// PolicyIgnore drops the error silently.
	PolicyIgnore
	// PolicyFatal returns the error from the top-level call once the drain
	// completes.
	PolicyFatal
)

// String returns the policy's spec name.
func (p Policy) String() string {
	switch p {
	case PolicyLog:
		return ir.PolicyLog
	case PolicyIgnore:
		return ir.PolicyIgnore
	case PolicyFatal:
		return ir.PolicyFatal
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// ParsePolicy is the inverse of Policy.String. The empty string selects
// PolicyLog.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case ir.PolicyLog, "":
		return PolicyLog, nil
	case ir.PolicyIgnore:
		return PolicyIgnore, nil
	case ir.PolicyFatal:
		return PolicyFatal, nil
	}
	return 0, fmt.Errorf("unknown error policy %q", s)
}

// unit is what the engine keeps in an entity's unit slot.
type unit struct {
	name   string
	fn     Callable
	policy Policy
}

var _ world.Unit = (*unit)(nil)

// UnitName implements world.Unit.
func (u *unit) UnitName() string {
	return u.name
}

// UnitOption configures a unit at spawn or registration.
type UnitOption func(*unit)

// WithPolicy overrides the engine's default error policy for one unit.
func WithPolicy(p Policy) UnitOption {
	return func(u *unit) {
		u.policy = p
	}
}
