package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/program"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", i+1, event.Name, event.Tier)
			if event.TriggerKind != "" {
				fmt.Fprintf(&buf, " <- %s", formatTrigger(event))
			}
			if event.Outcome != string(ir.OutcomeOK) {
				fmt.Fprintf(&buf, " (%s)", event.Outcome)
			}
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

func formatTrigger(e TraceEvent) string {
	s := e.TriggerKind
	if e.TriggerName != "" {
		s += " " + e.TriggerName
	}
	if e.TriggerTarget != "" {
		s += " @" + e.TriggerTarget
	}
	return s
}

// assertRunSequence checks that the non-skipped runs are exactly the given
// names, over the whole scenario or one step.
func assertRunSequence(result *Result, assertion Assertion) error {
	step := -1
	if assertion.Step != nil {
		step = *assertion.Step
	}
	got := result.Names(step)
	if slices.Equal(got, assertion.Names) {
		return nil
	}

	return &AssertionError{
		Type:     "run_sequence",
		Expected: fmt.Sprintf("%v", assertion.Names),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

// assertRunOrder checks that the named units first ran in the given order.
// Runs don't need to be consecutive (intervening runs are allowed).
func assertRunOrder(result *Result, assertion Assertion) error {
	// Step 1: Find first position of each expected unit
	positions := make(map[string]int)
	for i, name := range result.Names(-1) {
		if _, seen := positions[name]; !seen {
			positions[name] = i + 1 // 1-indexed for readability
		}
	}

	// Step 2: Verify all units ran
	for _, name := range assertion.Names {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     "run_order",
				Expected: fmt.Sprintf("all units ran: %v", assertion.Names),
				Actual:   fmt.Sprintf("missing unit: %s", name),
				Trace:    result.Trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Names); i++ {
		prev := assertion.Names[i-1]
		curr := assertion.Names[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     "run_order",
				Expected: fmt.Sprintf("units in order: %v", assertion.Names),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: result.Trace,
			}
		}
	}

	return nil
}

// assertRunCount checks if the unit ran exactly the specified number of times.
func assertRunCount(result *Result, assertion Assertion) error {
	count := 0
	for _, name := range result.Names(-1) {
		if name == assertion.Unit {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     "run_count",
			Expected: fmt.Sprintf("%d runs of %s", assertion.Count, assertion.Unit),
			Actual:   fmt.Sprintf("%d runs", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertResource checks a resource's final value.
func assertResource(p *program.Program, assertion Assertion) error {
	actual, ok := p.Engine().World().Resource(assertion.Name)
	return compareState("resource", "resource "+assertion.Name, actual, ok, assertion)
}

// assertComponent checks a component's final value on a labelled entity.
func assertComponent(p *program.Program, assertion Assertion) error {
	e, ok := p.Entity(assertion.Entity)
	if !ok {
		return fmt.Errorf("component assertion: %w: %s", program.ErrUnknownLabel, assertion.Entity)
	}
	actual, ok := p.Engine().World().Component(e, assertion.Name)
	subject := fmt.Sprintf("component %s of %s", assertion.Name, assertion.Entity)
	return compareState("component", subject, actual, ok, assertion)
}

func compareState(kind, subject string, actual ir.Value, present bool, assertion Assertion) error {
	if assertion.Absent {
		if !present {
			return nil
		}
		return &AssertionError{
			Type:     kind,
			Expected: subject + " absent",
			Actual:   ir.Format(actual),
		}
	}

	expected, err := ir.FromAny(assertion.Value)
	if err != nil {
		return fmt.Errorf("%s assertion: %w", kind, err)
	}
	if !present {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%s = %s", subject, ir.Format(expected)),
			Actual:   "absent",
		}
	}
	if !ir.Equal(expected, actual) {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%s = %s", subject, ir.Format(expected)),
			Actual:   ir.Format(actual),
		}
	}
	return nil
}

// assertUnit checks whether a reactor's unit is still registered.
func assertUnit(p *program.Program, assertion Assertion, wantPresent bool) error {
	e, ok := p.Unit(assertion.Unit)
	if !ok {
		return fmt.Errorf("%s assertion: %w: %s", assertion.Type, program.ErrUnknownUnit, assertion.Unit)
	}
	w := p.Engine().World()
	present := w.Alive(e) && w.HasUnit(e)
	if present == wantPresent {
		return nil
	}

	state := func(b bool) string {
		if b {
			return "present"
		}
		return "absent"
	}
	return &AssertionError{
		Type:     assertion.Type,
		Expected: fmt.Sprintf("unit %s %s", assertion.Unit, state(wantPresent)),
		Actual:   state(present),
	}
}

// assertEntityAbsent checks that a labelled entity has been despawned.
func assertEntityAbsent(p *program.Program, assertion Assertion) error {
	e, ok := p.Entity(assertion.Entity)
	if !ok {
		return fmt.Errorf("entity_absent assertion: %w: %s", program.ErrUnknownLabel, assertion.Entity)
	}
	if !p.Engine().World().Alive(e) {
		return nil
	}
	return &AssertionError{
		Type:     "entity_absent",
		Expected: fmt.Sprintf("entity %s despawned", assertion.Entity),
		Actual:   "alive",
	}
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Program *program.Program
	Ctx     context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides world access for state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRunSequence:
			err = assertRunSequence(result, assertion)
		case AssertRunOrder:
			err = assertRunOrder(result, assertion)
		case AssertRunCount:
			err = assertRunCount(result, assertion)
		case AssertResource, AssertComponent, AssertUnitPresent, AssertUnitAbsent, AssertEntityAbsent:
			if actx == nil || actx.Program == nil {
				err = fmt.Errorf("assertion[%d]: %s requires program context", i, assertion.Type)
				break
			}
			err = evaluateState(actx.Program, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func evaluateState(p *program.Program, assertion Assertion) error {
	switch assertion.Type {
	case AssertResource:
		return assertResource(p, assertion)
	case AssertComponent:
		return assertComponent(p, assertion)
	case AssertUnitPresent:
		return assertUnit(p, assertion, true)
	case AssertUnitAbsent:
		return assertUnit(p, assertion, false)
	default:
		return assertEntityAbsent(p, assertion)
	}
}
