package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/ripple/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Reactor header errors (E101-E109)
	ErrInvalidReactorID = "E101" // id missing or not a valid label
	ErrDuplicateReactor = "E102" // two reactors share an id
	ErrInvalidMode      = "E103" // unknown lifecycle mode
	ErrInvalidPolicy    = "E104" // unknown error policy
	ErrOnceMode         = "E105" // once requires revokable mode
	ErrEmptyTriggers    = "E106" // cleanup/revokable need triggers
	ErrNoActions        = "E107" // at least one action required

	// Trigger errors (E110-E119)
	ErrInvalidTriggerKind = "E110" // unknown trigger kind
	ErrTriggerName        = "E111" // name missing or not allowed
	ErrTriggerTarget      = "E112" // target missing or not allowed
	ErrDuplicateTrigger   = "E113" // same trigger twice on one reactor

	// Guard errors (E120-E129)
	ErrInvalidGuardOp  = "E120" // unknown comparison op
	ErrGuardSubject    = "E121" // exactly one of resource/component required
	ErrGuardValue      = "E122" // value missing or not allowed for op
	ErrGuardComparison = "E123" // ordering op on a non-integer value

	// Action errors (E130-E139)
	ErrInvalidActionOp  = "E130" // unknown action op
	ErrMissingActionArg = "E131" // op requires name, target, unit, value or triggers
	ErrUnexpectedArg    = "E132" // op does not take this argument
	ErrUndefinedRef     = "E133" // reference token or label not valid here
	ErrUnknownUnitRef   = "E134" // unit refers to no reactor in the set
	ErrIntegerValue     = "E135" // add_* ops need an integer delta
	ErrSpawnValue       = "E136" // spawn value must be an object of components
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var labelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast).
// Supports a single ReactorSpec or a whole reactor set; only a set can check
// duplicate ids and cross-reactor unit references.
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.ReactorSpec:
		return validateReactor(spec, "", nil)
	case ir.ReactorSpec:
		return validateReactor(&spec, "", nil)
	case []ir.ReactorSpec:
		return validateReactorSet(spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateReactorSet(specs []ir.ReactorSpec) []ValidationError {
	var errs []ValidationError
	ids := make(map[string]bool, len(specs))
	for _, spec := range specs {
		ids[spec.ID] = true
	}

	seen := make(map[string]bool, len(specs))
	for i := range specs {
		spec := &specs[i]
		prefix := fmt.Sprintf("reactor[%d]", i)
		if spec.ID != "" && seen[spec.ID] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".id",
				Message: fmt.Sprintf("duplicate reactor id %q", spec.ID),
				Code:    ErrDuplicateReactor,
			})
		}
		seen[spec.ID] = true
		errs = append(errs, validateReactor(spec, prefix+".", ids)...)
	}
	return errs
}

// validateReactor checks one reactor. known is the set of reactor ids that
// unit references may name; nil skips that check.
func validateReactor(spec *ir.ReactorSpec, prefix string, known map[string]bool) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   prefix + field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	// E101: id is used as a unit label
	if !labelPattern.MatchString(spec.ID) {
		add("id", ErrInvalidReactorID, "reactor id %q is not a valid label", spec.ID)
	}

	// E103: mode
	if !ir.ValidModes[spec.Mode] {
		add("mode", ErrInvalidMode, "invalid mode %q (must be persistent, cleanup or revokable)", spec.Mode)
	}

	// E104: policy (empty means the engine default)
	if spec.Policy != "" && !ir.ValidPolicies[spec.Policy] {
		add("policy", ErrInvalidPolicy, "invalid policy %q (must be log, ignore or fatal)", spec.Policy)
	}

	// E105: once handlers are revoked after their first run
	if spec.Once && spec.Mode != ir.ModeRevokable {
		add("once", ErrOnceMode, "once requires mode %q, got %q", ir.ModeRevokable, spec.Mode)
	}

	// E106: self-cleaning reactors need something to listen for
	if spec.Mode != ir.ModePersistent && len(spec.Triggers) == 0 {
		add("triggers", ErrEmptyTriggers, "%s reactor requires at least one trigger", spec.Mode)
	}

	// E107: at least one action
	if len(spec.Actions) == 0 {
		add("actions", ErrNoActions, "at least one action is required")
	}

	errs = append(errs, validateTriggers(spec.Triggers, prefix+"triggers")...)

	hasScoped := false
	for _, t := range spec.Triggers {
		if k, err := ir.ParseKind(t.Kind); err == nil && k.EntityScoped() {
			hasScoped = true
		}
	}

	if spec.When != nil {
		errs = append(errs, validateGuard(spec.When, prefix+"when", hasScoped)...)
	}

	for i, a := range spec.Actions {
		errs = append(errs, validateAction(a, fmt.Sprintf("%sactions[%d]", prefix, i), hasScoped, known)...)
	}

	return errs
}

func validateTriggers(triggers []ir.TriggerSpec, field string) []ValidationError {
	var errs []ValidationError
	seen := make(map[ir.TriggerSpec]bool, len(triggers))
	for i, t := range triggers {
		f := fmt.Sprintf("%s[%d]", field, i)
		kind, err := ir.ParseKind(t.Kind)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   f + ".kind",
				Message: fmt.Sprintf("invalid trigger kind %q", t.Kind),
				Code:    ErrInvalidTriggerKind,
			})
			continue
		}

		switch {
		case kind.Named() && t.Name == "":
			errs = append(errs, ValidationError{
				Field:   f + ".name",
				Message: fmt.Sprintf("%s trigger requires a name", kind),
				Code:    ErrTriggerName,
			})
		case !kind.Named() && t.Name != "":
			errs = append(errs, ValidationError{
				Field:   f + ".name",
				Message: fmt.Sprintf("%s trigger takes no name", kind),
				Code:    ErrTriggerName,
			})
		}

		switch {
		case kind == ir.KindDespawned && t.Target == "":
			errs = append(errs, ValidationError{
				Field:   f + ".target",
				Message: "despawned trigger requires a target",
				Code:    ErrTriggerTarget,
			})
		case !kind.EntityScoped() && t.Target != "":
			errs = append(errs, ValidationError{
				Field:   f + ".target",
				Message: fmt.Sprintf("%s trigger takes no target", kind),
				Code:    ErrTriggerTarget,
			})
		case t.Target != "" && !validEntityRef(t.Target, false):
			errs = append(errs, ValidationError{
				Field:   f + ".target",
				Message: fmt.Sprintf("target %q is not a label or $self", t.Target),
				Code:    ErrUndefinedRef,
			})
		}

		if seen[t] {
			errs = append(errs, ValidationError{
				Field:   f,
				Message: fmt.Sprintf("duplicate trigger %s(%s)", t.Kind, t.Name),
				Code:    ErrDuplicateTrigger,
			})
		}
		seen[t] = true
	}
	return errs
}

func validateGuard(g *ir.GuardSpec, field string, hasScoped bool) []ValidationError {
	var errs []ValidationError
	add := func(sub, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field + sub,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	if !ir.ValidGuardOps[g.Op] {
		add(".op", ErrInvalidGuardOp, "invalid guard op %q", g.Op)
	}

	switch {
	case (g.Resource == "") == (g.Component == ""):
		add("", ErrGuardSubject, "guard needs exactly one of resource or component")
	case g.Resource != "" && g.Target != "":
		add(".target", ErrUnexpectedArg, "resource guards take no target")
	case g.Component != "" && g.Target == "":
		add(".target", ErrMissingActionArg, "component guards require a target")
	case g.Component != "" && !validEntityRef(g.Target, hasScoped):
		add(".target", ErrUndefinedRef, "target %q is not a label, $self or $target", g.Target)
	}

	switch g.Op {
	case "exists", "absent":
		if g.Value != nil {
			add(".value", ErrGuardValue, "%s takes no value", g.Op)
		}
	case "lt", "le", "gt", "ge":
		if _, ok := g.Value.(ir.Int); !ok {
			add(".value", ErrGuardComparison, "%s requires an integer value", g.Op)
		}
	default:
		if g.Value == nil {
			add(".value", ErrGuardValue, "%s requires a value", g.Op)
		}
	}
	return errs
}

// actionArgs lists which arguments each op needs.
type actionArgs struct {
	name, target, unit, value, triggers bool
}

var requiredArgs = map[string]actionArgs{
	ir.OpSetResource:     {name: true, value: true},
	ir.OpAddResource:     {name: true, value: true},
	ir.OpTouchResource:   {name: true},
	ir.OpInsert:          {name: true, target: true, value: true},
	ir.OpMutate:          {name: true, target: true, value: true},
	ir.OpAddComponent:    {name: true, target: true, value: true},
	ir.OpRemove:          {name: true, target: true},
	ir.OpSpawn:           {name: true},
	ir.OpDespawn:         {target: true},
	ir.OpBroadcast:       {name: true},
	ir.OpSendEntityEvent: {name: true, target: true},
	ir.OpRun:             {unit: true},
	ir.OpSend:            {unit: true},
	ir.OpAddTriggers:     {triggers: true},
	ir.OpRemoveTriggers:  {triggers: true},
	ir.OpRevoke:          {},
	ir.OpFail:            {},
}

// allowedArgs widens requiredArgs with the optional arguments.
var allowedArgs = map[string]actionArgs{
	ir.OpSpawn:           {name: true, value: true},
	ir.OpBroadcast:       {name: true, value: true},
	ir.OpSendEntityEvent: {name: true, target: true, value: true},
	ir.OpSend:            {unit: true, value: true},
	ir.OpAddTriggers:     {unit: true, triggers: true},
	ir.OpRemoveTriggers:  {unit: true, triggers: true},
	ir.OpRevoke:          {unit: true},
	ir.OpFail:            {value: true},
}

func validateAction(a ir.ActionSpec, field string, hasScoped bool, known map[string]bool) []ValidationError {
	var errs []ValidationError
	add := func(sub, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field + sub,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	// E130: unknown op
	req, ok := requiredArgs[a.Op]
	if !ok {
		add(".op", ErrInvalidActionOp, "invalid action op %q", a.Op)
		return errs
	}
	allow, ok := allowedArgs[a.Op]
	if !ok {
		allow = req
	}

	check := func(sub string, present, required, allowed bool) {
		switch {
		case required && !present:
			add("."+sub, ErrMissingActionArg, "%s requires %s", a.Op, sub)
		case present && !allowed:
			add("."+sub, ErrUnexpectedArg, "%s takes no %s", a.Op, sub)
		}
	}
	check("name", a.Name != "", req.name, allow.name)
	check("target", a.Target != "", req.target, allow.target)
	check("unit", a.Unit != "", req.unit, allow.unit)
	check("value", a.Value != nil, req.value, allow.value)
	check("triggers", len(a.Triggers) > 0, req.triggers, allow.triggers)

	if a.Target != "" && !validEntityRef(a.Target, hasScoped) {
		add(".target", ErrUndefinedRef, "target %q is not a label, $self or $target", a.Target)
	}

	if a.Unit != "" && a.Unit != ir.RefSelf && known != nil && !known[a.Unit] {
		add(".unit", ErrUnknownUnitRef, "unit %q names no reactor", a.Unit)
	}

	switch a.Op {
	case ir.OpAddResource, ir.OpAddComponent:
		if _, ok := a.Value.(ir.Int); a.Value != nil && !ok && !isEventRef(a.Value) {
			add(".value", ErrIntegerValue, "%s requires an integer delta", a.Op)
		}
	case ir.OpSpawn:
		if a.Value != nil {
			if _, ok := a.Value.(ir.Object); !ok {
				add(".value", ErrSpawnValue, "spawn value must map component names to values")
			}
		}
		if a.Name != "" && !labelPattern.MatchString(a.Name) {
			add(".name", ErrUndefinedRef, "spawn label %q is not a valid label", a.Name)
		}
	case ir.OpAddTriggers, ir.OpRemoveTriggers:
		errs = append(errs, validateTriggers(a.Triggers, field+".triggers")...)
	}

	return errs
}

// validEntityRef reports whether ref names an entity: a label, $self, or
// $target when the reactor has an entity-scoped trigger.
func validEntityRef(ref string, allowTarget bool) bool {
	switch ref {
	case ir.RefSelf:
		return true
	case ir.RefTarget:
		return allowTarget
	}
	return labelPattern.MatchString(ref)
}

func isEventRef(v ir.Value) bool {
	s, ok := v.(ir.String)
	return ok && string(s) == ir.RefEvent
}
