package ir

// ReactorSpec is a compiled reactor declaration.
type ReactorSpec struct {
	ID       string        `json:"id"`
	Mode     string        `json:"mode"`
	Once     bool          `json:"once,omitempty"`
	Policy   string        `json:"policy,omitempty"`
	Triggers []TriggerSpec `json:"triggers"`
	When     *GuardSpec    `json:"when,omitempty"` // Optional
	Actions  []ActionSpec  `json:"actions"`
}

// TriggerSpec is a declarative trigger. Target is an entity label; empty
// means any entity.
type TriggerSpec struct {
	Kind   string `json:"kind"`
	Name   string `json:"name,omitempty"`
	Target string `json:"target,omitempty"`
}

// GuardSpec gates a reactor's actions on a resource or component value.
type GuardSpec struct {
	Resource  string `json:"resource,omitempty"`
	Component string `json:"component,omitempty"`
	Target    string `json:"target,omitempty"`
	Op        string `json:"op"`
	Value     Value  `json:"value,omitempty"`
}

// ActionSpec is one step of a scripted unit. Which fields apply depends on Op.
type ActionSpec struct {
	Op       string        `json:"op"`
	Name     string        `json:"name,omitempty"`
	Target   string        `json:"target,omitempty"`
	Unit     string        `json:"unit,omitempty"`
	Value    Value         `json:"value,omitempty"`
	Triggers []TriggerSpec `json:"triggers,omitempty"`
}

// Reactor lifecycle modes.
const (
	ModePersistent = "persistent"
	ModeCleanup    = "cleanup"
	ModeRevokable  = "revokable"
)

// ValidModes defines allowed reactor modes.
var ValidModes = map[string]bool{
	ModePersistent: true,
	ModeCleanup:    true,
	ModeRevokable:  true,
}

// Error policies for unit failures.
const (
	PolicyLog    = "log"
	PolicyIgnore = "ignore"
	PolicyFatal  = "fatal"
)

// ValidPolicies defines allowed error policies.
var ValidPolicies = map[string]bool{
	PolicyLog:    true,
	PolicyIgnore: true,
	PolicyFatal:  true,
}

// Action ops understood by scripted units.
const (
	OpSetResource     = "set_resource"
	OpAddResource     = "add_resource"
	OpTouchResource   = "touch_resource"
	OpInsert          = "insert"
	OpMutate          = "mutate"
	OpAddComponent    = "add_component"
	OpRemove          = "remove"
	OpSpawn           = "spawn"
	OpDespawn         = "despawn"
	OpBroadcast       = "broadcast"
	OpSendEntityEvent = "send_entity_event"
	OpRun             = "run"
	OpSend            = "send"
	OpAddTriggers     = "add_triggers"
	OpRemoveTriggers  = "remove_triggers"
	OpRevoke          = "revoke"
	OpFail            = "fail"
)

// ValidOps defines allowed action ops.
var ValidOps = map[string]bool{
	OpSetResource:     true,
	OpAddResource:     true,
	OpTouchResource:   true,
	OpInsert:          true,
	OpMutate:          true,
	OpAddComponent:    true,
	OpRemove:          true,
	OpSpawn:           true,
	OpDespawn:         true,
	OpBroadcast:       true,
	OpSendEntityEvent: true,
	OpRun:             true,
	OpSend:            true,
	OpAddTriggers:     true,
	OpRemoveTriggers:  true,
	OpRevoke:          true,
	OpFail:            true,
}

// Guard comparison ops.
var ValidGuardOps = map[string]bool{
	"eq": true, "ne": true, "lt": true, "le": true, "gt": true, "ge": true,
	"exists": true, "absent": true,
}

// Reference tokens usable as action targets and values.
const (
	RefSelf   = "$self"
	RefTarget = "$target"
	RefEvent  = "$event"
)
