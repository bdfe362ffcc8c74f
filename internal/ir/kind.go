package ir

import "fmt"

// Kind classifies a fired mutation and the triggers that listen for it.
type Kind uint8

const (
	KindResourceMutated Kind = iota + 1
	KindInserted
	KindMutated
	KindRemoved
	KindDespawned
	KindBroadcast
	KindEntityEvent
)

var kindNames = map[Kind]string{
	KindResourceMutated: "resource_mutated",
	KindInserted:        "inserted",
	KindMutated:         "mutated",
	KindRemoved:         "removed",
	KindDespawned:       "despawned",
	KindBroadcast:       "broadcast",
	KindEntityEvent:     "entity_event",
}

// String returns the snake_case name used in specs, traces and the journal.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown trigger kind %q", s)
}

// EntityScoped reports whether mutations of this kind concern one entity.
func (k Kind) EntityScoped() bool {
	switch k {
	case KindInserted, KindMutated, KindRemoved, KindDespawned, KindEntityEvent:
		return true
	}
	return false
}

// Named reports whether mutations of this kind carry a component, resource or
// event name.
func (k Kind) Named() bool {
	return k != KindDespawned
}
