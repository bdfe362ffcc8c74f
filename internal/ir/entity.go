package ir

import "strconv"

// Entity identifies a world entity. Units and reactors are addressed by the
// entity that stores them.
//
// The zero value never names a live entity; in triggers it means "any entity".
type Entity uint64

// Any is the wildcard target for entity-scoped triggers.
const Any Entity = 0

// String renders e as "e<id>", or "*" for Any.
func (e Entity) String() string {
	if e == Any {
		return "*"
	}
	return "e" + strconv.FormatUint(uint64(e), 10)
}
