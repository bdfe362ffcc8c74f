package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// DrainIDGenerator names top-level drains for logs, spans and the journal.
// Implemented by UUIDv7Generator (production) and SequenceGenerator (tests).
type DrainIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 drain ids.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns "<prefix>-1", "<prefix>-2", ... for deterministic
// traces.
type SequenceGenerator struct {
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator. An empty prefix becomes "drain".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "drain"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (g *SequenceGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
