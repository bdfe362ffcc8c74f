package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/world"
)

func TestRefireDetector_CountsPerKey(t *testing.T) {
	d := NewRefireDetector(2)
	m := world.Mutation{Kind: ir.KindResourceMutated, Name: "n", Payload: ir.Int(1)}

	n, over := d.Fire(1, m)
	assert.Equal(t, 1, n)
	assert.False(t, over)

	// The payload is not part of the key.
	m.Payload = ir.Int(2)
	n, over = d.Fire(1, m)
	assert.Equal(t, 2, n)
	assert.False(t, over)

	n, over = d.Fire(1, m)
	assert.Equal(t, 3, n)
	assert.True(t, over)
}

func TestRefireDetector_DistinctKeys(t *testing.T) {
	d := NewRefireDetector(1)
	base := world.Mutation{Kind: ir.KindMutated, Name: "hp", Entity: 4}

	_, over := d.Fire(1, base)
	assert.False(t, over)

	cases := []struct {
		name    string
		reactor ir.Entity
		m       world.Mutation
	}{
		{"other reactor", 2, base},
		{"other kind", 1, world.Mutation{Kind: ir.KindInserted, Name: "hp", Entity: 4}},
		{"other name", 1, world.Mutation{Kind: ir.KindMutated, Name: "mp", Entity: 4}},
		{"other entity", 1, world.Mutation{Kind: ir.KindMutated, Name: "hp", Entity: 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, over := d.Fire(tc.reactor, tc.m)
			assert.False(t, over)
		})
	}
	assert.Equal(t, 5, d.Len())
}

func TestRefireDetector_Reset(t *testing.T) {
	d := NewRefireDetector(1)
	m := world.Mutation{Kind: ir.KindBroadcast, Name: "tick"}
	d.Fire(1, m)
	d.Reset()

	assert.Equal(t, 0, d.Len())
	_, over := d.Fire(1, m)
	assert.False(t, over)
}

func TestRefireDetector_ZeroDisables(t *testing.T) {
	d := NewRefireDetector(0)
	m := world.Mutation{Kind: ir.KindBroadcast, Name: "tick"}
	for i := 0; i < 1000; i++ {
		_, over := d.Fire(1, m)
		assert.False(t, over)
	}
	assert.Equal(t, 0, d.Len())
}
