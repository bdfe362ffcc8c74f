// Package world is the in-memory store the reactivity engine runs against.
//
// A World holds entities with named components, named resources, the unit
// storage slot of every entity that carries a handler, per-unit transient
// payloads, and the mutation feed. Every reactive write appends a Mutation to
// the feed; the engine drains the feed into its reaction queue.
//
// World is not safe for concurrent use. The engine is its single mutator.
package world
