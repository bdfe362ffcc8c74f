// Package engine implements the ripple reactivity engine.
//
// Units are handlers stored on entities. Reactors are units bound to a set
// of triggers; when a mutation fired by the world matches a trigger, the
// reactor's unit is queued to run. Everything is deferred: nothing runs
// inline, so recursion depth is constant no matter how deep a chain of
// reactions goes.
//
// QUEUES:
//
// A drain works through four tiers:
//  1. The mutation batch recorded by top-level calls.
//  2. Unit invocations. Units scheduled by a running unit go ahead of units
//     queued before it ran, so execution is depth-first (telescoping).
//  3. Events, delivering data to a unit's one-shot payload slot.
//  4. Reactions, one per fired mutation, matched against the registry when
//     popped.
//
// A lower tier is only touched once every higher tier is empty.
//
// SINGLE WRITER:
//
// The engine is single-threaded. A running unit cannot write the world; it
// records into its own Commands batch, applied once it returns. Top-level
// calls made while a drain is in progress append to that drain and return
// immediately.
//
// LIFECYCLE:
//
// Despawning an entity fires its despawn triggers and a removal for each
// component, strips every trigger scoped to it and releases it. Cleanup and
// Revokable reactors whose trigger set empties are destroyed along with their
// unit.
//
// TERMINATION:
//
// Each drain has a step quota (QuotaEnforcer) and a per-reactor refire cap
// (RefireDetector). Exceeding either aborts the drain and discards its
// remaining work.
package engine
