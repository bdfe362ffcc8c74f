// Package ir provides the shared vocabulary for ripple: entity ids, mutation
// kinds, constrained values, declarative reactor specs and run records.
//
// ir imports nothing internal. Every other package builds on it.
//
// Key design constraints:
//   - NO float values anywhere; numbers are int64
//   - All JSON tags use snake_case
//   - Logical sequence numbers only, never wall-clock timestamps
package ir
