package engine

import (
	"context"

	"github.com/roach88/ripple/internal/ir"
)

// Recorder receives a record of every unit dispatch and every drain. The run
// journal implements it; a failing recorder is logged and never stops a
// drain.
type Recorder interface {
	RecordRun(ctx context.Context, rec ir.RunRecord) error
	RecordDrain(ctx context.Context, rec ir.DrainRecord) error
}

type nopRecorder struct{}

func (nopRecorder) RecordRun(context.Context, ir.RunRecord) error     { return nil }
func (nopRecorder) RecordDrain(context.Context, ir.DrainRecord) error { return nil }

// MemoryRecorder keeps records in memory. Used by the harness and tests.
type MemoryRecorder struct {
	Runs   []ir.RunRecord
	Drains []ir.DrainRecord
}

// RecordRun implements Recorder.
func (m *MemoryRecorder) RecordRun(_ context.Context, rec ir.RunRecord) error {
	m.Runs = append(m.Runs, rec)
	return nil
}

// RecordDrain implements Recorder.
func (m *MemoryRecorder) RecordDrain(_ context.Context, rec ir.DrainRecord) error {
	m.Drains = append(m.Drains, rec)
	return nil
}

// Names returns the unit names of the recorded runs with outcome ok or
// error, in dispatch order.
func (m *MemoryRecorder) Names() []string {
	var names []string
	for _, r := range m.Runs {
		if r.Outcome == ir.OutcomeSkipped {
			continue
		}
		names = append(names, r.Name)
	}
	return names
}

// Reset drops all records.
func (m *MemoryRecorder) Reset() {
	m.Runs = nil
	m.Drains = nil
}
