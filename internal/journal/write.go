package journal

import (
	"context"
	"fmt"

	"github.com/roach88/ripple/internal/ir"
)

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
// Other constraint violations (e.g., an unknown tier) still return errors.
func (j *Journal) WriteRun(ctx context.Context, rec ir.RunRecord) error {
	if rec.ID == "" {
		id, err := ir.RunID(rec.DrainID, rec.Seq, rec.Unit)
		if err != nil {
			return fmt.Errorf("write run: %w", err)
		}
		rec.ID = id
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, drain_id, seq, unit, name, tier, trigger_kind, trigger_name, trigger_target, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.DrainID,
		rec.Seq,
		int64(rec.Unit),
		rec.Name,
		string(rec.Tier),
		rec.TriggerKind,
		rec.TriggerName,
		int64(rec.TriggerTarget),
		string(rec.Outcome),
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteDrain inserts a drain record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (j *Journal) WriteDrain(ctx context.Context, rec ir.DrainRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO drains (id, seq, steps, error)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Seq,
		rec.Steps,
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("write drain: %w", err)
	}
	return nil
}
