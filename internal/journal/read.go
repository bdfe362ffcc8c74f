package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ripple/internal/ir"
)

const runColumns = `id, drain_id, seq, unit, name, tier, trigger_kind, trigger_name, trigger_target, outcome, error`

// ReadDrains returns every drain ordered by seq ASC, id ASC.
// Returns an empty slice (not nil) when the journal is empty.
func (j *Journal) ReadDrains(ctx context.Context) ([]ir.DrainRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, steps, error
		FROM drains
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query drains: %w", err)
	}
	defer rows.Close()

	drains := []ir.DrainRecord{}
	for rows.Next() {
		var d ir.DrainRecord
		if err := rows.Scan(&d.ID, &d.Seq, &d.Steps, &d.Error); err != nil {
			return nil, fmt.Errorf("scan drain: %w", err)
		}
		drains = append(drains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drains: %w", err)
	}
	return drains, nil
}

// ReadDrain retrieves a single drain by ID.
// Returns sql.ErrNoRows if not found.
func (j *Journal) ReadDrain(ctx context.Context, id string) (ir.DrainRecord, error) {
	var d ir.DrainRecord
	err := j.db.QueryRowContext(ctx, `
		SELECT id, seq, steps, error
		FROM drains
		WHERE id = ?
	`, id).Scan(&d.ID, &d.Seq, &d.Steps, &d.Error)
	if err != nil {
		return ir.DrainRecord{}, err
	}
	return d, nil
}

// LatestDrain returns the drain with the highest seq.
// Returns sql.ErrNoRows if the journal is empty.
func (j *Journal) LatestDrain(ctx context.Context) (ir.DrainRecord, error) {
	var d ir.DrainRecord
	err := j.db.QueryRowContext(ctx, `
		SELECT id, seq, steps, error
		FROM drains
		ORDER BY seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`).Scan(&d.ID, &d.Seq, &d.Steps, &d.Error)
	if err != nil {
		return ir.DrainRecord{}, err
	}
	return d, nil
}

// ReadRuns returns the runs of one drain in dispatch order.
// Returns an empty slice (not nil) if the drain recorded no runs.
func (j *Journal) ReadRuns(ctx context.Context, drainID string) ([]ir.RunRecord, error) {
	return j.queryRuns(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE drain_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, drainID)
}

// ReadRunsByName returns every run of units with the given name across all
// drains.
func (j *Journal) ReadRunsByName(ctx context.Context, name string) ([]ir.RunRecord, error) {
	return j.queryRuns(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE name = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, name)
}

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (j *Journal) ReadRun(ctx context.Context, id string) (ir.RunRecord, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// LastSeq returns the highest seq recorded, or 0 for an empty journal.
// Engines resuming on an existing journal start their clock here.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := j.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM runs
			UNION ALL
			SELECT seq FROM drains
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// UnfinishedDrains lists drain ids that have runs but no drain record: the
// process stopped before the drain returned.
func (j *Journal) UnfinishedDrains(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.drain_id, MIN(r.seq) AS first_seq
		FROM runs r
		LEFT JOIN drains d ON d.id = r.drain_id
		WHERE d.id IS NULL
		GROUP BY r.drain_id
		ORDER BY first_seq ASC, r.drain_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query unfinished drains: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		var first int64
		if err := rows.Scan(&id, &first); err != nil {
			return nil, fmt.Errorf("scan unfinished drain: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unfinished drains: %w", err)
	}
	return ids, nil
}

// OutcomeCounts tallies a drain's runs by outcome.
func (j *Journal) OutcomeCounts(ctx context.Context, drainID string) (map[ir.Outcome]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*)
		FROM runs
		WHERE drain_id = ?
		GROUP BY outcome
		ORDER BY outcome ASC
	`, drainID)
	if err != nil {
		return nil, fmt.Errorf("query outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[ir.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[ir.Outcome(outcome)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome counts: %w", err)
	}
	return counts, nil
}

func (j *Journal) queryRuns(ctx context.Context, query string, args ...any) ([]ir.RunRecord, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.RunRecord{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (ir.RunRecord, error) {
	var (
		r       ir.RunRecord
		unit    int64
		target  int64
		tier    string
		outcome string
	)
	err := s.Scan(
		&r.ID,
		&r.DrainID,
		&r.Seq,
		&unit,
		&r.Name,
		&tier,
		&r.TriggerKind,
		&r.TriggerName,
		&target,
		&outcome,
		&r.Error,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.RunRecord{}, err
		}
		return ir.RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	r.Unit = ir.Entity(unit)
	r.TriggerTarget = ir.Entity(target)
	r.Tier = ir.Tier(tier)
	r.Outcome = ir.Outcome(outcome)
	return r, nil
}
