package journal

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ripple/internal/engine"
	"github.com/roach88/ripple/internal/ir"
)

// createTestJournal creates a fresh journal in a temp dir.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func testRun(drainID string, seq int64, unit ir.Entity, name string) ir.RunRecord {
	return ir.RunRecord{
		ID:      ir.MustRunID(drainID, seq, unit),
		DrainID: drainID,
		Seq:     seq,
		Unit:    unit,
		Name:    name,
		Tier:    ir.TierUnit,
		Outcome: ir.OutcomeOK,
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		j, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, j.Close())
	}
}

func TestOpen_Pragmas(t *testing.T) {
	j := createTestJournal(t)

	assert.NoError(t, j.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, j.verifyPragma("synchronous", "1"))
	assert.NoError(t, j.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, j.verifyPragma("user_version", "1"))
}

func TestOpen_MigratesVersionZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.db.Exec("DROP INDEX idx_runs_name")
	require.NoError(t, err)
	_, err = j.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	var name string
	err = j.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_runs_name'`).Scan(&name)
	require.NoError(t, err)
	assert.NoError(t, j.verifyPragma("user_version", "1"))
}

func TestClose_NilDB(t *testing.T) {
	var j Journal
	assert.NoError(t, j.Close())
}

func TestWriteRun_RoundTrip(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	rec := ir.RunRecord{
		ID:            ir.MustRunID("drain-1", 4, 7),
		DrainID:       "drain-1",
		Seq:           4,
		Unit:          7,
		Name:          "mourner",
		Tier:          ir.TierReaction,
		TriggerKind:   "despawned",
		TriggerTarget: 3,
		Outcome:       ir.OutcomeError,
		Error:         "boom",
	}
	require.NoError(t, j.WriteRun(ctx, rec))

	got, err := j.ReadRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestWriteRun_ComputesMissingID(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	rec := testRun("drain-1", 1, 2, "u")
	rec.ID = ""
	require.NoError(t, j.WriteRun(ctx, rec))

	runs, err := j.ReadRuns(ctx, "drain-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ir.MustRunID("drain-1", 1, 2), runs[0].ID)
}

func TestWriteRun_Idempotent(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	rec := testRun("drain-1", 1, 2, "u")
	require.NoError(t, j.WriteRun(ctx, rec))
	require.NoError(t, j.WriteRun(ctx, rec))

	runs, err := j.ReadRuns(ctx, "drain-1")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestWriteRun_RejectsUnknownTier(t *testing.T) {
	j := createTestJournal(t)

	rec := testRun("drain-1", 1, 2, "u")
	rec.Tier = "batch"
	assert.Error(t, j.WriteRun(context.Background(), rec))
}

func TestReadRun_NotFound(t *testing.T) {
	j := createTestJournal(t)
	_, err := j.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReadRuns_Ordering(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	for _, rec := range []ir.RunRecord{
		testRun("d", 3, 1, "c"),
		testRun("d", 1, 1, "a"),
		testRun("other", 2, 1, "x"),
		testRun("d", 2, 1, "b"),
	} {
		require.NoError(t, j.WriteRun(ctx, rec))
	}

	runs, err := j.ReadRuns(ctx, "d")
	require.NoError(t, err)
	names := make([]string, len(runs))
	for i, r := range runs {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)

	empty, err := j.ReadRuns(ctx, "none")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestReadRunsByName(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.WriteRun(ctx, testRun("d1", 1, 1, "tick")))
	require.NoError(t, j.WriteRun(ctx, testRun("d1", 2, 2, "tock")))
	require.NoError(t, j.WriteRun(ctx, testRun("d2", 3, 1, "tick")))

	runs, err := j.ReadRunsByName(ctx, "tick")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "d1", runs[0].DrainID)
	assert.Equal(t, "d2", runs[1].DrainID)
}

func TestDrains(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	_, err := j.LatestDrain(ctx)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, j.WriteDrain(ctx, ir.DrainRecord{ID: "drain-2", Seq: 10, Steps: 4}))
	require.NoError(t, j.WriteDrain(ctx, ir.DrainRecord{ID: "drain-1", Seq: 1, Steps: 3, Error: "QUOTA_EXCEEDED"}))
	require.NoError(t, j.WriteDrain(ctx, ir.DrainRecord{ID: "drain-1", Seq: 99, Steps: 99}))

	drains, err := j.ReadDrains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.DrainRecord{
		{ID: "drain-1", Seq: 1, Steps: 3, Error: "QUOTA_EXCEEDED"},
		{ID: "drain-2", Seq: 10, Steps: 4},
	}, drains)

	latest, err := j.LatestDrain(ctx)
	require.NoError(t, err)
	assert.Equal(t, "drain-2", latest.ID)

	one, err := j.ReadDrain(ctx, "drain-1")
	require.NoError(t, err)
	assert.Equal(t, 3, one.Steps)

	_, err = j.ReadDrain(ctx, "drain-9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLastSeq(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	seq, err := j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	require.NoError(t, j.WriteDrain(ctx, ir.DrainRecord{ID: "d", Seq: 5}))
	require.NoError(t, j.WriteRun(ctx, testRun("d", 9, 1, "u")))

	seq, err = j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), seq)
}

func TestUnfinishedDrains(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.WriteRun(ctx, testRun("done", 1, 1, "u")))
	require.NoError(t, j.WriteDrain(ctx, ir.DrainRecord{ID: "done", Seq: 1}))
	require.NoError(t, j.WriteRun(ctx, testRun("crashed-b", 5, 1, "u")))
	require.NoError(t, j.WriteRun(ctx, testRun("crashed-a", 3, 1, "u")))
	require.NoError(t, j.WriteRun(ctx, testRun("crashed-a", 4, 1, "u")))

	ids, err := j.UnfinishedDrains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"crashed-a", "crashed-b"}, ids)
}

func TestOutcomeCounts(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	ok := testRun("d", 1, 1, "u")
	failed := testRun("d", 2, 1, "u")
	failed.Outcome = ir.OutcomeError
	skipped := testRun("d", 3, 9, "u")
	skipped.Outcome = ir.OutcomeSkipped
	another := testRun("d", 4, 1, "u")
	for _, r := range []ir.RunRecord{ok, failed, skipped, another} {
		require.NoError(t, j.WriteRun(ctx, r))
	}

	counts, err := j.OutcomeCounts(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, map[ir.Outcome]int{
		ir.OutcomeOK:      2,
		ir.OutcomeError:   1,
		ir.OutcomeSkipped: 1,
	}, counts)
}

func TestJournal_RecordsEngineDrains(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	eng := engine.New(
		engine.WithRecorder(j),
		engine.WithDrainIDs(engine.NewSequenceGenerator("")),
		engine.WithLogger(slog.New(slog.DiscardHandler)),
	)
	defer eng.Close()

	_, err := eng.OnPersistent("watcher", []engine.Trigger{engine.ResourceMutated("hp")}, func(*engine.Context) error {
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, eng.SetResource(ctx, "hp", ir.Int(1)))
	require.NoError(t, eng.SetResource(ctx, "hp", ir.Int(2)))

	drains, err := j.ReadDrains(ctx)
	require.NoError(t, err)
	require.Len(t, drains, 2)
	assert.Equal(t, "drain-1", drains[0].ID)
	assert.Equal(t, "drain-2", drains[1].ID)

	runs, err := j.ReadRuns(ctx, "drain-2")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "watcher", runs[0].Name)
	assert.Equal(t, ir.TierReaction, runs[0].Tier)
	assert.Equal(t, "resource_mutated", runs[0].TriggerKind)
	assert.Equal(t, "hp", runs[0].TriggerName)

	unfinished, err := j.UnfinishedDrains(ctx)
	require.NoError(t, err)
	assert.Empty(t, unfinished)
}
