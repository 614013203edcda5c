package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/sfasm/internal/adapters/storage"
	"github.com/alejandrodnm/sfasm/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makeRun(id string, started time.Time) domain.Run {
	return domain.Run{
		ID:             id,
		Seed:           42,
		NumAgents:      25,
		SpecialistType: "slope",
		WarmupPeriods:  501,
		Periods:        1000,
		StartedAt:      started.UTC().Truncate(time.Second),
		Status:         domain.RunStatusRunning,
	}
}

func TestSQLiteStorage_SaveAndGetRun(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	run := makeRun("run-1", time.Now())
	require.NoError(t, db.SaveRun(ctx, run))

	got, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, uint64(42), got.Seed)
	assert.Equal(t, 25, got.NumAgents)
	assert.Equal(t, "slope", got.SpecialistType)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, domain.RunStatusRunning, got.Status)

	// Finishing the run updates only the mutable columns.
	finished := time.Now().UTC().Truncate(time.Second)
	run.FinishedAt = &finished
	run.Completed = 1000
	run.Status = domain.RunStatusCompleted
	run.NumAgents = 99
	require.NoError(t, db.SaveRun(ctx, run))

	got, err = db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
	assert.Equal(t, 1000, got.Completed)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	assert.Equal(t, 25, got.NumAgents)
}

func TestSQLiteStorage_GetRun_NotFound(t *testing.T) {
	db := newDB(t)
	_, err := db.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}

func TestSQLiteStorage_SeedRoundTripsFullRange(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	run := makeRun("big-seed", time.Now())
	run.Seed = ^uint64(0) - 7
	require.NoError(t, db.SaveRun(ctx, run))

	got, err := db.GetRun(ctx, "big-seed")
	require.NoError(t, err)
	assert.Equal(t, run.Seed, got.Seed)
}

func TestSQLiteStorage_ListRuns_NewestFirst(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, db.SaveRun(ctx, makeRun("old", now.Add(-2*time.Hour))))
	require.NoError(t, db.SaveRun(ctx, makeRun("new", now)))
	require.NoError(t, db.SaveRun(ctx, makeRun("mid", now.Add(-time.Hour))))

	runs, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
	assert.Equal(t, "old", runs[2].ID)

	runs, err = db.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSQLiteStorage_StaleRunsMarkedFailed(t *testing.T) {
	path := t.TempDir() + "/asm.db"
	ctx := context.Background()

	db, err := storage.NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveRun(ctx, makeRun("crashed", time.Now().Add(-48*time.Hour))))
	require.NoError(t, db.SaveRun(ctx, makeRun("live", time.Now())))
	require.NoError(t, db.Close())

	db, err = storage.NewSQLiteStorage(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.GetRun(ctx, "crashed")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.Status)

	got, err = db.GetRun(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.Status)
}

func TestSQLiteStorage_Params(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	params := []domain.Param{
		{Key: "numagents", Value: "25"},
		{Key: "intrate", Value: "0.1"},
		{Key: "specialist", Value: "slope"},
	}
	require.NoError(t, db.SaveParams(ctx, "r", params))

	got, err := db.GetParams(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, params, got)

	// Saving again replaces the dump.
	require.NoError(t, db.SaveParams(ctx, "r", params[:1]))
	got, err = db.GetParams(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, params[:1], got)
}

func TestSQLiteStorage_Periods(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	batch1 := []domain.PeriodResult{
		{Period: 1, Price: 100, Dividend: 10, Volume: 3.5, RiskNeutral: 100, Iterations: 4, Converged: true},
		{Period: 2, Price: 101, Dividend: 10.2, Volume: 1, RiskNeutral: 102, GARuns: 2},
	}
	batch2 := []domain.PeriodResult{
		{Period: 3, Price: 99, Dividend: 9.9, IllegalChanges: 1},
		{Period: 2, Price: 105, Dividend: 10.2},
	}
	require.NoError(t, db.SavePeriods(ctx, "r", batch1))
	require.NoError(t, db.SavePeriods(ctx, "r", batch2))
	require.NoError(t, db.SavePeriods(ctx, "other", batch1[:1]))

	rows, err := db.GetPeriods(ctx, "r")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, batch1[0], rows[0])
	assert.Equal(t, 105.0, rows[1].Price, "later batch overwrites the period")
	assert.Equal(t, 3, rows[2].Period)
	assert.Equal(t, 1, rows[2].IllegalChanges)
}

func TestSQLiteStorage_SaveEmptySlices(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	assert.NoError(t, db.SavePeriods(ctx, "r", nil))
	assert.NoError(t, db.SaveAgentSnapshots(ctx, "r", nil))

	rows, err := db.GetPeriods(ctx, "r")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLiteStorage_AgentSnapshots_LatestPeriod(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveAgentSnapshots(ctx, "r", []domain.AgentSnapshot{
		{AgentID: 0, Period: 500, Cash: 1, Wealth: 10},
		{AgentID: 1, Period: 500, Cash: 2, Wealth: 20},
	}))
	require.NoError(t, db.SaveAgentSnapshots(ctx, "r", []domain.AgentSnapshot{
		{AgentID: 0, Period: 1000, Cash: 3, Position: 2, Wealth: 30, GACount: 4, AvgSpecificity: 1.5},
		{AgentID: 1, Period: 1000, Cash: 4, Position: -1, Wealth: 40, ActiveRules: 7},
	}))

	snaps, err := db.GetAgentSnapshots(ctx, "r")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 1, snaps[0].AgentID, "ordered by wealth desc")
	assert.Equal(t, 1000, snaps[0].Period)
	assert.Equal(t, 7, snaps[0].ActiveRules)
	assert.Equal(t, 4, snaps[1].GACount)
	assert.Equal(t, 1.5, snaps[1].AvgSpecificity)
}
