package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sfasm/internal/adapters/notify"
	"github.com/alejandrodnm/sfasm/internal/adapters/storage"
	"github.com/alejandrodnm/sfasm/internal/domain"
)

func seedStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveRun(ctx, domain.Run{
		ID: "run-1", Seed: 5, NumAgents: 2, SpecialistType: "slope",
		Periods: 3, Completed: 3, StartedAt: time.Now().UTC(), Status: domain.RunStatusCompleted,
	}))
	require.NoError(t, store.SaveParams(ctx, "run-1", []domain.Param{{Key: "numagents", Value: "2"}}))
	require.NoError(t, store.SavePeriods(ctx, "run-1", []domain.PeriodResult{
		{Period: 1, Price: 100, Dividend: 10, Volume: 1, Converged: true},
		{Period: 2, Price: 101, Dividend: 10.1, Volume: 0.5, Converged: true},
		{Period: 3, Price: 99, Dividend: 9.9, Volume: 0.25, Converged: true},
	}))
	require.NoError(t, store.SaveAgentSnapshots(ctx, "run-1", []domain.AgentSnapshot{
		{AgentID: 0, Period: 3, Wealth: 20050},
		{AgentID: 1, Period: 3, Wealth: 19950},
	}))
	return store
}

func TestPrintRuns(t *testing.T) {
	store := seedStore(t)
	var buf bytes.Buffer

	require.NoError(t, printRuns(context.Background(), store, notify.NewConsoleWriter(&buf, 0, 0)))
	assert.Contains(t, buf.String(), "run-1")
	assert.Contains(t, buf.String(), "3/3")
}

func TestPrintRun(t *testing.T) {
	store := seedStore(t)
	var buf bytes.Buffer

	err := printRun(context.Background(), store, notify.NewConsoleWriter(&buf, 5, 0), "run-1", 1)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "numagents = 2")
	assert.Contains(t, out, "99.0000")
	assert.Contains(t, out, "100.000", "mean price of the stored series")
	assert.Contains(t, out, "20050.00")
}

func TestPrintRun_NotFound(t *testing.T) {
	store := seedStore(t)
	var buf bytes.Buffer

	err := printRun(context.Background(), store, notify.NewConsoleWriter(&buf, 0, 0), "missing", 1)
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}
