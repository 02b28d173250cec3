package db

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/charges.report/internal/monitoring"
	"github.com/banshee-data/charges.report/internal/timeutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func sampleRun() *Run {
	return &Run{
		DataPath:        "insurance.csv",
		Observations:    1338,
		ReferenceLevel:  "no",
		ConfidenceLevel: 0.95,
		ConfigJSON:      json.RawMessage(`{"confidence_level":0.95}`),
		Comparison: Comparison{
			F: 3.2, DF1: 1, DF2: 1334, PValue: 0.07,
			DeltaAIC: -1.2, DeltaBIC: 4.0, DeltaAdjRSquared: 0.0001,
		},
		Models: []ModelSummary{
			{
				Name: "additive", Formula: "charges ~ age + smoker", N: 1338, DFResidual: 1335,
				RSS: 1.5e11, RSquared: 0.72, AdjRSquared: 0.7196, LogLik: -13828, AIC: 27664, BIC: 27685,
				Coefficients: []CoefficientRow{
					{Term: "(Intercept)", Estimate: -2391.6, StdErr: 528.3, TValue: -4.5, PValue: 6e-6, CILow: -3428, CIHigh: -1355},
					{Term: "age", Estimate: 274.9, StdErr: 12.5, TValue: 22, PValue: 1e-90, CILow: 250, CIHigh: 299},
					{Term: "smokeryes", Estimate: 23855, StdErr: 433, TValue: 55, PValue: 0, CILow: 23005, CIHigh: 24705},
				},
			},
			{
				Name: "interaction", Formula: "charges ~ age * smoker", N: 1338, DFResidual: 1334,
				RSS: 1.49e11, RSquared: 0.7214, AdjRSquared: 0.7207, LogLik: -13826, AIC: 27663, BIC: 27689,
				Coefficients: []CoefficientRow{
					{Term: "(Intercept)", Estimate: -2091, StdErr: 600},
					{Term: "age", Estimate: 267, StdErr: 14},
					{Term: "smokeryes", Estimate: 22386, StdErr: 1200},
					{Term: "age:smokeryes", Estimate: 37.5, StdErr: 29},
				},
			},
		},
		Predictions: []PredictionRow{
			{Age: 20, Group: "no", Fit: 3250, Low: 2600, High: 3900},
			{Age: 20, Group: "yes", Fit: 26380, Low: 25200, High: 27560},
		},
	}
}

func TestOpen_AppliesPragmasAndMigrations(t *testing.T) {
	database := setupTestDB(t)

	var journalMode string
	require.NoError(t, database.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout, foreignKeys int
	require.NoError(t, database.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
	require.NoError(t, database.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	version, dirty, err := database.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	for _, table := range []string{"runs", "run_models", "run_coefficients", "run_predictions"} {
		var n int
		require.NoError(t, database.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, NewRunStore(first).Insert(context.Background(), sampleRun()))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	runs, err := NewRunStore(second).List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestMigrateDownAndUp(t *testing.T) {
	database := setupTestDB(t)

	require.NoError(t, database.MigrateDown())
	version, _, err := database.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, database.MigrateUp())
	version, _, err = database.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestMigrateVersion_Fresh(t *testing.T) {
	database, err := OpenWithoutMigrations(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer database.Close()

	version, dirty, err := database.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)
}

func TestRunStore_InsertGet(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(setupTestDB(t))

	run := sampleRun()
	require.NoError(t, store.Insert(ctx, run))
	assert.NotEmpty(t, run.RunID)
	assert.NotZero(t, run.CreatedAt)

	got, err := store.Get(ctx, run.RunID)
	require.NoError(t, err)
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("stored run mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, run.CreatedAt, got.Created().UnixNano())
}

func TestRunStore_InsertStampsFromClock(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 4, 5, 6, 7, 8, 9, time.UTC)
	store := NewRunStoreWithClock(setupTestDB(t), timeutil.NewMockClock(at))

	run := sampleRun()
	require.NoError(t, store.Insert(ctx, run))
	assert.Equal(t, at.UnixNano(), run.CreatedAt)

	got, err := store.Get(ctx, run.RunID)
	require.NoError(t, err)
	assert.True(t, got.Created().Equal(at))
}

func TestRunStore_GetMissing(t *testing.T) {
	store := NewRunStore(setupTestDB(t))
	_, err := store.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunStore_ListOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(setupTestDB(t))

	for i, id := range []string{"a", "b", "c"} {
		r := sampleRun()
		r.RunID = id
		r.CreatedAt = int64(1000 + i)
		require.NoError(t, store.Insert(ctx, r))
	}

	runs, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{runs[0].RunID, runs[1].RunID, runs[2].RunID})
	assert.Empty(t, runs[0].Models)
	assert.Equal(t, 0.07, runs[0].Comparison.PValue)

	runs, err = store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunStore_DuplicateID(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(setupTestDB(t))

	r := sampleRun()
	r.RunID = "fixed"
	require.NoError(t, store.Insert(ctx, r))

	dup := sampleRun()
	dup.RunID = "fixed"
	assert.Error(t, store.Insert(ctx, dup))

	// The failed insert left nothing behind.
	runs, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	store := NewRunStore(database)

	r := sampleRun()
	require.NoError(t, store.Insert(ctx, r))
	require.NoError(t, store.Delete(ctx, r.RunID))

	for _, table := range []string{"run_models", "run_coefficients", "run_predictions"} {
		var n int
		require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Zero(t, n, table)
	}
	assert.ErrorIs(t, store.Delete(ctx, r.RunID), ErrRunNotFound)
}
