package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/charges.report/internal/charts"
	"github.com/banshee-data/charges.report/internal/db"
	"github.com/banshee-data/charges.report/internal/monitoring"
	"github.com/banshee-data/charges.report/internal/report"
	"github.com/banshee-data/charges.report/internal/security"
	"github.com/banshee-data/charges.report/internal/testutil"
	"github.com/banshee-data/charges.report/internal/version"
)

func init() {
	monitoring.SetLogger(nil)
}

// execute runs the CLI with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--quiet"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFixture(t *testing.T, dir string) string {
	t.Helper()
	ds := testutil.Synthetic(testutil.SyntheticOptions{
		Truth: testutil.DoubledSmokerSlope, Points: 150, NoiseSD: 3000, Seed: 8,
	})
	path := filepath.Join(dir, "insurance.csv")
	require.NoError(t, os.WriteFile(path, []byte(testutil.CSV(ds)), 0o644))
	return path
}

var runIDPattern = regexp.MustCompile(`recorded run ([0-9a-f-]{36})`)

func TestAnalyse_WritesReportAndRecordsRun(t *testing.T) {
	dir := t.TempDir()
	data := writeFixture(t, dir)
	outDir := filepath.Join(dir, "out")
	dbPath := filepath.Join(dir, "runs.db")

	out, err := execute(t, "analyse", "--data", data, "--out", outDir, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "== Comparison: additive vs interaction ==")
	assert.Contains(t, out, "report written to "+filepath.Join(outDir, report.SummaryFile))

	for _, name := range []string{report.SummaryFile, charts.ScatterFile, charts.CoefficientsFile, charts.PredictionsFile, charts.HTMLFile} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}

	m := runIDPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	id := m[1]

	out, err = execute(t, "runs", "list", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "RUN ID")
	assert.Contains(t, out, id)

	out, err = execute(t, "runs", "show", id, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "interaction: charges ~ age * smoker")
	assert.Contains(t, out, "age:smokeryes")

	out, err = execute(t, "runs", "show", id, "--json", "--db", dbPath)
	require.NoError(t, err)
	var run db.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, id, run.RunID)
	assert.Equal(t, 150, run.Observations)
	assert.Len(t, run.Models, 2)

	exportPath := filepath.Join(dir, "export", "run.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(exportPath), 0o755))
	out, err = execute(t, "runs", "export", id, exportPath, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "exported run "+id)
	raw, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	var exported db.Run
	require.NoError(t, json.Unmarshal(raw, &exported))
	assert.Equal(t, run.Comparison, exported.Comparison)

	_, err = execute(t, "runs", "export", id, "/etc/charges-run.json", "--db", dbPath)
	assert.ErrorIs(t, err, security.ErrOutsideAllowedDirs)

	out, err = execute(t, "runs", "delete", id, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted run "+id)

	_, err = execute(t, "runs", "show", id, "--db", dbPath)
	assert.ErrorIs(t, err, db.ErrRunNotFound)

	out, err = execute(t, "runs", "list", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "no runs recorded")
}

func TestRoot_RunsWithDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)
	t.Chdir(dir)

	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "== Model additive")
	assert.NotContains(t, out, "recorded run")

	_, err = os.Stat(filepath.Join(dir, "output", report.SummaryFile))
	assert.NoError(t, err)
}

func TestAnalyse_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	data := writeFixture(t, dir)
	outDir := filepath.Join(dir, "custom")
	cfgPath := filepath.Join(dir, "analysis.json")
	cfg := map[string]any{
		"data_path":        data,
		"output_dir":       outDir,
		"confidence_level": 0.9,
		"html_report":      false,
		"prediction_ages":  []float64{25, 45},
	}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, raw, 0o644))

	out, err := execute(t, "analyse", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "90% low")

	_, err = os.Stat(filepath.Join(outDir, charts.HTMLFile))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(outDir, charts.ScatterFile))
	assert.NoError(t, err)
}

func TestAnalyse_Errors(t *testing.T) {
	dir := t.TempDir()
	badCfg := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badCfg, []byte(`{"confidence_level": 1.5}`), 0o644))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing data", []string{"analyse", "--data", filepath.Join(dir, "absent.csv"), "--out", dir}, "open dataset"},
		{"invalid config", []string{"analyse", "--config", badCfg}, "invalid configuration"},
		{"config extension", []string{"analyse", "--config", filepath.Join(dir, "cfg.yaml")}, ".json extension"},
		{"extra argument", []string{"analyse", "extra"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRuns_RequireDatabase(t *testing.T) {
	for _, args := range [][]string{
		{"runs", "list"},
		{"runs", "show", "abc"},
		{"runs", "delete", "abc"},
		{"migrate", "status"},
	} {
		_, err := execute(t, args...)
		assert.ErrorIs(t, err, errNoDatabase, args)
	}
}

func TestRuns_DeleteMissing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	_, err := execute(t, "runs", "delete", "nope", "--db", dbPath)
	assert.ErrorIs(t, err, db.ErrRunNotFound)
}

func TestMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"migrate", "status"}, "version: 0\ndirty: false\n"},
		{[]string{"migrate", "up"}, "version: 2\ndirty: false\n"},
		{[]string{"migrate", "down"}, "version: 1\ndirty: false\n"},
		{[]string{"migrate", "force", "2"}, "version: 2\ndirty: false\n"},
	}
	for _, s := range steps {
		out, err := execute(t, append(s.args, "--db", dbPath)...)
		require.NoError(t, err, s.args)
		assert.Equal(t, s.want, out, s.args)
	}

	_, err := execute(t, "migrate", "force", "two", "--db", dbPath)
	assert.ErrorContains(t, err, `invalid version "two"`)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.String()+"\n", out)
}
