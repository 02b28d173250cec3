package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/charges.report/internal/timeutil"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one persisted analysis: its inputs, both fitted models, the
// model comparison and the prediction table.
type Run struct {
	RunID           string          `json:"run_id"`
	CreatedAt       int64           `json:"created_at"`
	DataPath        string          `json:"data_path"`
	Observations    int             `json:"observations"`
	ReferenceLevel  string          `json:"reference_level"`
	ConfidenceLevel float64         `json:"confidence_level"`
	ConfigJSON      json.RawMessage `json:"config_json,omitempty"`

	Comparison  Comparison      `json:"comparison"`
	Models      []ModelSummary  `json:"models,omitempty"`
	Predictions []PredictionRow `json:"predictions,omitempty"`
}

// Comparison is the stored nested model test.
type Comparison struct {
	F                float64 `json:"f"`
	DF1              int     `json:"df1"`
	DF2              int     `json:"df2"`
	PValue           float64 `json:"p_value"`
	DeltaAIC         float64 `json:"delta_aic"`
	DeltaBIC         float64 `json:"delta_bic"`
	DeltaAdjRSquared float64 `json:"delta_adj_r_squared"`
}

// ModelSummary is the stored fit of one model.
type ModelSummary struct {
	Name         string           `json:"name"`
	Formula      string           `json:"formula"`
	N            int              `json:"n"`
	DFResidual   int              `json:"df_residual"`
	RSS          float64          `json:"rss"`
	RSquared     float64          `json:"r_squared"`
	AdjRSquared  float64          `json:"adj_r_squared"`
	LogLik       float64          `json:"log_lik"`
	AIC          float64          `json:"aic"`
	BIC          float64          `json:"bic"`
	Coefficients []CoefficientRow `json:"coefficients"`
}

// CoefficientRow is one stored coefficient estimate.
type CoefficientRow struct {
	Term     string  `json:"term"`
	Estimate float64 `json:"estimate"`
	StdErr   float64 `json:"std_err"`
	TValue   float64 `json:"t_value"`
	PValue   float64 `json:"p_value"`
	CILow    float64 `json:"ci_low"`
	CIHigh   float64 `json:"ci_high"`
}

// PredictionRow is one stored prediction.
type PredictionRow struct {
	Age   float64 `json:"age"`
	Group string  `json:"group"`
	Fit   float64 `json:"fit"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
}

// Created returns CreatedAt as a time.
func (r *Run) Created() time.Time {
	return time.Unix(0, r.CreatedAt).UTC()
}

// RunStore provides persistence for analysis runs.
type RunStore struct {
	db    *DB
	clock timeutil.Clock
}

// NewRunStore creates a new RunStore stamping runs with the system clock.
func NewRunStore(db *DB) *RunStore {
	return NewRunStoreWithClock(db, timeutil.RealClock{})
}

// NewRunStoreWithClock creates a RunStore stamping runs from clock.
func NewRunStoreWithClock(db *DB, clock timeutil.Clock) *RunStore {
	return &RunStore{db: db, clock: clock}
}

// Insert persists a run with its models, coefficients and predictions in
// one transaction. If RunID is empty, a UUID is generated.
func (s *RunStore) Insert(ctx context.Context, run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}

	var configStr interface{}
	if len(run.ConfigJSON) > 0 {
		configStr = string(run.ConfigJSON)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert run: %w", err)
	}
	defer tx.Rollback()

	c := run.Comparison
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, created_at, data_path, observations, reference_level,
			confidence_level, config_json, f_stat, f_df1, f_df2, f_p_value,
			delta_aic, delta_bic, delta_adj_r_squared
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.CreatedAt, run.DataPath, run.Observations, run.ReferenceLevel,
		run.ConfidenceLevel, configStr, c.F, c.DF1, c.DF2, c.PValue,
		c.DeltaAIC, c.DeltaBIC, c.DeltaAdjRSquared,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, m := range run.Models {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_models (
				run_id, name, formula, n, df_residual, rss,
				r_squared, adj_r_squared, log_lik, aic, bic
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, m.Name, m.Formula, m.N, m.DFResidual, m.RSS,
			m.RSquared, m.AdjRSquared, m.LogLik, m.AIC, m.BIC,
		); err != nil {
			return fmt.Errorf("insert model %s: %w", m.Name, err)
		}
		for i, co := range m.Coefficients {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO run_coefficients (
					run_id, model_name, position, term, estimate,
					std_err, t_value, p_value, ci_low, ci_high
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.RunID, m.Name, i, co.Term, co.Estimate,
				co.StdErr, co.TValue, co.PValue, co.CILow, co.CIHigh,
			); err != nil {
				return fmt.Errorf("insert coefficient %s/%s: %w", m.Name, co.Term, err)
			}
		}
	}

	for i, p := range run.Predictions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_predictions (run_id, position, age, grp, fit, ci_low, ci_high)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, i, p.Age, p.Group, p.Fit, p.Low, p.High,
		); err != nil {
			return fmt.Errorf("insert prediction %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

const runColumns = `
	run_id, created_at, data_path, observations, reference_level,
	confidence_level, config_json, f_stat, f_df1, f_df2, f_p_value,
	delta_aic, delta_bic, delta_adj_r_squared`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var configStr sql.NullString
	var c struct {
		f, p, daic, dbic, dadj sql.NullFloat64
		df1, df2               sql.NullInt64
	}
	if err := row.Scan(
		&r.RunID, &r.CreatedAt, &r.DataPath, &r.Observations, &r.ReferenceLevel,
		&r.ConfidenceLevel, &configStr, &c.f, &c.df1, &c.df2, &c.p,
		&c.daic, &c.dbic, &c.dadj,
	); err != nil {
		return nil, err
	}
	if configStr.Valid {
		r.ConfigJSON = json.RawMessage(configStr.String)
	}
	r.Comparison = Comparison{
		F:                c.f.Float64,
		DF1:              int(c.df1.Int64),
		DF2:              int(c.df2.Int64),
		PValue:           c.p.Float64,
		DeltaAIC:         c.daic.Float64,
		DeltaBIC:         c.dbic.Float64,
		DeltaAdjRSquared: c.dadj.Float64,
	}
	return &r, nil
}

// Get returns a run with its models and predictions.
func (s *RunStore) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	if r.Models, err = s.models(ctx, runID); err != nil {
		return nil, err
	}
	if r.Predictions, err = s.predictions(ctx, runID); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns the most recent runs first, without models or predictions.
// A non-positive limit returns every run.
func (s *RunStore) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Delete removes a run and everything stored with it.
func (s *RunStore) Delete(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (s *RunStore) models(ctx context.Context, runID string) ([]ModelSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, formula, n, df_residual, rss, r_squared, adj_r_squared, log_lik, aic, bic
		FROM run_models WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	var models []ModelSummary
	for rows.Next() {
		var m ModelSummary
		if err := rows.Scan(&m.Name, &m.Formula, &m.N, &m.DFResidual, &m.RSS,
			&m.RSquared, &m.AdjRSquared, &m.LogLik, &m.AIC, &m.BIC); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan model: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// The connection is single; release it before the next query.
	rows.Close()

	for i := range models {
		coefs, err := s.coefficients(ctx, runID, models[i].Name)
		if err != nil {
			return nil, err
		}
		models[i].Coefficients = coefs
	}
	return models, nil
}

func (s *RunStore) coefficients(ctx context.Context, runID, model string) ([]CoefficientRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT term, estimate, std_err, t_value, p_value, ci_low, ci_high
		FROM run_coefficients WHERE run_id = ? AND model_name = ? ORDER BY position`, runID, model)
	if err != nil {
		return nil, fmt.Errorf("query coefficients: %w", err)
	}
	defer rows.Close()

	var out []CoefficientRow
	for rows.Next() {
		var c CoefficientRow
		if err := rows.Scan(&c.Term, &c.Estimate, &c.StdErr, &c.TValue, &c.PValue, &c.CILow, &c.CIHigh); err != nil {
			return nil, fmt.Errorf("scan coefficient: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *RunStore) predictions(ctx context.Context, runID string) ([]PredictionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT age, grp, fit, ci_low, ci_high
		FROM run_predictions WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []PredictionRow
	for rows.Next() {
		var p PredictionRow
		if err := rows.Scan(&p.Age, &p.Group, &p.Fit, &p.Low, &p.High); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
