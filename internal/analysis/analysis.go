// Package analysis runs the regression comparison end to end: load,
// categorize, summarise, fit both models, compare them, predict and draw.
package analysis

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/banshee-data/charges.report/internal/charts"
	"github.com/banshee-data/charges.report/internal/compare"
	"github.com/banshee-data/charges.report/internal/config"
	"github.com/banshee-data/charges.report/internal/dataset"
	"github.com/banshee-data/charges.report/internal/fsutil"
	"github.com/banshee-data/charges.report/internal/monitoring"
	"github.com/banshee-data/charges.report/internal/regression"
)

// Options are the resolved settings of one run.
type Options struct {
	DataPath        string
	OutputDir       string
	Delimiter       rune
	ReferenceLevel  string
	ConfidenceLevel float64
	AgeGridMin      int
	AgeGridMax      int
	PredictionAges  []float64
	ImageWidthIn    float64
	ImageHeightIn   float64
	HTMLReport      bool
}

// OptionsFromConfig resolves every setting through the config's defaults.
func OptionsFromConfig(cfg *config.AnalysisConfig) Options {
	return Options{
		DataPath:        cfg.GetDataPath(),
		OutputDir:       cfg.GetOutputDir(),
		Delimiter:       cfg.GetDelimiter(),
		ReferenceLevel:  cfg.GetReferenceLevel(),
		ConfidenceLevel: cfg.GetConfidenceLevel(),
		AgeGridMin:      cfg.GetAgeGridMin(),
		AgeGridMax:      cfg.GetAgeGridMax(),
		PredictionAges:  cfg.GetPredictionAges(),
		ImageWidthIn:    cfg.GetImageWidthIn(),
		ImageHeightIn:   cfg.GetImageHeightIn(),
		HTMLReport:      cfg.GetHTMLReport(),
	}
}

// GroupTable is the response summarised over the levels of one factor.
type GroupTable struct {
	By   string                 `json:"by"`
	Rows []dataset.GroupSummary `json:"rows"`
}

// Result is everything one run produced. It is read-only once returned.
type Result struct {
	DataPath     string                  `json:"data_path"`
	Observations int                     `json:"observations"`
	Missing      map[string]int          `json:"missing"`
	Summaries    []GroupTable            `json:"summaries"`
	Additive     *regression.Model       `json:"additive"`
	Interaction  *regression.Model       `json:"interaction"`
	Comparison   *compare.Result         `json:"comparison"`
	Predictions  []regression.Prediction `json:"predictions"`
	Artifacts    []string                `json:"artifacts"`
}

// Run executes the pipeline reading and writing through fsys. Any stage
// failure aborts the run.
func Run(ctx context.Context, fsys fsutil.FileSystem, opts Options) (*Result, error) {
	res := &Result{DataPath: opts.DataPath}

	ds, err := load(fsys, opts)
	if err != nil {
		return nil, err
	}
	res.Observations = ds.Len()
	res.Missing = ds.MissingCounts()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res.Summaries, err = summarize(ds); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fitOpts := regression.FitOptions{Reference: opts.ReferenceLevel, ConfidenceLevel: opts.ConfidenceLevel}
	if res.Additive, err = fit(ds, regression.Additive(), fitOpts); err != nil {
		return nil, err
	}
	if res.Interaction, err = fit(ds, regression.Interaction(), fitOpts); err != nil {
		return nil, err
	}

	done := monitoring.Stage("compare")
	res.Comparison, err = compare.Nested(res.Additive, res.Interaction)
	done()
	if err != nil {
		return nil, fmt.Errorf("compare models: %w", err)
	}

	done = monitoring.Stage("predict")
	queries := regression.Grid(opts.PredictionAges, res.Interaction.Encoder().Levels())
	res.Predictions, err = res.Interaction.Predict(queries)
	done()
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done = monitoring.Stage("visualize")
	r := charts.NewRenderer(fsys, opts.OutputDir, opts.ImageWidthIn, opts.ImageHeightIn)
	res.Artifacts, err = r.RenderAll(charts.Input{
		Dataset: ds,
		Models:  []*regression.Model{res.Additive, res.Interaction},
		Primary: res.Interaction,
		Ages:    regression.AgeGrid(opts.AgeGridMin, opts.AgeGridMax),
	}, opts.HTMLReport)
	done()
	if err != nil {
		return nil, fmt.Errorf("visualize: %w", err)
	}

	return res, nil
}

func load(fsys fsutil.FileSystem, opts Options) (*dataset.Dataset, error) {
	defer monitoring.Stage("load")()

	if !fsys.Exists(opts.DataPath) {
		return nil, fmt.Errorf("open dataset: %s: %w", opts.DataPath, fs.ErrNotExist)
	}
	ds, err := dataset.LoadFile(fsys, opts.DataPath, dataset.LoadOptions{Delimiter: opts.Delimiter})
	if err != nil {
		return nil, err
	}
	if ds.Len() == 0 {
		return nil, fmt.Errorf("%s: no observations", opts.DataPath)
	}
	if n := ds.TotalMissing(); n > 0 {
		missing := ds.MissingCounts()
		for _, col := range ds.Columns {
			if c := missing[col]; c > 0 {
				monitoring.Warnf("column %q has %d missing value(s)", col, c)
			}
		}
		monitoring.Warnf("%d missing value(s) in total", n)
	}
	ds.Categorize()
	return ds, nil
}

func summarize(ds *dataset.Dataset) ([]GroupTable, error) {
	defer monitoring.Stage("summarize")()

	var tables []GroupTable
	for _, col := range dataset.CategoricalColumns {
		if !ds.HasColumn(col) {
			continue
		}
		rows, err := dataset.Summarize(ds, dataset.ColCharges, col)
		if err != nil {
			return nil, fmt.Errorf("summarize by %s: %w", col, err)
		}
		tables = append(tables, GroupTable{By: col, Rows: rows})
	}
	return tables, nil
}

func fit(ds *dataset.Dataset, f regression.Formula, opts regression.FitOptions) (*regression.Model, error) {
	defer monitoring.Stage("fit " + f.Name)()

	m, err := regression.Fit(ds, f, opts)
	if err != nil {
		return nil, fmt.Errorf("fit %s (%s): %w", f.Name, f, err)
	}
	monitoring.Logf("%s: R²=%.4f adj R²=%.4f AIC=%.1f BIC=%.1f", f, m.RSquared, m.AdjRSquared, m.AIC, m.BIC)
	return m, nil
}
