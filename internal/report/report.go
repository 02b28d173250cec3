// Package report renders an analysis result as plain-text tables.
package report

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"math"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/banshee-data/charges.report/internal/analysis"
	"github.com/banshee-data/charges.report/internal/compare"
	"github.com/banshee-data/charges.report/internal/fsutil"
	"github.com/banshee-data/charges.report/internal/regression"
)

// SummaryFile is the report's file name in the output directory.
const SummaryFile = "summary.txt"

// Write renders every stage's numbers to w.
func Write(w io.Writer, res *analysis.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	p := &printer{w: tw}

	p.section("Data")
	p.row("source", res.DataPath)
	p.row("observations", res.Observations)
	p.missing(res)

	for _, tbl := range res.Summaries {
		p.section(fmt.Sprintf("Charges by %s", tbl.By))
		p.row("group", "n", "mean", "sd", "min", "max")
		for _, g := range tbl.Rows {
			p.row(g.Group, g.Count, num(g.Mean), num(g.StdDev), num(g.Min), num(g.Max))
		}
	}

	for _, m := range []*regression.Model{res.Additive, res.Interaction} {
		p.model(m)
	}
	p.comparison(res.Comparison)

	p.section(fmt.Sprintf("Predictions (%s)", res.Interaction.Formula))
	level := levelLabel(res.Interaction.ConfidenceLevel)
	p.row("age", "group", "fit", "se", level+" low", level+" high")
	for _, pr := range res.Predictions {
		p.row(pr.Age, pr.Group, num(pr.Fit), num(pr.SE), num(pr.Low), num(pr.High))
	}

	if len(res.Artifacts) > 0 {
		p.section("Artifacts")
		for _, a := range res.Artifacts {
			p.row(a)
		}
	}

	if p.err != nil {
		return p.err
	}
	return tw.Flush()
}

// WriteFile writes the report as SummaryFile in dir and returns its path.
func WriteFile(fs fsutil.FileSystem, dir string, res *analysis.Result) (string, error) {
	var buf bytes.Buffer
	if err := Write(&buf, res); err != nil {
		return "", err
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, SummaryFile)
	if err := fs.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", SummaryFile, err)
	}
	return path, nil
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) section(title string) {
	p.printf("\n== %s ==\n", title)
}

// row writes tab separated cells. tabwriter aligns a cell only when it is
// terminated by a tab, so every cell gets one.
func (p *printer) row(cells ...any) {
	for _, c := range cells {
		p.printf("%v\t", c)
	}
	p.printf("\n")
}

func (p *printer) missing(res *analysis.Result) {
	total := 0
	for _, n := range res.Missing {
		total += n
	}
	p.row("missing values", total)
	if total == 0 {
		return
	}
	for _, col := range slices.Sorted(maps.Keys(res.Missing)) {
		if n := res.Missing[col]; n > 0 {
			p.row("  "+col, n)
		}
	}
}

func (p *printer) model(m *regression.Model) {
	p.section(fmt.Sprintf("Model %s: %s", m.Formula.Name, m.Formula))
	level := levelLabel(m.ConfidenceLevel)
	p.row("term", "estimate", "std err", "t", "p", level+" low", level+" high")
	for _, c := range m.Coefficients {
		p.row(c.Term, num(c.Estimate), num(c.StdErr), fmt.Sprintf("%.3f", c.TValue), pval(c.PValue), num(c.CILow), num(c.CIHigh))
	}
	p.printf("\n")
	p.row("n", m.N)
	p.row("residual df", m.DFResidual)
	p.row("residual se", num(m.Sigma))
	p.row("R²", fmt.Sprintf("%.4f", m.RSquared))
	p.row("adj R²", fmt.Sprintf("%.4f", m.AdjRSquared))
	p.row("log-likelihood", fmt.Sprintf("%.2f", m.LogLik))
	p.row("AIC", fmt.Sprintf("%.2f", m.AIC))
	p.row("BIC", fmt.Sprintf("%.2f", m.BIC))
}

func (p *printer) comparison(c *compare.Result) {
	p.section(fmt.Sprintf("Comparison: %s vs %s", c.Smaller, c.Larger))
	p.row("added terms", fmt.Sprint(c.AddedTerms))
	p.row("F", fmt.Sprintf("%.4f", c.F))
	p.row("df", fmt.Sprintf("%d, %d", c.DF1, c.DF2))
	p.row("p", pval(c.PValue))
	p.row("RSS reduction", num(c.RSSReduction))
	p.row("Δ log-likelihood", fmt.Sprintf("%.3f", c.DeltaLogLik))
	p.row("Δ R²", fmt.Sprintf("%.5f", c.DeltaRSquared))
	p.row("Δ adj R²", fmt.Sprintf("%.5f", c.DeltaAdjRSq))
	for _, crit := range []struct {
		name         compare.Criterion
		label        string
		small, large float64
		delta        float64
	}{
		{compare.AIC, "AIC", c.SmallerAIC, c.LargerAIC, c.DeltaAIC},
		{compare.BIC, "BIC", c.SmallerBIC, c.LargerBIC, c.DeltaBIC},
	} {
		pref, err := c.Preferred(crit.name)
		if err != nil {
			p.err = err
			return
		}
		p.row(crit.label, fmt.Sprintf("%.2f → %.2f (Δ %.3f, lower: %s)", crit.small, crit.large, crit.delta, pref))
	}
}

// levelLabel formats 0.95 as "95%".
func levelLabel(c float64) string {
	return fmt.Sprintf("%g%%", math.Round(c*1000)/10)
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return fmt.Sprintf("%.2f", v)
}

func pval(v float64) string {
	if v < 1e-4 {
		return fmt.Sprintf("%.2e", v)
	}
	return fmt.Sprintf("%.4f", v)
}
