package charts

import (
	"fmt"
	"math"

	"github.com/banshee-data/charges.report/internal/dataset"
	"github.com/banshee-data/charges.report/internal/regression"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// groupLabel names a factor level in legends.
func groupLabel(factor, level string) string {
	return fmt.Sprintf("%s=%s", factor, level)
}

// ScatterPlot draws the observations coloured by the model's factor with
// the model's fitted line per group and its mean confidence band.
func ScatterPlot(ds *dataset.Dataset, m *regression.Model, ages []float64) (*plot.Plot, error) {
	f := m.Formula
	xs, err := ds.Numeric(f.Numeric)
	if err != nil {
		return nil, err
	}
	ys, err := ds.Numeric(f.Response)
	if err != nil {
		return nil, err
	}
	groups, err := ds.Strings(f.Factor)
	if err != nil {
		return nil, err
	}

	levels := m.Encoder().Levels()
	colors := generateColors(len(levels))

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s with %s fit", f.Response, f)
	p.X.Label.Text = f.Numeric
	p.Y.Label.Text = f.Response

	for i, level := range levels {
		pts := make(plotter.XYs, 0, len(xs))
		for j := range xs {
			if groups[j] != level || math.IsNaN(xs[j]) || math.IsNaN(ys[j]) {
				continue
			}
			pts = append(pts, plotter.XY{X: xs[j], Y: ys[j]})
		}

		preds, err := m.Predict(regression.Grid(ages, []string{level}))
		if err != nil {
			return nil, err
		}
		fit, upper, lower := predictionXYs(preds)

		band, err := plotter.NewPolygon(append(upper, reversed(lower)...))
		if err != nil {
			return nil, err
		}
		band.Color = translucent(colors[i], 60)
		band.LineStyle.Width = 0
		p.Add(band)

		if len(pts) > 0 {
			sc, err := plotter.NewScatter(pts)
			if err != nil {
				return nil, err
			}
			sc.GlyphStyle.Color = translucent(colors[i], 150)
			sc.GlyphStyle.Radius = vg.Points(1.5)
			sc.GlyphStyle.Shape = draw.CircleGlyph{}
			p.Add(sc)
			p.Legend.Add(groupLabel(f.Factor, level), sc)
		}

		line, err := plotter.NewLine(fit)
		if err != nil {
			return nil, err
		}
		line.Color = colors[i]
		line.Width = vg.Points(2)
		p.Add(line)
	}

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10
	return p, nil
}

// ciBars pairs bar positions with their confidence interval offsets.
type ciBars struct {
	plotter.XYs
	plotter.YErrors
}

// CoefficientPlot draws each model's estimates as grouped bars with
// confidence interval error bars, one group per term.
func CoefficientPlot(models ...*regression.Model) (*plot.Plot, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("no models")
	}

	var terms []string
	index := map[string]int{}
	for _, m := range models {
		for _, t := range m.Terms() {
			if _, ok := index[t]; !ok {
				index[t] = len(terms)
				terms = append(terms, t)
			}
		}
	}

	colors := generateColors(len(models))
	p := plot.New()
	p.Title.Text = "Coefficient estimates"
	p.Y.Label.Text = "estimate"

	const groupWidth = 0.8
	step := groupWidth / float64(len(models))
	barWidth := vg.Points(60 / float64(len(models)))

	for i, m := range models {
		vals := make(plotter.Values, len(terms))
		bars := ciBars{}
		shift := -groupWidth/2 + step*(float64(i)+0.5)
		for _, c := range m.Coefficients {
			j := index[c.Term]
			vals[j] = c.Estimate
			bars.XYs = append(bars.XYs, plotter.XY{X: float64(j) + shift, Y: c.Estimate})
			bars.YErrors = append(bars.YErrors, struct{ Low, High float64 }{
				Low:  c.Estimate - c.CILow,
				High: c.CIHigh - c.Estimate,
			})
		}

		bc, err := plotter.NewBarChart(vals, barWidth)
		if err != nil {
			return nil, err
		}
		bc.XMin = shift
		bc.Color = colors[i]
		bc.LineStyle.Width = 0
		p.Add(bc)
		p.Legend.Add(m.Formula.Name, bc)

		eb, err := plotter.NewYErrorBars(bars)
		if err != nil {
			return nil, err
		}
		eb.LineStyle.Width = vg.Points(1)
		p.Add(eb)
	}

	p.Add(plotter.NewGrid())
	p.NominalX(terms...)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// PredictionPlot draws the model's predicted response against the
// numeric covariate, one line per factor level.
func PredictionPlot(m *regression.Model, ages []float64) (*plot.Plot, error) {
	f := m.Formula
	levels := m.Encoder().Levels()
	colors := generateColors(len(levels))

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Predicted %s (%s)", f.Response, f)
	p.X.Label.Text = f.Numeric
	p.Y.Label.Text = "predicted " + f.Response

	for i, level := range levels {
		preds, err := m.Predict(regression.Grid(ages, []string{level}))
		if err != nil {
			return nil, err
		}
		fit, upper, lower := predictionXYs(preds)

		line, err := plotter.NewLine(fit)
		if err != nil {
			return nil, err
		}
		line.Color = colors[i]
		line.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add(groupLabel(f.Factor, level), line)

		for _, bound := range []plotter.XYs{upper, lower} {
			l, err := plotter.NewLine(bound)
			if err != nil {
				return nil, err
			}
			l.Color = colors[i]
			l.Width = vg.Points(0.5)
			l.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			p.Add(l)
		}
	}

	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10
	return p, nil
}

func predictionXYs(preds []regression.Prediction) (fit, upper, lower plotter.XYs) {
	fit = make(plotter.XYs, len(preds))
	upper = make(plotter.XYs, len(preds))
	lower = make(plotter.XYs, len(preds))
	for i, pr := range preds {
		fit[i] = plotter.XY{X: pr.Age, Y: pr.Fit}
		upper[i] = plotter.XY{X: pr.Age, Y: pr.High}
		lower[i] = plotter.XY{X: pr.Age, Y: pr.Low}
	}
	return fit, upper, lower
}

func reversed(xys plotter.XYs) plotter.XYs {
	out := make(plotter.XYs, len(xys))
	for i, xy := range xys {
		out[len(xys)-1-i] = xy
	}
	return out
}
