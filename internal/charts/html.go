package charts

import (
	"fmt"
	"math"

	"github.com/banshee-data/charges.report/internal/regression"
	echarts "github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// HTMLPage builds an interactive page with the same three charts as the
// PNG artifacts.
func HTMLPage(in Input) (*components.Page, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	scatter, err := htmlScatter(in)
	if err != nil {
		return nil, err
	}
	bar := htmlCoefficients(in.Models)
	line, err := htmlPredictions(in.Primary, in.Ages)
	if err != nil {
		return nil, err
	}

	page := components.NewPage()
	page.SetPageTitle("Insurance charges regression report")
	page.AddCharts(scatter, bar, line)
	return page, nil
}

func htmlScatter(in Input) (*echarts.Scatter, error) {
	m := in.Primary
	f := m.Formula
	xs, err := in.Dataset.Numeric(f.Numeric)
	if err != nil {
		return nil, err
	}
	ys, err := in.Dataset.Numeric(f.Response)
	if err != nil {
		return nil, err
	}
	groups, err := in.Dataset.Strings(f.Factor)
	if err != nil {
		return nil, err
	}
	levels := m.Encoder().Levels()
	colors := generateColors(len(levels))
	xmin, xmax := axisRange(xs, in.Ages)

	scatter := echarts.NewScatter()
	scatter.SetGlobalOptions(
		echarts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "600px"}),
		echarts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s by %s", f.Response, f.Numeric), Subtitle: f.String()}),
		echarts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		echarts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		echarts.WithXAxisOpts(opts.XAxis{Type: "value", Name: f.Numeric, NameLocation: "middle", NameGap: 25, Min: xmin, Max: xmax}),
		echarts.WithYAxisOpts(opts.YAxis{Type: "value", Name: f.Response}),
	)

	fits := echarts.NewLine()
	for i, level := range levels {
		label := groupLabel(f.Factor, level)
		data := make([]opts.ScatterData, 0, len(xs))
		for j := range xs {
			if groups[j] != level || math.IsNaN(xs[j]) || math.IsNaN(ys[j]) {
				continue
			}
			data = append(data, opts.ScatterData{Value: []interface{}{xs[j], ys[j]}})
		}
		scatter.AddSeries(label, data,
			echarts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
			echarts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(colors[i])}),
		)

		preds, err := m.Predict(regression.Grid(in.Ages, []string{level}))
		if err != nil {
			return nil, err
		}
		fit, low, high := lineSeries(preds)
		color := hexColor(colors[i])
		fits.AddSeries(label+" fit", fit,
			echarts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			echarts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 2}),
		)
		for _, bound := range [][]opts.LineData{low, high} {
			fits.AddSeries(label+" band", bound,
				echarts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
				echarts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 1, Type: "dashed"}),
			)
		}
	}
	scatter.Overlap(fits)
	return scatter, nil
}

// axisRange spans every finite observation and the whole prediction grid.
func axisRange(xs, grid []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, vs := range [][]float64{xs, grid} {
		for _, v := range vs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	return lo, hi
}

func htmlCoefficients(models []*regression.Model) *echarts.Bar {
	var terms []string
	seen := map[string]bool{}
	for _, m := range models {
		for _, t := range m.Terms() {
			if !seen[t] {
				seen[t] = true
				terms = append(terms, t)
			}
		}
	}
	colors := generateColors(len(models))

	bar := echarts.NewBar()
	bar.SetGlobalOptions(
		echarts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "500px"}),
		echarts.WithTitleOpts(opts.Title{Title: "Coefficient estimates", Subtitle: "hover for confidence intervals"}),
		echarts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		echarts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
	)
	bar.SetXAxis(terms)
	for i, m := range models {
		data := make([]opts.BarData, len(terms))
		for j, t := range terms {
			c, ok := m.Coefficient(t)
			if !ok {
				data[j] = opts.BarData{Name: t, Value: "-"}
				continue
			}
			data[j] = opts.BarData{
				Name:    fmt.Sprintf("%s [%.4g, %.4g]", t, c.CILow, c.CIHigh),
				Value:   c.Estimate,
				Tooltip: &opts.Tooltip{Show: opts.Bool(true)},
			}
		}
		bar.AddSeries(m.Formula.Name, data,
			echarts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(colors[i])}),
		)
	}
	return bar
}

func htmlPredictions(m *regression.Model, ages []float64) (*echarts.Line, error) {
	f := m.Formula
	levels := m.Encoder().Levels()
	colors := generateColors(len(levels))

	line := echarts.NewLine()
	line.SetGlobalOptions(
		echarts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "500px"}),
		echarts.WithTitleOpts(opts.Title{Title: "Predicted " + f.Response, Subtitle: f.String()}),
		echarts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		echarts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		echarts.WithXAxisOpts(opts.XAxis{Type: "value", Name: f.Numeric, NameLocation: "middle", NameGap: 25, Min: ages[0], Max: ages[len(ages)-1]}),
		echarts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "predicted " + f.Response}),
	)
	for i, level := range levels {
		preds, err := m.Predict(regression.Grid(ages, []string{level}))
		if err != nil {
			return nil, err
		}
		fit, _, _ := lineSeries(preds)
		line.AddSeries(groupLabel(f.Factor, level), fit,
			echarts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			echarts.WithLineStyleOpts(opts.LineStyle{Color: hexColor(colors[i]), Width: 2}),
		)
	}
	return line, nil
}

func lineSeries(preds []regression.Prediction) (fit, low, high []opts.LineData) {
	fit = make([]opts.LineData, len(preds))
	low = make([]opts.LineData, len(preds))
	high = make([]opts.LineData, len(preds))
	for i, p := range preds {
		fit[i] = opts.LineData{Value: []interface{}{p.Age, p.Fit}}
		low[i] = opts.LineData{Value: []interface{}{p.Age, p.Low}}
		high[i] = opts.LineData{Value: []interface{}{p.Age, p.High}}
	}
	return fit, low, high
}
