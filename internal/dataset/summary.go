package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GroupSummary holds descriptive statistics of a numeric column within one
// level of a factor.
type GroupSummary struct {
	Group  string  `json:"group"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize computes count, mean, sample standard deviation, min and max of
// the numeric column for each level of the factor, in level order. Rows
// with a missing value or missing group are skipped.
func Summarize(d *Dataset, column, by string) ([]GroupSummary, error) {
	values, err := d.Numeric(column)
	if err != nil {
		return nil, err
	}
	factor, err := d.Factor(by)
	if err != nil {
		return nil, err
	}
	groups, err := d.Strings(by)
	if err != nil {
		return nil, err
	}

	byLevel := make(map[string][]float64, len(factor.Levels))
	for i, v := range values {
		if math.IsNaN(v) || groups[i] == "" {
			continue
		}
		byLevel[groups[i]] = append(byLevel[groups[i]], v)
	}

	out := make([]GroupSummary, 0, len(factor.Levels))
	for _, level := range factor.Levels {
		xs := byLevel[level]
		gs := GroupSummary{Group: level, Count: len(xs)}
		switch len(xs) {
		case 0:
			gs.Mean, gs.StdDev, gs.Min, gs.Max = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		case 1:
			// The sample standard deviation needs two observations.
			gs.Mean, gs.StdDev, gs.Min, gs.Max = xs[0], math.NaN(), xs[0], xs[0]
		default:
			gs.Mean, gs.StdDev = stat.MeanStdDev(xs, nil)
			gs.Min, gs.Max = floats.Min(xs), floats.Max(xs)
		}
		out = append(out, gs)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("factor %q has no levels", by)
	}
	return out, nil
}
