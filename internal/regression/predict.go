package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Query is a point at which to evaluate a fitted model.
type Query struct {
	Age   float64 `json:"age"`
	Group string  `json:"group"`
}

// Prediction is the fitted mean response at a Query with its confidence
// interval at the model's confidence level.
type Prediction struct {
	Age   float64 `json:"age"`
	Group string  `json:"group"`
	Fit   float64 `json:"fit"`
	SE    float64 `json:"se"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
}

// Predict evaluates the model at each query. Design rows are built with
// the encoder used at fit time.
func (m *Model) Predict(queries []Query) ([]Prediction, error) {
	beta := m.Estimates()
	row := make([]float64, m.encoder.Width())
	out := make([]Prediction, 0, len(queries))
	for _, q := range queries {
		if err := m.encoder.RowTo(row, q.Age, q.Group); err != nil {
			return nil, fmt.Errorf("predict age=%v: %w", q.Age, err)
		}
		fit := floats.Dot(row, beta)
		x := mat.NewVecDense(len(row), row)
		se := m.Sigma * math.Sqrt(mat.Inner(x, m.xtxInv, x))
		out = append(out, Prediction{
			Age:   q.Age,
			Group: q.Group,
			Fit:   fit,
			SE:    se,
			Low:   fit - m.tcrit*se,
			High:  fit + m.tcrit*se,
		})
	}
	return out, nil
}

// Grid crosses every age with every group, groups varying slowest.
func Grid(ages []float64, groups []string) []Query {
	out := make([]Query, 0, len(ages)*len(groups))
	for _, g := range groups {
		for _, a := range ages {
			out = append(out, Query{Age: a, Group: g})
		}
	}
	return out
}

// AgeGrid returns the integers from min to max inclusive.
func AgeGrid(min, max int) []float64 {
	if max < min {
		return nil
	}
	out := make([]float64, 0, max-min+1)
	for a := min; a <= max; a++ {
		out = append(out, float64(a))
	}
	return out
}
