// Package compare contrasts two nested regression models fitted on the same
// observations.
package compare

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/charges.report/internal/regression"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrNotNested is returned when the smaller model is not a restriction of
// the larger one.
var ErrNotNested = errors.New("models are not nested")

// Criterion names an information criterion.
type Criterion string

const (
	AIC Criterion = "aic"
	BIC Criterion = "bic"
)

// Result holds the nested F-test and the differences in fit statistics.
// Every delta is larger minus smaller.
type Result struct {
	Smaller string `json:"smaller"`
	Larger  string `json:"larger"`

	F      float64 `json:"f"`
	DF1    int     `json:"df1"`
	DF2    int     `json:"df2"`
	PValue float64 `json:"p_value"`

	RSSReduction  float64 `json:"rss_reduction"`
	DeltaAIC      float64 `json:"delta_aic"`
	DeltaBIC      float64 `json:"delta_bic"`
	DeltaLogLik   float64 `json:"delta_log_lik"`
	DeltaRSquared float64 `json:"delta_r_squared"`
	DeltaAdjRSq   float64 `json:"delta_adj_r_squared"`

	SmallerAIC float64 `json:"smaller_aic"`
	LargerAIC  float64 `json:"larger_aic"`
	SmallerBIC float64 `json:"smaller_bic"`
	LargerBIC  float64 `json:"larger_bic"`

	AddedTerms []string `json:"added_terms"`
}

// Nested runs the extra-sum-of-squares F-test of smaller against larger.
func Nested(smaller, larger *regression.Model) (*Result, error) {
	if smaller.N != larger.N {
		return nil, fmt.Errorf("%w: fitted on %d and %d observations", ErrNotNested, smaller.N, larger.N)
	}
	added, err := addedTerms(smaller.Terms(), larger.Terms())
	if err != nil {
		return nil, err
	}

	df1 := smaller.DFResidual - larger.DFResidual
	df2 := larger.DFResidual
	reduction := smaller.RSS - larger.RSS

	f := (reduction / float64(df1)) / (larger.RSS / float64(df2))
	// Round-off can leave a tiny negative reduction when the added terms
	// explain nothing.
	if f < 0 || math.IsNaN(f) {
		f = 0
	}
	var p float64
	if math.IsInf(f, 1) {
		p = 0
	} else {
		p = distuv.F{D1: float64(df1), D2: float64(df2)}.Survival(f)
	}

	return &Result{
		Smaller:       smaller.Formula.Name,
		Larger:        larger.Formula.Name,
		F:             f,
		DF1:           df1,
		DF2:           df2,
		PValue:        p,
		RSSReduction:  reduction,
		DeltaAIC:      larger.AIC - smaller.AIC,
		DeltaBIC:      larger.BIC - smaller.BIC,
		DeltaLogLik:   larger.LogLik - smaller.LogLik,
		DeltaRSquared: larger.RSquared - smaller.RSquared,
		DeltaAdjRSq:   larger.AdjRSquared - smaller.AdjRSquared,
		SmallerAIC:    smaller.AIC,
		LargerAIC:     larger.AIC,
		SmallerBIC:    smaller.BIC,
		LargerBIC:     larger.BIC,
		AddedTerms:    added,
	}, nil
}

// Preferred names the model with the lower value of the criterion. Ties go
// to the smaller model.
func (r *Result) Preferred(c Criterion) (string, error) {
	var delta float64
	switch c {
	case AIC:
		delta = r.DeltaAIC
	case BIC:
		delta = r.DeltaBIC
	default:
		return "", fmt.Errorf("unknown criterion %q", c)
	}
	if delta < 0 {
		return r.Larger, nil
	}
	return r.Smaller, nil
}

func addedTerms(small, large []string) ([]string, error) {
	if len(small) >= len(large) {
		return nil, fmt.Errorf("%w: %d terms is not fewer than %d", ErrNotNested, len(small), len(large))
	}
	have := make(map[string]bool, len(large))
	for _, t := range large {
		have[t] = true
	}
	inSmall := make(map[string]bool, len(small))
	for _, t := range small {
		if !have[t] {
			return nil, fmt.Errorf("%w: term %q missing from the larger model", ErrNotNested, t)
		}
		inSmall[t] = true
	}
	var added []string
	for _, t := range large {
		if !inSmall[t] {
			added = append(added, t)
		}
	}
	return added, nil
}
