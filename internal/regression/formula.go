// Package regression fits ordinary least squares models of a numeric
// response on one numeric covariate and one categorical covariate, with an
// optional interaction between them, and evaluates fitted models at new
// points.
package regression

import (
	"errors"
	"fmt"

	"github.com/banshee-data/charges.report/internal/dataset"
)

// InterceptTerm is the name of the intercept coefficient.
const InterceptTerm = "(Intercept)"

// ErrUnknownLevel is returned when a categorical value is not a level of
// the factor the encoder was built from.
var ErrUnknownLevel = errors.New("unknown factor level")

// Formula describes the model structure:
//
//	Response ~ Numeric + Factor              (additive)
//	Response ~ Numeric + Factor + Numeric:Factor  (interaction)
type Formula struct {
	Name        string
	Response    string
	Numeric     string
	Factor      string
	Interaction bool
}

// Additive returns the formula charges ~ age + smoker.
func Additive() Formula {
	return Formula{
		Name:     "additive",
		Response: dataset.ColCharges,
		Numeric:  dataset.ColAge,
		Factor:   dataset.ColSmoker,
	}
}

// Interaction returns the formula charges ~ age * smoker.
func Interaction() Formula {
	f := Additive()
	f.Name = "interaction"
	f.Interaction = true
	return f
}

// String renders the formula in R notation.
func (f Formula) String() string {
	op := "+"
	if f.Interaction {
		op = "*"
	}
	return fmt.Sprintf("%s ~ %s %s %s", f.Response, f.Numeric, op, f.Factor)
}

// Encoder turns a (numeric value, factor level) pair into a design row.
// The same Encoder is used to build the training design matrix and the
// rows for prediction, so both always share one reference level.
type Encoder struct {
	formula   Formula
	reference string
	// contrasts are the non-reference levels, one indicator column each.
	contrasts []string
	known     map[string]bool
}

// NewEncoder builds a treatment-contrast encoder for the formula's factor.
// An empty reference selects the factor's first level.
func NewEncoder(f Formula, factor *dataset.Factor, reference string) (*Encoder, error) {
	if len(factor.Levels) < 2 {
		return nil, fmt.Errorf("%w: factor %q has %d level(s), need at least 2",
			ErrRankDeficient, factor.Name, len(factor.Levels))
	}
	if reference == "" {
		reference = factor.Levels[0]
	}
	if !factor.HasLevel(reference) {
		return nil, fmt.Errorf("%w: reference %q for %q (levels %v)",
			ErrUnknownLevel, reference, factor.Name, factor.Levels)
	}

	e := &Encoder{formula: f, reference: reference, known: make(map[string]bool, len(factor.Levels))}
	for _, level := range factor.Levels {
		e.known[level] = true
		if level != reference {
			e.contrasts = append(e.contrasts, level)
		}
	}
	return e, nil
}

// Reference returns the level absorbed into the intercept.
func (e *Encoder) Reference() string { return e.reference }

// Levels returns the reference level followed by the contrast levels.
func (e *Encoder) Levels() []string {
	return append([]string{e.reference}, e.contrasts...)
}

// Terms returns coefficient names in design-column order, following R's
// naming: (Intercept), age, smokeryes, age:smokeryes.
func (e *Encoder) Terms() []string {
	terms := []string{InterceptTerm, e.formula.Numeric}
	for _, level := range e.contrasts {
		terms = append(terms, e.formula.Factor+level)
	}
	if e.formula.Interaction {
		for _, level := range e.contrasts {
			terms = append(terms, e.formula.Numeric+":"+e.formula.Factor+level)
		}
	}
	return terms
}

// Width returns the number of design columns.
func (e *Encoder) Width() int {
	n := 2 + len(e.contrasts)
	if e.formula.Interaction {
		n += len(e.contrasts)
	}
	return n
}

// Row returns the design row for x at the given factor level.
func (e *Encoder) Row(x float64, level string) ([]float64, error) {
	row := make([]float64, e.Width())
	if err := e.RowTo(row, x, level); err != nil {
		return nil, err
	}
	return row, nil
}

// RowTo writes the design row into dst, which must have length Width.
func (e *Encoder) RowTo(dst []float64, x float64, level string) error {
	if !e.known[level] {
		return fmt.Errorf("%w: %q is not a level of %q", ErrUnknownLevel, level, e.formula.Factor)
	}
	k := len(e.contrasts)
	dst[0] = 1
	dst[1] = x
	for i, c := range e.contrasts {
		ind := 0.0
		if level == c {
			ind = 1
		}
		dst[2+i] = ind
		if e.formula.Interaction {
			dst[2+k+i] = x * ind
		}
	}
	return nil
}
