// Package dataset loads the insurance charges table, marks its categorical
// columns and produces per-group descriptive statistics.
package dataset

import (
	"errors"
	"fmt"
	"math"
)

// Column names understood by the loader.
const (
	ColAge      = "age"
	ColSex      = "sex"
	ColBMI      = "bmi"
	ColChildren = "children"
	ColSmoker   = "smoker"
	ColRegion   = "region"
	ColCharges  = "charges"
)

// RequiredColumns must be present in the header of every input table.
var RequiredColumns = []string{ColAge, ColSmoker, ColCharges}

// ErrMissingColumn is returned when a required column is absent from the
// header or a column lookup names an unknown column.
var ErrMissingColumn = errors.New("missing column")

// Observation is one row of the table. Missing numeric cells are NaN and
// missing categorical cells are empty.
type Observation struct {
	Age      float64
	Sex      string
	BMI      float64
	Children float64
	Smoker   string
	Region   string
	Charges  float64
}

// Dataset is the loaded table. Rows are never mutated after loading.
type Dataset struct {
	Columns []string
	Rows    []Observation

	factors map[string]*Factor
}

// Len returns the number of observations.
func (d *Dataset) Len() int { return len(d.Rows) }

// HasColumn reports whether the input header carried the named column.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Numeric returns a copy of a numeric column.
func (d *Dataset) Numeric(name string) ([]float64, error) {
	get, ok := numericColumns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not numeric", ErrMissingColumn, name)
	}
	out := make([]float64, len(d.Rows))
	for i := range d.Rows {
		out[i] = get(&d.Rows[i])
	}
	return out, nil
}

// Strings returns a copy of a categorical column.
func (d *Dataset) Strings(name string) ([]string, error) {
	get, ok := categoricalColumns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not categorical", ErrMissingColumn, name)
	}
	out := make([]string, len(d.Rows))
	for i := range d.Rows {
		out[i] = get(&d.Rows[i])
	}
	return out, nil
}

// MissingCounts counts missing cells per column present in the header.
// The check is advisory: nothing is dropped or imputed.
func (d *Dataset) MissingCounts() map[string]int {
	counts := make(map[string]int, len(d.Columns))
	for _, col := range d.Columns {
		n := 0
		if get, ok := numericColumns[col]; ok {
			for i := range d.Rows {
				if math.IsNaN(get(&d.Rows[i])) {
					n++
				}
			}
		} else if get, ok := categoricalColumns[col]; ok {
			for i := range d.Rows {
				if get(&d.Rows[i]) == "" {
					n++
				}
			}
		}
		counts[col] = n
	}
	return counts
}

// TotalMissing sums MissingCounts.
func (d *Dataset) TotalMissing() int {
	total := 0
	for _, n := range d.MissingCounts() {
		total += n
	}
	return total
}

var numericColumns = map[string]func(*Observation) float64{
	ColAge:      func(o *Observation) float64 { return o.Age },
	ColBMI:      func(o *Observation) float64 { return o.BMI },
	ColChildren: func(o *Observation) float64 { return o.Children },
	ColCharges:  func(o *Observation) float64 { return o.Charges },
}

var categoricalColumns = map[string]func(*Observation) string{
	ColSex:    func(o *Observation) string { return o.Sex },
	ColSmoker: func(o *Observation) string { return o.Smoker },
	ColRegion: func(o *Observation) string { return o.Region },
}
