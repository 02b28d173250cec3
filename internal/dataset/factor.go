package dataset

import (
	"fmt"
	"sort"
)

// CategoricalColumns are the nominal columns marked by Categorize.
var CategoricalColumns = []string{ColSex, ColSmoker, ColRegion}

// Factor is a nominal column with unordered levels. Levels are stored in
// lexical order so the first level is the default reference level.
type Factor struct {
	Name   string
	Levels []string
}

// HasLevel reports whether level is one of the factor's levels.
func (f *Factor) HasLevel(level string) bool {
	i := sort.SearchStrings(f.Levels, level)
	return i < len(f.Levels) && f.Levels[i] == level
}

// Categorize marks the categorical columns present in the header as
// factors. Missing cells do not form a level. Calling it again rebuilds
// the factors from the rows.
func (d *Dataset) Categorize() {
	d.factors = make(map[string]*Factor, len(CategoricalColumns))
	for _, col := range CategoricalColumns {
		if !d.HasColumn(col) {
			continue
		}
		values, _ := d.Strings(col)
		seen := make(map[string]struct{})
		for _, v := range values {
			if v != "" {
				seen[v] = struct{}{}
			}
		}
		levels := make([]string, 0, len(seen))
		for v := range seen {
			levels = append(levels, v)
		}
		sort.Strings(levels)
		d.factors[col] = &Factor{Name: col, Levels: levels}
	}
}

// Factor returns the factor for a categorical column. Categorize must have
// been called.
func (d *Dataset) Factor(name string) (*Factor, error) {
	f, ok := d.factors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a categorized column", ErrMissingColumn, name)
	}
	return f, nil
}
