// Package testutil provides shared test utilities and fixtures.
//
// The synthetic datasets here have a known linear structure so tests can
// check fitted coefficients against ground truth.
package testutil

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/banshee-data/charges.report/internal/dataset"
)

// Truth is the generating model
//
//	charges = Intercept + AgeSlope·age + SmokerShift·[yes] + ExtraSlope·age·[yes] + ε
type Truth struct {
	Intercept   float64
	AgeSlope    float64
	SmokerShift float64
	ExtraSlope  float64
}

// NoInteraction resembles the real dataset's additive structure.
var NoInteraction = Truth{Intercept: -2000, AgeSlope: 260, SmokerShift: 23800}

// DoubledSmokerSlope gives smokers twice the non-smoker age slope.
var DoubledSmokerSlope = Truth{Intercept: -2000, AgeSlope: 260, SmokerShift: 20000, ExtraSlope: 260}

// Mean evaluates the noiseless response.
func (tr Truth) Mean(age float64, smoker string) float64 {
	v := tr.Intercept + tr.AgeSlope*age
	if smoker == "yes" {
		v += tr.SmokerShift + tr.ExtraSlope*age
	}
	return v
}

// SyntheticOptions controls Synthetic.
type SyntheticOptions struct {
	Truth Truth
	// Ages are cycled through; defaults to 18..64.
	Ages []float64
	// SmokerEvery marks every n-th design point a smoker. Defaults to 4.
	SmokerEvery int
	// Points is the number of distinct (age, smoker) design points.
	Points  int
	NoiseSD float64
	Seed    uint64
	// Paired emits each design point twice with noise +e and -e. The
	// noise then sums to zero within every (age, smoker) cell, is
	// orthogonal to any model of age and smoker, and OLS recovers Truth
	// exactly.
	Paired bool
}

// Synthetic builds a categorized dataset from opts. It is deterministic
// for a fixed Seed.
func Synthetic(opts SyntheticOptions) *dataset.Dataset {
	ages := opts.Ages
	if len(ages) == 0 {
		for a := 18; a <= 64; a++ {
			ages = append(ages, float64(a))
		}
	}
	every := opts.SmokerEvery
	if every <= 0 {
		every = 4
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	sexes := []string{"female", "male"}
	regions := []string{"northeast", "northwest", "southeast", "southwest"}

	ds := &dataset.Dataset{Columns: []string{"age", "sex", "bmi", "children", "smoker", "region", "charges"}}
	add := func(i int, age float64, smoker string, charges float64) {
		ds.Rows = append(ds.Rows, dataset.Observation{
			Age:      age,
			Sex:      sexes[i%len(sexes)],
			BMI:      20 + float64(i%15),
			Children: float64(i % 4),
			Smoker:   smoker,
			Region:   regions[i%len(regions)],
			Charges:  charges,
		})
	}
	for i := 0; i < opts.Points; i++ {
		age := ages[i%len(ages)]
		smoker := "no"
		if i%every == 0 {
			smoker = "yes"
		}
		mean := opts.Truth.Mean(age, smoker)
		e := rng.NormFloat64() * opts.NoiseSD
		add(i, age, smoker, mean+e)
		if opts.Paired {
			add(i, age, smoker, mean-e)
		}
	}
	ds.Categorize()
	return ds
}

// CSV renders ds as the comma separated insurance table.
func CSV(ds *dataset.Dataset) string {
	var b strings.Builder
	b.WriteString("age,sex,bmi,children,smoker,region,charges\n")
	for _, o := range ds.Rows {
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s,%s,%s\n",
			num(o.Age), o.Sex, num(o.BMI), num(o.Children), o.Smoker, o.Region, num(o.Charges))
	}
	return b.String()
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return fmt.Sprintf("%g", v)
}

// AssertClose fails the test when got differs from want by more than tol.
func AssertClose(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v ± %v", name, got, want, tol)
	}
}
