package testutil

import (
	"strings"
	"testing"

	"github.com/banshee-data/charges.report/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthetic_Deterministic(t *testing.T) {
	opts := SyntheticOptions{Truth: NoInteraction, Points: 50, NoiseSD: 500, Seed: 7}
	a := Synthetic(opts)
	b := Synthetic(opts)
	require.Equal(t, a.Rows, b.Rows)
	assert.Equal(t, 50, a.Len())

	smoker, err := a.Factor(dataset.ColSmoker)
	require.NoError(t, err)
	assert.Equal(t, []string{"no", "yes"}, smoker.Levels)
}

func TestSynthetic_PairedNoiseCancels(t *testing.T) {
	ds := Synthetic(SyntheticOptions{Truth: DoubledSmokerSlope, Points: 20, NoiseSD: 1000, Seed: 3, Paired: true})
	require.Equal(t, 40, ds.Len())
	for i := 0; i < ds.Len(); i += 2 {
		a, b := ds.Rows[i], ds.Rows[i+1]
		require.Equal(t, a.Age, b.Age)
		require.Equal(t, a.Smoker, b.Smoker)
		AssertClose(t, "pair mean", (a.Charges+b.Charges)/2, DoubledSmokerSlope.Mean(a.Age, a.Smoker), 1e-6)
	}
}

func TestTruthMean(t *testing.T) {
	AssertClose(t, "no", DoubledSmokerSlope.Mean(30, "no"), -2000+260*30, 0)
	AssertClose(t, "yes", DoubledSmokerSlope.Mean(30, "yes"), -2000+520*30+20000, 0)
}

func TestCSV_RoundTripsThroughLoader(t *testing.T) {
	ds := Synthetic(SyntheticOptions{Truth: NoInteraction, Points: 10, NoiseSD: 100, Seed: 1})
	loaded, err := dataset.Load(strings.NewReader(CSV(ds)), dataset.LoadOptions{})
	require.NoError(t, err)
	require.Equal(t, ds.Len(), loaded.Len())
	for i := range ds.Rows {
		AssertClose(t, "charges", loaded.Rows[i].Charges, ds.Rows[i].Charges, 1e-6*abs(ds.Rows[i].Charges)+1e-9)
		assert.Equal(t, ds.Rows[i].Smoker, loaded.Rows[i].Smoker)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
