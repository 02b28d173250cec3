package charts

import (
	"bytes"
	"errors"
	"image/color"
	"io/fs"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/charges.report/internal/fsutil"
	"github.com/banshee-data/charges.report/internal/monitoring"
	"github.com/banshee-data/charges.report/internal/regression"
	"github.com/banshee-data/charges.report/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func fixtureInput(t *testing.T) Input {
	t.Helper()
	ds := testutil.Synthetic(testutil.SyntheticOptions{
		Truth: testutil.DoubledSmokerSlope, Points: 120, NoiseSD: 3000, Seed: 4,
	})
	add, err := regression.Fit(ds, regression.Additive(), regression.FitOptions{})
	require.NoError(t, err)
	inter, err := regression.Fit(ds, regression.Interaction(), regression.FitOptions{})
	require.NoError(t, err)
	return Input{
		Dataset: ds,
		Models:  []*regression.Model{add, inter},
		Primary: inter,
		Ages:    regression.AgeGrid(18, 64),
	}
}

func TestRenderAll_WritesArtifacts(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	r := NewRenderer(mfs, "out/charts", 6, 4)

	paths, err := r.RenderAll(fixtureInput(t), true)
	require.NoError(t, err)

	want := []string{
		filepath.Join("out/charts", ScatterFile),
		filepath.Join("out/charts", CoefficientsFile),
		filepath.Join("out/charts", PredictionsFile),
		filepath.Join("out/charts", HTMLFile),
	}
	assert.Equal(t, want, paths)
	assert.True(t, mfs.Exists("out/charts"))

	for _, p := range want[:3] {
		data, err := mfs.ReadFile(p)
		require.NoError(t, err, p)
		assert.True(t, bytes.HasPrefix(data, pngMagic), "%s is not a PNG", p)
	}

	html, err := mfs.ReadFile(want[3])
	require.NoError(t, err)
	assert.Contains(t, string(html), "echarts")
	assert.Contains(t, string(html), "age:smokeryes")
}

func TestRenderAll_WithoutHTML(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	paths, err := NewRenderer(mfs, "out", 5, 3).RenderAll(fixtureInput(t), false)
	require.NoError(t, err)
	assert.Len(t, paths, 3)
	assert.False(t, mfs.Exists(filepath.Join("out", HTMLFile)))
}

func TestRenderAll_ReadOnlyFails(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.ReadOnly = true

	_, err := NewRenderer(mfs, "out", 5, 3).RenderAll(fixtureInput(t), true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrPermission))
	assert.Empty(t, mfs.Files())
}

func TestRenderAll_OSFileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	paths, err := NewRenderer(fsutil.OSFileSystem{}, dir, 5, 3).RenderAll(fixtureInput(t), false)
	require.NoError(t, err)
	for _, p := range paths {
		assert.True(t, fsutil.OSFileSystem{}.Exists(p), p)
	}
}

func TestRenderAll_InvalidInput(t *testing.T) {
	in := fixtureInput(t)
	tests := []struct {
		name   string
		mutate func(*Input)
		want   string
	}{
		{"no dataset", func(in *Input) { in.Dataset = nil }, "required"},
		{"no primary", func(in *Input) { in.Primary = nil }, "required"},
		{"no models", func(in *Input) { in.Models = nil }, "no models"},
		{"short grid", func(in *Input) { in.Ages = []float64{30} }, "age grid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := in
			tt.mutate(&bad)
			_, err := NewRenderer(fsutil.NewMemoryFileSystem(), "out", 5, 3).RenderAll(bad, true)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}

func TestPlots_Build(t *testing.T) {
	in := fixtureInput(t)

	_, err := ScatterPlot(in.Dataset, in.Primary, in.Ages)
	assert.NoError(t, err)
	_, err = CoefficientPlot(in.Models...)
	assert.NoError(t, err)
	_, err = PredictionPlot(in.Primary, in.Ages)
	assert.NoError(t, err)

	_, err = CoefficientPlot()
	assert.Error(t, err)
}

func TestAxisRange(t *testing.T) {
	tests := []struct {
		name   string
		xs     []float64
		grid   []float64
		lo, hi float64
	}{
		{"inside grid", []float64{20, 40, 60}, []float64{18, 64}, 18, 64},
		{"above grid", []float64{20, 80}, []float64{18, 64}, 18, 80},
		{"below grid", []float64{5, 40}, []float64{18, 64}, 5, 64},
		{"missing values", []float64{math.NaN(), 90}, []float64{18, 64}, 18, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := axisRange(tt.xs, tt.grid)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
		})
	}
}

func TestHTMLScatter_ShowsObservationsOutsideGrid(t *testing.T) {
	in := fixtureInput(t)
	in.Dataset.Rows[0].Age = 80
	in.Dataset.Rows[1].Age = 10

	scatter, err := htmlScatter(in)
	require.NoError(t, err)
	require.NotEmpty(t, scatter.XAxisList)
	assert.Equal(t, 10.0, scatter.XAxisList[0].Min)
	assert.Equal(t, 80.0, scatter.XAxisList[0].Max)
}

func TestPalette(t *testing.T) {
	assert.Nil(t, generateColors(0))

	colors := generateColors(2)
	require.Len(t, colors, 2)
	assert.Equal(t, color.RGBA{R: 217, G: 38, B: 38, A: 255}, colors[0])
	assert.NotEqual(t, colors[0], colors[1])

	assert.Equal(t, "#d92626", hexColor(colors[0]))
	assert.Equal(t, color.NRGBA{R: 217, G: 38, B: 38, A: 60}, translucent(colors[0], 60))
}

func TestReversed(t *testing.T) {
	fit, upper, lower := predictionXYs([]regression.Prediction{
		{Age: 1, Fit: 2, Low: 1, High: 3},
		{Age: 2, Fit: 4, Low: 3, High: 5},
	})
	assert.Equal(t, 4.0, fit[1].Y)
	assert.Equal(t, 3.0, upper[0].Y)
	rev := reversed(lower)
	assert.Equal(t, 2.0, rev[0].X)
	assert.Equal(t, 1.0, rev[1].X)
}
