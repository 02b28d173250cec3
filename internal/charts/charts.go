// Package charts renders the analysis figures: PNG images through
// gonum/plot and an interactive HTML page through go-echarts.
package charts

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"path/filepath"

	"github.com/banshee-data/charges.report/internal/dataset"
	"github.com/banshee-data/charges.report/internal/fsutil"
	"github.com/banshee-data/charges.report/internal/monitoring"
	"github.com/banshee-data/charges.report/internal/regression"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
)

// Artifact file names written into the output directory.
const (
	ScatterFile      = "scatter.png"
	CoefficientsFile = "coefficients.png"
	PredictionsFile  = "predictions.png"
	HTMLFile         = "report.html"
)

// Input is everything the charts draw from.
type Input struct {
	Dataset *dataset.Dataset
	// Models are drawn side by side in the coefficient chart, in order.
	Models []*regression.Model
	// Primary supplies the fitted lines, bands and prediction curves.
	Primary *regression.Model
	// Ages is the grid the fitted lines are evaluated on.
	Ages []float64
}

func (in Input) validate() error {
	if in.Dataset == nil || in.Primary == nil {
		return fmt.Errorf("charts: dataset and primary model are required")
	}
	if len(in.Models) == 0 {
		return fmt.Errorf("charts: no models to compare")
	}
	if len(in.Ages) < 2 {
		return fmt.Errorf("charts: age grid needs at least 2 points, got %d", len(in.Ages))
	}
	return nil
}

// Renderer writes chart artifacts into one output directory.
type Renderer struct {
	fs     fsutil.FileSystem
	dir    string
	width  vg.Length
	height vg.Length
}

// NewRenderer returns a Renderer writing widthIn × heightIn inch images
// into dir.
func NewRenderer(fs fsutil.FileSystem, dir string, widthIn, heightIn float64) *Renderer {
	return &Renderer{
		fs:     fs,
		dir:    dir,
		width:  vg.Length(widthIn) * vg.Inch,
		height: vg.Length(heightIn) * vg.Inch,
	}
}

// RenderAll writes the three PNG charts and, when html is set, the
// interactive page. It returns the written paths in order.
func (r *Renderer) RenderAll(in Input, html bool) ([]string, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := r.fs.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	builders := []struct {
		name  string
		build func() (*plot.Plot, error)
	}{
		{ScatterFile, func() (*plot.Plot, error) { return ScatterPlot(in.Dataset, in.Primary, in.Ages) }},
		{CoefficientsFile, func() (*plot.Plot, error) { return CoefficientPlot(in.Models...) }},
		{PredictionsFile, func() (*plot.Plot, error) { return PredictionPlot(in.Primary, in.Ages) }},
	}

	var paths []string
	for _, b := range builders {
		p, err := b.build()
		if err != nil {
			return paths, fmt.Errorf("build %s: %w", b.name, err)
		}
		path, err := r.SavePNG(p, b.name)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	if html {
		page, err := HTMLPage(in)
		if err != nil {
			return paths, fmt.Errorf("build %s: %w", HTMLFile, err)
		}
		var buf bytes.Buffer
		if err := page.Render(&buf); err != nil {
			return paths, fmt.Errorf("render %s: %w", HTMLFile, err)
		}
		path := filepath.Join(r.dir, HTMLFile)
		if err := r.fs.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return paths, fmt.Errorf("save %s: %w", HTMLFile, err)
		}
		paths = append(paths, path)
	}

	monitoring.Logf("wrote %d chart artifacts to %s", len(paths), r.dir)
	return paths, nil
}

// SavePNG renders p and writes it as name inside the output directory.
func (r *Renderer) SavePNG(p *plot.Plot, name string) (string, error) {
	wt, err := p.WriterTo(r.width, r.height, "png")
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	path := filepath.Join(r.dir, name)
	f, err := r.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return path, nil
}

// generateColors creates a palette of n evenly spaced hues.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(math.Round(rf * 255)), uint8(math.Round(gf * 255)), uint8(math.Round(bf * 255))
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// translucent returns c with alpha a, non-premultiplied.
func translucent(c color.Color, a uint8) color.Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = a
	return n
}

// hexColor formats c as #rrggbb for the HTML charts.
func hexColor(c color.Color) string {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
}
