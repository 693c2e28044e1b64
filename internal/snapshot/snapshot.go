// Package snapshot renders diagnostic PNGs of reconstructed volumes so a
// recon can be eyeballed without pulling the data back into the scanner
// pipeline. Rendering is best effort and never blocks a reconstruction.
package snapshot

import (
	"fmt"
	"image/color"
	"math/cmplx"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// clipQuantile caps displayed magnitudes so a few hot voxels do not wash
// out the rest of the slice.
const clipQuantile = 0.99

// Plotter writes magnitude snapshots of named volumes into a fixed output
// directory. A Plotter constructed with an empty directory is disabled and
// all its methods are no-ops.
type Plotter struct {
	mu        sync.Mutex
	outputDir string
}

// NewPlotter returns a plotter writing under outputDir, or a disabled
// plotter when outputDir is empty.
func NewPlotter(outputDir string) *Plotter {
	return &Plotter{outputDir: outputDir}
}

// Enabled reports whether snapshots will be written.
func (p *Plotter) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outputDir != ""
}

// Save renders the center slice of a volume as a magnitude heatmap plus a
// per-row mean magnitude profile: <base>_mag.png and <base>_profile.png.
func (p *Plotter) Save(base string, dims []int64, data []complex64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.outputDir == "" {
		return nil
	}
	if len(dims) == 0 {
		return fmt.Errorf("snapshot %s: no dimensions", base)
	}

	cols := int(dims[0])
	rows := 1
	if len(dims) > 1 {
		rows = int(dims[1])
	}
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("snapshot %s: degenerate slice %dx%d", base, cols, rows)
	}
	sliceLen := cols * rows
	if len(data) == 0 || len(data)%sliceLen != 0 {
		return fmt.Errorf("snapshot %s: %d samples do not tile %dx%d slices", base, len(data), cols, rows)
	}

	// Center slice along the collapsed trailing axes.
	slices := len(data) / sliceLen
	off := (slices / 2) * sliceLen
	mags := make([]float64, sliceLen)
	for i := range mags {
		mags[i] = cmplx.Abs(complex128(data[off+i]))
	}
	clipMagnitudes(mags)

	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := p.saveHeatmap(base, cols, rows, mags); err != nil {
		return err
	}
	return p.saveProfile(base, cols, rows, mags)
}

func (p *Plotter) saveHeatmap(base string, cols, rows int, mags []float64) error {
	pm := plot.New()
	pm.Title.Text = fmt.Sprintf("%s - Center Slice Magnitude", base)
	pm.X.Label.Text = "Readout"
	pm.Y.Label.Text = "Phase"

	hm := plotter.NewHeatMap(magnitudeGrid{cols: cols, rows: rows, vals: mags}, palette.Heat(16, 1))
	pm.Add(hm)

	file := filepath.Join(p.outputDir, base+"_mag.png")
	if err := pm.Save(8*vg.Inch, 8*vg.Inch, file); err != nil {
		return fmt.Errorf("save magnitude plot: %w", err)
	}
	return nil
}

func (p *Plotter) saveProfile(base string, cols, rows int, mags []float64) error {
	pts := make(plotter.XYs, rows)
	for r := 0; r < rows; r++ {
		sum := 0.0
		for c := 0; c < cols; c++ {
			sum += mags[r*cols+c]
		}
		pts[r] = plotter.XY{X: float64(r), Y: sum / float64(cols)}
	}

	pp := plot.New()
	pp.Title.Text = fmt.Sprintf("%s - Row Mean Magnitude", base)
	pp.X.Label.Text = "Phase Row"
	pp.Y.Label.Text = "Mean |signal|"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 255}
	line.Width = vg.Points(1)
	pp.Add(line)

	file := filepath.Join(p.outputDir, base+"_profile.png")
	if err := pp.Save(10*vg.Inch, 4*vg.Inch, file); err != nil {
		return fmt.Errorf("save profile plot: %w", err)
	}
	return nil
}

// clipMagnitudes caps values above the clip quantile in place.
func clipMagnitudes(mags []float64) {
	sorted := append([]float64(nil), mags...)
	sort.Float64s(sorted)
	clip := stat.Quantile(clipQuantile, stat.Empirical, sorted, nil)
	if clip <= 0 {
		return
	}
	for i := range mags {
		if mags[i] > clip {
			mags[i] = clip
		}
	}
}

// magnitudeGrid adapts a row-major magnitude slice to plotter.GridXYZ.
type magnitudeGrid struct {
	cols, rows int
	vals       []float64
}

func (g magnitudeGrid) Dims() (c, r int)   { return g.cols, g.rows }
func (g magnitudeGrid) Z(c, r int) float64 { return g.vals[r*g.cols+c] }
func (g magnitudeGrid) X(c int) float64    { return float64(c) }
func (g magnitudeGrid) Y(r int) float64    { return float64(r) }
