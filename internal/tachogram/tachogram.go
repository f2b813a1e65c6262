// Package tachogram renders PNG reports for a finished HRV measurement: the
// RR tachogram (interval against beat number) and a Poincaré plot.
package tachogram

import (
	"fmt"
	"image/color"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/pulse.monitor/internal/fsutil"
	"github.com/banshee-data/pulse.monitor/internal/hrv"
	"github.com/banshee-data/pulse.monitor/internal/security"
)

var (
	rrColor   = color.RGBA{R: 200, G: 30, B: 45, A: 255}
	meanColor = color.RGBA{R: 40, G: 90, B: 200, A: 255}
)

// Writer saves reports under Dir.
type Writer struct {
	fs  fsutil.FileSystem
	dir string
	now func() time.Time
}

// NewWriter creates a writer for dir on fsys.
func NewWriter(fsys fsutil.FileSystem, dir string) *Writer {
	return &Writer{fs: fsys, dir: dir, now: time.Now}
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Report is the set of files written for one measurement.
type Report struct {
	Tachogram string
	Poincare  string
}

// FormatTimestamp formats t for report file names.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// Write renders both plots for intervals (milliseconds) and r. label is
// folded into the file names.
func (w *Writer) Write(label string, intervals []int, r hrv.Result) (Report, error) {
	if len(intervals) < 2 {
		return Report{}, fmt.Errorf("tachogram needs at least 2 intervals, got %d", len(intervals))
	}
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return Report{}, fmt.Errorf("creating report dir: %w", err)
	}

	base := FormatTimestamp(w.now()) + "_" + security.SanitizeFilename(label)
	rep := Report{
		Tachogram: filepath.Join(w.dir, base+"_tachogram.png"),
		Poincare:  filepath.Join(w.dir, base+"_poincare.png"),
	}

	tp, err := tachogramPlot(intervals, r)
	if err != nil {
		return Report{}, err
	}
	if err := w.save(tp, 8*vg.Inch, 4*vg.Inch, rep.Tachogram); err != nil {
		return Report{}, err
	}

	pp, err := poincarePlot(intervals)
	if err != nil {
		return Report{}, err
	}
	if err := w.save(pp, 5*vg.Inch, 5*vg.Inch, rep.Poincare); err != nil {
		return Report{}, err
	}
	return rep, nil
}

// List returns the saved reports, oldest first.
func (w *Writer) List() ([]string, error) {
	if !w.fs.Exists(w.dir) {
		return nil, nil
	}
	return w.fs.Glob(w.dir, "*.png")
}

func (w *Writer) save(p *plot.Plot, width, height vg.Length, path string) error {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("rendering %s: %w", filepath.Base(path), err)
	}
	f, err := w.fs.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func tachogramPlot(intervals []int, r hrv.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("RR tachogram  HR %.0f bpm  RMSSD %.1f ms  SDNN %.1f ms",
		r.MeanHRBpm, r.RMSSDMs, r.SDNNMs)
	p.X.Label.Text = "Beat"
	p.Y.Label.Text = "RR interval (ms)"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(intervals))
	for i, ms := range intervals {
		pts[i] = plotter.XY{X: float64(i + 1), Y: float64(ms)}
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, fmt.Errorf("tachogram line: %w", err)
	}
	line.Color = rrColor
	line.Width = vg.Points(1)
	points.Color = rrColor
	points.Radius = vg.Points(1.5)

	mean := r.MeanRRMs
	if mean == 0 {
		mean = stat.Mean(toFloats(intervals), nil)
	}
	meanLine := plotter.NewFunction(func(float64) float64 { return mean })
	meanLine.Color = meanColor
	meanLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(line, points, meanLine)
	p.Legend.Add("RR", line, points)
	p.Legend.Add(fmt.Sprintf("mean %.0f ms", mean), meanLine)
	p.Legend.Top = true
	p.X.Min = 1
	p.X.Max = float64(len(intervals))
	return p, nil
}

func poincarePlot(intervals []int) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Poincaré plot"
	p.X.Label.Text = "RR n (ms)"
	p.Y.Label.Text = "RR n+1 (ms)"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(intervals)-1)
	for i := 1; i < len(intervals); i++ {
		pts[i-1] = plotter.XY{X: float64(intervals[i-1]), Y: float64(intervals[i])}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("poincare scatter: %w", err)
	}
	sc.Color = rrColor
	sc.Radius = vg.Points(2)

	identity := plotter.NewFunction(func(x float64) float64 { return x })
	identity.Color = color.Gray{Y: 160}

	p.Add(sc, identity)
	return p, nil
}

func toFloats(ms []int) []float64 {
	out := make([]float64, len(ms))
	for i, v := range ms {
		out[i] = float64(v)
	}
	return out
}
