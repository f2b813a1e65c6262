package session

import (
	"fmt"

	"github.com/banshee-data/pulse.monitor/internal/beatbus"
	"github.com/banshee-data/pulse.monitor/internal/display"
	"github.com/banshee-data/pulse.monitor/internal/monitoring"
)

// Trace geometry: the waveform occupies the top rows of the screen above the
// live value.
const (
	traceSpan   = 30
	traceBottom = 32
	traceRows   = traceBottom + 1
	traceStep   = 2
)

// Trace plots a scrolling waveform, two columns per point, wiping the columns
// ahead of the pen.
type Trace struct {
	x, y int
}

// Reset moves the pen back to the left edge.
func (t *Trace) Reset() { t.x, t.y = 0, 0 }

// X returns the next pen column.
func (t *Trace) X() int { return t.x }

// Plot draws v scaled from [lo, hi] and shows the frame. Points outside the
// range are skipped and reported as false.
func (t *Trace) Plot(d display.Display, v, lo, hi int) bool {
	if hi <= lo {
		return false
	}
	y := int(float64(v-lo) / float64(hi-lo) * traceSpan)
	if y < 0 || y > traceSpan {
		return false
	}

	if t.x == 0 || t.x >= display.Width {
		t.x = 0
		d.VLine(t.x, 0, traceRows, display.Off)
		d.VLine(t.x+1, 0, traceRows, display.Off)
		d.Pixel(t.x, traceBottom-y, display.On)
	} else {
		d.Line(t.x, traceBottom-t.y, t.x+1, traceBottom-y, display.On)
	}
	t.x += traceStep
	t.y = y
	d.VLine(t.x, 0, traceRows, display.Off)
	d.VLine(t.x+1, 0, traceRows, display.Off)
	show(d)
	return true
}

// ScreenReporter renders session progress on the device display.
type ScreenReporter struct {
	d     display.Display
	trace Trace
}

// NewScreenReporter creates a reporter drawing on d.
func NewScreenReporter(d display.Display) *ScreenReporter {
	return &ScreenReporter{d: d}
}

func (r *ScreenReporter) Begin(mode beatbus.Mode, remaining int) {
	r.trace.Reset()
	r.d.Fill(display.Off)
	if mode == beatbus.ModeHRV {
		display.AddText(r.d, fmt.Sprintf("%d left", remaining), 50, 2)
	} else {
		display.AddText(r.d, "Calculating...", 50, 2)
	}
	display.AddText(r.d, "Press to return", 50, 3)
	show(r.d)
}

func (r *ScreenReporter) ShowBPM(bpm int) {
	display.ClearRow(r.d)
	display.AddText(r.d, fmt.Sprintf("%d BPM", bpm), 50, 2)
	show(r.d)
}

func (r *ScreenReporter) ShowRemaining(n int) {
	display.ClearRow(r.d)
	display.AddText(r.d, fmt.Sprintf("%d left", n), 50, 2)
	show(r.d)
}

func (r *ScreenReporter) Plot(v, lo, hi int) {
	r.trace.Plot(r.d, v, lo, hi)
}

func show(d display.Display) {
	if err := d.Show(); err != nil {
		monitoring.Logf("display: %v", err)
	}
}
