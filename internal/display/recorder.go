package display

import (
	"fmt"
	"sync"
)

// Recorder is a Display that logs every call. Tests use it to assert what a
// screen would show without decoding pixels.
type Recorder struct {
	mu     sync.Mutex
	ops    []string
	texts  []string
	shown  [][]string
	blits  []Icon
	shows  int
	onShow func()
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// OnShow registers a hook that runs after each Show, outside the lock.
func (r *Recorder) OnShow(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onShow = fn
}

func (r *Recorder) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, fmt.Sprintf(format, args...))
}

func (r *Recorder) Fill(c Color) {
	r.mu.Lock()
	r.texts = nil
	r.mu.Unlock()
	r.record("fill %d", c)
}

func (r *Recorder) FillRect(x, y, w, h int, c Color) {
	r.record("fill_rect %d %d %d %d %d", x, y, w, h, c)
}

func (r *Recorder) Rect(x, y, w, h int, c Color) {
	r.record("rect %d %d %d %d %d", x, y, w, h, c)
}

func (r *Recorder) HLine(x, y, w int, c Color) { r.record("hline %d %d %d %d", x, y, w, c) }

func (r *Recorder) VLine(x, y, h int, c Color) { r.record("vline %d %d %d %d", x, y, h, c) }

func (r *Recorder) Line(x0, y0, x1, y1 int, c Color) {
	r.record("line %d %d %d %d %d", x0, y0, x1, y1, c)
}

func (r *Recorder) Pixel(x, y int, c Color) { r.record("pixel %d %d %d", x, y, c) }

func (r *Recorder) Text(s string, x, y int, c Color) {
	r.mu.Lock()
	r.texts = append(r.texts, s)
	r.mu.Unlock()
	r.record("text %q %d %d %d", s, x, y, c)
}

func (r *Recorder) Blit(icon Icon, x, y int) {
	r.mu.Lock()
	r.blits = append(r.blits, icon)
	r.mu.Unlock()
	r.record("blit %dx%d %d %d", icon.W, icon.H, x, y)
}

func (r *Recorder) Show() error {
	r.mu.Lock()
	r.shows++
	r.shown = append(r.shown, append([]string(nil), r.texts...))
	fn := r.onShow
	r.mu.Unlock()
	r.record("show")
	if fn != nil {
		fn()
	}
	return nil
}

// Ops returns every recorded call in order.
func (r *Recorder) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

// Texts returns the strings drawn since the last Fill.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

// Frames returns, for each Show, the strings drawn since the last Fill.
func (r *Recorder) Frames() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.shown...)
}

// Blits returns every blitted icon.
func (r *Recorder) Blits() []Icon {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Icon(nil), r.blits...)
}

// Shows returns the number of Show calls.
func (r *Recorder) Shows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shows
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops, r.texts, r.shown, r.blits, r.shows = nil, nil, nil, nil, 0
}
