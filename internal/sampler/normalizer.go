package sampler

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/banshee-data/pulse.monitor/internal/fifo"
)

// ErrCancelled is returned by every sampling call once a button press is seen
// or the context is done.
var ErrCancelled = errors.New("measurement cancelled")

// ErrSensorOutOfRange marks a raw reading outside the valid sensor window.
// Such readings are dropped and counted, never returned to callers.
var ErrSensorOutOfRange = errors.New("sensor reading out of range")

// Normalizer smooths raw readings with a rolling mean and is the single
// cancellation point for sampling.
type Normalizer struct {
	raw     *fifo.Queue[uint16]
	presses *fifo.Queue[int]
	trace   *fifo.Queue[int]
	cfg     Config
	idle    func()

	window []int
	next   int // ring index of the oldest value once the window is full
	sum    int

	samples  int
	rejected uint64

	traceSum   int
	traceCount int

	min, max int
}

// NewNormalizer reads raw samples from raw and polls presses for cancellation.
func NewNormalizer(raw *fifo.Queue[uint16], presses *fifo.Queue[int], cfg Config) *Normalizer {
	return &Normalizer{
		raw:     raw,
		presses: presses,
		trace:   fifo.New[int](fifo.TraceQueueSize),
		cfg:     cfg,
		idle:    runtime.Gosched,
		window:  make([]int, 0, cfg.Window),
	}
}

// SetIdle replaces the function called while waiting for a raw sample.
func (n *Normalizer) SetIdle(fn func()) {
	if fn == nil {
		fn = runtime.Gosched
	}
	n.idle = fn
}

// Trace returns the queue of decimated samples for the waveform display.
func (n *Normalizer) Trace() *fifo.Queue[int] { return n.trace }

// CheckRange reports ErrSensorOutOfRange for readings outside the open
// interval (ADCMin, ADCMax).
func (n *Normalizer) CheckRange(v uint16) error {
	if int(v) <= n.cfg.ADCMin || int(v) >= n.cfg.ADCMax {
		return fmt.Errorf("%w: %d", ErrSensorOutOfRange, v)
	}
	return nil
}

// pull spins until an in-range reading arrives or sampling is cancelled.
func (n *Normalizer) pull(ctx context.Context) (int, error) {
	for {
		if _, ok := n.presses.Get(); ok {
			return 0, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		v, ok := n.raw.Get()
		if !ok {
			n.idle()
			continue
		}
		if n.CheckRange(v) != nil {
			n.rejected++
			continue
		}
		return int(v), nil
	}
}

// Next returns the mean of the window after adding the next valid reading.
func (n *Normalizer) Next(ctx context.Context) (int, error) {
	v, err := n.pull(ctx)
	if err != nil {
		return 0, err
	}
	n.samples++

	if len(n.window) < n.cfg.Window {
		n.window = append(n.window, v)
	} else {
		n.sum -= n.window[n.next]
		n.window[n.next] = v
		n.next = (n.next + 1) % len(n.window)
	}
	n.sum += v
	out := n.sum / len(n.window)

	n.traceSum += out
	n.traceCount++
	if n.traceCount >= n.cfg.TraceDecimation {
		n.trace.Put(n.traceSum / n.traceCount)
		n.traceSum, n.traceCount = 0, 0
	}

	return out, nil
}

// MeasureBaseline seeds the amplitude range from two smoothed values, then
// consumes BaselineSamples more and returns their mean. It also records the
// range seen and resets the sample count.
func (n *Normalizer) MeasureBaseline(ctx context.Context) (int, error) {
	lo, err := n.Next(ctx)
	if err != nil {
		return 0, err
	}
	hi, err := n.Next(ctx)
	if err != nil {
		return 0, err
	}
	if hi < lo {
		lo, hi = hi, lo
	}

	total := 0
	for i := 0; i < n.cfg.BaselineSamples; i++ {
		v, err := n.Next(ctx)
		if err != nil {
			return 0, err
		}
		lo = min(lo, v)
		hi = max(hi, v)
		total += v
	}

	n.min, n.max = lo, hi
	n.samples = 0
	return total / n.cfg.BaselineSamples, nil
}

// Range returns the smallest and largest smoothed values seen since the last
// baseline measurement.
func (n *Normalizer) Range() (int, int) { return n.min, n.max }

// Widen extends the range to include v.
func (n *Normalizer) Widen(v int) {
	n.min = min(n.min, v)
	n.max = max(n.max, v)
}

// Samples returns the number of accepted readings since the last reset.
func (n *Normalizer) Samples() int { return n.samples }

// ResetCount zeroes the accepted sample counter.
func (n *Normalizer) ResetCount() { n.samples = 0 }

// Rejected returns the number of out-of-range readings discarded.
func (n *Normalizer) Rejected() uint64 { return n.rejected }

// Window returns the current smoothing window, oldest first.
func (n *Normalizer) Window() []int {
	out := make([]int, 0, len(n.window))
	if len(n.window) < n.cfg.Window {
		return append(out, n.window...)
	}
	out = append(out, n.window[n.next:]...)
	return append(out, n.window[:n.next]...)
}

// ResetTrace discards pending trace points and the partial average.
func (n *Normalizer) ResetTrace() {
	n.trace.Drain()
	n.traceSum, n.traceCount = 0, 0
}
