// Package input turns raw button and rotary encoder edges into validated
// events. Edge handlers run in the producer context (the hub reader or a GPIO
// watcher) and only do a filter check plus a non-blocking queue push.
package input

import (
	"sync/atomic"
	"time"

	"github.com/banshee-data/pulse.monitor/internal/fifo"
	"github.com/banshee-data/pulse.monitor/internal/timeutil"
)

// DefaultDebounce is the minimum spacing between two accepted presses.
const DefaultDebounce = 100 * time.Millisecond

// DefaultRotaryThreshold is the number of consistent ticks that make one step.
const DefaultRotaryThreshold = 3

// Pin reports the level of a digital input.
type Pin interface {
	Value() bool
}

// PinFunc adapts a function to the Pin interface.
type PinFunc func() bool

// Value implements Pin.
func (f PinFunc) Value() bool { return f() }

// LevelPin is a Pin whose level is set by whoever observes the hardware, for
// example the sensor hub reader reporting the paired encoder channel.
type LevelPin struct {
	v atomic.Bool
}

// Set records the current level.
func (p *LevelPin) Set(high bool) { p.v.Store(high) }

// Value implements Pin.
func (p *LevelPin) Value() bool { return p.v.Load() }

// Button debounces rising edges of the push button.
type Button struct {
	clock     timeutil.Clock
	debounce  time.Duration
	lastPress time.Time
	queue     *fifo.Queue[int]
}

// NewButton creates a button that pushes accepted presses to queue.
func NewButton(clock timeutil.Clock, debounce time.Duration, queue *fifo.Queue[int]) *Button {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Button{clock: clock, debounce: debounce, queue: queue}
}

// Edge handles one rising edge. Edges within the debounce interval of the
// last accepted press are discarded.
func (b *Button) Edge() {
	now := b.clock.Now()
	if !b.lastPress.IsZero() && now.Sub(b.lastPress) < b.debounce {
		return
	}
	b.lastPress = now
	b.queue.Put(1)
}

// Rotary filters encoder bounce. A step is emitted only after threshold
// consecutive ticks in the same direction.
type Rotary struct {
	pair      Pin
	threshold int
	filter    int
	lastDir   int // 0 until the first tick
	queue     *fifo.Queue[int]
}

// NewRotary creates an encoder filter reading the paired channel from pair.
func NewRotary(pair Pin, threshold int, queue *fifo.Queue[int]) *Rotary {
	if threshold <= 0 {
		threshold = DefaultRotaryThreshold
	}
	return &Rotary{pair: pair, threshold: threshold, queue: queue}
}

// Edge handles one edge on the clock channel. A high paired channel means the
// knob turned counter-clockwise.
func (r *Rotary) Edge() {
	dir := 1
	if r.pair.Value() {
		dir = -1
	}
	r.Step(dir)
}

// Step feeds one instantaneous direction (-1 or +1) through the filter. A
// reversal zeroes the filter and the reversing tick is not counted.
func (r *Rotary) Step(dir int) {
	r.filter += dir
	if r.lastDir != 0 && dir != r.lastDir {
		r.filter = 0
	}
	r.lastDir = dir
	if r.filter >= r.threshold || r.filter <= -r.threshold {
		r.queue.Put(dir)
		r.filter = 0
	}
}

// Filter returns the current accumulator value.
func (r *Rotary) Filter() int { return r.filter }

// Monitor owns the button, the encoder and their event queues.
type Monitor struct {
	Button  *Button
	Rotary  *Rotary
	Presses *fifo.Queue[int]
	Steps   *fifo.Queue[int]
}

// NewMonitor wires a button and an encoder to fresh queues.
func NewMonitor(clock timeutil.Clock, pair Pin, debounce time.Duration, threshold int) *Monitor {
	presses := fifo.New[int](fifo.ButtonQueueSize)
	steps := fifo.New[int](fifo.RotaryQueueSize)
	return &Monitor{
		Button:  NewButton(clock, debounce, presses),
		Rotary:  NewRotary(pair, threshold, steps),
		Presses: presses,
		Steps:   steps,
	}
}

// Pressed consumes one pending press and reports whether there was one.
func (m *Monitor) Pressed() bool {
	_, ok := m.Presses.Get()
	return ok
}

// NextStep consumes one pending rotary step.
func (m *Monitor) NextStep() (int, bool) {
	return m.Steps.Get()
}

// Clear discards every pending press and step.
func (m *Monitor) Clear() {
	m.Presses.Drain()
	m.Steps.Drain()
}
