// Package sensor provides sources of raw 16-bit pulse sensor readings.
package sensor

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/banshee-data/pulse.monitor/internal/fsutil"
)

// ADC reads the analog pulse channel once.
type ADC interface {
	Read() uint16
}

// Latch holds the most recent sample delivered by the sensor hub. The hub
// reader stores into it and the sampling timer reads from it.
type Latch struct {
	v atomic.Uint32
}

// Store records a new reading.
func (l *Latch) Store(v uint16) { l.v.Store(uint32(v)) }

// Read returns the latest reading.
func (l *Latch) Read() uint16 { return uint16(l.v.Load()) }

// Capture replays a recorded waveform, one reading per call, wrapping at the end.
type Capture struct {
	values []uint16
	pos    int
}

// NewCapture replays values. It panics on an empty recording.
func NewCapture(values []uint16) *Capture {
	if len(values) == 0 {
		panic("sensor: empty capture")
	}
	return &Capture{values: values}
}

// LoadCapture reads a recording with one integer per line. Blank lines are
// skipped.
func LoadCapture(fsys fsutil.FileSystem, path string) (*Capture, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture: %w", err)
	}

	var values []uint16
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		v, err := strconv.ParseUint(string(text), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("capture %s line %d: %w", path, line, err)
		}
		values = append(values, uint16(v))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan capture: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("capture %s has no samples", path)
	}
	return NewCapture(values), nil
}

// Read returns the next recorded value.
func (c *Capture) Read() uint16 {
	v := c.values[c.pos]
	c.pos = (c.pos + 1) % len(c.values)
	return v
}

// Len returns the number of recorded samples.
func (c *Capture) Len() int { return len(c.values) }

// Synthetic generates a fingertip pulse waveform: a systolic peak followed by
// a smaller diastolic wave, centred on a mid-scale offset.
type Synthetic struct {
	rateHz float64
	bpm    float64
	noise  float64
	phase  float64
	n      uint64
}

const (
	syntheticCentre    = 32000
	syntheticAmplitude = 12000
)

// NewSynthetic creates a generator sampled at rateHz beating at bpm. noise is
// a fraction of the amplitude.
func NewSynthetic(rateHz, bpm, noise float64) *Synthetic {
	return &Synthetic{rateHz: rateHz, bpm: bpm, noise: noise}
}

// Read advances one sample period and returns the reading.
func (s *Synthetic) Read() uint16 {
	s.phase += s.bpm / 60.0 / s.rateHz
	if s.phase >= 1.0 {
		s.phase -= 1.0
	}
	s.n++

	t := s.phase
	// mean of the two gaussians over one cycle is about 0.27
	shape := gauss(t, 0.20, 0.08) + 0.35*gauss(t, 0.55, 0.08) - 0.27
	n := s.noise * (2*fract(math.Sin(float64(s.n)*12.9898)*43758.5453) - 1)

	v := syntheticCentre + syntheticAmplitude*(shape+n)
	return uint16(math.Max(0, math.Min(math.MaxUint16, v)))
}

// gauss evaluates a bump on the unit circle so the waveform joins up at the
// cycle boundary.
func gauss(x, mu, sigma float64) float64 {
	d := math.Abs(x - mu)
	d = math.Min(d, 1-d)
	z := d / sigma
	return math.Exp(-0.5 * z * z)
}

func fract(x float64) float64 { return x - math.Floor(x) }
