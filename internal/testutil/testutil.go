// Package testutil provides shared test helpers and synthetic sensor
// recordings.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/banshee-data/pulse.monitor/internal/fifo"
)

// Levels of the square pulse fixture. Their mean is 32000, so the trough
// sits well below 95% of the baseline.
const (
	PulseHigh = 40000
	PulseLow  = 24000
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// SquarePulse returns beats cycles of a square wave with the given period in
// samples: high for the first half of each cycle, low for the second.
func SquarePulse(period, beats int) []uint16 {
	out := make([]uint16, 0, period*beats)
	for b := 0; b < beats; b++ {
		for i := 0; i < period; i++ {
			if i < period/2 {
				out = append(out, PulseHigh)
			} else {
				out = append(out, PulseLow)
			}
		}
	}
	return out
}

// Constant returns n copies of v.
func Constant(v uint16, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Ramp returns n readings climbing by step from start.
func Ramp(start, step uint16, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = start + uint16(i)*step
	}
	return out
}

// SliceADC replays a fixed recording once. After the last value it reads 0,
// which every consumer treats as out of range.
type SliceADC struct {
	mu     sync.Mutex
	values []uint16
	pos    int
}

// NewSliceADC replays the concatenation of recordings.
func NewSliceADC(recordings ...[]uint16) *SliceADC {
	var values []uint16
	for _, r := range recordings {
		values = append(values, r...)
	}
	return &SliceADC{values: values}
}

// Read returns the next value.
func (s *SliceADC) Read() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.values) {
		return 0
	}
	v := s.values[s.pos]
	s.pos++
	return v
}

// Done reports whether the recording is exhausted.
func (s *SliceADC) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos >= len(s.values)
}

// Consumed returns how many values have been read.
func (s *SliceADC) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Feeder returns an idle hook for a sampling loop that performs one
// acquisition per call and presses the button once the recording runs out.
// It lets a test drive the main loop without a running timer.
func Feeder(adc *SliceADC, tick func(), presses *fifo.Queue[int]) func() {
	return func() {
		if adc.Done() {
			presses.Put(1)
			return
		}
		tick()
	}
}
