// Package heartrate converts recent inter-beat intervals into a smoothed
// beats-per-minute reading.
package heartrate

import (
	"context"
	"fmt"

	"github.com/banshee-data/pulse.monitor/internal/monitoring"
)

// DefaultMaxBPM is the highest rate accepted as physiological.
const DefaultMaxBPM = 240

// Recalibrator re-measures the detector baseline.
type Recalibrator interface {
	Recalibrate(ctx context.Context) error
}

// Estimator smooths successive rate estimates. It is not safe for concurrent
// use; it belongs to the main loop.
type Estimator struct {
	rec    Recalibrator
	maxBPM int
	prev   int

	implausible int
}

// NewEstimator creates an estimator that asks rec for a new baseline when a
// rate above maxBPM is seen.
func NewEstimator(rec Recalibrator, maxBPM int) *Estimator {
	if maxBPM <= 0 {
		maxBPM = DefaultMaxBPM
	}
	return &Estimator{rec: rec, maxBPM: maxBPM}
}

// BPM estimates the rate from up to window most recent intervals in seconds.
// The result is averaged with the previous raw estimate. An implausible rate
// forces a recalibration and yields 0.
func (e *Estimator) BPM(ctx context.Context, history []float64, window int) (int, error) {
	n := min(len(history), window)
	if n <= 0 {
		return 0, nil
	}

	var sum float64
	for _, iv := range history[len(history)-n:] {
		sum += iv
	}
	if sum <= 0 {
		return 0, nil
	}

	bpm := int(float64(n) / sum * 60)
	if bpm > e.maxBPM {
		e.implausible++
		monitoring.Logf("Implausible rate %d bpm, re-measuring baseline", bpm)
		if err := e.rec.Recalibrate(ctx); err != nil {
			return 0, fmt.Errorf("recalibrating after %d bpm: %w", bpm, err)
		}
		return 0, nil
	}

	out := (e.prev + bpm) / 2
	e.prev = bpm
	return out, nil
}

// Implausible returns how many estimates were rejected.
func (e *Estimator) Implausible() int { return e.implausible }

// Reset forgets the previous estimate.
func (e *Estimator) Reset() { e.prev = 0 }
