package sampler

import (
	"context"
	"errors"

	"github.com/banshee-data/pulse.monitor/internal/monitoring"
)

// ErrInterference is returned when the detector keeps stalling without a beat,
// typically because the finger moved or the sensor picks up ambient light.
var ErrInterference = errors.New("sampler: no beats through repeated recalibration")

// BeatState is the phase of the slope detector within one beat.
type BeatState int

const (
	// BelowThreshold waits for the waveform to rise above the baseline.
	BelowThreshold BeatState = iota
	// Rising has seen the waveform climb above the baseline.
	Rising
	// FallingBelowThreshold has seen the crest and a fall below the fall ratio.
	FallingBelowThreshold
)

func (s BeatState) String() string {
	switch s {
	case BelowThreshold:
		return "below"
	case Rising:
		return "rising"
	case FallingBelowThreshold:
		return "falling"
	default:
		return "unknown"
	}
}

// Detector finds one inter-beat interval per heartbeat from consecutive pairs
// of smoothed samples compared against a baseline.
//
// Before its first beat the detector arms on a pair rising through the
// baseline, so the first interval is measured edge to edge. A beat is the
// sequence rise above baseline, fall below FallRatio of it, rise back through
// it. Without a beat for StallPairs pairs the baseline is re-measured.
type Detector struct {
	n   *Normalizer
	cfg Config

	baseline int
	state    BeatState
	armed    bool
	missed   int

	// OnPair, when set, runs before each pair is read.
	OnPair func()
}

// NewDetector creates an unarmed detector without a baseline.
func NewDetector(n *Normalizer, cfg Config) *Detector {
	return &Detector{n: n, cfg: cfg}
}

// Baseline returns the current baseline average, 0 if none has been measured.
func (d *Detector) Baseline() int { return d.baseline }

// State returns the current beat phase.
func (d *Detector) State() BeatState { return d.state }

// Armed reports whether the detector has found its reference edge.
func (d *Detector) Armed() bool { return d.armed }

// Missed returns how many stall recoveries have happened.
func (d *Detector) Missed() int { return d.missed }

// Recalibrate re-measures the baseline.
func (d *Detector) Recalibrate(ctx context.Context) error {
	avg, err := d.n.MeasureBaseline(ctx)
	if err != nil {
		return err
	}
	d.baseline = avg
	return nil
}

// Reset returns the detector to the unarmed BelowThreshold state. The
// baseline is kept.
func (d *Detector) Reset() {
	d.state = BelowThreshold
	d.armed = false
	d.n.ResetCount()
}

func (d *Detector) pair(ctx context.Context) (int, int, error) {
	if d.OnPair != nil {
		d.OnPair()
	}
	v, err := d.n.Next(ctx)
	if err != nil {
		return 0, 0, err
	}
	next, err := d.n.Next(ctx)
	if err != nil {
		return 0, 0, err
	}
	d.n.Widen(v)
	d.n.Widen(next)
	return v, next, nil
}

func (d *Detector) arm(ctx context.Context) error {
	for !d.armed {
		v, next, err := d.pair(ctx)
		if err != nil {
			return err
		}
		if d.n.Samples() > d.cfg.ArmSamples {
			monitoring.Logf("Readjusting baseline after %d samples without a rising edge", d.n.Samples())
			if err := d.Recalibrate(ctx); err != nil {
				return err
			}
			d.n.ResetCount()
		}
		if v < next && d.baseline < next {
			d.armed = true
			d.state = BelowThreshold
			d.n.ResetCount()
		}
	}
	return nil
}

// DetectInterval blocks until the next beat and returns the time since the
// previous one in seconds. It returns ErrCancelled as soon as sampling is
// cancelled, and ErrInterference after limit consecutive stalls when limit is
// positive.
func (d *Detector) DetectInterval(ctx context.Context) (float64, error) {
	return d.detect(ctx, 0)
}

// DetectIntervalLimited is DetectInterval with the configured StallLimit.
func (d *Detector) DetectIntervalLimited(ctx context.Context) (float64, error) {
	return d.detect(ctx, d.cfg.StallLimit)
}

func (d *Detector) detect(ctx context.Context, limit int) (float64, error) {
	if d.baseline == 0 {
		if err := d.Recalibrate(ctx); err != nil {
			return 0, err
		}
	}
	if err := d.arm(ctx); err != nil {
		return 0, err
	}

	fallLevel := func() int { return int(float64(d.baseline) * d.cfg.FallRatio) }
	stalls := 0
	for {
		v, next, err := d.pair(ctx)
		if err != nil {
			return 0, err
		}

		if d.n.Samples() > 2*d.cfg.StallPairs {
			d.missed++
			stalls++
			if limit > 0 && stalls >= limit {
				monitoring.Logf("Giving up after %d stalls without a beat", stalls)
				d.n.ResetCount()
				d.state = BelowThreshold
				return 0, ErrInterference
			}
			monitoring.Logf("Missed a beat! Re-measuring baseline (was %d)", d.baseline)
			if err := d.Recalibrate(ctx); err != nil {
				return 0, err
			}
			d.n.ResetCount()
			d.state = BelowThreshold
			continue
		}

		switch d.state {
		case BelowThreshold:
			if v < next && d.baseline < v {
				d.state = Rising
			}
		case Rising:
			if next < v && v < fallLevel() {
				d.state = FallingBelowThreshold
			}
		case FallingBelowThreshold:
			if v < next && d.baseline < next {
				interval := float64(d.n.Samples()) / float64(d.cfg.RateHz)
				d.n.ResetCount()
				d.state = BelowThreshold
				return interval, nil
			}
		}
	}
}
