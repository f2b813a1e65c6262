// Package session runs the two measurement modes on top of the sampler:
// a continuous heart rate readout and a fixed-count interval collection for
// HRV analysis. Both leave the sampler stopped and drained on every exit.
package session

import (
	"context"
	"errors"

	"github.com/banshee-data/pulse.monitor/internal/beatbus"
	"github.com/banshee-data/pulse.monitor/internal/config"
	"github.com/banshee-data/pulse.monitor/internal/heartrate"
	"github.com/banshee-data/pulse.monitor/internal/monitoring"
	"github.com/banshee-data/pulse.monitor/internal/sampler"
	"github.com/banshee-data/pulse.monitor/internal/timeutil"
)

// Kind is how a session ended.
type Kind int

const (
	Cancelled Kind = iota
	InterferenceAbort
	Completed
)

func (k Kind) String() string {
	switch k {
	case Cancelled:
		return "cancelled"
	case InterferenceAbort:
		return "interference"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Outcome is the result of a session. Intervals is only set when Completed.
type Outcome struct {
	Kind      Kind
	Intervals []int // milliseconds
}

// Reporter receives progress while a session runs.
type Reporter interface {
	// Begin shows the session's initial screen. remaining is the interval
	// target of a fixed-count session and 0 for the continuous mode.
	Begin(mode beatbus.Mode, remaining int)
	ShowBPM(bpm int)
	ShowRemaining(n int)
	// Plot draws one trace point scaled to the baseline range [lo, hi].
	Plot(v, lo, hi int)
}

// Config holds the session parameters.
type Config struct {
	BPMWindow     int // intervals per rate estimate and estimates per readout
	Intervals     int // accepted intervals per HRV collection
	MinIntervalMs int // intervals at or below this are discarded
}

// DefaultMinIntervalMs corresponds to 240 bpm.
const DefaultMinIntervalMs = 250

// ConfigFrom extracts the session parameters from the device configuration.
func ConfigFrom(c *config.DeviceConfig) Config {
	return Config{
		BPMWindow:     c.GetBPMWindow(),
		Intervals:     c.GetHRVIntervals(),
		MinIntervalMs: DefaultMinIntervalMs,
	}
}

// DefaultConfig returns a 3-beat readout and a 30-interval collection.
func DefaultConfig() Config {
	return ConfigFrom(config.EmptyDeviceConfig())
}

// Session owns one measurement at a time. It is driven from the main loop.
type Session struct {
	sampler *sampler.Sampler
	est     *heartrate.Estimator
	rep     Reporter
	bus     *beatbus.Bus
	clock   timeutil.Clock
	cfg     Config
}

// New creates a session runner. bus may be nil.
func New(s *sampler.Sampler, est *heartrate.Estimator, rep Reporter, bus *beatbus.Bus, clock timeutil.Clock, cfg Config) *Session {
	if cfg.BPMWindow < 1 {
		cfg.BPMWindow = 1
	}
	if cfg.Intervals < 2 {
		cfg.Intervals = 2
	}
	return &Session{sampler: s, est: est, rep: rep, bus: bus, clock: clock, cfg: cfg}
}

func (s *Session) begin(mode beatbus.Mode, remaining int) {
	s.rep.Begin(mode, remaining)
	s.sampler.Detector.OnPair = s.plot
	s.sampler.Acquirer.Start()
}

// finish runs on every exit path.
func (s *Session) finish() {
	s.sampler.Detector.OnPair = nil
	s.sampler.Stop()
}

// plot drains the trace queue onto the reporter between sample pairs.
func (s *Session) plot() {
	lo, hi := s.sampler.Normalizer.Range()
	trace := s.sampler.Normalizer.Trace()
	for trace.HasData() {
		v, _ := trace.Get()
		s.rep.Plot(v, lo, hi)
	}
}

func (s *Session) publish(mode beatbus.Mode, ms int) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(beatbus.Beat{At: s.clock.Now(), IntervalMs: ms, Mode: mode})
}

// Continuous shows a live heart rate until the user cancels. Each beat
// updates the rate estimate; the mean of every BPMWindow estimates is
// reported.
func (s *Session) Continuous(ctx context.Context) Outcome {
	s.begin(beatbus.ModeHeartRate, 0)
	defer s.finish()
	s.est.Reset()

	d := s.sampler.Detector
	if d.Baseline() == 0 {
		if err := d.Recalibrate(ctx); err != nil {
			return Outcome{Kind: Cancelled}
		}
	}

	window := make([]float64, 0, s.cfg.BPMWindow)
	sum, count := 0, 0
	for {
		interval, err := d.DetectInterval(ctx)
		if err != nil {
			return Outcome{Kind: Cancelled}
		}
		s.publish(beatbus.ModeHeartRate, int(interval*1000))

		if len(window) == s.cfg.BPMWindow {
			copy(window, window[1:])
			window = window[:len(window)-1]
		}
		window = append(window, interval)

		bpm, err := s.est.BPM(ctx, window, s.cfg.BPMWindow)
		if err != nil {
			return Outcome{Kind: Cancelled}
		}
		sum += bpm
		count++
		if count >= s.cfg.BPMWindow {
			s.rep.ShowBPM(sum / s.cfg.BPMWindow)
			sum, count = 0, 0
		}
	}
}

// FixedCount collects Intervals accepted beat intervals for HRV analysis and
// returns all but the first, which usually straddles the start of the
// measurement.
func (s *Session) FixedCount(ctx context.Context) Outcome {
	remaining := s.cfg.Intervals
	s.begin(beatbus.ModeHRV, remaining)
	defer s.finish()

	intervals := make([]int, 0, s.cfg.Intervals)
	d := s.sampler.Detector
	for len(intervals) < s.cfg.Intervals {
		interval, err := d.DetectIntervalLimited(ctx)
		if errors.Is(err, sampler.ErrInterference) {
			monitoring.Logf("HRV collection aborted after %d intervals", len(intervals))
			return Outcome{Kind: InterferenceAbort}
		}
		if err != nil {
			return Outcome{Kind: Cancelled}
		}

		ms := int(interval * 1000)
		if ms <= s.cfg.MinIntervalMs {
			continue
		}
		s.publish(beatbus.ModeHRV, ms)
		intervals = append(intervals, ms)
		remaining--
		s.rep.ShowRemaining(remaining)
	}

	return Outcome{Kind: Completed, Intervals: intervals[1:]}
}
