// Package sampler turns the raw ADC stream into smoothed samples and
// heartbeat intervals. The Acquirer runs on the sampling timer; the
// Normalizer and Detector run on the main loop and share nothing with the
// timer except the raw sample queue.
package sampler

import (
	"github.com/banshee-data/pulse.monitor/internal/config"
	"github.com/banshee-data/pulse.monitor/internal/fifo"
	"github.com/banshee-data/pulse.monitor/internal/sensor"
	"github.com/banshee-data/pulse.monitor/internal/timeutil"
)

// Config holds the sampling and detection parameters.
type Config struct {
	RateHz          int
	ADCMin          int
	ADCMax          int
	Window          int
	BaselineSamples int
	TraceDecimation int
	StallPairs      int
	ArmSamples      int
	FallRatio       float64
	// StallLimit is the number of consecutive stall recoveries after which
	// DetectInterval gives up with ErrInterference. Zero retries forever.
	StallLimit int
}

// ConfigFrom extracts the sampler parameters from the device configuration.
func ConfigFrom(c *config.DeviceConfig) Config {
	return Config{
		RateHz:          c.GetSampleRateHz(),
		ADCMin:          c.GetADCMin(),
		ADCMax:          c.GetADCMax(),
		Window:          c.GetSmoothingWindow(),
		BaselineSamples: c.GetBaselineSamples(),
		TraceDecimation: c.GetTraceDecimation(),
		StallPairs:      c.GetStallPairs(),
		ArmSamples:      c.GetArmSamples(),
		FallRatio:       c.GetFallRatio(),
		StallLimit:      c.GetInterferenceStalls(),
	}
}

// DefaultConfig returns the parameters for a 250 Hz fingertip sensor.
func DefaultConfig() Config {
	return ConfigFrom(config.EmptyDeviceConfig())
}

// Sampler bundles the acquisition timer with the main-loop processing.
type Sampler struct {
	Acquirer   *Acquirer
	Normalizer *Normalizer
	Detector   *Detector
}

// New wires an acquirer, normalizer and detector around a fresh raw queue.
func New(adc sensor.ADC, presses *fifo.Queue[int], clock timeutil.Clock, cfg Config) *Sampler {
	raw := fifo.New[uint16](fifo.ADCQueueSize)
	n := NewNormalizer(raw, presses, cfg)
	return &Sampler{
		Acquirer:   NewAcquirer(adc, raw, clock, cfg.RateHz),
		Normalizer: n,
		Detector:   NewDetector(n, cfg),
	}
}

// Stop disarms the timer, clears detector and trace state and drains the raw
// queue. Sessions call it on every exit path.
func (s *Sampler) Stop() {
	s.Acquirer.Stop()
	s.Detector.Reset()
	s.Normalizer.ResetTrace()
	s.Acquirer.Queue().Drain()
}
