package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is where the device looks for its configuration when no
// -config flag is given.
const DefaultConfigPath = "config/pulsemon.json"

// Default cloud endpoints for the readiness analysis service.
const (
	DefaultTokenURL   = "https://kubioscloud.auth.eu-west-1.amazoncognito.com/oauth2/token"
	DefaultAnalyzeURL = "https://analysis.kubioscloud.com/v2/analytics/analyze"
)

// DeviceConfig holds the tunable parameters of the monitor. Every field is a
// pointer so a partial JSON file only overrides what it names; the Get*
// methods supply defaults for the rest.
type DeviceConfig struct {
	// Sampling
	SampleRateHz    *int `json:"sample_rate_hz,omitempty"`
	ADCMin          *int `json:"adc_min,omitempty"`
	ADCMax          *int `json:"adc_max,omitempty"`
	SmoothingWindow *int `json:"smoothing_window,omitempty"`
	BaselineSamples *int `json:"baseline_samples,omitempty"`
	TraceDecimation *int `json:"trace_decimation,omitempty"`

	// Beat detection
	StallPairs *int     `json:"stall_pairs,omitempty"`
	ArmSamples *int     `json:"arm_samples,omitempty"`
	FallRatio  *float64 `json:"fall_ratio,omitempty"`
	MaxBPM     *int     `json:"max_bpm,omitempty"`
	// consecutive stall recoveries that abort an HRV collection
	InterferenceStalls *int `json:"interference_stalls,omitempty"`

	// Inputs
	Debounce        *string `json:"debounce,omitempty"` // duration string like "100ms"
	RotaryThreshold *int    `json:"rotary_threshold,omitempty"`

	// Sessions
	BPMWindow    *int `json:"bpm_window,omitempty"`
	HRVIntervals *int `json:"hrv_intervals,omitempty"`

	// Network and cloud
	WLANAttempts  *int    `json:"wlan_attempts,omitempty"`
	WLANProbeHost *string `json:"wlan_probe_host,omitempty"`
	TokenURL      *string `json:"token_url,omitempty"`
	AnalyzeURL    *string `json:"analyze_url,omitempty"`

	// Publishing (empty disables)
	MQTTBroker  *string `json:"mqtt_broker,omitempty"`
	MQTTTopic   *string `json:"mqtt_topic,omitempty"`
	NATSURL     *string `json:"nats_url,omitempty"`
	NATSSubject *string `json:"nats_subject,omitempty"`
	GRPCListen  *string `json:"grpc_listen,omitempty"`

	// Storage
	HistoryDB *string `json:"history_db,omitempty"`
	PlotDir   *string `json:"plot_dir,omitempty"`

	// Sensor hub serial link
	HubBaudRate *int `json:"hub_baud_rate,omitempty"`
}

// EmptyDeviceConfig returns a DeviceConfig with all fields unset.
func EmptyDeviceConfig() *DeviceConfig {
	return &DeviceConfig{}
}

// LoadDeviceConfig loads a DeviceConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults.
func LoadDeviceConfig(path string) (*DeviceConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDeviceConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *DeviceConfig) Validate() error {
	if c.SampleRateHz != nil && (*c.SampleRateHz < 50 || *c.SampleRateHz > 2000) {
		return fmt.Errorf("sample_rate_hz must be between 50 and 2000, got %d", *c.SampleRateHz)
	}

	if c.GetADCMin() >= c.GetADCMax() {
		return fmt.Errorf("adc_min (%d) must be below adc_max (%d)", c.GetADCMin(), c.GetADCMax())
	}

	if c.SmoothingWindow != nil && *c.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing_window must be at least 1, got %d", *c.SmoothingWindow)
	}

	if c.BaselineSamples != nil && *c.BaselineSamples < 1 {
		return fmt.Errorf("baseline_samples must be at least 1, got %d", *c.BaselineSamples)
	}

	if c.FallRatio != nil && (*c.FallRatio <= 0 || *c.FallRatio > 1) {
		return fmt.Errorf("fall_ratio must be in (0, 1], got %f", *c.FallRatio)
	}

	if c.Debounce != nil && *c.Debounce != "" {
		if _, err := time.ParseDuration(*c.Debounce); err != nil {
			return fmt.Errorf("invalid debounce '%s': %w", *c.Debounce, err)
		}
	}

	if c.HRVIntervals != nil && *c.HRVIntervals < 3 {
		return fmt.Errorf("hrv_intervals must be at least 3, got %d", *c.HRVIntervals)
	}

	if c.InterferenceStalls != nil && *c.InterferenceStalls < 0 {
		return fmt.Errorf("interference_stalls must not be negative, got %d", *c.InterferenceStalls)
	}

	if c.BPMWindow != nil && *c.BPMWindow < 1 {
		return fmt.Errorf("bpm_window must be at least 1, got %d", *c.BPMWindow)
	}

	return nil
}

// GetSampleRateHz returns the sampling frequency.
func (c *DeviceConfig) GetSampleRateHz() int {
	if c.SampleRateHz == nil {
		return 250
	}
	return *c.SampleRateHz
}

// GetADCMin returns the exclusive lower bound of a valid raw sample.
func (c *DeviceConfig) GetADCMin() int {
	if c.ADCMin == nil {
		return 10000
	}
	return *c.ADCMin
}

// GetADCMax returns the exclusive upper bound of a valid raw sample.
func (c *DeviceConfig) GetADCMax() int {
	if c.ADCMax == nil {
		return 60000
	}
	return *c.ADCMax
}

// GetSmoothingWindow returns the rolling average length.
func (c *DeviceConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return 20
	}
	return *c.SmoothingWindow
}

// GetBaselineSamples returns how many samples a baseline measurement consumes.
func (c *DeviceConfig) GetBaselineSamples() int {
	if c.BaselineSamples == nil {
		return 500
	}
	return *c.BaselineSamples
}

// GetTraceDecimation returns how many samples are averaged per trace point.
func (c *DeviceConfig) GetTraceDecimation() int {
	if c.TraceDecimation == nil || *c.TraceDecimation < 1 {
		return 10
	}
	return *c.TraceDecimation
}

// GetStallPairs returns the number of sample pairs without a beat before the
// baseline is re-measured.
func (c *DeviceConfig) GetStallPairs() int {
	if c.StallPairs == nil {
		return 500
	}
	return *c.StallPairs
}

// GetArmSamples returns the readjust limit while waiting for the first edge.
func (c *DeviceConfig) GetArmSamples() int {
	if c.ArmSamples == nil {
		return 750
	}
	return *c.ArmSamples
}

// GetFallRatio returns the fraction of the baseline the waveform must fall below.
func (c *DeviceConfig) GetFallRatio() float64 {
	if c.FallRatio == nil {
		return 0.95
	}
	return *c.FallRatio
}

// GetInterferenceStalls returns how many back-to-back stall recoveries abort
// an HRV collection. Zero disables the abort.
func (c *DeviceConfig) GetInterferenceStalls() int {
	if c.InterferenceStalls == nil {
		return 5
	}
	return *c.InterferenceStalls
}

// GetMaxBPM returns the highest plausible heart rate.
func (c *DeviceConfig) GetMaxBPM() int {
	if c.MaxBPM == nil {
		return 240
	}
	return *c.MaxBPM
}

// GetDebounce parses and returns the button debounce interval.
func (c *DeviceConfig) GetDebounce() time.Duration {
	if c.Debounce == nil || *c.Debounce == "" {
		return 100 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.Debounce)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// GetRotaryThreshold returns the number of same-direction ticks per step.
func (c *DeviceConfig) GetRotaryThreshold() int {
	if c.RotaryThreshold == nil {
		return 3
	}
	return *c.RotaryThreshold
}

// GetBPMWindow returns the live heart rate smoothing window.
func (c *DeviceConfig) GetBPMWindow() int {
	if c.BPMWindow == nil {
		return 3
	}
	return *c.BPMWindow
}

// GetHRVIntervals returns how many intervals an HRV collection accepts.
func (c *DeviceConfig) GetHRVIntervals() int {
	if c.HRVIntervals == nil {
		return 30
	}
	return *c.HRVIntervals
}

// GetWLANAttempts returns the number of connection attempts.
func (c *DeviceConfig) GetWLANAttempts() int {
	if c.WLANAttempts == nil {
		return 10
	}
	return *c.WLANAttempts
}

// GetWLANProbeHost returns the host:port probed to decide connectivity.
func (c *DeviceConfig) GetWLANProbeHost() string {
	if c.WLANProbeHost == nil || *c.WLANProbeHost == "" {
		return "analysis.kubioscloud.com:443"
	}
	return *c.WLANProbeHost
}

// GetTokenURL returns the OAuth token endpoint.
func (c *DeviceConfig) GetTokenURL() string {
	if c.TokenURL == nil || *c.TokenURL == "" {
		return DefaultTokenURL
	}
	return *c.TokenURL
}

// GetAnalyzeURL returns the analysis endpoint.
func (c *DeviceConfig) GetAnalyzeURL() string {
	if c.AnalyzeURL == nil || *c.AnalyzeURL == "" {
		return DefaultAnalyzeURL
	}
	return *c.AnalyzeURL
}

// GetMQTTBroker returns the broker host:port, or "" when disabled.
func (c *DeviceConfig) GetMQTTBroker() string {
	if c.MQTTBroker == nil {
		return ""
	}
	return *c.MQTTBroker
}

// GetMQTTTopic returns the topic HRV results are published on.
func (c *DeviceConfig) GetMQTTTopic() string {
	if c.MQTTTopic == nil || *c.MQTTTopic == "" {
		return "pulsemon/hrv"
	}
	return *c.MQTTTopic
}

// GetNATSURL returns the NATS server URL, or "" when disabled.
func (c *DeviceConfig) GetNATSURL() string {
	if c.NATSURL == nil {
		return ""
	}
	return *c.NATSURL
}

// GetNATSSubject returns the subject beat intervals are published on.
func (c *DeviceConfig) GetNATSSubject() string {
	if c.NATSSubject == nil || *c.NATSSubject == "" {
		return "pulsemon.beats"
	}
	return *c.NATSSubject
}

// GetGRPCListen returns the beat stream listen address, or "" when disabled.
func (c *DeviceConfig) GetGRPCListen() string {
	if c.GRPCListen == nil {
		return ""
	}
	return *c.GRPCListen
}

// GetHistoryDB returns the path of the history database.
func (c *DeviceConfig) GetHistoryDB() string {
	if c.HistoryDB == nil || *c.HistoryDB == "" {
		return "pulsemon.db"
	}
	return *c.HistoryDB
}

// GetPlotDir returns where tachogram plots are written, or "" when disabled.
func (c *DeviceConfig) GetPlotDir() string {
	if c.PlotDir == nil {
		return ""
	}
	return *c.PlotDir
}

// GetHubBaudRate returns the sensor hub serial speed.
func (c *DeviceConfig) GetHubBaudRate() int {
	if c.HubBaudRate == nil {
		return 115200
	}
	return *c.HubBaudRate
}
