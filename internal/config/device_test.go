package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptyDeviceConfigDefaults(t *testing.T) {
	cfg := EmptyDeviceConfig()

	if got := cfg.GetSampleRateHz(); got != 250 {
		t.Errorf("GetSampleRateHz() = %d, want 250", got)
	}
	if cfg.GetADCMin() != 10000 || cfg.GetADCMax() != 60000 {
		t.Errorf("ADC range = (%d, %d), want (10000, 60000)", cfg.GetADCMin(), cfg.GetADCMax())
	}
	if got := cfg.GetSmoothingWindow(); got != 20 {
		t.Errorf("GetSmoothingWindow() = %d, want 20", got)
	}
	if got := cfg.GetBaselineSamples(); got != 500 {
		t.Errorf("GetBaselineSamples() = %d, want 500", got)
	}
	if got := cfg.GetStallPairs(); got != 500 {
		t.Errorf("GetStallPairs() = %d, want 500", got)
	}
	if got := cfg.GetFallRatio(); got != 0.95 {
		t.Errorf("GetFallRatio() = %f, want 0.95", got)
	}
	if got := cfg.GetInterferenceStalls(); got != 5 {
		t.Errorf("GetInterferenceStalls() = %d, want 5", got)
	}
	if got := cfg.GetMaxBPM(); got != 240 {
		t.Errorf("GetMaxBPM() = %d, want 240", got)
	}
	if got := cfg.GetDebounce(); got != 100*time.Millisecond {
		t.Errorf("GetDebounce() = %v, want 100ms", got)
	}
	if got := cfg.GetHRVIntervals(); got != 30 {
		t.Errorf("GetHRVIntervals() = %d, want 30", got)
	}
	if got := cfg.GetWLANAttempts(); got != 10 {
		t.Errorf("GetWLANAttempts() = %d, want 10", got)
	}
	if cfg.GetMQTTBroker() != "" || cfg.GetNATSURL() != "" || cfg.GetGRPCListen() != "" {
		t.Error("publishers should be disabled by default")
	}
	if got := cfg.GetTokenURL(); got != DefaultTokenURL {
		t.Errorf("GetTokenURL() = %q", got)
	}
}

func TestLoadDeviceConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "pulsemon.json")

	testJSON := `{
  "sample_rate_hz": 500,
  "debounce": "150ms",
  "mqtt_broker": "192.168.1.254:1883",
  "plot_dir": "/tmp/plots"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadDeviceConfig(configPath)
	if err != nil {
		t.Fatalf("LoadDeviceConfig failed: %v", err)
	}

	if got := cfg.GetSampleRateHz(); got != 500 {
		t.Errorf("GetSampleRateHz() = %d, want 500", got)
	}
	if got := cfg.GetDebounce(); got != 150*time.Millisecond {
		t.Errorf("GetDebounce() = %v, want 150ms", got)
	}
	if got := cfg.GetMQTTBroker(); got != "192.168.1.254:1883" {
		t.Errorf("GetMQTTBroker() = %q", got)
	}
	if got := cfg.GetPlotDir(); got != "/tmp/plots" {
		t.Errorf("GetPlotDir() = %q", got)
	}
	// untouched fields keep defaults
	if got := cfg.GetSmoothingWindow(); got != 20 {
		t.Errorf("GetSmoothingWindow() = %d, want 20", got)
	}
}

func TestLoadDeviceConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "cfg.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{`, "failed to parse"},
		{"inverted adc range", "adc.json", `{"adc_min": 60000, "adc_max": 10000}`, "adc_min"},
		{"bad debounce", "deb.json", `{"debounce": "soon"}`, "invalid debounce"},
		{"bad fall ratio", "fall.json", `{"fall_ratio": 1.5}`, "fall_ratio"},
		{"tiny hrv window", "hrv.json", `{"hrv_intervals": 2}`, "hrv_intervals"},
		{"negative stalls", "stall.json", `{"interference_stalls": -1}`, "interference_stalls"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadDeviceConfig(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDeviceConfigMissingFile(t *testing.T) {
	if _, err := LoadDeviceConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
