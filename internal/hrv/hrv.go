// Package hrv computes time-domain heart rate variability metrics and defines
// the result shape shared by local and cloud analyses.
package hrv

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrTooFewIntervals is returned when fewer than two intervals are given.
var ErrTooFewIntervals = errors.New("at least two intervals are required")

// Source tells where a result was computed.
type Source string

const (
	SourceLocal Source = "local"
	SourceCloud Source = "cloud"
)

// Result is an immutable HRV analysis. Cloud is nil for local results.
type Result struct {
	Source    Source  `json:"source"`
	MeanRRMs  float64 `json:"mean_rr_ms"`
	MeanHRBpm float64 `json:"mean_hr_bpm"`
	RMSSDMs   float64 `json:"rmssd_ms"`
	SDNNMs    float64 `json:"sdnn_ms"`

	Cloud *CloudMetrics `json:"cloud,omitempty"`
}

// CloudMetrics are the extra fields reported by the readiness service.
type CloudMetrics struct {
	PNSIndex        float64   `json:"pns_index"`
	SNSIndex        float64   `json:"sns_index"`
	StressIndex     float64   `json:"stress_index"`
	Readiness       float64   `json:"readiness"`
	ArtefactLevel   string    `json:"artefact_level,omitempty"`
	CreateTimestamp time.Time `json:"create_timestamp"`
}

// Analyze computes mean RR, mean heart rate, RMSSD and SDNN over intervals
// in milliseconds. Mean heart rate is the mean of per-interval rates, and
// SDNN uses the population deviation.
func Analyze(intervalsMs []int) (Result, error) {
	n := len(intervalsMs)
	if n < 2 {
		return Result{}, fmt.Errorf("%w: got %d", ErrTooFewIntervals, n)
	}

	rr := make([]float64, n)
	rates := make([]float64, n)
	for i, v := range intervalsMs {
		if v <= 0 {
			return Result{}, fmt.Errorf("interval %d is %d ms", i, v)
		}
		rr[i] = float64(v)
		rates[i] = 60000 / rr[i]
	}

	diffs := make([]float64, n-1)
	floats.SubTo(diffs, rr[1:], rr[:n-1])

	mean, sdnn := stat.PopMeanStdDev(rr, nil)
	return Result{
		Source:    SourceLocal,
		MeanRRMs:  mean,
		MeanHRBpm: stat.Mean(rates, nil),
		RMSSDMs:   math.Sqrt(floats.Dot(diffs, diffs) / float64(n-1)),
		SDNNMs:    sdnn,
	}, nil
}

// Stressed reports whether a cloud result's stress index is at or above the
// level the result screen flags.
func (r Result) Stressed() bool {
	return r.Cloud != nil && r.Cloud.StressIndex >= StressThreshold
}

// StressThreshold is the stress index from which a result is flagged.
const StressThreshold = 12
