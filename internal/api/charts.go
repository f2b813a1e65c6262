package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pulse.monitor/internal/db"
	"github.com/banshee-data/pulse.monitor/internal/httputil"
)

// handleHistoryChart renders the stored analyses and the session outcome
// counts as an HTML dashboard.
func (s *Server) handleHistoryChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.History == nil {
		httputil.NotFound(w, "history is not available")
		return
	}

	recs, err := s.cfg.History.Records(r.Context())
	if err != nil {
		httputil.InternalServerError(w, "failed to read history: "+err.Error())
		return
	}

	page := components.NewPage()
	page.SetPageTitle("Pulse monitor history")
	page.AddCharts(historyLine(recs))

	if s.cfg.DB != nil {
		counts, err := s.cfg.DB.SessionCounts(r.Context())
		if err != nil {
			httputil.InternalServerError(w, "failed to count sessions: "+err.Error())
			return
		}
		page.AddCharts(outcomeBar(counts))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func historyLine(recs []db.HistoryRecord) *charts.Line {
	x := make([]string, len(recs))
	var hr, rmssd, sdnn, stress, readiness []opts.LineData
	for i, rec := range recs {
		res := rec.Result
		x[i] = rec.CreatedAt.Format("02.01.06 15:04")
		hr = append(hr, opts.LineData{Value: round1(res.MeanHRBpm)})
		rmssd = append(rmssd, opts.LineData{Value: round1(res.RMSSDMs)})
		sdnn = append(sdnn, opts.LineData{Value: round1(res.SDNNMs)})
		if res.Cloud != nil {
			stress = append(stress, opts.LineData{Value: round1(res.Cloud.StressIndex)})
			readiness = append(readiness, opts.LineData{Value: round1(res.Cloud.Readiness)})
		} else {
			stress = append(stress, opts.LineData{Value: "-"})
			readiness = append(readiness, opts.LineData{Value: "-"})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "HRV history", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "HRV history", Subtitle: fmt.Sprintf("%d stored analyses", len(recs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	line.SetXAxis(x).
		AddSeries("Mean HR (bpm)", hr).
		AddSeries("RMSSD (ms)", rmssd).
		AddSeries("SDNN (ms)", sdnn).
		AddSeries("Stress index", stress).
		AddSeries("Readiness (%)", readiness).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true), ShowSymbol: opts.Bool(true)}))
	return line
}

func outcomeBar(counts map[string]int) *charts.Bar {
	x := []string{"completed", "cancelled", "interference"}
	y := make([]opts.BarData, len(x))
	for i, k := range x {
		y[i] = opts.BarData{Value: counts[k]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Measurement sessions"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("sessions", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
