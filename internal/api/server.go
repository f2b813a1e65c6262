// Package api serves the device's local HTTP interface: stored analyses,
// the session log, live status, report images, a history dashboard and a
// snapshot of the screen.
package api

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/pulse.monitor/internal/db"
	"github.com/banshee-data/pulse.monitor/internal/fsutil"
	"github.com/banshee-data/pulse.monitor/internal/httputil"
	"github.com/banshee-data/pulse.monitor/internal/security"
	"github.com/banshee-data/pulse.monitor/internal/ui"
	"github.com/banshee-data/pulse.monitor/internal/version"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Snapshotter renders the current screen as PNG.
type Snapshotter interface {
	PNG() ([]byte, error)
}

// ReportLister lists saved report images.
type ReportLister interface {
	Dir() string
	List() ([]string, error)
}

// Config wires the server to the device. Any field may be nil; the matching
// endpoints then answer 404.
type Config struct {
	DB      *db.DB
	History *db.History
	Status  func() ui.Status
	Screen  Snapshotter
	Reports ReportLister
	FS      fsutil.FileSystem
}

type Server struct {
	cfg     Config
	started time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.FS == nil {
		cfg.FS = fsutil.OSFileSystem{}
	}
	return &Server{cfg: cfg, started: time.Now()}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	code := strconv.Itoa(statusCode)
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + code + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + code + colorReset
	case statusCode >= 400:
		return colorBoldRed + code + colorReset
	default:
		return code
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/history", s.listHistory)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/reports", s.listReports)
	mux.HandleFunc("/reports/", s.serveReport)
	mux.HandleFunc("/charts/history", s.handleHistoryChart)
	mux.HandleFunc("/display.png", s.serveDisplay)
	return mux
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string, mux *http.ServeMux) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           LoggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	log.Printf("HTTP server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
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
	if recs == nil {
		recs = []db.HistoryRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, recs)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.DB == nil {
		httputil.NotFound(w, "session log is not available")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > 500 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		limit = n
	}

	sessions, err := s.cfg.DB.RecentSessions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to read sessions: "+err.Error())
		return
	}
	if sessions == nil {
		sessions = []db.SessionRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, sessions)
}

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	Version       string         `json:"version"`
	GitSHA        string         `json:"git_sha"`
	BuildTime     string         `json:"build_time"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Device        *ui.Status     `json:"device,omitempty"`
	Sessions      map[string]int `json:"sessions,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := StatusResponse{
		Version:       version.Version,
		GitSHA:        version.GitSHA,
		BuildTime:     version.BuildTime,
		UptimeSeconds: time.Since(s.started).Seconds(),
	}
	if s.cfg.Status != nil {
		st := s.cfg.Status()
		resp.Device = &st
	}
	if s.cfg.DB != nil {
		counts, err := s.cfg.DB.SessionCounts(r.Context())
		if err != nil {
			httputil.InternalServerError(w, "failed to count sessions: "+err.Error())
			return
		}
		resp.Sessions = counts
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.Reports == nil {
		httputil.NotFound(w, "reports are not enabled")
		return
	}

	files, err := s.cfg.Reports.List()
	if err != nil {
		httputil.InternalServerError(w, "failed to list reports: "+err.Error())
		return
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	httputil.WriteJSON(w, http.StatusOK, names)
}

func (s *Server) serveReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.Reports == nil {
		httputil.NotFound(w, "reports are not enabled")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/reports/")
	if name == "" || security.SanitizeFilename(name) != name || filepath.Ext(name) != ".png" {
		httputil.WriteJSONError(w, http.StatusBadRequest, "invalid report name")
		return
	}

	data, err := s.cfg.FS.ReadFile(filepath.Join(s.cfg.Reports.Dir(), name))
	if err != nil {
		httputil.NotFound(w, "report not found")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (s *Server) serveDisplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.Screen == nil {
		httputil.NotFound(w, "no framebuffer attached")
		return
	}

	data, err := s.cfg.Screen.PNG()
	if err != nil {
		httputil.InternalServerError(w, "failed to encode screen: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}
