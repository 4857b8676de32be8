// Package api exposes the recognition pipeline over a JSON API: live
// pipeline status, recorded readings, track snapshots, and runtime tuning.
// It registers routes onto the monitor's mux so the whole HTTP surface
// shares one listener.
package api

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/plate.report/internal/anpr/monitor"
	"github.com/banshee-data/plate.report/internal/anpr/pipeline"
	"github.com/banshee-data/plate.report/internal/config"
	"github.com/banshee-data/plate.report/internal/db"
	"github.com/banshee-data/plate.report/internal/httputil"
	"github.com/banshee-data/plate.report/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server serves the JSON API. The coordinator and store are fixed at
// construction; the stats sink and recorder are attached later because
// they come up after the HTTP surface in the daemon's start order.
type Server struct {
	coord *pipeline.Coordinator
	store *db.DB

	mu       sync.RWMutex
	tuning   *config.TuningConfig
	stats    *monitor.PipelineStats
	recorder *db.Recorder
}

// NewServer creates an API server over the given pipeline and event store.
// Either collaborator may be nil; the affected endpoints then answer 503.
// A nil tuning config falls back to defaults.
func NewServer(coord *pipeline.Coordinator, store *db.DB, tuning *config.TuningConfig) *Server {
	if tuning == nil {
		tuning = config.DefaultTuningConfig()
	}
	return &Server{
		coord:  coord,
		store:  store,
		tuning: tuning,
	}
}

// SetStats attaches the throughput counters reported by /api/status.
func (s *Server) SetStats(stats *monitor.PipelineStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

// SetRecorder attaches the recorder whose session id /api/status reports.
func (s *Server) SetRecorder(rec *db.Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder = rec
}

// Tuning returns the current tuning document, including any runtime
// updates applied through /api/params.
func (s *Server) Tuning() *config.TuningConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tuning
}

// RegisterRoutes registers the API routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/tracks", s.handleTracks)
	mux.HandleFunc("/api/params", s.handleParams)
}

// ServeMux returns a standalone mux carrying only the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so server-sent event streams
// survive the middleware wrap.
func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
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

// StatusResponse is the document served by /api/status.
type StatusResponse struct {
	Service       string      `json:"service"`
	Version       string      `json:"version"`
	Running       bool        `json:"running"`
	UptimeSeconds float64     `json:"uptime_seconds,omitempty"`
	SessionID     string      `json:"session_id,omitempty"`
	Tracks        TrackCounts `json:"tracks"`
	OpenEpisodes  int         `json:"open_episodes"`
	Confirmed     int         `json:"confirmed_readings"`
	Totals        *TotalsDoc  `json:"totals,omitempty"`
}

// TrackCounts summarizes the tracker snapshot.
type TrackCounts struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Evicted    int `json:"evicted"`
	OCRPending int `json:"ocr_pending"`
}

// TotalsDoc carries lifetime throughput counters.
type TotalsDoc struct {
	Frames        int64            `json:"frames"`
	Skipped       int64            `json:"skipped"`
	Dropped       int64            `json:"dropped"`
	Detections    int64            `json:"detections"`
	TracksSpawned int64            `json:"tracks_spawned"`
	TracksEvicted int64            `json:"tracks_evicted"`
	OCRReads      int64            `json:"ocr_reads"`
	Candidates    int64            `json:"candidates"`
	Readings      int64            `json:"readings"`
	StageFailures map[string]int64 `json:"stage_failures,omitempty"`
}

// handleStatus handles GET /api/status. It always answers 200; missing
// collaborators leave their fields zero so dashboards can poll it before
// the pipeline is wired up.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	s.mu.RLock()
	stats := s.stats
	recorder := s.recorder
	s.mu.RUnlock()

	resp := StatusResponse{
		Service: "anpr",
		Version: version.Version,
	}

	if s.coord != nil {
		resp.Running = s.coord.Running()

		tracker := s.coord.Tracker()
		total, active, evicted := tracker.Counts()
		resp.Tracks = TrackCounts{
			Total:      total,
			Active:     active,
			Evicted:    evicted,
			OCRPending: tracker.PendingOCRCount(),
		}

		agg := s.coord.Aggregator()
		resp.OpenEpisodes = agg.EpisodeCount()
		resp.Confirmed = agg.ConfirmedCount()
	}

	if stats != nil {
		resp.UptimeSeconds = stats.GetUptime().Seconds()
		totals := stats.Totals()
		resp.Totals = &TotalsDoc{
			Frames:        totals.Frames,
			Skipped:       totals.Skipped,
			Dropped:       totals.Dropped,
			Detections:    totals.Detections,
			TracksSpawned: totals.TracksSpawned,
			TracksEvicted: totals.TracksEvicted,
			OCRReads:      totals.OCRReads,
			Candidates:    totals.Candidates,
			Readings:      totals.Readings,
			StageFailures: totals.StageFailures,
		}
	}

	if recorder != nil {
		resp.SessionID = recorder.SessionID()
	}

	httputil.WriteJSONOK(w, resp)
}
