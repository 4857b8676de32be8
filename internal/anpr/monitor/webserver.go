package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/plate.report/internal/db"
)

//go:embed status.html
var StatusHTML embed.FS

// WebServer handles the HTTP interface for monitoring the recognition
// pipeline. It provides endpoints for health checks, real-time status and
// the debug charts.
type WebServer struct {
	address     string
	stats       *PipelineStats
	server      *http.Server
	mux         *http.ServeMux
	db          *db.DB
	cameraID    string
	sourceDesc  string
	detectorURL string
	readerURL   string
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address     string
	Stats       *PipelineStats
	DB          *db.DB
	CameraID    string
	SourceDesc  string
	DetectorURL string
	ReaderURL   string
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:     config.Address,
		stats:       config.Stats,
		db:          config.DB,
		cameraID:    config.CameraID,
		sourceDesc:  config.SourceDesc,
		detectorURL: config.DetectorURL,
		readerURL:   config.ReaderURL,
	}

	ws.mux = ws.setupRoutes()
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.mux,
	}

	return ws
}

// Mux returns the server's route multiplexer so callers can attach
// additional handlers (the JSON API, the gate console) before Start.
func (ws *WebServer) Mux() *http.ServeMux {
	return ws.mux
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/debug/charts", ws.handleDebugDashboard)
	mux.HandleFunc("/debug/charts/readings", ws.handleReadingsChart)
	mux.HandleFunc("/debug/charts/throughput", ws.handleThroughputChart)
	mux.HandleFunc("/debug/charts/confidence", ws.handleConfidenceChart)

	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "anpr", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	// Load and parse the HTML template from embedded filesystem
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var sessionID string
	var readings int64
	if ws.db != nil {
		if sessions, err := ws.db.ListSessions(1); err == nil && len(sessions) > 0 {
			sessionID = sessions[0].ID
			if sessions[0].EndedAt != nil {
				sessionID += " (closed)"
			}
			readings, _ = ws.db.CountReadingEvents(sessions[0].ID)
		}
	}

	totals := ws.stats.Totals()

	// Template data
	data := struct {
		CameraID        string
		SourceDesc      string
		DetectorURL     string
		ReaderURL       string
		HTTPAddress     string
		SessionID       string
		SessionReadings int64
		Uptime          string
		Stats           *StatsSnapshot
		TotalFrames     string
		TotalDropped    string
		TotalReadings   string
	}{
		CameraID:        ws.cameraID,
		SourceDesc:      ws.sourceDesc,
		DetectorURL:     ws.detectorURL,
		ReaderURL:       ws.readerURL,
		HTTPAddress:     ws.address,
		SessionID:       sessionID,
		SessionReadings: readings,
		Uptime:          ws.stats.GetUptime().Round(time.Second).String(),
		Stats:           ws.stats.GetLatestSnapshot(),
		TotalFrames:     FormatWithCommas(totals.Frames),
		TotalDropped:    FormatWithCommas(totals.Dropped),
		TotalReadings:   FormatWithCommas(totals.Readings),
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// Close shuts down the web server
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
