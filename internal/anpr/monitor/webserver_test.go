package monitor

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/plate.report/internal/db"
)

func newTestStore(t *testing.T) *db.DB {
	t.Helper()

	store, err := db.NewDB(filepath.Join(t.TempDir(), "monitor.db"))
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedSessionWithReadings(t *testing.T, store *db.DB, readings int) *db.Session {
	t.Helper()

	session := &db.Session{CameraID: "cam-1", SourceDesc: "test source"}
	if err := store.CreateSession(session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < readings; i++ {
		rec := &db.ReadingRecord{
			EventID:    session.ID + "-evt-" + string(rune('a'+i)),
			SessionID:  session.ID,
			TrackID:    int64(i + 1),
			Plate:      "KA01AB1234",
			Confidence: 0.5 + float64(i)*0.1,
			SourceID:   "test",
			FirstSeen:  base.Add(time.Duration(i) * time.Second),
			LastSeen:   base.Add(time.Duration(i)*time.Second + time.Second),
			Candidates: 3,
		}
		if err := store.InsertReadingEvent(rec); err != nil {
			t.Fatalf("InsertReadingEvent failed: %v", err)
		}
	}
	return session
}

func TestNewWebServer(t *testing.T) {
	stats := NewPipelineStats()

	config := WebServerConfig{
		Address:     ":0",
		Stats:       stats,
		CameraID:    "cam-1",
		SourceDesc:  "synthetic",
		DetectorURL: "http://localhost:8600",
		ReaderURL:   "http://localhost:8601",
	}

	server := NewWebServer(config)

	if server == nil {
		t.Fatal("NewWebServer returned nil")
	}

	if server.stats != stats {
		t.Error("WebServer stats not set correctly")
	}

	if server.cameraID != "cam-1" {
		t.Error("WebServer cameraID not set correctly")
	}
}

func TestWebServer_HealthHandler(t *testing.T) {
	server := NewWebServer(WebServerConfig{Address: ":0", Stats: NewPipelineStats()})

	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	mux := server.setupRoutes()
	mux.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Health handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	expected := "application/json"
	if ctype := rr.Header().Get("Content-Type"); ctype != expected {
		t.Errorf("Health handler returned wrong content type: got %v want %v",
			ctype, expected)
	}

	if !strings.Contains(rr.Body.String(), `"service": "anpr"`) {
		t.Errorf("Health response missing service field: %s", rr.Body.String())
	}
}

func TestWebServer_StatusHandler(t *testing.T) {
	stats := NewPipelineStats()
	server := NewWebServer(WebServerConfig{
		Address:    ":0",
		Stats:      stats,
		CameraID:   "cam-42",
		SourceDesc: "synthetic",
	})

	// Add some stats data
	stats.AddFrameCaptured()
	stats.AddDetections(1)
	stats.LogStats()

	req, err := http.NewRequest("GET", "/", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	mux := server.setupRoutes()
	mux.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Status handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	body := rr.Body.String()

	if !strings.Contains(body, "ANPR Monitor") {
		t.Error("Response should contain 'ANPR Monitor'")
	}

	if !strings.Contains(body, "cam-42") {
		t.Error("Response should contain the camera ID")
	}
}

func TestWebServer_StatusHandlerShowsLatestSession(t *testing.T) {
	store := newTestStore(t)
	session := seedSessionWithReadings(t, store, 2)

	server := NewWebServer(WebServerConfig{
		Address: ":0",
		Stats:   NewPipelineStats(),
		DB:      store,
	})

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), session.ID) {
		t.Error("Response should contain the latest session ID")
	}
}

func TestWebServer_StatusHandlerRejectsOtherPaths(t *testing.T) {
	server := NewWebServer(WebServerConfig{Address: ":0", Stats: NewPipelineStats()})

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rr.Code)
	}
}
