package monitor

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestThroughputChart(t *testing.T) {
	stats := NewPipelineStats()
	server := NewWebServer(WebServerConfig{Address: ":0", Stats: stats})

	t.Run("renders without snapshot", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/debug/charts/throughput", nil)
		rr := httptest.NewRecorder()
		server.setupRoutes().ServeHTTP(rr, req)

		if rr.Code != 200 {
			t.Fatalf("unexpected status: %d body: %s", rr.Code, rr.Body.String())
		}
		if !strings.Contains(rr.Body.String(), "ANPR Throughput") {
			t.Error("chart should contain its title")
		}
	})

	t.Run("renders with snapshot", func(t *testing.T) {
		stats.AddFrameCaptured()
		stats.AddDetections(2)
		stats.LogStats()

		req := httptest.NewRequest("GET", "/debug/charts/throughput", nil)
		rr := httptest.NewRecorder()
		server.setupRoutes().ServeHTTP(rr, req)

		if rr.Code != 200 {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
	})
}

func TestThroughputChart_NoStats(t *testing.T) {
	server := NewWebServer(WebServerConfig{Address: ":0"})

	req := httptest.NewRequest("GET", "/debug/charts/throughput", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != 404 {
		t.Errorf("expected 404 without stats, got %d", rr.Code)
	}
}

func TestReadingsChart(t *testing.T) {
	store := newTestStore(t)
	session := seedSessionWithReadings(t, store, 3)

	server := NewWebServer(WebServerConfig{Address: ":0", Stats: NewPipelineStats(), DB: store})

	t.Run("explicit session", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/debug/charts/readings?session_id="+session.ID, nil)
		rr := httptest.NewRecorder()
		server.setupRoutes().ServeHTTP(rr, req)

		if rr.Code != 200 {
			t.Fatalf("unexpected status: %d body: %s", rr.Code, rr.Body.String())
		}
		body := rr.Body.String()
		if !strings.Contains(body, "Confirmed Readings") {
			t.Error("chart should contain its title")
		}
		if !strings.Contains(body, session.ID) {
			t.Error("chart subtitle should name the session")
		}
	})

	t.Run("defaults to latest session", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/debug/charts/readings", nil)
		rr := httptest.NewRecorder()
		server.setupRoutes().ServeHTTP(rr, req)

		if rr.Code != 200 {
			t.Fatalf("unexpected status: %d body: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/debug/charts/readings?session_id=ses_missing", nil)
		rr := httptest.NewRecorder()
		server.setupRoutes().ServeHTTP(rr, req)

		if rr.Code != 404 {
			t.Errorf("expected 404 for session with no readings, got %d", rr.Code)
		}
	})
}

func TestReadingsChart_NoSessions(t *testing.T) {
	store := newTestStore(t)
	server := NewWebServer(WebServerConfig{Address: ":0", Stats: NewPipelineStats(), DB: store})

	req := httptest.NewRequest("GET", "/debug/charts/readings", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != 404 {
		t.Errorf("expected 404 with empty database, got %d", rr.Code)
	}
}

func TestConfidenceChart(t *testing.T) {
	store := newTestStore(t)
	session := seedSessionWithReadings(t, store, 4)

	server := NewWebServer(WebServerConfig{Address: ":0", Stats: NewPipelineStats(), DB: store})

	req := httptest.NewRequest("GET", "/debug/charts/confidence?session_id="+session.ID, nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("unexpected status: %d body: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Reading Confidence") {
		t.Error("chart should contain its title")
	}
}

func TestDebugDashboard(t *testing.T) {
	server := NewWebServer(WebServerConfig{Address: ":0", Stats: NewPipelineStats()})

	t.Run("without session", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/debug/charts", nil)
		rr := httptest.NewRecorder()
		server.setupRoutes().ServeHTTP(rr, req)

		if rr.Code != 200 {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
		body := rr.Body.String()
		if !strings.Contains(body, "/debug/charts/readings") {
			t.Error("dashboard should embed the readings chart")
		}
		if !strings.Contains(body, "session: latest") {
			t.Error("dashboard should label the default session")
		}
	})

	t.Run("session id is escaped", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/debug/charts?session_id=%3Cscript%3E", nil)
		rr := httptest.NewRecorder()
		server.setupRoutes().ServeHTTP(rr, req)

		body := rr.Body.String()
		if strings.Contains(body, "<script>") {
			t.Error("session id must be HTML-escaped")
		}
		if !strings.Contains(body, "&lt;script&gt;") {
			t.Error("escaped session id should appear in the page")
		}
	})
}
