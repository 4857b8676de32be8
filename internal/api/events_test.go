package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/banshee-data/plate.report/internal/db"
	"github.com/banshee-data/plate.report/internal/testutil"
)

func seedSession(t *testing.T, store *db.DB) *db.Session {
	t.Helper()

	session := &db.Session{CameraID: "cam-1", SourceDesc: "test source"}
	testutil.AssertNoError(t, store.CreateSession(session))
	return session
}

func seedReading(t *testing.T, store *db.DB, sessionID, plate string, lastSeen time.Time) {
	t.Helper()

	rec := &db.ReadingRecord{
		EventID:    fmt.Sprintf("evt_%s_%d", plate, lastSeen.UnixNano()),
		SessionID:  sessionID,
		TrackID:    1,
		Plate:      plate,
		Confidence: 0.9,
		Label:      "car",
		SourceID:   "test",
		FirstSeen:  lastSeen.Add(-2 * time.Second),
		LastSeen:   lastSeen,
		Candidates: 3,
	}
	testutil.AssertNoError(t, store.InsertReadingEvent(rec))
}

func TestHandleEvents(t *testing.T) {
	server := newTestServer(t)
	session := seedSession(t, server.store)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedReading(t, server.store, session.ID, "KA01AB1234", base)
	seedReading(t, server.store, session.ID, "MH12XY9876", base.Add(time.Minute))

	var events []db.ReadingRecord
	w := testutil.GetJSON(t, server.handleEvents, "/api/events", &events)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %s", ct)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	// Newest first
	if events[0].Plate != "MH12XY9876" {
		t.Errorf("Expected newest event first, got %s", events[0].Plate)
	}
}

func TestHandleEvents_Filters(t *testing.T) {
	server := newTestServer(t)
	s1 := seedSession(t, server.store)
	s2 := seedSession(t, server.store)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedReading(t, server.store, s1.ID, "KA01AB1234", base)
	seedReading(t, server.store, s1.ID, "KA01AB1234", base.Add(time.Minute))
	seedReading(t, server.store, s2.ID, "MH12XY9876", base.Add(2*time.Minute))

	t.Run("by session", func(t *testing.T) {
		var events []db.ReadingRecord
		testutil.GetJSON(t, server.handleEvents, "/api/events?session_id="+s2.ID, &events)
		if len(events) != 1 || events[0].Plate != "MH12XY9876" {
			t.Errorf("Expected only the second session's event, got %+v", events)
		}
	})

	t.Run("by plate", func(t *testing.T) {
		var events []db.ReadingRecord
		testutil.GetJSON(t, server.handleEvents, "/api/events?plate=KA01AB1234", &events)
		if len(events) != 2 {
			t.Errorf("Expected 2 matching events, got %d", len(events))
		}
	})

	t.Run("by limit", func(t *testing.T) {
		var events []db.ReadingRecord
		testutil.GetJSON(t, server.handleEvents, "/api/events?limit=1", &events)
		if len(events) != 1 {
			t.Errorf("Expected 1 event with limit=1, got %d", len(events))
		}
	})

	t.Run("by time window", func(t *testing.T) {
		since := base.Add(90 * time.Second).Format(time.RFC3339)
		var events []db.ReadingRecord
		testutil.GetJSON(t, server.handleEvents, "/api/events?since="+since, &events)
		if len(events) != 1 || events[0].Plate != "MH12XY9876" {
			t.Errorf("Expected only the latest event, got %+v", events)
		}
	})
}

func TestHandleEvents_EmptyStore(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	w := httptest.NewRecorder()
	server.handleEvents(w, req)

	// Empty result must encode as [], not null
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("Expected empty JSON array, got %q", body)
	}
}

func TestHandleEvents_InvalidParams(t *testing.T) {
	server := newTestServer(t)

	for _, query := range []string{"limit=zero", "limit=-1", "since=yesterday", "until=tomorrow"} {
		req := httptest.NewRequest(http.MethodGet, "/api/events?"+query, nil)
		w := httptest.NewRecorder()
		server.handleEvents(w, req)

		if w.Result().StatusCode != http.StatusBadRequest {
			t.Errorf("Expected status 400 for %q, got %d", query, w.Result().StatusCode)
		}
	}
}

func TestHandleEvents_NoStore(t *testing.T) {
	server := NewServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	w := httptest.NewRecorder()
	server.handleEvents(w, req)

	testutil.AssertStatusCode(t, w.Result().StatusCode, http.StatusServiceUnavailable)
}

func TestHandleEvents_MethodNotAllowed(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
	w := httptest.NewRecorder()
	server.handleEvents(w, req)

	testutil.AssertStatusCode(t, w.Result().StatusCode, http.StatusMethodNotAllowed)
}

func TestHandleSessions(t *testing.T) {
	server := newTestServer(t)
	seedSession(t, server.store)
	seedSession(t, server.store)

	var sessions []db.Session
	testutil.GetJSON(t, server.handleSessions, "/api/sessions", &sessions)
	if len(sessions) != 2 {
		t.Errorf("Expected 2 sessions, got %d", len(sessions))
	}
}

func TestHandleSessions_Limit(t *testing.T) {
	server := newTestServer(t)
	seedSession(t, server.store)
	seedSession(t, server.store)
	seedSession(t, server.store)

	var sessions []db.Session
	testutil.GetJSON(t, server.handleSessions, "/api/sessions?limit=2", &sessions)
	if len(sessions) != 2 {
		t.Errorf("Expected 2 sessions with limit=2, got %d", len(sessions))
	}
}

func TestHandleSessions_NoStore(t *testing.T) {
	server := NewServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	w := httptest.NewRecorder()
	server.handleSessions(w, req)

	testutil.AssertStatusCode(t, w.Result().StatusCode, http.StatusServiceUnavailable)
}
