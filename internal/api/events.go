package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/plate.report/internal/db"
	"github.com/banshee-data/plate.report/internal/httputil"
)

// handleEvents handles GET /api/events - recorded plate readings.
//
// Query params:
//   - session_id: restrict to one recording session
//   - plate: exact normalized plate text
//   - since, until: RFC3339 bounds on the last-seen timestamp
//   - limit: max rows (default 100, capped at 1000)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	q := db.ReadingQuery{
		SessionID: r.URL.Query().Get("session_id"),
		Plate:     r.URL.Query().Get("plate"),
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "invalid 'since' timestamp; use RFC3339")
			return
		}
		q.Since = ts
	}
	if v := r.URL.Query().Get("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "invalid 'until' timestamp; use RFC3339")
			return
		}
		q.Until = ts
	}

	events, err := s.store.ListReadingEvents(q)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve events: %v", err))
		return
	}
	if events == nil {
		events = []db.ReadingRecord{}
	}

	httputil.WriteJSONOK(w, events)
}

// handleSessions handles GET /api/sessions - recording sessions, newest
// first. The optional limit param caps the result.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}

	sessions, err := s.store.ListSessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}

	httputil.WriteJSONOK(w, sessions)
}
