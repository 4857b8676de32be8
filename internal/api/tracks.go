package api

import (
	"net/http"
	"time"

	"github.com/banshee-data/plate.report/internal/anpr/track"
	"github.com/banshee-data/plate.report/internal/anpr/video"
	"github.com/banshee-data/plate.report/internal/httputil"
)

// handleTracks handles GET /api/tracks - a snapshot of the live tracker.
// Evicted tracks within their grace window are included unless active=1.
func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.coord == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}

	tracker := s.coord.Tracker()

	var tracks []track.Track
	switch r.URL.Query().Get("active") {
	case "1", "true":
		tracks = tracker.ActiveTracks()
	default:
		tracks = tracker.Tracks()
	}

	type TrackResponse struct {
		TrackID    int64      `json:"track_id"`
		State      string     `json:"state"`
		Reading    string     `json:"reading"`
		Box        video.Rect `json:"box"`
		Label      string     `json:"label,omitempty"`
		Color      string     `json:"color,omitempty"`
		FirstSeen  time.Time  `json:"first_seen"`
		LastSeen   time.Time  `json:"last_seen"`
		Age        int        `json:"age"`
		Hits       int        `json:"hits"`
		Misses     int        `json:"misses"`
		OCRPending bool       `json:"ocr_pending"`
	}

	response := make([]TrackResponse, 0, len(tracks))
	for _, t := range tracks {
		response = append(response, TrackResponse{
			TrackID:    t.ID,
			State:      t.State.String(),
			Reading:    t.Reading.String(),
			Box:        t.Box,
			Label:      t.Label,
			Color:      t.Color,
			FirstSeen:  t.FirstSeen,
			LastSeen:   t.LastSeen,
			Age:        t.Age,
			Hits:       t.Hits,
			Misses:     t.Misses,
			OCRPending: t.OCRPending,
		})
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"tracks":      response,
		"track_count": len(response),
	})
}
