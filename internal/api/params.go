package api

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/plate.report/internal/anpr/aggregate"
	"github.com/banshee-data/plate.report/internal/anpr/track"
	"github.com/banshee-data/plate.report/internal/config"
	"github.com/banshee-data/plate.report/internal/httputil"
)

// handleParams handles GET/POST for /api/params.
//
// GET returns the current tuning document. POST accepts a partial
// document, merges it over the current one, validates, and applies the
// tracker and aggregation parameters to the live pipeline. Capture,
// queue, and plate-format parameters take effect on the next pipeline
// start. The merged document is returned either way.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.RLock()
		tuning := s.tuning
		s.mu.RUnlock()
		httputil.WriteJSONOK(w, tuning)

	case http.MethodPost:
		var req config.TuningConfig
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid JSON body: "+err.Error())
			return
		}

		s.mu.Lock()
		merged := s.tuning.Merge(&req)
		if err := merged.Validate(); err != nil {
			s.mu.Unlock()
			httputil.BadRequest(w, "invalid tuning update: "+err.Error())
			return
		}
		s.tuning = merged
		s.mu.Unlock()

		if s.coord != nil {
			s.coord.Tracker().UpdateConfig(func(c *track.Config) {
				*c = track.ConfigFromTuning(merged)
			})
			s.coord.Aggregator().UpdateConfig(func(c *aggregate.Config) {
				*c = aggregate.ConfigFromTuning(merged)
			})
		}

		httputil.WriteJSONOK(w, merged)

	default:
		httputil.MethodNotAllowed(w)
	}
}
