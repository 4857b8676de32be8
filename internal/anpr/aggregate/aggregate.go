// Package aggregate turns per-crop plate candidates into at most one
// authoritative reading per vehicle presence episode.
//
// Individual OCR reads are noisy: the same plate yields slightly different
// text from frame to frame. The aggregator tallies normalized candidate
// text per track and emits a single ReadingEvent once some text has been
// seen a configurable number of times. Confirmation is final for the
// episode; a vehicle that leaves and returns is a new track and may confirm
// again.
package aggregate

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/plate.report/internal/anpr/ocr"
	"github.com/banshee-data/plate.report/internal/anpr/video"
	"github.com/banshee-data/plate.report/internal/config"
	"github.com/banshee-data/plate.report/internal/monitoring"
)

// ReadingEvent is the externally visible result of the pipeline: one
// confirmed plate reading for one vehicle presence episode. Immutable once
// emitted.
type ReadingEvent struct {
	EventID    string     `json:"event_id"`
	TrackID    int64      `json:"track_id"`
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	Label      string     `json:"label,omitempty"`
	Color      string     `json:"color,omitempty"`
	Box        video.Rect `json:"box"`
	SourceID   string     `json:"source_id,omitempty"`
	FirstSeen  time.Time  `json:"first_seen"`
	LastSeen   time.Time  `json:"last_seen"`
	Candidates int        `json:"candidates"`
}

// TrackInfo carries the track fields stamped onto an emitted event. The
// aggregator sees only this snapshot, never the track itself.
type TrackInfo struct {
	Label     string
	Color     string
	Box       video.Rect
	FirstSeen time.Time
	LastSeen  time.Time
}

// Config holds aggregator tuning parameters.
type Config struct {
	// ConfirmationCount is how many times a normalized text must be seen
	// before it is emitted.
	ConfirmationCount int
}

// DefaultConfig returns the aggregator defaults.
func DefaultConfig() Config {
	return Config{ConfirmationCount: 3}
}

// ConfigFromTuning builds an aggregator Config from the shared tuning file.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{ConfirmationCount: t.GetConfirmationCount()}
}

// tally accumulates observations of one normalized text within an episode.
type tally struct {
	count   int
	maxConf float64
	sumConf float64
}

// episode is the aggregation state for one track's presence.
type episode struct {
	tallies    map[string]*tally
	candidates int
	confirmed  bool
}

// Aggregator accumulates candidates per track and decides when a reading
// is authoritative. Safe for concurrent use; in the pipeline it is driven
// from the single tracking loop.
type Aggregator struct {
	mu       sync.Mutex
	cfg      Config
	episodes map[int64]*episode
}

// New creates an aggregator. A non-positive confirmation count defaults to 3.
func New(cfg Config) *Aggregator {
	if cfg.ConfirmationCount < 1 {
		cfg.ConfirmationCount = DefaultConfig().ConfirmationCount
	}
	return &Aggregator{
		cfg:      cfg,
		episodes: make(map[int64]*episode),
	}
}

// Add tallies one candidate. It returns a ReadingEvent with ok true exactly
// when this candidate confirms the track's reading; every other call
// returns ok false. Candidates arriving after confirmation are counted for
// diagnostics but never change the decision.
func (a *Aggregator) Add(c ocr.Candidate, info TrackInfo) (ReadingEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ep := a.episodes[c.TrackID]
	if ep == nil {
		ep = &episode{tallies: make(map[string]*tally)}
		a.episodes[c.TrackID] = ep
	}
	ep.candidates++

	if ep.confirmed {
		monitoring.Debugf("aggregate: track %d already confirmed, ignoring %q", c.TrackID, c.Text)
		return ReadingEvent{}, false
	}

	text := ocr.Normalize(c.Text)
	if text == "" {
		return ReadingEvent{}, false
	}

	tl := ep.tallies[text]
	if tl == nil {
		tl = &tally{}
		ep.tallies[text] = tl
	}
	tl.count++
	tl.sumConf += c.Confidence
	if c.Confidence > tl.maxConf {
		tl.maxConf = c.Confidence
	}

	// Find the winner among texts at the confirmation count. Normally at
	// most one text can newly reach it, but a lowered runtime threshold can
	// qualify several at once; cumulative confidence breaks that tie.
	var winText string
	var win *tally
	for txt, cand := range ep.tallies {
		if cand.count < a.cfg.ConfirmationCount {
			continue
		}
		if win == nil || cand.sumConf > win.sumConf || (cand.sumConf == win.sumConf && txt < winText) {
			winText, win = txt, cand
		}
	}
	if win == nil {
		return ReadingEvent{}, false
	}

	ep.confirmed = true
	return ReadingEvent{
		EventID:    "evt_" + uuid.New().String(),
		TrackID:    c.TrackID,
		Text:       winText,
		Confidence: win.maxConf,
		Label:      info.Label,
		Color:      info.Color,
		Box:        info.Box,
		FirstSeen:  info.FirstSeen,
		LastSeen:   info.LastSeen,
		Candidates: ep.candidates,
	}, true
}

// Evict drops all aggregation state for a track. Called when the tracker
// evicts the track; the episode is over either way.
func (a *Aggregator) Evict(trackID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.episodes, trackID)
}

// EpisodeCount returns how many tracks currently hold aggregation state.
func (a *Aggregator) EpisodeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.episodes)
}

// ConfirmedCount returns how many live episodes have confirmed readings.
func (a *Aggregator) ConfirmedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, ep := range a.episodes {
		if ep.confirmed {
			n++
		}
	}
	return n
}

// UpdateConfig applies fn to the aggregator configuration under the lock.
// Used by the params endpoint for runtime tuning.
func (a *Aggregator) UpdateConfig(fn func(*Config)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.cfg)
	if a.cfg.ConfirmationCount < 1 {
		a.cfg.ConfirmationCount = 1
	}
}

// GetConfig returns a copy of the current configuration.
func (a *Aggregator) GetConfig() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Reset drops all episodes.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.episodes = make(map[int64]*episode)
}
