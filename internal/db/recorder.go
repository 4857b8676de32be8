package db

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/plate.report/internal/anpr/pipeline"
	"github.com/banshee-data/plate.report/internal/anpr/track"
)

// TrackSource exposes a snapshot of the tracker's current tracks for
// end-of-session summaries. *track.Tracker satisfies it.
type TrackSource interface {
	Tracks() []track.Track
}

// Recorder persists pipeline output. It opens a session when the pipeline
// starts, writes each confirmed reading as it arrives, and on stop closes
// the session and writes per-track summary rows.
//
// Run is the only writer; SessionID may be called from other goroutines.
type Recorder struct {
	db         *DB
	cameraID   string
	sourceDesc string
	tracks     TrackSource

	mu        sync.Mutex
	session   *Session
	confirmed map[int64]string
}

// NewRecorder returns a recorder bound to one database and camera. The
// track source may be nil, in which case no track summaries are written.
func NewRecorder(database *DB, cameraID, sourceDesc string, tracks TrackSource) *Recorder {
	return &Recorder{
		db:         database,
		cameraID:   cameraID,
		sourceDesc: sourceDesc,
		tracks:     tracks,
	}
}

// SessionID returns the ID of the open session, or "" when no session is
// open.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return ""
	}
	return r.session.ID
}

// Run consumes pipeline events until the channel closes or ctx is
// cancelled, closing any open session on the way out. A stopped pipeline
// followed by a restart produces a fresh session on the same recorder.
func (r *Recorder) Run(ctx context.Context, events <-chan pipeline.Event) {
	for {
		select {
		case <-ctx.Done():
			r.finish(time.Now())
			return
		case evt, ok := <-events:
			if !ok {
				r.finish(time.Now())
				return
			}
			r.handle(evt)
		}
	}
}

func (r *Recorder) handle(evt pipeline.Event) {
	switch evt.Kind {
	case pipeline.EventStarted:
		r.openSession(evt.Time)
	case pipeline.EventReading:
		r.recordReading(evt)
	case pipeline.EventStopped:
		r.finish(evt.Time)
	}
}

func (r *Recorder) openSession(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return
	}

	session := &Session{
		CameraID:   r.cameraID,
		SourceDesc: r.sourceDesc,
		StartedAt:  at,
	}
	if err := r.db.CreateSession(session); err != nil {
		log.Printf("[recorder] failed to open session: %v", err)
		return
	}

	r.session = session
	r.confirmed = make(map[int64]string)
	log.Printf("[recorder] opened session %s (camera=%s)", session.ID, r.cameraID)
}

func (r *Recorder) recordReading(evt pipeline.Event) {
	if evt.Reading == nil {
		return
	}

	// A subscriber attached after the started event still gets a session.
	r.openSession(evt.Time)

	r.mu.Lock()
	session := r.session
	if session != nil {
		r.confirmed[evt.Reading.TrackID] = evt.Reading.Text
	}
	r.mu.Unlock()
	if session == nil {
		return
	}

	rec := &ReadingRecord{
		EventID:    evt.Reading.EventID,
		SessionID:  session.ID,
		TrackID:    evt.Reading.TrackID,
		Plate:      evt.Reading.Text,
		Confidence: evt.Reading.Confidence,
		Label:      evt.Reading.Label,
		Color:      evt.Reading.Color,
		Box:        evt.Reading.Box,
		SourceID:   evt.Reading.SourceID,
		FirstSeen:  evt.Reading.FirstSeen,
		LastSeen:   evt.Reading.LastSeen,
		Candidates: evt.Reading.Candidates,
	}
	if err := r.db.InsertReadingEvent(rec); err != nil {
		log.Printf("[recorder] failed to persist reading %s: %v", rec.EventID, err)
	}
}

func (r *Recorder) finish(at time.Time) {
	r.mu.Lock()
	session := r.session
	confirmed := r.confirmed
	r.session = nil
	r.confirmed = nil
	r.mu.Unlock()
	if session == nil {
		return
	}

	r.writeTrackRecords(session.ID, confirmed)

	if err := r.db.CloseSession(session.ID, at); err != nil {
		log.Printf("[recorder] failed to close session %s: %v", session.ID, err)
		return
	}
	log.Printf("[recorder] closed session %s", session.ID)
}

func (r *Recorder) writeTrackRecords(sessionID string, confirmed map[int64]string) {
	if r.tracks == nil {
		return
	}

	for _, trk := range r.tracks.Tracks() {
		rec := &TrackRecord{
			SessionID:      sessionID,
			TrackID:        trk.ID,
			Label:          trk.Label,
			Color:          trk.Color,
			Hits:           trk.Hits,
			Misses:         trk.Misses,
			State:          trk.State.String(),
			FirstSeen:      trk.FirstSeen,
			LastSeen:       trk.LastSeen,
			ConfirmedPlate: confirmed[trk.ID],
		}
		if err := r.db.UpsertTrackRecord(rec); err != nil {
			log.Printf("[recorder] failed to persist track %d summary: %v", trk.ID, err)
		}
	}
}
