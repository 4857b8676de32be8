package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/plate.report/internal/anpr/video"
)

// setupTestDB opens a fully migrated database in a per-test temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// setupBareDB opens a database with pragmas applied but no migrations run.
func setupBareDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenDB(filepath.Join(t.TempDir(), "bare.db"))
	if err != nil {
		t.Fatalf("failed to open bare test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedSession inserts a session for store tests that need one.
func seedSession(t *testing.T, db *DB) *Session {
	t.Helper()

	session := &Session{
		CameraID:   "cam-1",
		SourceDesc: "test source",
	}
	if err := db.CreateSession(session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

// seedReading inserts one reading event with a generated event ID.
func seedReading(t *testing.T, db *DB, sessionID, plate string, lastSeen time.Time) *ReadingRecord {
	t.Helper()

	rec := &ReadingRecord{
		EventID:    "evt_" + uuid.New().String(),
		SessionID:  sessionID,
		TrackID:    1,
		Plate:      plate,
		Confidence: 0.9,
		Label:      "car",
		Color:      "blue",
		Box:        video.Rect{X: 120, Y: 200, W: 180, H: 120},
		SourceID:   "test",
		FirstSeen:  lastSeen.Add(-2 * time.Second),
		LastSeen:   lastSeen,
		Candidates: 3,
	}
	if err := db.InsertReadingEvent(rec); err != nil {
		t.Fatalf("InsertReadingEvent failed: %v", err)
	}
	return rec
}
