package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/plate.report/internal/anpr/video"
)

// ReadingRecord is a persisted confirmed plate reading. Box is the vehicle's
// frame-coordinate bounding box at confirmation time.
type ReadingRecord struct {
	EventID    string     `json:"event_id"`
	SessionID  string     `json:"session_id"`
	TrackID    int64      `json:"track_id"`
	Plate      string     `json:"plate"`
	Confidence float64    `json:"confidence"`
	Label      string     `json:"label"`
	Color      string     `json:"color"`
	Box        video.Rect `json:"box"`
	SourceID   string     `json:"source_id"`
	FirstSeen  time.Time  `json:"first_seen"`
	LastSeen   time.Time  `json:"last_seen"`
	Candidates int        `json:"candidates"`
}

// ReadingQuery filters ListReadingEvents. Zero values mean "any".
type ReadingQuery struct {
	SessionID string
	Plate     string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// InsertReadingEvent persists one confirmed reading.
func (db *DB) InsertReadingEvent(rec *ReadingRecord) error {
	query := `
		INSERT INTO reading_events (
			event_id, session_id, track_id, plate_text, confidence,
			label, color, box_x, box_y, box_w, box_h, source_id,
			first_seen_unix_nanos, last_seen_unix_nanos, candidate_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.DB.Exec(
		query,
		rec.EventID,
		rec.SessionID,
		rec.TrackID,
		rec.Plate,
		rec.Confidence,
		rec.Label,
		rec.Color,
		rec.Box.X,
		rec.Box.Y,
		rec.Box.W,
		rec.Box.H,
		rec.SourceID,
		rec.FirstSeen.UnixNano(),
		rec.LastSeen.UnixNano(),
		rec.Candidates,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading event: %w", err)
	}
	return nil
}

// ListReadingEvents retrieves readings matching the query, newest first.
func (db *DB) ListReadingEvents(q ReadingQuery) ([]ReadingRecord, error) {
	query := `
		SELECT event_id, session_id, track_id, plate_text, confidence,
			label, color, box_x, box_y, box_w, box_h, source_id,
			first_seen_unix_nanos, last_seen_unix_nanos, candidate_count
		FROM reading_events
	`

	var conds []string
	var args []interface{}
	if q.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Plate != "" {
		conds = append(conds, "plate_text = ?")
		args = append(args, q.Plate)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "last_seen_unix_nanos >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		conds = append(conds, "last_seen_unix_nanos <= ?")
		args = append(args, q.Until.UnixNano())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " ORDER BY last_seen_unix_nanos DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reading events: %w", err)
	}
	defer rows.Close()

	var records []ReadingRecord
	for rows.Next() {
		var rec ReadingRecord
		var firstNanos, lastNanos int64

		if err := rows.Scan(
			&rec.EventID,
			&rec.SessionID,
			&rec.TrackID,
			&rec.Plate,
			&rec.Confidence,
			&rec.Label,
			&rec.Color,
			&rec.Box.X,
			&rec.Box.Y,
			&rec.Box.W,
			&rec.Box.H,
			&rec.SourceID,
			&firstNanos,
			&lastNanos,
			&rec.Candidates,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading event: %w", err)
		}

		rec.FirstSeen = time.Unix(0, firstNanos)
		rec.LastSeen = time.Unix(0, lastNanos)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// ListSessionReadings retrieves every reading of one session in
// chronological order. Unlike ListReadingEvents it applies no limit;
// offline reporting wants the whole session.
func (db *DB) ListSessionReadings(sessionID string) ([]ReadingRecord, error) {
	rows, err := db.DB.Query(`
		SELECT event_id, session_id, track_id, plate_text, confidence,
			label, color, box_x, box_y, box_w, box_h, source_id,
			first_seen_unix_nanos, last_seen_unix_nanos, candidate_count
		FROM reading_events
		WHERE session_id = ?
		ORDER BY last_seen_unix_nanos ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session readings: %w", err)
	}
	defer rows.Close()

	var records []ReadingRecord
	for rows.Next() {
		var rec ReadingRecord
		var firstNanos, lastNanos int64

		if err := rows.Scan(
			&rec.EventID,
			&rec.SessionID,
			&rec.TrackID,
			&rec.Plate,
			&rec.Confidence,
			&rec.Label,
			&rec.Color,
			&rec.Box.X,
			&rec.Box.Y,
			&rec.Box.W,
			&rec.Box.H,
			&rec.SourceID,
			&firstNanos,
			&lastNanos,
			&rec.Candidates,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session reading: %w", err)
		}

		rec.FirstSeen = time.Unix(0, firstNanos)
		rec.LastSeen = time.Unix(0, lastNanos)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// CountReadingEvents returns the total number of persisted readings,
// optionally scoped to one session.
func (db *DB) CountReadingEvents(sessionID string) (int64, error) {
	var count int64
	var err error
	if sessionID == "" {
		err = db.QueryRow("SELECT COUNT(*) FROM reading_events").Scan(&count)
	} else {
		err = db.QueryRow("SELECT COUNT(*) FROM reading_events WHERE session_id = ?", sessionID).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count reading events: %w", err)
	}
	return count, nil
}

// HourCount is the number of readings whose last sighting fell in one
// UTC hour bucket.
type HourCount struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// EventCountsByHour buckets readings by hour of last sighting, oldest
// bucket first. Hours with no readings are absent.
func (db *DB) EventCountsByHour(since time.Time) ([]HourCount, error) {
	// Integer division of nanoseconds keeps the bucketing in SQL without
	// any string date parsing.
	const nanosPerHour = int64(time.Hour)

	rows, err := db.DB.Query(`
		SELECT last_seen_unix_nanos / ? AS hour_bucket, COUNT(*)
		FROM reading_events
		WHERE last_seen_unix_nanos >= ?
		GROUP BY hour_bucket
		ORDER BY hour_bucket ASC
	`, nanosPerHour, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly counts: %w", err)
	}
	defer rows.Close()

	var counts []HourCount
	for rows.Next() {
		var bucket, count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("failed to scan hourly count: %w", err)
		}
		counts = append(counts, HourCount{
			Hour:  time.Unix(0, bucket*nanosPerHour).UTC(),
			Count: count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

// PlateCount aggregates sightings of one plate text.
type PlateCount struct {
	Plate         string  `json:"plate"`
	Count         int64   `json:"count"`
	MaxConfidence float64 `json:"max_confidence"`
}

// TopPlates returns the most frequently read plates since the given time.
func (db *DB) TopPlates(since time.Time, limit int) ([]PlateCount, error) {
	if limit <= 0 || limit > 1000 {
		limit = 20
	}

	rows, err := db.DB.Query(`
		SELECT plate_text, COUNT(*) AS n, MAX(confidence)
		FROM reading_events
		WHERE last_seen_unix_nanos >= ?
		GROUP BY plate_text
		ORDER BY n DESC, plate_text ASC
		LIMIT ?
	`, since.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top plates: %w", err)
	}
	defer rows.Close()

	var plates []PlateCount
	for rows.Next() {
		var pc PlateCount
		if err := rows.Scan(&pc.Plate, &pc.Count, &pc.MaxConfidence); err != nil {
			return nil, fmt.Errorf("failed to scan plate count: %w", err)
		}
		plates = append(plates, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return plates, nil
}
