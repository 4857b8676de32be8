package db

import (
	"database/sql"
	"fmt"
	"time"
)

// TrackRecord is a per-track summary row, written when a session closes.
type TrackRecord struct {
	SessionID      string    `json:"session_id"`
	TrackID        int64     `json:"track_id"`
	Label          string    `json:"label"`
	Color          string    `json:"color"`
	Hits           int       `json:"hits"`
	Misses         int       `json:"misses"`
	State          string    `json:"state"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	ConfirmedPlate string    `json:"confirmed_plate,omitempty"`
}

// UpsertTrackRecord inserts or replaces the summary row for one track.
func (db *DB) UpsertTrackRecord(rec *TrackRecord) error {
	query := `
		INSERT INTO track_records (
			session_id, track_id, label, color, hits, misses, state,
			first_seen_unix_nanos, last_seen_unix_nanos, confirmed_plate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, track_id) DO UPDATE SET
			label = excluded.label,
			color = excluded.color,
			hits = excluded.hits,
			misses = excluded.misses,
			state = excluded.state,
			first_seen_unix_nanos = excluded.first_seen_unix_nanos,
			last_seen_unix_nanos = excluded.last_seen_unix_nanos,
			confirmed_plate = excluded.confirmed_plate,
			updated_at = CURRENT_TIMESTAMP
	`

	var plate sql.NullString
	if rec.ConfirmedPlate != "" {
		plate = sql.NullString{String: rec.ConfirmedPlate, Valid: true}
	}

	_, err := db.DB.Exec(
		query,
		rec.SessionID,
		rec.TrackID,
		rec.Label,
		rec.Color,
		rec.Hits,
		rec.Misses,
		rec.State,
		rec.FirstSeen.UnixNano(),
		rec.LastSeen.UnixNano(),
		plate,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert track record: %w", err)
	}
	return nil
}

// ListTrackRecords retrieves all track summaries for a session, ordered
// by track ID.
func (db *DB) ListTrackRecords(sessionID string) ([]TrackRecord, error) {
	query := `
		SELECT session_id, track_id, label, color, hits, misses, state,
			first_seen_unix_nanos, last_seen_unix_nanos, confirmed_plate
		FROM track_records
		WHERE session_id = ?
		ORDER BY track_id ASC
	`

	rows, err := db.DB.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track records: %w", err)
	}
	defer rows.Close()

	var records []TrackRecord
	for rows.Next() {
		var rec TrackRecord
		var firstNanos, lastNanos int64
		var plate sql.NullString

		if err := rows.Scan(
			&rec.SessionID,
			&rec.TrackID,
			&rec.Label,
			&rec.Color,
			&rec.Hits,
			&rec.Misses,
			&rec.State,
			&firstNanos,
			&lastNanos,
			&plate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan track record: %w", err)
		}

		rec.FirstSeen = time.Unix(0, firstNanos)
		rec.LastSeen = time.Unix(0, lastNanos)
		if plate.Valid {
			rec.ConfirmedPlate = plate.String
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
