package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session represents one pipeline run. Readings and track records hang off
// a session so multiple runs against the same database stay separable.
type Session struct {
	ID         string     `json:"session_id"`
	CameraID   string     `json:"camera_id"`
	SourceDesc string     `json:"source_desc"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// CreateSession inserts a new session. An empty ID is filled with a
// generated ses_<uuid> identifier; a zero StartedAt is set to now.
func (db *DB) CreateSession(session *Session) error {
	if session.ID == "" {
		session.ID = "ses_" + uuid.New().String()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}

	query := `
		INSERT INTO sessions (session_id, camera_id, source_desc, started_unix_nanos)
		VALUES (?, ?, ?, ?)
	`

	_, err := db.DB.Exec(
		query,
		session.ID,
		session.CameraID,
		session.SourceDesc,
		session.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// CloseSession stamps the end time on a session.
func (db *DB) CloseSession(sessionID string, endedAt time.Time) error {
	result, err := db.DB.Exec(
		`UPDATE sessions SET ended_unix_nanos = ? WHERE session_id = ?`,
		endedAt.UnixNano(),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(sessionID string) (*Session, error) {
	query := `
		SELECT session_id, camera_id, source_desc, started_unix_nanos, ended_unix_nanos
		FROM sessions
		WHERE session_id = ?
	`

	var session Session
	var startedNanos int64
	var endedNanos sql.NullInt64

	err := db.DB.QueryRow(query, sessionID).Scan(
		&session.ID,
		&session.CameraID,
		&session.SourceDesc,
		&startedNanos,
		&endedNanos,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session.StartedAt = time.Unix(0, startedNanos)
	if endedNanos.Valid {
		ended := time.Unix(0, endedNanos.Int64)
		session.EndedAt = &ended
	}

	return &session, nil
}

// ListSessions retrieves the most recent sessions, newest first.
func (db *DB) ListSessions(limit int) ([]Session, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT session_id, camera_id, source_desc, started_unix_nanos, ended_unix_nanos
		FROM sessions
		ORDER BY started_unix_nanos DESC
		LIMIT ?
	`

	rows, err := db.DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var session Session
		var startedNanos int64
		var endedNanos sql.NullInt64

		if err := rows.Scan(
			&session.ID,
			&session.CameraID,
			&session.SourceDesc,
			&startedNanos,
			&endedNanos,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		session.StartedAt = time.Unix(0, startedNanos)
		if endedNanos.Valid {
			ended := time.Unix(0, endedNanos.Int64)
			session.EndedAt = &ended
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}
