package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erentorlak/todv2/pkg/models"
)

// Session CRUD operations

// CreateSession inserts a new session. It fails if the ID already exists.
func (db *DB) CreateSession(s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO sessions (id, state_json, intent, created_at, updated_at, ended)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, string(data), s.CurrentIntent, formatTime(s.CreatedAt), formatTime(s.UpdatedAt), s.Ended)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(id string) (*models.Session, error) {
	row := db.QueryRow(`SELECT state_json FROM sessions WHERE id = ?`, id)

	var data string
	err := row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s models.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	normalize(&s)
	return &s, nil
}

// SaveSession inserts or replaces a session.
func (db *DB) SaveSession(s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO sessions (id, state_json, intent, created_at, updated_at, ended)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state_json = excluded.state_json,
			intent = excluded.intent,
			updated_at = excluded.updated_at,
			ended = excluded.ended
	`, s.ID, string(data), s.CurrentIntent, formatTime(s.CreatedAt), formatTime(s.UpdatedAt), s.Ended)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeleteSession deletes a session by ID.
func (db *DB) DeleteSession(id string) error {
	_, err := db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListSessions lists all sessions, most recently updated first.
func (db *DB) ListSessions() ([]SessionInfo, error) {
	rows, err := db.Query(`
		SELECT id, intent, ended, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var createdAt, updatedAt string
		if err := rows.Scan(&info.ID, &info.Intent, &info.Ended, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.CreatedAt, _ = parseTime(createdAt)
		info.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

// PurgeOldSessions deletes sessions not updated within the specified duration.
// Returns the number of sessions deleted.
func (db *DB) PurgeOldSessions(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.Exec(`DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

// normalize replaces nil maps left by JSON decoding of empty fields.
func normalize(s *models.Session) {
	if s.ExtractedParameters == nil {
		s.ExtractedParameters = make(map[string]string)
	}
	if s.ToolResults == nil {
		s.ToolResults = make(map[string]models.ToolResult)
	}
	if s.Context.RetryCounts == nil {
		s.Context.RetryCounts = make(map[string]int)
	}
}
