package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Session represents a bounded work period.
type Session struct {
	ID               int64   `json:"-"`
	SessionID        string  `json:"session_id"`
	Project          string  `json:"project"`
	StartedAt        int64   `json:"started_at"`
	EndedAt          *int64  `json:"ended_at,omitempty"`
	Summary          string  `json:"summary,omitempty"`
	MemoriesCreated  int     `json:"memories_created"`
	MemoriesAccessed int     `json:"memories_accessed"`
}

// CreateSession starts a new session for the project.
func (db *DB) CreateSession(sessionID, project string) (*Session, error) {
	if err := db.CheckWritable(); err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	if project == "" {
		project = GlobalProject
	}
	result, err := db.Exec(`
		INSERT INTO sessions (session_id, project, started_at)
		VALUES (?, ?, ?)
	`, sessionID, project, now)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", MapError(err))
	}
	id, _ := result.LastInsertId()
	return &Session{ID: id, SessionID: sessionID, Project: project, StartedAt: now}, nil
}

// GetSession returns a session by its public id, or nil if not found.
func (db *DB) GetSession(sessionID string) (*Session, error) {
	var s Session
	var summary sql.NullString
	err := db.QueryRow(`
		SELECT id, session_id, project, started_at, ended_at, summary, memories_created, memories_accessed
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&s.ID, &s.SessionID, &s.Project, &s.StartedAt, &s.EndedAt,
		&summary, &s.MemoriesCreated, &s.MemoriesAccessed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", MapError(err))
	}
	s.Summary = summary.String
	return &s, nil
}

// CloseSession marks a session ended and records its summary and activity counts.
func (db *DB) CloseSession(sessionID, summary string, created, accessed int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE sessions
		SET ended_at = COALESCE(ended_at, ?), summary = ?, memories_created = ?, memories_accessed = ?
		WHERE session_id = ?
	`, now, summary, created, accessed, sessionID)
	if err != nil {
		return fmt.Errorf("close session: %w", MapError(err))
	}
	return nil
}

// CountCreatedSince returns memories created for the project since the given time.
func (db *DB) CountCreatedSince(project string, sinceMs int64) (int, error) {
	return db.countSince(`created_at`, project, sinceMs)
}

// CountAccessedSince returns memories last accessed for the project since the
// given time, excluding ones that were also created in the window.
func (db *DB) CountAccessedSince(project string, sinceMs int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM memories WHERE last_accessed >= ? AND created_at < ?`
	args := []any{sinceMs, sinceMs}
	if project != "" && project != GlobalProject {
		query += ` AND project = ?`
		args = append(args, project)
	}
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accessed since: %w", MapError(err))
	}
	return n, nil
}

func (db *DB) countSince(column, project string, sinceMs int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM memories WHERE ` + column + ` >= ?`
	args := []any{sinceMs}
	if project != "" && project != GlobalProject {
		query += ` AND project = ?`
		args = append(args, project)
	}
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count since: %w", MapError(err))
	}
	return n, nil
}
