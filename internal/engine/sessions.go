package engine

import (
	"github.com/google/uuid"

	"github.com/michaelv2/claude-cortex-core/internal/memerr"
	"github.com/michaelv2/claude-cortex-core/internal/store"
)

// SessionInfo is returned by StartSession: the new session plus the context
// the host should surface at session start.
type SessionInfo struct {
	SessionID string          `json:"session_id"`
	Project   string          `json:"project"`
	Context   *ContextSummary `json:"context"`
}

// SessionStats is returned by EndSession.
type SessionStats struct {
	SessionID        string `json:"session_id"`
	MemoriesCreated  int    `json:"memories_created"`
	MemoriesAccessed int    `json:"memories_accessed"`
}

// StartSession opens a bounded work period and returns the session id with
// the current context summary.
func (e *Engine) StartSession(project string) (*SessionInfo, error) {
	if err := e.checkDB(); err != nil {
		return nil, err
	}
	project = e.resolveProject(project)
	s, err := e.db.CreateSession(uuid.NewString(), project)
	if err != nil {
		return nil, err
	}
	ctx, err := e.GetContext("", project)
	if err != nil {
		return nil, err
	}
	return &SessionInfo{SessionID: s.SessionID, Project: project, Context: ctx}, nil
}

// EndSession closes a session, stores an optional summary as an episodic
// memory, and reports activity counts over the session window.
func (e *Engine) EndSession(sessionID, summary string) (*SessionStats, error) {
	if err := e.checkDB(); err != nil {
		return nil, err
	}
	s, err := e.db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, memerr.SessionNotFound(sessionID)
	}

	created, err := e.db.CountCreatedSince(s.Project, s.StartedAt)
	if err != nil {
		return nil, err
	}
	accessed, err := e.db.CountAccessedSince(s.Project, s.StartedAt)
	if err != nil {
		return nil, err
	}

	if summary != "" {
		_, err := e.AddMemory(AddRequest{
			Title:    "Session summary",
			Content:  summary,
			Category: "context",
			Type:     store.TypeEpisodic,
			Project:  s.Project,
		})
		if err != nil {
			return nil, err
		}
		created++
	}

	if err := e.db.CloseSession(sessionID, summary, created, accessed); err != nil {
		return nil, err
	}
	return &SessionStats{SessionID: sessionID, MemoriesCreated: created, MemoriesAccessed: accessed}, nil
}
