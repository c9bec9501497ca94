package engine

import (
	"time"

	"github.com/michaelv2/claude-cortex-core/internal/memerr"
	"github.com/michaelv2/claude-cortex-core/internal/store"
)

// AccessMemory reinforces a single memory: bumps its access count, raises
// salience by a diminishing amount, and Hebbian-links it with other memories
// accessed inside the co-access window. Returns the updated memory.
func (e *Engine) AccessMemory(id int64) (*store.Memory, error) {
	if err := e.checkDB(); err != nil {
		return nil, err
	}
	m, err := e.db.GetMemory(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, memerr.MemoryNotFound(id)
	}

	boost := 0.05 / float64(1+m.AccessCount)
	if err := e.db.TouchMemory(id, boost); err != nil {
		return nil, err
	}

	now := e.now()
	for _, other := range e.coAccessed(id, now) {
		if err := e.db.CreateOrStrengthenLink(id, other, store.RelRelated, 0.1, 0.05); err != nil {
			return nil, err
		}
	}
	e.noteAccess(id, now)

	return e.db.GetMemory(id)
}

// coAccessed returns ids accessed within the Hebbian window, pruning stale
// entries as a side effect.
func (e *Engine) coAccessed(id int64, now time.Time) []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var others []int64
	for otherID, at := range e.recent {
		if now.Sub(at) > coAccessWindow {
			delete(e.recent, otherID)
			continue
		}
		if otherID != id {
			others = append(others, otherID)
		}
	}
	return others
}

func (e *Engine) noteAccess(id int64, at time.Time) {
	e.mu.Lock()
	e.recent[id] = at
	e.mu.Unlock()
}

// ForgetRequest filters memories for bulk deletion.
type ForgetRequest struct {
	IDs           []int64
	Category      string
	OlderThanDays int
	Project       string
	DryRun        bool
	Confirm       bool
}

// ForgetResult reports what was (or would be) deleted.
type ForgetResult struct {
	Deleted int     `json:"deleted"`
	Preview []int64 `json:"preview,omitempty"`
}

// Forget deletes memories matching the filter. The match count is previewed
// first; past the safety threshold the call requires Confirm.
func (e *Engine) Forget(req ForgetRequest) (*ForgetResult, error) {
	if err := e.checkDB(); err != nil {
		return nil, err
	}
	ids, err := e.db.SelectForgetIDs(store.ForgetFilter{
		IDs:           req.IDs,
		Category:      req.Category,
		OlderThanDays: req.OlderThanDays,
		Project:       req.Project,
	})
	if err != nil {
		return nil, err
	}

	if req.DryRun {
		return &ForgetResult{Deleted: 0, Preview: ids}, nil
	}
	if len(ids) > e.cfg.BulkDeleteLimit && !req.Confirm {
		return nil, memerr.BulkDeleteBlocked(len(ids), e.cfg.BulkDeleteLimit)
	}
	if err := e.db.DeleteMemories(ids); err != nil {
		return nil, err
	}
	return &ForgetResult{Deleted: len(ids)}, nil
}
