package engine

import (
	"encoding/json"

	"github.com/michaelv2/claude-cortex-core/internal/memerr"
	"github.com/michaelv2/claude-cortex-core/internal/store"
)

// Export returns memories as a JSON-serializable slice with canonical field
// names. For a specific project it includes the project's memories plus
// transferable global ones; an empty or "*" project exports everything.
func (e *Engine) Export(project string) ([]store.Memory, error) {
	if err := e.checkDB(); err != nil {
		return nil, err
	}
	memories, err := e.db.ListByProject(project, true)
	if err != nil {
		return nil, err
	}
	if project == "" || project == store.GlobalProject {
		return memories, nil
	}
	out := make([]store.Memory, 0, len(memories))
	for _, m := range memories {
		if m.Project == project || m.Transferable {
			out = append(out, m)
		}
	}
	return out, nil
}

// Import adds memories from an exported JSON array. The whole import runs in
// one transaction and is idempotent: rows whose (project, title, created_at)
// triple already exists are silently skipped. Returns the number imported.
func (e *Engine) Import(data []byte) (int, error) {
	if err := e.checkDB(); err != nil {
		return 0, err
	}
	var memories []store.Memory
	if err := json.Unmarshal(data, &memories); err != nil {
		return 0, memerr.InvalidQuery("import payload is not a memory array").WithCause(err)
	}

	tx, err := e.db.BeginTxn()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	imported := 0
	for i := range memories {
		m := memories[i]
		dup, err := tx.FindDuplicate(m.Project, m.Title, m.CreatedAt)
		if err != nil {
			return 0, err
		}
		if dup != 0 {
			continue
		}
		m.ID = 0 // ids are assigned on insert, never reused
		m.Salience = clampUnit(m.Salience)
		m.DecayedScore = clampUnit(m.DecayedScore)
		if m.DecayedScore > m.Salience {
			m.DecayedScore = m.Salience
		}
		if len(m.Content) > maxContentBytes {
			m.Content = m.Content[:maxContentBytes-len(truncationMarker)] + truncationMarker
		}
		if err := tx.CreateMemory(&m); err != nil {
			return 0, err
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return imported, nil
}
