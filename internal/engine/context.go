package engine

import (
	"sort"
	"time"

	"github.com/michaelv2/claude-cortex-core/internal/store"
)

// MemoryBrief is a compact memory reference in a context summary.
type MemoryBrief struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Category string  `json:"category"`
	Salience float64 `json:"salience"`
}

// ContextSummary is the structured session-start digest: key decisions,
// established patterns, pending work, and recent activity for a project.
type ContextSummary struct {
	Project       string        `json:"project"`
	KeyDecisions  []MemoryBrief `json:"key_decisions"`
	Patterns      []MemoryBrief `json:"patterns"`
	Pending       []MemoryBrief `json:"pending"`
	Recent        []MemoryBrief `json:"recent"`
	Relevant      []MemoryBrief `json:"relevant,omitempty"`
	TotalMemories int           `json:"total_memories"`
}

const (
	contextSectionLimit = 5
	contextRecentLimit  = 10
	contextRecentWindow = 7 * 24 * time.Hour
)

// GetContext assembles the context summary for a project. A non-empty query
// additionally surfaces the most relevant matches.
func (e *Engine) GetContext(query, project string) (*ContextSummary, error) {
	if err := e.checkDB(); err != nil {
		return nil, err
	}
	project = e.resolveProject(project)

	memories, err := e.db.ListByProject(project, true)
	if err != nil {
		return nil, err
	}

	summary := &ContextSummary{Project: project, TotalMemories: len(memories)}
	recentCutoff := e.now().Add(-contextRecentWindow).UnixMilli()

	var decisions, patterns []store.Memory
	for _, m := range memories {
		switch {
		case m.Category == "architecture" && m.Salience >= 0.6:
			decisions = append(decisions, m)
		case m.Category == "pattern":
			patterns = append(patterns, m)
		case m.Category == "todo":
			summary.Pending = appendBrief(summary.Pending, m, contextSectionLimit)
		}
		if m.CreatedAt >= recentCutoff {
			summary.Recent = appendBrief(summary.Recent, m, contextRecentLimit)
		}
	}

	sort.Slice(decisions, func(i, j int) bool { return decisions[i].Salience > decisions[j].Salience })
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Salience > patterns[j].Salience })
	for _, m := range decisions {
		summary.KeyDecisions = appendBrief(summary.KeyDecisions, m, contextSectionLimit)
	}
	for _, m := range patterns {
		summary.Patterns = appendBrief(summary.Patterns, m, contextSectionLimit)
	}

	if query != "" {
		results, err := e.SearchMemories(SearchRequest{
			Query:         query,
			Project:       project,
			IncludeGlobal: true,
			Limit:         contextSectionLimit,
		})
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			summary.Relevant = appendBrief(summary.Relevant, r.Memory, contextSectionLimit)
		}
	}
	return summary, nil
}

func appendBrief(briefs []MemoryBrief, m store.Memory, limit int) []MemoryBrief {
	if len(briefs) >= limit {
		return briefs
	}
	return append(briefs, MemoryBrief{ID: m.ID, Title: m.Title, Category: m.Category, Salience: m.Salience})
}
