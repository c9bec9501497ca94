package engine

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/michaelv2/claude-cortex-core/internal/memerr"
	"github.com/michaelv2/claude-cortex-core/internal/store"
)

// Content limits.
const (
	maxContentBytes  = 10 * 1024
	truncationMarker = "\n[truncated]"
	maxTitleLen      = 200
)

// Auto-link tuning: how many similarity candidates to inspect and how many
// edges to create per insert.
const (
	autoLinkCandidates = 20
	autoLinkMaxEdges   = 3
)

// AddRequest is the input to AddMemory.
type AddRequest struct {
	Title        string
	Content      string
	Category     string
	Type         string
	Project      string
	Scope        string
	Tags         []string
	Importance   string
	Salience     *float64
	Transferable bool
	Metadata     map[string]any
	// Strict raises CONTENT_TOO_LARGE instead of truncating oversized content.
	Strict bool
}

// AddMemory scores, classifies, stores, and auto-links a new memory.
// Returns the new id.
func (e *Engine) AddMemory(req AddRequest) (int64, error) {
	if err := e.checkDB(); err != nil {
		return 0, err
	}

	content := req.Content
	if len(content) > maxContentBytes {
		if req.Strict {
			return 0, memerr.ContentTooLarge(len(content))
		}
		content = content[:maxContentBytes-len(truncationMarker)] + truncationMarker
	}
	title := req.Title
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen]
	}

	tags, err := normalizeTags(req.Tags)
	if err != nil {
		return 0, err
	}

	salience := ScoreSalience(title+" "+content, req.Importance)
	if req.Salience != nil {
		salience = clampUnit(*req.Salience)
	}
	category := req.Category
	if !store.ValidCategory(category) {
		category = SuggestCategory(title, content)
	}
	memType := req.Type
	if memType != store.TypeShortTerm && memType != store.TypeLongTerm && memType != store.TypeEpisodic {
		memType = store.TypeShortTerm
	}
	scope := req.Scope
	if scope != store.ScopeGlobal {
		scope = store.ScopeProject
	}

	m := &store.Memory{
		Type:         memType,
		Category:     category,
		Title:        title,
		Content:      content,
		Project:      e.resolveProject(req.Project),
		Scope:        scope,
		Transferable: req.Transferable,
		Tags:         ExtractTags(title, content, tags),
		Salience:     salience,
		DecayedScore: salience,
		Metadata:     req.Metadata,
	}
	if err := e.db.CreateMemory(m); err != nil {
		return 0, err
	}

	if err := e.autoLink(m); err != nil {
		// Linking is best-effort; the insert has already committed.
		e.log.Warn("auto-link failed", zap.Int64("id", m.ID), zap.Error(err))
	}

	e.maybeScheduleConsolidation()
	return m.ID, nil
}

// normalizeTags validates caller tags. Control characters mark a malformed
// tag set.
func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.ContainsAny(t, "\x00\n\r\t") {
			return nil, memerr.InvalidQuery("tag contains control characters")
		}
		out = append(out, strings.ToLower(t))
	}
	return out, nil
}

// autoLink searches for similar memories by tags and text and creates up to
// three related edges weighted by Jaccard similarity.
func (e *Engine) autoLink(m *store.Memory) error {
	query := m.Title
	if len(m.Tags) > 0 {
		query += " " + strings.Join(m.Tags, " ")
	}
	// Any shared term makes a candidate; Jaccard decides below.
	match := strings.Join(strings.Fields(EscapeFTSQuery(query)), " OR ")
	if match == "" {
		return nil
	}

	candidates, err := e.db.SearchCandidates(store.SearchFilter{
		MatchQuery:    match,
		Project:       m.Project,
		IncludeGlobal: true,
		Limit:         autoLinkCandidates,
	})
	if err != nil {
		return err
	}

	newTokens := Tokenize(m.Title + " " + m.Content)
	type scored struct {
		id  int64
		sim float64
	}
	var neighbors []scored
	for _, c := range candidates {
		if c.ID == m.ID {
			continue
		}
		sim := JaccardSets(newTokens, Tokenize(c.Title+" "+c.Content))
		if sim <= 0 {
			continue
		}
		neighbors = append(neighbors, scored{c.ID, sim})
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].sim > neighbors[j].sim })
	if len(neighbors) > autoLinkMaxEdges {
		neighbors = neighbors[:autoLinkMaxEdges]
	}

	for _, n := range neighbors {
		strength := 0.2 + 0.5*n.sim
		if strength > 0.9 {
			strength = 0.9
		}
		if err := e.db.CreateOrStrengthenLink(m.ID, n.id, store.RelRelated, strength, 0.05); err != nil {
			return err
		}
	}
	return nil
}

// maybeScheduleConsolidation fires an asynchronous consolidation once the
// short-term population crosses 90% of its cap.
func (e *Engine) maybeScheduleConsolidation() {
	counts, err := e.db.CountByType()
	if err != nil {
		e.log.Warn("count by type failed", zap.Error(err))
		return
	}
	if counts[store.TypeShortTerm] > e.cfg.MaxShortTerm*9/10 {
		e.submit("capacity consolidation", func() error {
			_, err := e.Consolidate(context.Background(), ConsolidateOptions{Force: true})
			return err
		})
	}
}
