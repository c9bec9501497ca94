package engine

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/michaelv2/claude-cortex-core/internal/store"
)

// Relevance blend weights. The sum of the fixed components is 0.65; the
// situational boosts (recency, category, links, tags) add up to 0.45 more.
const (
	weightBM25     = 0.30
	weightDecayed  = 0.25
	weightPriority = 0.10
	weightCategory = 0.10
	weightLinks    = 0.15
	weightTags     = 0.10
)

// reinforceTop is how many leading results receive access reinforcement.
const reinforceTop = 5

// enrichmentMinTokens is the minimum number of query tokens absent from the
// top result before the query is appended as enrichment context.
const enrichmentMinTokens = 30

// SearchRequest is the input to SearchMemories.
type SearchRequest struct {
	Query          string
	Project        string
	Category       string
	MinSalience    float64
	IncludeGlobal  bool
	IncludeDecayed bool
	Limit          int
	// Mode selects ranking: "query" (default) ranks by relevance,
	// "recent" by last access, "important" by salience.
	Mode string
}

// SearchResult pairs a memory with its computed relevance.
type SearchResult struct {
	Memory    store.Memory `json:"memory"`
	Relevance float64      `json:"relevance"`
}

// ftsSpecials are the characters stripped from query terms before they are
// quoted for FTS5. Quotes are handled separately by doubling.
const ftsSpecials = "-:*^()&|./,{}+"

// EscapeFTSQuery rewrites a raw user query as a safe FTS5 match expression:
// every term is quoted (forcing literal matching of AND/OR/NOT) and given a
// prefix wildcard. Returns "" for a query with no searchable terms.
func EscapeFTSQuery(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(ftsSpecials, r) {
			return ' '
		}
		return r
	}, query)

	var terms []string
	for _, tok := range strings.Fields(cleaned) {
		tok = strings.ReplaceAll(tok, `"`, `""`)
		if tok == "" {
			continue
		}
		terms = append(terms, `"`+tok+`"*`)
	}
	return strings.Join(terms, " ")
}

// SearchMemories runs full-text search blended with decay, recency, link,
// and tag signals, then applies access reinforcement to the top results in
// a background task.
func (e *Engine) SearchMemories(req SearchRequest) ([]SearchResult, error) {
	if err := e.checkDB(); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	switch req.Mode {
	case "", "query":
	case "recent", "important":
		return e.browse(req, limit)
	}

	match := EscapeFTSQuery(req.Query)
	candidates, err := e.db.SearchCandidates(store.SearchFilter{
		MatchQuery:    match,
		Project:       e.resolveProject(req.Project),
		IncludeGlobal: req.IncludeGlobal,
		Category:      req.Category,
		MinSalience:   req.MinSalience,
		Limit:         max(limit*5, 50),
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	now := e.now()
	queryTokens := Tokenize(req.Query)
	inferredCategory := ""
	if req.Query != "" {
		inferredCategory = SuggestCategory(req.Query, req.Query)
	}

	// BM25 is normalized against the best rank in this result set so the
	// 0.30 weight stays stable across FTS implementations.
	maxBM25 := 0.0
	for _, c := range candidates {
		if abs := -c.BM25; abs > maxBM25 {
			maxBM25 = abs
		}
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	linkedSalience, err := e.db.MeanLinkedSalience(ids)
	if err != nil {
		e.log.Warn("link boost unavailable", zap.Error(err))
		linkedSalience = map[int64]float64{}
	}

	var results []SearchResult
	for _, c := range candidates {
		decayed := DecayedScore(&c.Memory, now, e.cfg.DecayRate)
		if !req.IncludeDecayed && decayed < DeletionThreshold(c.Category) {
			continue
		}
		c.Memory.DecayedScore = decayed // recomputed on the fly; persisted by consolidation

		score := weightDecayed*decayed + weightPriority*c.Salience
		if match != "" && maxBM25 > 0 {
			score += weightBM25 * (-c.BM25 / maxBM25)
		}
		score += recencyBoost(now, c.LastAccessed)
		if inferredCategory != "" && inferredCategory == c.Category {
			score += weightCategory
		}
		score += weightLinks * linkedSalience[c.ID]
		if len(c.Tags) > 0 && len(queryTokens) > 0 {
			score += weightTags * JaccardSets(queryTokens, tagSet(c.Tags))
		}

		results = append(results, SearchResult{Memory: c.Memory, Relevance: score})
	}

	if match == "" {
		// No textual signal: pure decayed-score ordering.
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Memory.DecayedScore > results[j].Memory.DecayedScore
		})
	} else {
		sort.SliceStable(results, func(i, j int) bool { return results[i].Relevance > results[j].Relevance })
	}
	if len(results) > limit {
		results = results[:limit]
	}

	e.scheduleReinforcement(req.Query, results)
	return results, nil
}

// browse serves the "recent" and "important" recall modes without
// reinforcement side effects.
func (e *Engine) browse(req SearchRequest, limit int) ([]SearchResult, error) {
	candidates, err := e.db.SearchCandidates(store.SearchFilter{
		Project:       e.resolveProject(req.Project),
		IncludeGlobal: req.IncludeGlobal,
		Category:      req.Category,
		MinSalience:   req.MinSalience,
		Limit:         max(limit*5, 50),
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if req.Mode == "recent" {
			return candidates[i].LastAccessed > candidates[j].LastAccessed
		}
		return candidates[i].Salience > candidates[j].Salience
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = SearchResult{Memory: c.Memory, Relevance: c.Memory.DecayedScore}
	}
	return results, nil
}

func recencyBoost(now time.Time, lastAccessedMs int64) float64 {
	age := now.Sub(time.UnixMilli(lastAccessedMs))
	switch {
	case age < time.Hour:
		return 0.10
	case age < 24*time.Hour:
		return 0.05
	default:
		return 0
	}
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[strings.ToLower(t)] = struct{}{}
	}
	return set
}

// scheduleReinforcement applies the search side effects in a background task
// after the read: access touches, pairwise Hebbian links among the top
// results, and query enrichment of the top result. Each write commits on its
// own; they are not grouped in one transaction, so a failure part-way leaves
// the earlier writes in place. A failure here never reaches the read caller.
func (e *Engine) scheduleReinforcement(query string, results []SearchResult) {
	if len(results) == 0 {
		return
	}
	top := make([]store.Memory, 0, reinforceTop)
	for i, r := range results {
		if i >= reinforceTop {
			break
		}
		top = append(top, r.Memory)
	}

	e.submit("search reinforcement", func() error {
		if err := e.db.CheckWritable(); err != nil {
			return err
		}
		now := e.now()
		for _, m := range top {
			boost := 0.05 / float64(1+m.AccessCount)
			if err := e.db.TouchMemory(m.ID, boost); err != nil {
				return err
			}
			e.noteAccess(m.ID, now)
		}
		// Memories retrieved together link together.
		for i := 0; i < len(top); i++ {
			for j := i + 1; j < len(top); j++ {
				if err := e.db.CreateOrStrengthenLink(top[i].ID, top[j].ID, store.RelRelated, 0.1, 0.05); err != nil {
					return err
				}
			}
		}
		return e.enrichTopResult(query, &top[0])
	})
}

// enrichTopResult appends the query as context when it contributes enough
// new tokens, keeping the stored content inside the 10 KiB cap.
func (e *Engine) enrichTopResult(query string, m *store.Memory) error {
	if query == "" {
		return nil
	}
	contentTokens := Tokenize(m.Content)
	novel := 0
	for tok := range Tokenize(query) {
		if _, ok := contentTokens[tok]; !ok {
			novel++
		}
	}
	if novel < enrichmentMinTokens {
		return nil
	}
	addition := "\n\n[Context] " + query
	if len(m.Content)+len(addition) > maxContentBytes {
		return nil
	}
	return e.db.UpdateContent(m.ID, m.Content+addition)
}
