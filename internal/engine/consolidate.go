package engine

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/michaelv2/claude-cortex-core/internal/store"
)

// metaLastConsolidation tracks the last completed run in the metadata table.
const metaLastConsolidation = "last_consolidation_at"

// consolidationCooldown is the re-entry guard: a run requested within this
// window of the previous one returns the cached result.
const consolidationCooldown = time.Hour

// mergedContextHeader introduces the bullet summaries folded into a merge
// survivor.
const mergedContextHeader = "Consolidated context:"

// ConsolidateOptions controls a consolidation pass.
type ConsolidateOptions struct {
	// DryRun computes the recompute/promote/delete/evict phases without
	// mutating anything and returns the set that would change.
	DryRun bool
	// Force skips the 1 h re-entry guard.
	Force bool
}

// ConsolidationPreview lists the memories a dry run would change.
type ConsolidationPreview struct {
	WouldPromote []int64 `json:"wouldPromote"`
	WouldDelete  []int64 `json:"wouldDelete"`
	WouldEvict   []int64 `json:"wouldEvict"`
}

// ConsolidationResult summarizes one pass.
type ConsolidationResult struct {
	Consolidated    int                   `json:"consolidated"`
	Decayed         int                   `json:"decayed"`
	Deleted         int                   `json:"deleted"`
	SalienceEvolved int                   `json:"salienceEvolved"`
	Merged          int                   `json:"merged"`
	Preview         *ConsolidationPreview `json:"preview,omitempty"`
}

// Consolidate runs one maintenance pass: recompute decayed scores, promote,
// delete decayed, enforce capacity, merge similar short-term memories,
// evolve hub salience, persist scores, and vacuum after deletions. The whole
// pass runs in a single transaction; cancellation between phases commits the
// phases that completed.
func (e *Engine) Consolidate(ctx context.Context, opts ConsolidateOptions) (*ConsolidationResult, error) {
	if err := e.checkDB(); err != nil {
		return nil, err
	}
	if opts.DryRun {
		return e.consolidatePreview()
	}

	now := e.now()
	if !opts.Force {
		if cached := e.cachedResult(now); cached != nil {
			return cached, nil
		}
	}

	tx, err := e.db.BeginTxn()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	all, err := tx.ListByTypes()
	if err != nil {
		return nil, err
	}

	res := &ConsolidationResult{}
	work := make(map[int64]*store.Memory, len(all))
	for i := range all {
		work[all[i].ID] = &all[i]
	}

	// Phase 1+2: recompute decayed scores and promote eligible memories.
	scores := make(map[int64]float64, len(work))
	promoted := make(map[int64]bool)
	for id, m := range work {
		scores[id] = DecayedScore(m, now, e.cfg.DecayRate)
		if promotionEligible(m, scores[id], e.cfg.SalienceThreshold, e.cfg.MinRetentionHours, now) {
			if err := tx.SetType(id, store.TypeLongTerm); err != nil {
				return nil, err
			}
			m.Type = store.TypeLongTerm
			promoted[id] = true
			res.Consolidated++
		}
	}
	if done, err := e.phaseCheckpoint(ctx, tx, now, res); done {
		return res, err
	}

	// Phase 3: delete memories below their category threshold, sparing ones
	// promoted this pass.
	var decayedOut []int64
	for id, m := range work {
		if promoted[id] {
			continue
		}
		if scores[id] < DeletionThreshold(m.Category) {
			decayedOut = append(decayedOut, id)
		}
	}
	if err := tx.DeleteMemories(decayedOut); err != nil {
		return nil, err
	}
	for _, id := range decayedOut {
		delete(work, id)
	}
	res.Deleted += len(decayedOut)
	if done, err := e.phaseCheckpoint(ctx, tx, now, res); done {
		return res, err
	}

	// Phase 4: enforce hard capacity limits.
	evicted, err := e.enforceCapacity(tx, work)
	if err != nil {
		return nil, err
	}
	res.Deleted += evicted
	if done, err := e.phaseCheckpoint(ctx, tx, now, res); done {
		return res, err
	}

	// Phase 5: merge similar short-term memories.
	merged, err := e.mergeSimilar(tx, work)
	if err != nil {
		return nil, err
	}
	res.Merged = merged
	if done, err := e.phaseCheckpoint(ctx, tx, now, res); done {
		return res, err
	}

	// Phase 6: hub memories gather salience.
	linkCounts, err := tx.LinkCounts()
	if err != nil {
		return nil, err
	}
	for id, m := range work {
		lc := linkCounts[id]
		if lc < 2 {
			continue
		}
		bonus := 0.03 * math.Log2(float64(lc))
		if bonus > 0.1 {
			bonus = 0.1
		}
		m.Salience = clampUnit(m.Salience + bonus)
		if err := tx.SetSalience(id, m.Salience); err != nil {
			return nil, err
		}
		res.SalienceEvolved++
	}

	// Phase 7: persist fresh decayed scores for everything that remains.
	for id, m := range work {
		score := DecayedScore(m, now, e.cfg.DecayRate)
		if score < m.DecayedScore {
			res.Decayed++
		}
		if err := tx.SetDecayedScore(id, score); err != nil {
			return nil, err
		}
	}

	if err := e.finishRun(tx, now, res); err != nil {
		return nil, err
	}
	return res, nil
}

// cachedResult returns the previous result when the last run is inside the
// cooldown. The persisted timestamp covers restarts; a restarted process
// without a cached result reports an empty pass.
func (e *Engine) cachedResult(now time.Time) *ConsolidationResult {
	e.mu.Lock()
	lastRun, lastResult := e.lastRun, e.lastResult
	e.mu.Unlock()

	if !lastRun.IsZero() && now.Sub(lastRun) < consolidationCooldown {
		return lastResult
	}
	if v, ok, err := e.db.GetMeta(metaLastConsolidation); err == nil && ok {
		if ms, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			if now.Sub(time.UnixMilli(ms)) < consolidationCooldown {
				if lastResult != nil {
					return lastResult
				}
				return &ConsolidationResult{}
			}
		}
	}
	return nil
}

// phaseCheckpoint commits the transaction early when the deadline fired.
// The first return is true when the caller should stop.
func (e *Engine) phaseCheckpoint(ctx context.Context, tx *store.Txn, now time.Time, res *ConsolidationResult) (bool, error) {
	if ctx.Err() == nil {
		return false, nil
	}
	if err := e.finishRun(tx, now, res); err != nil {
		return true, err
	}
	return true, ctx.Err()
}

func (e *Engine) finishRun(tx *store.Txn, now time.Time, res *ConsolidationResult) error {
	if err := tx.SetMeta(metaLastConsolidation, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if res.Deleted+res.Merged > 0 {
		if err := e.db.Vacuum(); err != nil {
			e.log.Warn("vacuum failed", zap.Error(err))
		}
	}
	e.mu.Lock()
	e.lastRun = now
	e.lastResult = res
	e.mu.Unlock()
	return nil
}

// enforceCapacity deletes the excess lowest-ranked memories per type.
// Short-term ranks by (salience, last_accessed); long-term additionally by
// access_count.
func (e *Engine) enforceCapacity(tx *store.Txn, work map[int64]*store.Memory) (int, error) {
	evict := func(memType string, limit int, longTerm bool) ([]int64, error) {
		var pool []*store.Memory
		for _, m := range work {
			if m.Type == memType {
				pool = append(pool, m)
			}
		}
		excess := len(pool) - limit
		if excess <= 0 {
			return nil, nil
		}
		sort.Slice(pool, func(i, j int) bool {
			a, b := pool[i], pool[j]
			if a.Salience != b.Salience {
				return a.Salience < b.Salience
			}
			if longTerm && a.AccessCount != b.AccessCount {
				return a.AccessCount < b.AccessCount
			}
			return a.LastAccessed < b.LastAccessed
		})
		ids := make([]int64, excess)
		for i := 0; i < excess; i++ {
			ids[i] = pool[i].ID
		}
		return ids, nil
	}

	var all []int64
	shortIDs, err := evict(store.TypeShortTerm, e.cfg.MaxShortTerm, false)
	if err != nil {
		return 0, err
	}
	all = append(all, shortIDs...)
	longIDs, err := evict(store.TypeLongTerm, e.cfg.MaxLongTerm, true)
	if err != nil {
		return 0, err
	}
	all = append(all, longIDs...)

	if err := tx.DeleteMemories(all); err != nil {
		return 0, err
	}
	for _, id := range all {
		delete(work, id)
	}
	return len(all), nil
}

// mergeSimilar clusters short-term memories within (project, category)
// groups by blended title/content Jaccard similarity and folds each cluster
// into its highest-salience member. Link edges of merged-away memories are
// rewritten to the survivor inside the same transaction.
func (e *Engine) mergeSimilar(tx *store.Txn, work map[int64]*store.Memory) (int, error) {
	type entry struct {
		m            *store.Memory
		titleTokens  map[string]struct{}
		contentToken map[string]struct{}
	}

	groups := make(map[string][]*entry)
	for _, m := range work {
		if m.Type != store.TypeShortTerm {
			continue
		}
		groups[m.Project+"\x00"+m.Category] = append(groups[m.Project+"\x00"+m.Category], &entry{
			m:            m,
			titleTokens:  Tokenize(m.Title),
			contentToken: Tokenize(m.Content),
		})
	}

	merged := 0
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		// Deterministic clustering order.
		sort.Slice(group, func(i, j int) bool { return group[i].m.ID < group[j].m.ID })

		claimed := make(map[int64]bool)
		for i := 0; i < len(group); i++ {
			if claimed[group[i].m.ID] {
				continue
			}
			cluster := []*entry{group[i]}
			for j := i + 1; j < len(group); j++ {
				if claimed[group[j].m.ID] {
					continue
				}
				sim := 0.6*JaccardSets(group[i].contentToken, group[j].contentToken) +
					0.4*JaccardSets(group[i].titleTokens, group[j].titleTokens)
				if sim >= e.cfg.MergeThreshold {
					cluster = append(cluster, group[j])
				}
			}
			if len(cluster) < 2 {
				continue
			}
			for _, c := range cluster {
				claimed[c.m.ID] = true
			}
			members := make([]*store.Memory, len(cluster))
			for k, c := range cluster {
				members[k] = c.m
			}
			n, err := e.mergeCluster(tx, work, members)
			if err != nil {
				return merged, err
			}
			merged += n
		}
	}
	return merged, nil
}

// mergeCluster folds a cluster into its highest-salience member: bullet
// summaries of the others are appended under a "Consolidated context:"
// section, tags union, access counts sum, and salience gets a small boost.
// The survivor graduates to long-term; the rest are deleted after their link
// edges are rewritten onto the survivor.
func (e *Engine) mergeCluster(tx *store.Txn, work map[int64]*store.Memory, cluster []*store.Memory) (int, error) {
	survivor := cluster[0]
	for _, m := range cluster[1:] {
		if m.Salience > survivor.Salience {
			survivor = m
		}
	}

	var bullets []string
	tagSet := make(map[string]bool)
	for _, t := range survivor.Tags {
		tagSet[t] = true
	}
	accessSum := survivor.AccessCount
	var absorbed []int64
	for _, m := range cluster {
		if m.ID == survivor.ID {
			continue
		}
		bullets = append(bullets, "- "+m.Title+": "+summarize(m.Content, 160))
		for _, t := range m.Tags {
			tagSet[t] = true
		}
		accessSum += m.AccessCount
		absorbed = append(absorbed, m.ID)
	}

	content := survivor.Content
	if !strings.Contains(content, mergedContextHeader) {
		content += "\n\n" + mergedContextHeader + "\n"
	} else {
		content += "\n"
	}
	content += strings.Join(bullets, "\n")
	if len(content) > maxContentBytes {
		content = content[:maxContentBytes-len(truncationMarker)] + truncationMarker
	}

	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	survivor.Type = store.TypeLongTerm
	survivor.Content = content
	survivor.Tags = tags
	survivor.AccessCount = accessSum
	survivor.Salience = clampUnit(survivor.Salience + 0.1)
	if err := tx.UpdateMerged(survivor); err != nil {
		return 0, err
	}

	for _, id := range absorbed {
		if err := tx.RewriteLinks(id, survivor.ID); err != nil {
			return 0, err
		}
	}
	if err := tx.DeleteMemories(absorbed); err != nil {
		return 0, err
	}
	for _, id := range absorbed {
		delete(work, id)
	}
	return len(absorbed), nil
}

// summarize returns the first sentence of text, truncated to limit bytes.
func summarize(text string, limit int) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if idx := strings.IndexAny(text, ".!?"); idx > 0 && idx < limit {
		return text[:idx+1]
	}
	if len(text) > limit {
		return text[:limit] + "…"
	}
	return text
}

// consolidatePreview computes the recompute, promote, delete, and evict
// phases without touching the database.
func (e *Engine) consolidatePreview() (*ConsolidationResult, error) {
	all, err := e.db.ListByTypes()
	if err != nil {
		return nil, err
	}
	now := e.now()

	preview := &ConsolidationPreview{}
	res := &ConsolidationResult{Preview: preview}

	type planned struct {
		m       *store.Memory
		score   float64
		promote bool
		drop    bool
	}
	plans := make([]planned, len(all))
	for i := range all {
		m := &all[i]
		score := DecayedScore(m, now, e.cfg.DecayRate)
		p := planned{m: m, score: score}
		if promotionEligible(m, score, e.cfg.SalienceThreshold, e.cfg.MinRetentionHours, now) {
			p.promote = true
		} else if score < DeletionThreshold(m.Category) {
			p.drop = true
		}
		if score < m.DecayedScore {
			res.Decayed++
		}
		plans[i] = p
	}

	var shortPool, longPool []*store.Memory
	for i := range plans {
		p := &plans[i]
		switch {
		case p.promote:
			preview.WouldPromote = append(preview.WouldPromote, p.m.ID)
			res.Consolidated++
			longPool = append(longPool, p.m)
		case p.drop:
			preview.WouldDelete = append(preview.WouldDelete, p.m.ID)
			res.Deleted++
		case p.m.Type == store.TypeShortTerm:
			shortPool = append(shortPool, p.m)
		case p.m.Type == store.TypeLongTerm:
			longPool = append(longPool, p.m)
		}
	}

	evictPlan := func(pool []*store.Memory, limit int, longTerm bool) {
		excess := len(pool) - limit
		if excess <= 0 {
			return
		}
		sort.Slice(pool, func(i, j int) bool {
			a, b := pool[i], pool[j]
			if a.Salience != b.Salience {
				return a.Salience < b.Salience
			}
			if longTerm && a.AccessCount != b.AccessCount {
				return a.AccessCount < b.AccessCount
			}
			return a.LastAccessed < b.LastAccessed
		})
		for i := 0; i < excess; i++ {
			preview.WouldEvict = append(preview.WouldEvict, pool[i].ID)
		}
		res.Deleted += excess
	}
	evictPlan(shortPool, e.cfg.MaxShortTerm, false)
	evictPlan(longPool, e.cfg.MaxLongTerm, true)

	return res, nil
}
