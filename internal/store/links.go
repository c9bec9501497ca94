package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Link relationship types.
const (
	RelReferences  = "references"
	RelExtends     = "extends"
	RelContradicts = "contradicts"
	RelRelated     = "related"
)

// ValidRelationship reports whether r is a known relationship type.
func ValidRelationship(r string) bool {
	switch r {
	case RelReferences, RelExtends, RelContradicts, RelRelated:
		return true
	}
	return false
}

// Link is a typed, weighted directed edge between two memories.
type Link struct {
	ID           int64   `json:"id"`
	SourceID     int64   `json:"source_id"`
	TargetID     int64   `json:"target_id"`
	Relationship string  `json:"relationship"`
	Strength     float64 `json:"strength"`
	CreatedAt    int64   `json:"created_at"`
}

// CreateOrStrengthenLink creates the edge at the initial strength, or adds
// delta to an existing one, saturating at 1.0. Idempotent under repeats.
func (db *DB) CreateOrStrengthenLink(source, target int64, relationship string, initial, delta float64) error {
	if err := db.CheckWritable(); err != nil {
		return err
	}
	return createOrStrengthenLink(db.DB, source, target, relationship, initial, delta)
}

func createOrStrengthenLink(q querier, source, target int64, relationship string, initial, delta float64) error {
	now := time.Now().UnixMilli()
	_, err := q.Exec(`
		INSERT INTO memory_links (source_id, target_id, relationship, strength, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, relationship) DO UPDATE SET
			strength = MIN(1.0, strength + ?)
	`, source, target, relationship, clamp01(initial), now, delta)
	if err != nil {
		return fmt.Errorf("create or strengthen link: %w", MapError(err))
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// GetLink returns the edge for the exact (source, target, relationship)
// triple, or nil.
func (db *DB) GetLink(source, target int64, relationship string) (*Link, error) {
	var l Link
	err := db.QueryRow(`
		SELECT id, source_id, target_id, relationship, strength, created_at
		FROM memory_links
		WHERE source_id = ? AND target_id = ? AND relationship = ?
	`, source, target, relationship).Scan(&l.ID, &l.SourceID, &l.TargetID, &l.Relationship, &l.Strength, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", MapError(err))
	}
	return &l, nil
}

// LinksFor returns all edges incident to the memory, strongest first.
func (db *DB) LinksFor(id int64) ([]Link, error) {
	rows, err := db.Query(`
		SELECT id, source_id, target_id, relationship, strength, created_at
		FROM memory_links
		WHERE source_id = ? OR target_id = ?
		ORDER BY strength DESC
	`, id, id)
	if err != nil {
		return nil, fmt.Errorf("links for %d: %w", id, MapError(err))
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.Relationship, &l.Strength, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// LinkCounts returns the number of incident edges per memory id.
func (db *DB) LinkCounts() (map[int64]int, error) {
	return linkCounts(db.DB)
}

func linkCounts(q querier) (map[int64]int, error) {
	rows, err := q.Query(`
		SELECT id, COUNT(*) FROM (
			SELECT source_id AS id FROM memory_links
			UNION ALL
			SELECT target_id AS id FROM memory_links
		) GROUP BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("link counts: %w", MapError(err))
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// MeanLinkedSalience returns, for each given memory, the mean salience of the
// memories it links to (either direction). Missing ids mean no links.
func (db *DB) MeanLinkedSalience(ids []int64) (map[int64]float64, error) {
	out := make(map[int64]float64, len(ids))
	for _, id := range ids {
		var mean sql.NullFloat64
		err := db.QueryRow(`
			SELECT AVG(m.salience)
			FROM memories m
			WHERE m.id IN (
				SELECT target_id FROM memory_links WHERE source_id = ?
				UNION
				SELECT source_id FROM memory_links WHERE target_id = ?
			)
		`, id, id).Scan(&mean)
		if err != nil {
			return nil, fmt.Errorf("mean linked salience for %d: %w", id, MapError(err))
		}
		if mean.Valid {
			out[id] = mean.Float64
		}
	}
	return out, nil
}

// rewriteLinks repoints every edge touching from onto to, inside the caller's
// transaction. Collisions with existing edges collapse (the survivor keeps
// the stronger edge), and self-links produced by the rewrite are dropped.
func rewriteLinks(q querier, from, to int64) error {
	rows, err := q.Query(`
		SELECT id, source_id, target_id, relationship, strength, created_at
		FROM memory_links
		WHERE source_id = ? OR target_id = ?
	`, from, from)
	if err != nil {
		return fmt.Errorf("rewrite links %d -> %d: %w", from, to, MapError(err))
	}
	var old []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.Relationship, &l.Strength, &l.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan link: %w", err)
		}
		old = append(old, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, l := range old {
		if _, err := q.Exec(`DELETE FROM memory_links WHERE id = ?`, l.ID); err != nil {
			return fmt.Errorf("drop rewritten link %d: %w", l.ID, MapError(err))
		}
		src, tgt := l.SourceID, l.TargetID
		if src == from {
			src = to
		}
		if tgt == from {
			tgt = to
		}
		if src == tgt {
			continue
		}
		// Colliding edges fold into the survivor; MAX keeps the stronger one.
		if _, err := q.Exec(`
			INSERT INTO memory_links (source_id, target_id, relationship, strength, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(source_id, target_id, relationship) DO UPDATE SET
				strength = MAX(strength, excluded.strength)
		`, src, tgt, l.Relationship, l.Strength, l.CreatedAt); err != nil {
			return fmt.Errorf("repoint link %d -> %d: %w", from, to, MapError(err))
		}
	}
	return nil
}

// CountLinks returns the total number of edges.
func (db *DB) CountLinks() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM memory_links`).Scan(&n)
	return n, err
}
