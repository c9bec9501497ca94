package store

import (
	"fmt"
	"strings"
)

// SearchFilter narrows the candidate set fed to relevance ranking.
type SearchFilter struct {
	// MatchQuery is an already-escaped FTS5 query. Empty skips the
	// full-text join and orders by decayed_score DESC.
	MatchQuery    string
	Project       string
	IncludeGlobal bool
	Category      string
	MinSalience   float64
	Limit         int
}

// Candidate is a memory row plus its raw BM25 rank (0 when no query).
type Candidate struct {
	Memory
	BM25 float64
}

// SearchCandidates returns memories matching the filter. BM25 ranks come back
// raw (more negative = better); normalization happens in the ranking layer.
func (db *DB) SearchCandidates(f SearchFilter) ([]Candidate, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var conds []string
	var args []any

	if f.Project != "" && f.Project != GlobalProject {
		if f.IncludeGlobal {
			conds = append(conds, `(m.project = ? OR m.scope = 'global' OR m.project = '*')`)
		} else {
			conds = append(conds, `m.project = ?`)
		}
		args = append(args, f.Project)
	}
	if f.Category != "" {
		conds = append(conds, `m.category = ?`)
		args = append(args, f.Category)
	}
	if f.MinSalience > 0 {
		conds = append(conds, `m.salience >= ?`)
		args = append(args, f.MinSalience)
	}

	var query string
	if f.MatchQuery != "" {
		query = `
			SELECT ` + prefixColumns("m") + `, bm25(memories_fts) AS rank
			FROM memories_fts
			JOIN memories m ON m.id = memories_fts.rowid
			WHERE memories_fts MATCH ?`
		args = append([]any{f.MatchQuery}, args...)
		if len(conds) > 0 {
			query += ` AND ` + strings.Join(conds, " AND ")
		}
		query += ` ORDER BY rank LIMIT ?`
	} else {
		query = `SELECT ` + prefixColumns("m") + `, 0.0 AS rank FROM memories m`
		if len(conds) > 0 {
			query += ` WHERE ` + strings.Join(conds, " AND ")
		}
		query += ` ORDER BY m.decayed_score DESC LIMIT ?`
	}
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", MapError(err))
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var transferable int
		var tagsJSON, metaJSON string
		if err := rows.Scan(&c.ID, &c.Type, &c.Category, &c.Title, &c.Content,
			&c.Project, &c.Scope, &transferable,
			&tagsJSON, &c.Salience, &c.DecayedScore, &c.AccessCount,
			&c.LastAccessed, &c.CreatedAt, &metaJSON, &c.BM25); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Transferable = transferable != 0
		c.Tags = decodeTags(tagsJSON)
		c.Metadata = decodeMetadata(metaJSON)
		out = append(out, c)
	}
	return out, rows.Err()
}

func prefixColumns(alias string) string {
	cols := strings.Split(memoryColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
