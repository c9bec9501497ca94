package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Memory types.
const (
	TypeShortTerm = "short_term"
	TypeLongTerm  = "long_term"
	TypeEpisodic  = "episodic"
)

// Memory scopes.
const (
	ScopeProject = "project"
	ScopeGlobal  = "global"
)

// GlobalProject is the sentinel project visible from every scope.
const GlobalProject = "*"

// Categories classifies memories; the deletion threshold depends on it.
var Categories = []string{
	"architecture", "pattern", "preference", "error", "context",
	"learning", "todo", "note", "relationship", "custom",
}

// ValidCategory reports whether c is a known category.
func ValidCategory(c string) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Memory is the primary unit of storage.
type Memory struct {
	ID           int64          `json:"id"`
	Type         string         `json:"type"`
	Category     string         `json:"category"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	Project      string         `json:"project"`
	Scope        string         `json:"scope"`
	Transferable bool           `json:"transferable"`
	Tags         []string       `json:"tags"`
	Salience     float64        `json:"salience"`
	DecayedScore float64        `json:"decayed_score"`
	AccessCount  int            `json:"access_count"`
	LastAccessed int64          `json:"last_accessed"`
	CreatedAt    int64          `json:"created_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

const memoryColumns = `id, type, category, title, content, project, scope, transferable,
	tags, salience, decayed_score, access_count, last_accessed, created_at, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var m Memory
	var transferable int
	var tagsJSON, metaJSON string
	err := row.Scan(&m.ID, &m.Type, &m.Category, &m.Title, &m.Content,
		&m.Project, &m.Scope, &transferable,
		&tagsJSON, &m.Salience, &m.DecayedScore, &m.AccessCount,
		&m.LastAccessed, &m.CreatedAt, &metaJSON)
	if err != nil {
		return nil, err
	}
	m.Transferable = transferable != 0
	m.Tags = decodeTags(tagsJSON)
	m.Metadata = decodeMetadata(metaJSON)
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// decodeTags parses the JSON-encoded tags column defensively: a broken or
// legacy value degrades to no tags rather than failing the read.
func decodeTags(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil
	}
	return tags
}

func decodeMetadata(s string) map[string]any {
	if s == "" || s == "{}" {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(s), &meta); err != nil {
		return nil
	}
	return meta
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func encodeMetadata(meta map[string]any) string {
	if len(meta) == 0 {
		return "{}"
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// CreateMemory inserts a memory and its full-text row (via trigger) in one
// statement. Fills ID, LastAccessed, and CreatedAt on the passed value.
func (db *DB) CreateMemory(m *Memory) error {
	if err := db.CheckWritable(); err != nil {
		return err
	}
	return createMemory(db.DB, m)
}

func createMemory(q querier, m *Memory) error {
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	if m.LastAccessed == 0 {
		m.LastAccessed = m.CreatedAt
	}
	if m.Type == "" {
		m.Type = TypeShortTerm
	}
	if m.Scope == "" {
		m.Scope = ScopeProject
	}
	if m.Project == "" {
		m.Project = GlobalProject
	}
	transferable := 0
	if m.Transferable {
		transferable = 1
	}

	result, err := q.Exec(`
		INSERT INTO memories (type, category, title, content, project, scope, transferable,
			tags, salience, decayed_score, access_count, last_accessed, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Type, m.Category, m.Title, m.Content, m.Project, m.Scope, transferable,
		encodeTags(m.Tags), m.Salience, m.DecayedScore, m.AccessCount,
		m.LastAccessed, m.CreatedAt, encodeMetadata(m.Metadata))
	if err != nil {
		return fmt.Errorf("create memory: %w", MapError(err))
	}
	m.ID, _ = result.LastInsertId()
	return nil
}

// GetMemory returns a memory by id, or nil if not found.
func (db *DB) GetMemory(id int64) (*Memory, error) {
	return getMemory(db.DB, id)
}

func getMemory(q querier, id int64) (*Memory, error) {
	m, err := scanMemory(q.QueryRow(
		`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %d: %w", id, MapError(err))
	}
	return m, nil
}

// GetMemoriesByIDs returns the memories for the given ids, in no particular order.
func (db *DB) GetMemoriesByIDs(ids []int64) ([]Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	rows, err := db.Query(
		`SELECT `+memoryColumns+` FROM memories WHERE id IN (`+strings.Join(ph, ",")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get memories by ids: %w", MapError(err))
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListByTypes returns all memories of the given lifecycle types.
func (db *DB) ListByTypes(types ...string) ([]Memory, error) {
	return listByTypes(db.DB, types...)
}

func listByTypes(q querier, types ...string) ([]Memory, error) {
	if len(types) == 0 {
		types = []string{TypeShortTerm, TypeLongTerm, TypeEpisodic}
	}
	ph := make([]string, len(types))
	args := make([]any, len(types))
	for i, t := range types {
		ph[i] = "?"
		args[i] = t
	}
	rows, err := q.Query(
		`SELECT `+memoryColumns+` FROM memories WHERE type IN (`+strings.Join(ph, ",")+`)
		 ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", MapError(err))
	}
	defer rows.Close()
	return scanMemories(rows)
}

// DeleteMemories removes memories and, via triggers and cascades, their
// full-text rows and link edges.
func (db *DB) DeleteMemories(ids []int64) error {
	if err := db.CheckWritable(); err != nil {
		return err
	}
	return deleteMemories(db.DB, ids)
}

func deleteMemories(q querier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	if _, err := q.Exec(
		`DELETE FROM memories WHERE id IN (`+strings.Join(ph, ",")+`)`, args...); err != nil {
		return fmt.Errorf("delete memories: %w", MapError(err))
	}
	return nil
}

// TouchMemory records an access: bumps access_count, sets last_accessed, and
// raises salience by the given boost, capped at 1.0.
func (db *DB) TouchMemory(id int64, boost float64) error {
	if err := db.CheckWritable(); err != nil {
		return err
	}
	return touchMemory(db.DB, id, boost)
}

func touchMemory(q querier, id int64, boost float64) error {
	now := time.Now().UnixMilli()
	_, err := q.Exec(`
		UPDATE memories
		SET access_count = access_count + 1,
		    last_accessed = ?,
		    salience = MIN(1.0, salience + ?)
		WHERE id = ?
	`, now, boost, id)
	if err != nil {
		return fmt.Errorf("touch memory %d: %w", id, MapError(err))
	}
	return nil
}

func setType(q querier, id int64, memType string) error {
	if _, err := q.Exec(`UPDATE memories SET type = ? WHERE id = ?`, memType, id); err != nil {
		return fmt.Errorf("set type for %d: %w", id, MapError(err))
	}
	return nil
}

func setSalience(q querier, id int64, salience float64) error {
	if _, err := q.Exec(`UPDATE memories SET salience = ? WHERE id = ?`, salience, id); err != nil {
		return fmt.Errorf("set salience for %d: %w", id, MapError(err))
	}
	return nil
}

func setDecayedScore(q querier, id int64, score float64) error {
	if _, err := q.Exec(`UPDATE memories SET decayed_score = ? WHERE id = ?`, score, id); err != nil {
		return fmt.Errorf("set decayed score for %d: %w", id, MapError(err))
	}
	return nil
}

// UpdateContent replaces a memory's content, refreshing the full-text row.
func (db *DB) UpdateContent(id int64, content string) error {
	if err := db.CheckWritable(); err != nil {
		return err
	}
	if _, err := db.Exec(`UPDATE memories SET content = ? WHERE id = ?`, content, id); err != nil {
		return fmt.Errorf("update content for %d: %w", id, MapError(err))
	}
	return nil
}

func updateMerged(q querier, m *Memory) error {
	_, err := q.Exec(`
		UPDATE memories
		SET type = ?, content = ?, tags = ?, salience = ?, access_count = ?
		WHERE id = ?
	`, m.Type, m.Content, encodeTags(m.Tags), m.Salience, m.AccessCount, m.ID)
	if err != nil {
		return fmt.Errorf("update merged memory %d: %w", m.ID, MapError(err))
	}
	return nil
}

// CountByType returns memory counts keyed by lifecycle type.
func (db *DB) CountByType() (map[string]int, error) {
	return countByType(db.DB)
}

func countByType(q querier) (map[string]int, error) {
	rows, err := q.Query(`SELECT type, COUNT(*) FROM memories GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("count by type: %w", MapError(err))
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// CountByCategory returns memory counts keyed by category.
func (db *DB) CountByCategory() (map[string]int, error) {
	rows, err := db.Query(`SELECT category, COUNT(*) FROM memories GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("count by category: %w", MapError(err))
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var c string
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, err
		}
		counts[c] = n
	}
	return counts, rows.Err()
}

// ForgetFilter selects memories for bulk deletion.
type ForgetFilter struct {
	IDs           []int64
	Category      string
	OlderThanDays int
	Project       string
}

// SelectForgetIDs returns the ids matching the filter.
func (db *DB) SelectForgetIDs(f ForgetFilter) ([]int64, error) {
	var conds []string
	var args []any
	if len(f.IDs) > 0 {
		ph := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			ph[i] = "?"
			args = append(args, id)
		}
		conds = append(conds, `id IN (`+strings.Join(ph, ",")+`)`)
	}
	if f.Category != "" {
		conds = append(conds, `category = ?`)
		args = append(args, f.Category)
	}
	if f.OlderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -f.OlderThanDays).UnixMilli()
		conds = append(conds, `created_at < ?`)
		args = append(args, cutoff)
	}
	if f.Project != "" && f.Project != GlobalProject {
		conds = append(conds, `project = ?`)
		args = append(args, f.Project)
	}
	query := `SELECT id FROM memories`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("select forget ids: %w", MapError(err))
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindDuplicate returns the id of a memory with the same (project, title,
// created_at) triple, or 0. Import uses it to stay idempotent.
func (db *DB) FindDuplicate(project, title string, createdAt int64) (int64, error) {
	return findDuplicate(db.DB, project, title, createdAt)
}

func findDuplicate(q querier, project, title string, createdAt int64) (int64, error) {
	var id int64
	err := q.QueryRow(`
		SELECT id FROM memories WHERE project = ? AND title = ? AND created_at = ?
	`, project, title, createdAt).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find duplicate: %w", MapError(err))
	}
	return id, nil
}

// ListByProject returns memories visible to the given project, newest first.
// An empty or "*" project returns everything.
func (db *DB) ListByProject(project string, includeGlobal bool) ([]Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories`
	var args []any
	if project != "" && project != GlobalProject {
		if includeGlobal {
			query += ` WHERE project = ? OR scope = 'global' OR project = '*'`
		} else {
			query += ` WHERE project = ?`
		}
		args = append(args, project)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list by project: %w", MapError(err))
	}
	defer rows.Close()
	return scanMemories(rows)
}
