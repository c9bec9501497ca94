package store

import (
	"database/sql"
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: primary memory table",
		SQL: `
CREATE TABLE IF NOT EXISTS memories (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    type           TEXT NOT NULL DEFAULT 'short_term' CHECK (type IN ('short_term', 'long_term', 'episodic')),
    category       TEXT NOT NULL DEFAULT 'note' CHECK (category IN ('architecture', 'pattern', 'preference', 'error', 'context', 'learning', 'todo', 'note', 'relationship', 'custom')),
    title          TEXT NOT NULL,
    content        TEXT NOT NULL,
    project        TEXT NOT NULL DEFAULT '*',
    tags           TEXT NOT NULL DEFAULT '[]',
    salience       REAL NOT NULL DEFAULT 0.5 CHECK (salience >= 0.0 AND salience <= 1.0),
    access_count   INTEGER NOT NULL DEFAULT 0,
    last_accessed  INTEGER NOT NULL,
    created_at     INTEGER NOT NULL,
    metadata       TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_memories_type          ON memories(type);
CREATE INDEX IF NOT EXISTS idx_memories_project       ON memories(project);
CREATE INDEX IF NOT EXISTS idx_memories_category      ON memories(category);
CREATE INDEX IF NOT EXISTS idx_memories_salience      ON memories(salience);
CREATE INDEX IF NOT EXISTS idx_memories_last_accessed ON memories(last_accessed);
`,
	},
	{
		Version:     2,
		Description: "memories_fts: full-text index over title, content, tags",
		SQL: `
CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
    title, content, tags,
    content='memories', content_rowid='id',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
    INSERT INTO memories_fts(rowid, title, content, tags)
    VALUES (NEW.id, NEW.title, NEW.content, NEW.tags);
END;

CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, title, content, tags)
    VALUES ('delete', OLD.id, OLD.title, OLD.content, OLD.tags);
END;

CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, title, content, tags)
    VALUES ('delete', OLD.id, OLD.title, OLD.content, OLD.tags);
    INSERT INTO memories_fts(rowid, title, content, tags)
    VALUES (NEW.id, NEW.title, NEW.content, NEW.tags);
END;
`,
	},
	{
		Version:     3,
		Description: "memory_links: typed weighted edges between memories",
		SQL: `
CREATE TABLE IF NOT EXISTS memory_links (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id     INTEGER NOT NULL,
    target_id     INTEGER NOT NULL,
    relationship  TEXT NOT NULL CHECK (relationship IN ('references', 'extends', 'contradicts', 'related')),
    strength      REAL NOT NULL DEFAULT 0.5 CHECK (strength >= 0.0 AND strength <= 1.0),
    created_at    INTEGER NOT NULL,
    FOREIGN KEY (source_id) REFERENCES memories(id) ON DELETE CASCADE,
    FOREIGN KEY (target_id) REFERENCES memories(id) ON DELETE CASCADE,
    UNIQUE(source_id, target_id, relationship),
    CHECK (source_id != target_id)
);

CREATE INDEX IF NOT EXISTS idx_links_source ON memory_links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON memory_links(target_id);
`,
	},
	{
		Version:     4,
		Description: "sessions: bounded work periods",
		SQL: `
CREATE TABLE IF NOT EXISTS sessions (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id        TEXT NOT NULL UNIQUE,
    project           TEXT NOT NULL DEFAULT '*',
    started_at        INTEGER NOT NULL,
    ended_at          INTEGER,
    summary           TEXT,
    memories_created  INTEGER NOT NULL DEFAULT 0,
    memories_accessed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_project    ON sessions(project);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at DESC);
`,
	},
	{
		Version:     5,
		Description: "metadata: engine state key/value",
		SQL: `
CREATE TABLE IF NOT EXISTS metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`,
	},
}

// forwardColumns are added when absent, so databases written by older
// releases (including ~/.claude-memory ones) upgrade in place.
var forwardColumns = []struct {
	Name string
	DDL  string
}{
	{"decayed_score", `ALTER TABLE memories ADD COLUMN decayed_score REAL NOT NULL DEFAULT 0.5 CHECK (decayed_score >= 0.0 AND decayed_score <= 1.0)`},
	{"scope", `ALTER TABLE memories ADD COLUMN scope TEXT NOT NULL DEFAULT 'project' CHECK (scope IN ('project', 'global'))`},
	{"transferable", `ALTER TABLE memories ADD COLUMN transferable INTEGER NOT NULL DEFAULT 0`},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	if err := db.ensureForwardColumns(); err != nil {
		return err
	}

	// Legacy files may lack the decayed_score column until the forward-column
	// pass adds it, so its index is created afterwards.
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_memories_decayed_score ON memories(decayed_score)`); err != nil {
		return fmt.Errorf("create decayed_score index: %w", err)
	}
	return nil
}

func (db *DB) ensureForwardColumns() error {
	for _, col := range forwardColumns {
		exists, err := db.columnExists("memories", col.Name)
		if err != nil {
			return fmt.Errorf("check column %s: %w", col.Name, err)
		}
		if exists {
			continue
		}
		if _, err := db.Exec(col.DDL); err != nil {
			return fmt.Errorf("add column %s: %w", col.Name, err)
		}
	}
	return nil
}

func (db *DB) columnExists(table, column string) (bool, error) {
	rows, err := db.Query(
		fmt.Sprintf("SELECT name FROM pragma_table_info('%s') WHERE name = ?", table), column)
	if err != nil {
		return false, err
	}
	found := rows.Next()
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}
	return found, nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}

// querier is satisfied by both *sql.DB (via DB) and *sql.Tx, letting the
// multi-step consolidation and merge paths run inside one transaction.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}
