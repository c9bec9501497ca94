package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/michaelv2/claude-cortex-core/internal/config"
	"github.com/michaelv2/claude-cortex-core/internal/memerr"

	_ "modernc.org/sqlite"
)

// Size guardrails for the database file. Mutating writes are rejected once the
// file crosses the hard limit; a warning is logged past the soft limit.
const (
	softSizeLimit = 50 * 1024 * 1024
	hardSizeLimit = 100 * 1024 * 1024
)

// DB wraps a sql.DB connection to the cortex SQLite database.
type DB struct {
	*sql.DB
	Path string

	log      *zap.Logger
	lockPath string
}

// DefaultDBPath returns the database path, honoring the legacy
// ~/.claude-memory directory when it exists and ~/.claude-cortex does not.
func DefaultDBPath() (string, error) {
	dir, err := config.DefaultDir()
	if err != nil {
		return "", err
	}
	legacy, err := config.LegacyDir()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if _, err := os.Stat(legacy); err == nil {
			return filepath.Join(legacy, "memories.db"), nil
		}
	}
	return filepath.Join(dir, "memories.db"), nil
}

// Open opens (or creates) the SQLite database at the given path, configures
// pragmas, acquires the advisory lock, and runs migrations.
func Open(path string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // single writer; WAL readers share the handle

	db := &DB{DB: sqlDB, Path: path, log: log}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db.acquireLock()
	return db, nil
}

// OpenMemory opens an in-memory SQLite database for testing.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, Path: ":memory:", log: zap.NewNop()}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close releases the advisory lock and closes the connection.
func (db *DB) Close() error {
	db.releaseLock()
	return db.DB.Close()
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=10000",
		"PRAGMA wal_autocheckpoint=100",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// acquireLock creates the cooperative advisory lock file next to the database.
// The lock is not enforced: a stale or foreign lock is logged, not fatal.
func (db *DB) acquireLock() {
	if db.Path == ":memory:" {
		return
	}
	lockPath := db.Path + "-lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			db.log.Warn("advisory lock already held, continuing cooperatively",
				zap.String("lock", lockPath))
		}
		return
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	db.lockPath = lockPath
}

func (db *DB) releaseLock() {
	if db.lockPath == "" {
		return
	}
	os.Remove(db.lockPath)
	db.lockPath = ""
}

// FileSize returns the current size of the database file in bytes.
func (db *DB) FileSize() int64 {
	if db.Path == ":memory:" {
		return 0
	}
	info, err := os.Stat(db.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// CheckWritable enforces the size guardrails before a mutating write.
// Over the hard limit it returns DB_BLOCKED without modifying state; over the
// soft limit it logs a warning and allows the write.
func (db *DB) CheckWritable() error {
	size := db.FileSize()
	if size >= hardSizeLimit {
		return memerr.Blocked(size)
	}
	if size >= softSizeLimit {
		db.log.Warn("database file over soft size limit",
			zap.String("size", humanize.Bytes(uint64(size))),
			zap.String("code", string(memerr.CodeDBSizeWarning)))
	}
	return nil
}

// MapError translates driver-level failures into the stable error taxonomy.
// Errors that already carry a code, and nil, pass through unchanged.
func MapError(err error) error {
	if err == nil || memerr.CodeOf(err) != "" {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "SQLITE_BUSY"):
		return memerr.Busy(err)
	case strings.Contains(msg, "database table is locked"), strings.Contains(msg, "SQLITE_LOCKED"):
		return memerr.New(memerr.CodeDBLocked, "table is locked").WithCause(err)
	case strings.Contains(msg, "malformed"), strings.Contains(msg, "corrupt"):
		return memerr.Corrupt(err)
	case strings.Contains(msg, "fts5: syntax error"), strings.Contains(msg, "unknown special query"):
		return memerr.InvalidQuery(msg)
	}
	return err
}

// Vacuum compacts the database file. Must run outside any transaction.
func (db *DB) Vacuum() error {
	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", MapError(err))
	}
	return nil
}
