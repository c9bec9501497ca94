package store

import (
	"database/sql"
	"fmt"
)

// Txn wraps a write transaction so multi-step mutations (consolidation,
// merge, import) commit or roll back as a unit.
type Txn struct {
	tx *sql.Tx
}

// BeginTxn starts a write transaction, enforcing the size guardrails first.
func (db *DB) BeginTxn() (*Txn, error) {
	if err := db.CheckWritable(); err != nil {
		return nil, err
	}
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin txn: %w", MapError(err))
	}
	return &Txn{tx: tx}, nil
}

func (t *Txn) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit txn: %w", MapError(err))
	}
	return nil
}

// Rollback is safe to defer after Commit; the driver's ErrTxDone is ignored.
func (t *Txn) Rollback() {
	_ = t.tx.Rollback()
}

func (t *Txn) ListByTypes(types ...string) ([]Memory, error) {
	return listByTypes(t.tx, types...)
}

func (t *Txn) CreateMemory(m *Memory) error {
	return createMemory(t.tx, m)
}

func (t *Txn) DeleteMemories(ids []int64) error {
	return deleteMemories(t.tx, ids)
}

func (t *Txn) SetType(id int64, memType string) error {
	return setType(t.tx, id, memType)
}

func (t *Txn) SetSalience(id int64, salience float64) error {
	return setSalience(t.tx, id, salience)
}

func (t *Txn) SetDecayedScore(id int64, score float64) error {
	return setDecayedScore(t.tx, id, score)
}

func (t *Txn) UpdateMerged(m *Memory) error {
	return updateMerged(t.tx, m)
}

func (t *Txn) RewriteLinks(from, to int64) error {
	return rewriteLinks(t.tx, from, to)
}

func (t *Txn) LinkCounts() (map[int64]int, error) {
	return linkCounts(t.tx)
}

func (t *Txn) FindDuplicate(project, title string, createdAt int64) (int64, error) {
	return findDuplicate(t.tx, project, title, createdAt)
}

func (t *Txn) SetMeta(key, value string) error {
	return setMeta(t.tx, key, value)
}
