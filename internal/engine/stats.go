package engine

import (
	"strconv"
	"time"
)

// Stats summarizes the memory store.
type Stats struct {
	Total             int            `json:"total"`
	ByType            map[string]int `json:"by_type"`
	ByCategory        map[string]int `json:"by_category"`
	Links             int            `json:"links"`
	DBSizeBytes       int64          `json:"db_size_bytes"`
	LastConsolidation *time.Time     `json:"last_consolidation,omitempty"`
}

// Stats returns counts by type and category plus store-level figures.
func (e *Engine) Stats() (*Stats, error) {
	if err := e.checkDB(); err != nil {
		return nil, err
	}
	byType, err := e.db.CountByType()
	if err != nil {
		return nil, err
	}
	byCategory, err := e.db.CountByCategory()
	if err != nil {
		return nil, err
	}
	links, err := e.db.CountLinks()
	if err != nil {
		return nil, err
	}

	s := &Stats{
		ByType:      byType,
		ByCategory:  byCategory,
		Links:       links,
		DBSizeBytes: e.db.FileSize(),
	}
	for _, n := range byType {
		s.Total += n
	}
	if v, ok, err := e.db.GetMeta(metaLastConsolidation); err == nil && ok {
		if ms, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			t := time.UnixMilli(ms)
			s.LastConsolidation = &t
		}
	}
	return s, nil
}
