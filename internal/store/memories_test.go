package store

import (
	"testing"
	"time"
)

func testMemory(title, content string) *Memory {
	return &Memory{
		Type:         TypeShortTerm,
		Category:     "note",
		Title:        title,
		Content:      content,
		Project:      "demo",
		Salience:     0.5,
		DecayedScore: 0.5,
	}
}

func TestCreateAndGetMemory(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	m := testMemory("Use PostgreSQL", "We chose PostgreSQL for ACID.")
	m.Tags = []string{"postgres", "database"}
	m.Metadata = map[string]any{"source": "chat"}
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	if m.ID == 0 {
		t.Fatal("CreateMemory did not assign an id")
	}

	got, err := db.GetMemory(m.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got == nil {
		t.Fatal("GetMemory returned nil")
	}
	if got.Title != m.Title || got.Content != m.Content {
		t.Errorf("roundtrip mismatch: got %q/%q", got.Title, got.Content)
	}
	if len(got.Tags) != 2 {
		t.Errorf("Tags = %v, want 2 entries", got.Tags)
	}
	if got.Metadata["source"] != "chat" {
		t.Errorf("Metadata = %v, want source=chat", got.Metadata)
	}
	if got.CreatedAt == 0 || got.LastAccessed == 0 {
		t.Error("timestamps not set on insert")
	}
}

func TestGetMemoryMissing(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	got, err := db.GetMemory(9999)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got != nil {
		t.Errorf("GetMemory(9999) = %+v, want nil", got)
	}
}

func TestDeleteRemovesFTSRow(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	m := testMemory("ephemeral", "short lived entry")
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM memories_fts WHERE memories_fts MATCH 'ephemeral'`).Scan(&n); err != nil {
		t.Fatalf("fts count: %v", err)
	}
	if n != 1 {
		t.Fatalf("fts rows before delete = %d, want 1", n)
	}

	if err := db.DeleteMemories([]int64{m.ID}); err != nil {
		t.Fatalf("DeleteMemories: %v", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM memories_fts WHERE memories_fts MATCH 'ephemeral'`).Scan(&n); err != nil {
		t.Fatalf("fts count: %v", err)
	}
	if n != 0 {
		t.Errorf("fts rows after delete = %d, want 0", n)
	}
}

func TestTouchMemory(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	m := testMemory("touched", "content")
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	if err := db.TouchMemory(m.ID, 0.05); err != nil {
		t.Fatalf("TouchMemory: %v", err)
	}
	got, err := db.GetMemory(m.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", got.AccessCount)
	}
	if got.Salience <= 0.5 {
		t.Errorf("Salience = %v, want > 0.5", got.Salience)
	}

	// Salience saturates at 1.0 under repeated touches.
	for i := 0; i < 30; i++ {
		if err := db.TouchMemory(m.ID, 0.1); err != nil {
			t.Fatalf("TouchMemory: %v", err)
		}
	}
	got, _ = db.GetMemory(m.ID)
	if got.Salience > 1.0 {
		t.Errorf("Salience = %v, want <= 1.0", got.Salience)
	}
}

func TestSelectForgetIDs(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	old := testMemory("old todo", "stale entry")
	old.Category = "todo"
	old.CreatedAt = time.Now().AddDate(0, 0, -30).UnixMilli()
	old.LastAccessed = old.CreatedAt
	if err := db.CreateMemory(old); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	fresh := testMemory("fresh note", "recent entry")
	if err := db.CreateMemory(fresh); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	ids, err := db.SelectForgetIDs(ForgetFilter{Category: "todo"})
	if err != nil {
		t.Fatalf("SelectForgetIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != old.ID {
		t.Errorf("category filter = %v, want [%d]", ids, old.ID)
	}

	ids, err = db.SelectForgetIDs(ForgetFilter{OlderThanDays: 7})
	if err != nil {
		t.Fatalf("SelectForgetIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != old.ID {
		t.Errorf("olderThan filter = %v, want [%d]", ids, old.ID)
	}
}

func TestFindDuplicate(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	m := testMemory("dup", "content")
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	id, err := db.FindDuplicate(m.Project, m.Title, m.CreatedAt)
	if err != nil {
		t.Fatalf("FindDuplicate: %v", err)
	}
	if id != m.ID {
		t.Errorf("FindDuplicate = %d, want %d", id, m.ID)
	}

	id, err = db.FindDuplicate(m.Project, "other title", m.CreatedAt)
	if err != nil {
		t.Fatalf("FindDuplicate: %v", err)
	}
	if id != 0 {
		t.Errorf("FindDuplicate for absent triple = %d, want 0", id)
	}
}

func TestSearchCandidatesEmptyQuery(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	low := testMemory("low", "low scored")
	low.DecayedScore = 0.2
	high := testMemory("high", "high scored")
	high.DecayedScore = 0.9
	for _, m := range []*Memory{low, high} {
		if err := db.CreateMemory(m); err != nil {
			t.Fatalf("CreateMemory: %v", err)
		}
	}

	got, err := db.SearchCandidates(SearchFilter{Project: "demo", Limit: 10})
	if err != nil {
		t.Fatalf("SearchCandidates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}
	if got[0].ID != high.ID {
		t.Errorf("first candidate = %d, want highest decayed score %d", got[0].ID, high.ID)
	}
}

func TestSearchCandidatesFTS(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	m := testMemory("Use PostgreSQL", "We chose PostgreSQL for ACID.")
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	other := testMemory("Redis cache", "Cache sessions in Redis.")
	if err := db.CreateMemory(other); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	got, err := db.SearchCandidates(SearchFilter{MatchQuery: `"postgres"*`, Project: "demo", Limit: 10})
	if err != nil {
		t.Fatalf("SearchCandidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != m.ID {
		t.Fatalf("candidates = %+v, want only the postgres memory", got)
	}
	if got[0].BM25 >= 0 {
		t.Errorf("BM25 = %v, want negative rank from fts5", got[0].BM25)
	}
}
