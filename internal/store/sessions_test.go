package store

import (
	"testing"
)

func TestSessionLifecycle(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	s, err := db.CreateSession("sess-001", "demo")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.StartedAt == 0 {
		t.Error("StartedAt not set")
	}

	got, err := db.GetSession("sess-001")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil || got.Project != "demo" {
		t.Fatalf("GetSession = %+v, want project demo", got)
	}
	if got.EndedAt != nil {
		t.Error("EndedAt set before close")
	}

	if err := db.CloseSession("sess-001", "did things", 3, 5); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	got, _ = db.GetSession("sess-001")
	if got.EndedAt == nil {
		t.Error("EndedAt not set after close")
	}
	if got.Summary != "did things" || got.MemoriesCreated != 3 || got.MemoriesAccessed != 5 {
		t.Errorf("closed session = %+v", got)
	}
}

func TestGetSessionMissing(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	got, err := db.GetSession("nope")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Errorf("GetSession(nope) = %+v, want nil", got)
	}
}

func TestMetadataRoundtrip(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	_, ok, err := db.GetMeta("absent")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if ok {
		t.Error("GetMeta(absent) reported a value")
	}

	if err := db.SetMeta("last_consolidation_at", "12345"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if err := db.SetMeta("last_consolidation_at", "67890"); err != nil {
		t.Fatalf("SetMeta overwrite: %v", err)
	}
	v, ok, err := db.GetMeta("last_consolidation_at")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if !ok || v != "67890" {
		t.Errorf("GetMeta = %q/%v, want 67890/true", v, ok)
	}
}
