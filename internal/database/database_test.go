package database

import (
	"strings"
	"testing"
)

func TestOpenRunsMigrations(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'documents'`).Scan(&count)
	if err != nil {
		t.Fatalf("query schema: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected documents table, got count %d", count)
	}
}

func TestOpenFileDatabase(t *testing.T) {
	path := t.TempDir() + "/choreweek.db"
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.Close()

	// Re-opening must not re-apply migrations.
	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	db.Close()
}

func TestDSN(t *testing.T) {
	if got := dsn(Memory); strings.Contains(got, "journal_mode") {
		t.Errorf("memory dsn %q should not ask for WAL", got)
	}
	if got := dsn("choreweek.db"); !strings.HasPrefix(got, "choreweek.db?") || !strings.Contains(got, "journal_mode(WAL)") {
		t.Errorf("file dsn = %q", got)
	}
}

func TestOpenRecordsMigrationVersion(t *testing.T) {
	db, err := Open(Memory)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var version int64
	if err := db.QueryRow(`SELECT MAX(version_id) FROM goose_db_version`).Scan(&version); err != nil {
		t.Fatalf("query version: %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
}
