package drawable

import (
	"context"
	"path/filepath"
	"testing"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	tmpDir := t.TempDir()
	return filepath.Join(tmpDir, "drawable.db")
}

// openTestDB opens and initializes a fresh store
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

// TestOpen_Success tests successful database creation
func TestOpen_Success(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

// TestOpen_CreatesParentDir tests that missing directories are created
func TestOpen_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "drawable.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()
}

// TestInitSchema_Success tests schema creation
func TestInitSchema_Success(t *testing.T) {
	db := openTestDB(t)

	tables := []string{"drawable_files", "datasource_status"}
	for _, table := range tables {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		err := db.conn.QueryRow(query, table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

// TestInitSchema_Idempotent tests that schema initialization is idempotent
func TestInitSchema_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := db.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

// TestClose_Idempotent tests that Close can be called twice
func TestClose_Idempotent(t *testing.T) {
	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("First Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Second Close() failed: %v", err)
	}
}

// TestTx_Rollback tests that rolled back writes do not persist
func TestTx_Rollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}

	rec := &Record{FileID: 1, DataSourceID: 10, Path: "/img", Name: "a.jpg"}
	if err := tx.UpsertRecord(ctx, rec); err != nil {
		t.Fatalf("UpsertRecord() failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}

	inDB, err := db.InDB(ctx, 1)
	if err != nil {
		t.Fatalf("InDB() failed: %v", err)
	}
	if inDB {
		t.Error("Record persisted after rollback")
	}
}

// TestTx_RollbackAfterCommit tests that Rollback after Commit is a no-op
func TestTx_RollbackAfterCommit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	rec := &Record{FileID: 2, DataSourceID: 10, Path: "/img", Name: "b.jpg"}
	if err := tx.UpsertRecord(ctx, rec); err != nil {
		t.Fatalf("UpsertRecord() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback() after Commit failed: %v", err)
	}

	inDB, err := db.InDB(ctx, 2)
	if err != nil {
		t.Fatalf("InDB() failed: %v", err)
	}
	if !inDB {
		t.Error("Committed record missing")
	}
}
