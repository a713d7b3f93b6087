package gallery

import (
	"context"
	"testing"

	"github.com/sleuthkit/drawsync/internal/drawable"
)

// TestFileMetadataCache_ReadThrough tests the first-access load
func TestFileMetadataCache_ReadThrough(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpsertRecord(&drawable.Record{FileID: 1, DataSourceID: 1, Name: "a.jpg"}); err != nil {
		t.Fatalf("UpsertRecord() failed: %v", err)
	}

	cache := NewFileMetadataCache(db)

	rec, err := cache.Record(ctx, 1)
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if rec == nil || rec.Name != "a.jpg" {
		t.Fatalf("Record() = %+v, want stored row", rec)
	}

	// Second access must come from the cache: delete the row under it
	// and verify the cached value survives.
	if err := db.RemoveRecord(1); err != nil {
		t.Fatalf("RemoveRecord() failed: %v", err)
	}
	rec, err = cache.Record(ctx, 1)
	if err != nil {
		t.Fatalf("Second Record() failed: %v", err)
	}
	if rec == nil {
		t.Error("cached entry lost after store deletion")
	}
}

// TestFileMetadataCache_NegativeEntry tests caching of absent rows
func TestFileMetadataCache_NegativeEntry(t *testing.T) {
	db := newTestDB(t)
	cache := NewFileMetadataCache(db)
	ctx := context.Background()

	rec, err := cache.Record(ctx, 42)
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("Record() = %+v, want nil for absent row", rec)
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (negative entry cached)", cache.Len())
	}
}

// TestFileMetadataCache_PutRemove tests write tracking
func TestFileMetadataCache_PutRemove(t *testing.T) {
	db := newTestDB(t)
	cache := NewFileMetadataCache(db)
	ctx := context.Background()

	cache.Put(&drawable.Record{FileID: 7, DataSourceID: 1, Name: "x.jpg"})
	rec, err := cache.Record(ctx, 7)
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if rec == nil || rec.Name != "x.jpg" {
		t.Fatalf("Record() = %+v after Put, want the put row", rec)
	}

	cache.Remove(7)
	rec, err = cache.Record(ctx, 7)
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if rec != nil {
		t.Errorf("Record() = %+v after Remove, want nil", rec)
	}
}

// TestFileMetadataCache_Free tests that a freed cache stays safe to use
func TestFileMetadataCache_Free(t *testing.T) {
	db := newTestDB(t)
	cache := NewFileMetadataCache(db)

	cache.Put(&drawable.Record{FileID: 1, DataSourceID: 1})
	cache.Free()

	if cache.Len() != 0 {
		t.Errorf("Len() = %d after Free, want 0", cache.Len())
	}

	// Post-free operations must not panic.
	cache.Put(&drawable.Record{FileID: 2, DataSourceID: 1})
	cache.Remove(2)
}
