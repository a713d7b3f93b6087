package gallery

import (
	"context"
	"testing"

	"github.com/sleuthkit/drawsync/internal/catalog"
	"github.com/sleuthkit/drawsync/internal/drawable"
)

// TestIncrementalSync_CreatesRecord tests that a freshly classified
// image gains an index row
func TestIncrementalSync_CreatesRecord(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	id := addImageFile(cat, 1, "new.jpg")

	task := NewIncrementalSyncTask(db, cat, id, nil, testLogger(), nil)
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	rec, err := db.GetRecord(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if rec == nil {
		t.Fatal("classified image not indexed")
	}
	if rec.Name != "new.jpg" || rec.DataSourceID != 1 {
		t.Errorf("record = %+v, want catalog attributes", rec)
	}
}

// TestIncrementalSync_RemovesDisqualified tests that a file classified
// as non-drawable loses its index row
func TestIncrementalSync_RemovesDisqualified(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	// Indexed by extension during an earlier pass, now detected as
	// something else entirely.
	id := cat.AddFile(catalog.FileRef{
		DataSourceID: 1,
		Name:         "fake.jpg",
		Extension:    "jpg",
		MIMEType:     strPtr("application/pdf"),
		Kind:         catalog.KindRegular,
	})
	if err := db.UpsertRecord(&drawable.Record{FileID: id, DataSourceID: 1, Name: "fake.jpg"}); err != nil {
		t.Fatalf("UpsertRecord() failed: %v", err)
	}

	task := NewIncrementalSyncTask(db, cat, id, nil, testLogger(), nil)
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	inDB, err := db.InDB(context.Background(), id)
	if err != nil {
		t.Fatalf("InDB() failed: %v", err)
	}
	if inDB {
		t.Error("disqualified file still indexed")
	}
}

// TestIncrementalSync_FileVanished tests cleanup when the catalog no
// longer knows the file
func TestIncrementalSync_FileVanished(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	const fileID = int64(77)
	if err := db.UpsertRecord(&drawable.Record{FileID: fileID, DataSourceID: 1, Name: "gone.jpg"}); err != nil {
		t.Fatalf("UpsertRecord() failed: %v", err)
	}

	task := NewIncrementalSyncTask(db, cat, fileID, nil, testLogger(), nil)
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	inDB, err := db.InDB(context.Background(), fileID)
	if err != nil {
		t.Fatalf("InDB() failed: %v", err)
	}
	if inDB {
		t.Error("vanished file still indexed")
	}
}

// TestIncrementalSync_KnownBenignNotIndexed tests the benign exclusion
func TestIncrementalSync_KnownBenignNotIndexed(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	id := cat.AddFile(catalog.FileRef{
		DataSourceID: 1,
		Name:         "benign.jpg",
		Extension:    "jpg",
		MIMEType:     strPtr("image/jpeg"),
		Kind:         catalog.KindRegular,
		KnownBenign:  true,
	})

	task := NewIncrementalSyncTask(db, cat, id, nil, testLogger(), nil)
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	inDB, err := db.InDB(context.Background(), id)
	if err != nil {
		t.Fatalf("InDB() failed: %v", err)
	}
	if inDB {
		t.Error("known-benign file indexed")
	}
}

// TestIncrementalSync_AbsorbsStoreFailure tests that a store failure
// is logged, not propagated: one bad file must not poison the queue
func TestIncrementalSync_AbsorbsStoreFailure(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	id := addImageFile(cat, 1, "a.jpg")

	// Force upsert failures by closing the store out from under the task.
	if err := db.RawDB().Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	task := NewIncrementalSyncTask(db, cat, id, nil, testLogger(), nil)
	if err := task.Run(context.Background()); err != nil {
		t.Errorf("Run() = %v, want nil (errors absorbed)", err)
	}
}

// TestIncrementalSync_MaintainsCache tests that the shared metadata
// cache tracks the task's writes
func TestIncrementalSync_MaintainsCache(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	id := addImageFile(cat, 1, "cached.jpg")
	cache := NewFileMetadataCache(db)

	task := NewIncrementalSyncTask(db, cat, id, cache, testLogger(), nil)
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	rec, err := cache.Record(context.Background(), id)
	if err != nil {
		t.Fatalf("cache.Record() failed: %v", err)
	}
	if rec == nil {
		t.Fatal("cache does not reflect the upsert")
	}
	if rec.Name != "cached.jpg" {
		t.Errorf("cached record name = %q, want cached.jpg", rec.Name)
	}
}

// TestIncrementalSync_NotifiesApplied tests that the notify hook
// reports upserts but not no-op syncs
func TestIncrementalSync_NotifiesApplied(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	id := addImageFile(cat, 1, "seen.jpg")

	var gotFile int64
	var gotAction string
	var calls int

	task := NewIncrementalSyncTask(db, cat, id, nil, testLogger(), nil)
	task.Notify = func(fileID int64, action string) {
		gotFile, gotAction = fileID, action
		calls++
	}
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if calls != 1 || gotFile != id || gotAction != "upserted" {
		t.Errorf("notify = (%d calls, file %d, %q), want (1, %d, upserted)",
			calls, gotFile, gotAction, id)
	}

	// A file that never qualified and has no row to remove is a no-op;
	// the hook stays quiet.
	benign := cat.AddFile(catalog.FileRef{
		DataSourceID: 1,
		Name:         "notes.txt",
		Extension:    "txt",
		Kind:         catalog.KindRegular,
	})

	noop := NewIncrementalSyncTask(db, cat, benign, nil, testLogger(), nil)
	noop.Notify = func(int64, string) { calls++ }
	if err := noop.Run(context.Background()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("notify fired for a no-op sync (%d calls)", calls)
	}
}
