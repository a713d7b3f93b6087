package gallery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sleuthkit/drawsync/internal/catalog"
	"github.com/sleuthkit/drawsync/internal/drawable"
)

// TestNewController_Validation tests constructor argument checks
func TestNewController_Validation(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	if _, err := NewController("", db, cat, nil); err == nil {
		t.Error("NewController with empty case id succeeded, want error")
	}
	if _, err := NewController("c", nil, cat, nil); err == nil {
		t.Error("NewController with nil db succeeded, want error")
	}
	if _, err := NewController("c", db, nil, nil); err == nil {
		t.Error("NewController with nil catalog succeeded, want error")
	}

	ctrl, err := NewController("c", db, cat, nil)
	if err != nil {
		t.Fatalf("NewController with defaults failed: %v", err)
	}
	defer ctrl.Close()
	if ctrl.CaseID() != "c" {
		t.Errorf("CaseID() = %q, want c", ctrl.CaseID())
	}
}

// TestController_Rebuild tests a queued bulk rebuild end to end
func TestController_Rebuild(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	seedImageFiles(cat, 1, 30)
	ctrl := newTestController(t, db, cat)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctrl.Rebuild(1).Wait(ctx); err != nil {
		t.Fatalf("Rebuild().Wait() failed: %v", err)
	}

	count, err := db.CountDataSourceRecords(ctx, 1)
	if err != nil {
		t.Fatalf("CountDataSourceRecords() failed: %v", err)
	}
	if count != 30 {
		t.Errorf("indexed %d records, want 30", count)
	}

	stale, err := ctrl.IsStale(ctx, 1)
	if err != nil {
		t.Fatalf("IsStale() failed: %v", err)
	}
	if stale {
		t.Error("IsStale() = true after a clean rebuild")
	}
}

// TestController_RebuildStale tests that only stale sources rebuild
func TestController_RebuildStale(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	seedImageFiles(cat, 1, 5)
	addImageFile(cat, 2, "b.jpg")
	if err := db.SetStatus(1, drawable.StatusComplete); err != nil {
		t.Fatalf("SetStatus() failed: %v", err)
	}
	// Data source 2 has no status row: stale by definition.

	ctrl := newTestController(t, db, cat)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := ctrl.RebuildStale(ctx)
	if err != nil {
		t.Fatalf("RebuildStale() failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("RebuildStale() queued %d runs, want 1", len(results))
	}
	if err := results[0].Wait(ctx); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	// Only data source 2's file got indexed.
	count1, err := db.CountDataSourceRecords(ctx, 1)
	if err != nil {
		t.Fatalf("CountDataSourceRecords(1) failed: %v", err)
	}
	count2, err := db.CountDataSourceRecords(ctx, 2)
	if err != nil {
		t.Fatalf("CountDataSourceRecords(2) failed: %v", err)
	}
	if count1 != 0 || count2 != 1 {
		t.Errorf("record counts = (%d, %d), want (0, 1)", count1, count2)
	}
}

// TestController_ListeningTriggersRebuild tests the enable-listening
// rebuild kick
func TestController_ListeningTriggersRebuild(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	seedImageFiles(cat, 1, 3)
	if err := db.SetStatus(1, drawable.StatusRebuiltStale); err != nil {
		t.Fatalf("SetStatus() failed: %v", err)
	}

	ctrl := newTestController(t, db, cat)

	if ctrl.IsListeningEnabled() {
		t.Fatal("listening enabled before SetListeningEnabled")
	}
	ctrl.SetListeningEnabled(true)
	if !ctrl.IsListeningEnabled() {
		t.Fatal("listening not enabled after SetListeningEnabled")
	}

	waitFor(t, func() bool {
		count, err := db.CountDataSourceRecords(context.Background(), 1)
		return err == nil && count == 3
	}, "stale data source rebuilt after listening enabled")
}

// TestController_QueueDepth tests depth passthrough
func TestController_QueueDepth(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	ctrl := newTestController(t, db, cat)
	if depth := ctrl.QueueDepth(); depth != 0 {
		t.Errorf("QueueDepth() = %d on idle controller, want 0", depth)
	}
}

// TestController_CloseStopsQueue tests that rebuilds after Close fail
// fast
func TestController_CloseStopsQueue(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	seedImageFiles(cat, 1, 3)

	ctrl, err := NewController("closing", db, cat, &Config{
		Yield:  -1,
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("NewController() failed: %v", err)
	}
	if err := ctrl.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctrl.Rebuild(1).Wait(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Rebuild after Close = %v, want ErrQueueClosed", err)
	}
}

// TestController_StaleNoticeNotifies tests that the stale-notice hook
// fires on transitions only
func TestController_StaleNoticeNotifies(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	var calls []bool
	ctrl, err := NewController("notice-case", db, cat, &Config{
		Logger:      testLogger(),
		NotifyStale: func(stale bool) { calls = append(calls, stale) },
	})
	if err != nil {
		t.Fatalf("NewController() failed: %v", err)
	}
	defer ctrl.Close()

	ctrl.SetStaleNotice(true)
	ctrl.SetStaleNotice(true) // no transition, no call
	ctrl.SetStaleNotice(false)

	if ctrl.StaleNotice() {
		t.Error("notice should be lowered")
	}
	if len(calls) != 2 || calls[0] != true || calls[1] != false {
		t.Errorf("notify calls = %v, want [true false]", calls)
	}
}

// slowCatalog delays file lookups so sync tasks are reliably still
// running when the test acts.
type slowCatalog struct {
	*catalog.MemCatalog
	delay time.Duration
}

func (s *slowCatalog) FileByID(ctx context.Context, fileID int64) (catalog.FileRef, error) {
	time.Sleep(s.delay)
	return s.MemCatalog.FileByID(ctx, fileID)
}

// TestController_CloseDrainsIncrementals tests that Close lets pending
// incremental tasks finish with the shared analysis cache before it is
// freed
func TestController_CloseDrainsIncrementals(t *testing.T) {
	db := newTestDB(t)
	mem := catalog.NewMemCatalog()
	defer mem.Close()
	cat := &slowCatalog{MemCatalog: mem, delay: 2 * time.Millisecond}

	const files = 20
	ids := make([]int64, 0, files)
	for i := 0; i < files; i++ {
		ids = append(ids, addImageFile(mem, 1, fmt.Sprintf("img-%02d.jpg", i)))
	}

	ctrl, err := NewController("drain-case", db, cat, &Config{Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewController() failed: %v", err)
	}

	ctrl.beginAnalysisCache()
	for _, id := range ids {
		task := NewIncrementalSyncTask(db, cat, id, ctrl.currentAnalysisCache(), testLogger(), nil)
		ctrl.queue.Submit(task)
	}

	if err := ctrl.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	count, err := db.CountDataSourceRecords(context.Background(), 1)
	if err != nil {
		t.Fatalf("CountDataSourceRecords() failed: %v", err)
	}
	if count != files {
		t.Errorf("indexed %d records, want %d (pending tasks dropped at close)", count, files)
	}
}

// TestController_RebuildStaleSweepsOrphans tests that a status row left
// behind by a missed cascade delete is removed, not rebuilt
func TestController_RebuildStaleSweepsOrphans(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	// Data source 9 left the catalog but its row survived.
	if err := db.SetStatus(9, drawable.StatusRebuiltStale); err != nil {
		t.Fatalf("SetStatus() failed: %v", err)
	}

	ctrl, err := NewController("sweep-case", db, cat, &Config{Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewController() failed: %v", err)
	}
	defer ctrl.Close()

	results, err := ctrl.RebuildStale(context.Background())
	if err != nil {
		t.Fatalf("RebuildStale() failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("RebuildStale() enqueued %d rebuilds for an orphan row, want 0", len(results))
	}

	// The queue is FIFO; a barrier task completes after the sweep.
	barrier := ctrl.queue.Submit(NewTask("barrier", func(context.Context) error { return nil }))
	if err := barrier.Wait(context.Background()); err != nil {
		t.Fatalf("barrier task failed: %v", err)
	}

	if _, exists, err := db.LookupStatus(context.Background(), 9); err != nil {
		t.Fatalf("LookupStatus() failed: %v", err)
	} else if exists {
		t.Error("orphan status row survived the sweep")
	}
}
