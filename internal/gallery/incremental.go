package gallery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/sleuthkit/drawsync/internal/catalog"
	"github.com/sleuthkit/drawsync/internal/drawable"
)

// IncrementalSyncTask applies one file's up-to-date classification to
// the drawable index without rescanning its data source. It is
// enqueued when the catalog reports that analysis finished for a
// single file.
//
// The task re-fetches current attributes, applies the same membership
// predicate as a bulk run inside one short transaction, and never
// touches the data source's build status. Errors are logged and
// absorbed: one file failing must not block the pipeline for unrelated
// files.
type IncrementalSyncTask struct {
	runID  string
	fileID int64
	db     *drawable.DB
	cat    catalog.Catalog
	logger *log.Logger

	// cache, when non-nil, is the controller's analysis-scoped
	// metadata cache; the task reads and maintains it so later
	// incremental tasks skip redundant store lookups.
	cache *FileMetadataCache

	metrics *Metrics

	// Notify, when non-nil, receives the applied action ("upserted"
	// or "removed") after a successful sync. No-op syncs are not
	// reported.
	Notify func(fileID int64, action string)
}

// NewIncrementalSyncTask creates a single-file sync task. cache and
// metrics may be nil.
func NewIncrementalSyncTask(db *drawable.DB, cat catalog.Catalog, fileID int64, cache *FileMetadataCache, logger *log.Logger, metrics *Metrics) *IncrementalSyncTask {
	if logger == nil {
		logger = log.New(os.Stderr, "[incremental] ", log.LstdFlags)
	}
	return &IncrementalSyncTask{
		runID:   uuid.NewString(),
		fileID:  fileID,
		db:      db,
		cat:     cat,
		logger:  logger,
		cache:   cache,
		metrics: metrics,
	}
}

// Name implements Task.
func (t *IncrementalSyncTask) Name() string {
	return fmt.Sprintf("incremental-sync[file=%d run=%s]", t.fileID, t.runID)
}

// Run implements Task. Always returns nil; failures are logged.
func (t *IncrementalSyncTask) Run(ctx context.Context) error {
	action, err := t.sync(ctx)
	if err != nil {
		t.logger.Printf("Incremental sync of file %d failed: %v", t.fileID, err)
		if t.metrics != nil {
			t.metrics.IncrementalFailures.Inc()
		}
		return nil
	}
	if t.metrics != nil {
		t.metrics.IncrementalSyncs.Inc()
	}
	if t.Notify != nil && action != "" {
		t.Notify(t.fileID, action)
	}
	return nil
}

func (t *IncrementalSyncTask) sync(ctx context.Context) (string, error) {
	f, err := t.cat.FileByID(ctx, t.fileID)
	if err != nil {
		if errors.Is(err, catalog.ErrFileNotFound) {
			// The file vanished from the catalog; drop any stale row.
			if rerr := t.db.RemoveRecordContext(ctx, t.fileID); rerr != nil {
				return "", &StorageError{Op: "record removal", Err: rerr}
			}
			if t.cache != nil {
				t.cache.Remove(t.fileID)
			}
			return "removed", nil
		}
		return "", &LookupError{FileID: t.fileID, Err: err}
	}

	if !f.KnownBenign && isDrawable(&f) {
		rec := recordFromFile(&f)
		if err := t.db.UpsertRecordContext(ctx, rec); err != nil {
			return "", &StorageError{Op: "record upsert", Err: err}
		}
		if t.cache != nil {
			t.cache.Put(rec)
		}
		return "upserted", nil
	}

	// Known-benign or non-qualifying: make sure no record remains.
	if t.cache != nil {
		existing, err := t.cache.Record(ctx, t.fileID)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return "", nil
		}
	} else {
		exists, err := t.db.InDB(ctx, t.fileID)
		if err != nil {
			return "", &StorageError{Op: "record lookup", Err: err}
		}
		if !exists {
			return "", nil
		}
	}
	if err := t.db.RemoveRecordContext(ctx, t.fileID); err != nil {
		return "", &StorageError{Op: "record removal", Err: err}
	}
	if t.cache != nil {
		t.cache.Remove(t.fileID)
	}
	return "removed", nil
}
