package gallery

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sleuthkit/drawsync/internal/catalog"
	"github.com/sleuthkit/drawsync/internal/drawable"
)

const (
	// DefaultBatchSize is the number of files processed between
	// transaction commits during a bulk run.
	DefaultBatchSize = 200

	// DefaultYield is how long a bulk run sleeps after each batch
	// commit so concurrent catalog readers and writers are not
	// starved. A fairness measure, not a correctness requirement.
	DefaultYield = 500 * time.Millisecond
)

// BulkResult summarizes a finished bulk run.
type BulkResult struct {
	RunID        string
	DataSourceID int64
	Processed    int
	Batches      int
	Terminal     drawable.BuildStatus
	Cancelled    bool
	Err          error
}

// BulkOptions tunes a bulk run. The zero value selects the defaults.
type BulkOptions struct {
	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int

	// Yield overrides DefaultYield when non-negative; tests set it to
	// a negative value to disable the sleep entirely.
	Yield time.Duration

	// Logger for run activity.
	Logger *log.Logger

	// Metrics receives counters for the run if non-nil.
	Metrics *Metrics

	// Notify, if non-nil, is called with the run summary after the
	// terminal status has been persisted.
	Notify func(BulkResult)
}

// BulkSyncTask fully reconciles one data source's slice of the
// drawable index against the catalog's current classification state.
//
// The run captures the data source's hasUnclassified flag up front,
// marks the data source IN_PROGRESS, scans the candidate set in parent
// path order, and applies the membership predicate to every file
// inside paired catalog/drawable transactions that are committed and
// reopened every BatchSize files. Batches committed before a failure
// or cancellation are not undone; the terminal status records whether
// the index can be trusted.
type BulkSyncTask struct {
	runID        string
	dataSourceID int64
	db           *drawable.DB
	cat          catalog.Catalog
	opts         BulkOptions
}

// NewBulkSyncTask creates a bulk reconciliation task for one data
// source.
func NewBulkSyncTask(db *drawable.DB, cat catalog.Catalog, dataSourceID int64, opts BulkOptions) *BulkSyncTask {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Yield == 0 {
		opts.Yield = DefaultYield
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[bulk] ", log.LstdFlags)
	}

	return &BulkSyncTask{
		runID:        uuid.NewString(),
		dataSourceID: dataSourceID,
		db:           db,
		cat:          cat,
		opts:         opts,
	}
}

// Name implements Task.
func (t *BulkSyncTask) Name() string {
	return fmt.Sprintf("bulk-sync[ds=%d run=%s]", t.dataSourceID, t.runID)
}

// RunID returns the unique identifier of this run.
func (t *BulkSyncTask) RunID() string {
	return t.runID
}

// Run implements Task. It returns ErrCancelled when the run observed
// cooperative cancellation, or a *StorageError on store failure; in
// both cases the terminal status is REBUILT_STALE once the run has
// marked the data source IN_PROGRESS. Failures before that leave the
// stored status untouched.
func (t *BulkSyncTask) Run(ctx context.Context) error {
	result := BulkResult{RunID: t.runID, DataSourceID: t.dataSourceID}
	start := time.Now()

	if ctx.Err() != nil {
		result.Cancelled = true
		return t.finish(&result, ErrCancelled, false)
	}

	// The flag is captured before scanning: if classification is still
	// running anywhere in this data source, the run can at best
	// produce a stale index no matter what it sees later.
	hasUnclassified, err := t.cat.HasUnclassifiedFiles(ctx, t.dataSourceID)
	if err != nil {
		return t.finish(&result, &StorageError{Op: "unclassified query", Err: err}, false)
	}

	if err := t.db.SetStatusContext(ctx, t.dataSourceID, drawable.StatusInProgress); err != nil {
		return t.finish(&result, &StorageError{Op: "status update", Err: err}, false)
	}

	cache := NewFileMetadataCache(t.db)
	defer cache.Free()

	files, err := t.cat.FindCandidateFiles(ctx, t.dataSourceID, candidateFilter())
	if err != nil {
		return t.finish(&result, &StorageError{Op: "candidate enumeration", Err: err}, true)
	}

	t.opts.Logger.Printf("Run %s: scanning %d candidates in data source %d (unclassified=%v)",
		t.runID, len(files), t.dataSourceID, hasUnclassified)

	// Transactions are opened lazily on first use and committed in
	// pairs every BatchSize files.
	var (
		catTx catalog.Tx
		dbTx  *drawable.Tx
	)
	rollback := func() {
		if catTx != nil {
			_ = catTx.Rollback()
			catTx = nil
		}
		if dbTx != nil {
			_ = dbTx.Rollback()
			dbTx = nil
		}
	}

	for i := range files {
		// Cooperative cancellation, checked once per file.
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		if catTx == nil {
			if catTx, err = t.cat.Begin(ctx); err != nil {
				rollback()
				return t.finish(&result, &StorageError{Op: "catalog begin", Err: err}, true)
			}
		}
		if dbTx == nil {
			if dbTx, err = t.db.Begin(ctx); err != nil {
				rollback()
				return t.finish(&result, &StorageError{Op: "drawable begin", Err: err}, true)
			}
		}

		if err := processFile(ctx, dbTx, cache, &files[i]); err != nil {
			rollback()
			return t.finish(&result, err, true)
		}
		result.Processed++
		if t.opts.Metrics != nil {
			t.opts.Metrics.FilesProcessed.Inc()
		}

		if result.Processed%t.opts.BatchSize == 0 {
			if err := catTx.Commit(); err != nil {
				rollback()
				return t.finish(&result, &StorageError{Op: "catalog commit", Err: err}, true)
			}
			catTx = nil
			if err := dbTx.Commit(); err != nil {
				rollback()
				return t.finish(&result, &StorageError{Op: "drawable commit", Err: err}, true)
			}
			dbTx = nil
			result.Batches++
			if t.opts.Metrics != nil {
				t.opts.Metrics.BatchCommits.Inc()
			}

			// Yield so other catalog users get a turn.
			if t.opts.Yield > 0 {
				select {
				case <-ctx.Done():
					result.Cancelled = true
				case <-time.After(t.opts.Yield):
				}
			}
			if result.Cancelled {
				break
			}
		}
	}

	if result.Cancelled {
		// The open (uncommitted) batch is discarded; batches already
		// committed stay.
		rollback()
		return t.finish(&result, ErrCancelled, true)
	}

	// Terminal status: COMPLETE only for a clean full run over a fully
	// classified data source.
	terminal := drawable.StatusComplete
	if hasUnclassified {
		terminal = drawable.StatusRebuiltStale
	}

	if dbTx != nil {
		// Fold the terminal status into the final batch so it lands
		// atomically with the last record mutations.
		if err := dbTx.SetStatus(ctx, t.dataSourceID, terminal); err != nil {
			rollback()
			return t.finish(&result, &StorageError{Op: "status update", Err: err}, true)
		}
		if err := catTx.Commit(); err != nil {
			rollback()
			return t.finish(&result, &StorageError{Op: "catalog commit", Err: err}, true)
		}
		catTx = nil
		if err := dbTx.Commit(); err != nil {
			rollback()
			return t.finish(&result, &StorageError{Op: "drawable commit", Err: err}, true)
		}
		dbTx = nil
		result.Batches++
	} else {
		if err := t.db.SetStatusContext(ctx, t.dataSourceID, terminal); err != nil {
			return t.finish(&result, &StorageError{Op: "status update", Err: err}, true)
		}
	}

	result.Terminal = terminal
	t.opts.Logger.Printf("Run %s: finished data source %d: %d files, %d batches, status %s in %v",
		t.runID, t.dataSourceID, result.Processed, result.Batches, terminal, time.Since(start).Round(time.Millisecond))

	if t.opts.Metrics != nil {
		t.opts.Metrics.ObserveBulkRun(terminal, time.Since(start))
	}
	if t.opts.Notify != nil {
		t.opts.Notify(result)
	}
	return nil
}

// finish handles the failure paths: forces the terminal status to
// REBUILT_STALE when the run had already marked the data source
// IN_PROGRESS, reports the run, and returns err. Runs that failed
// before the IN_PROGRESS write never touched the index, so the stored
// status keeps whatever transition history it had.
func (t *BulkSyncTask) finish(result *BulkResult, err error, started bool) error {
	result.Err = err

	if started {
		result.Terminal = drawable.StatusRebuiltStale

		// A failed or cancelled run leaves the index usable but
		// flagged stale. The status write itself is best effort here.
		if serr := t.db.SetStatus(t.dataSourceID, drawable.StatusRebuiltStale); serr != nil {
			t.opts.Logger.Printf("Run %s: failed to record stale status for data source %d: %v",
				t.runID, t.dataSourceID, serr)
		}
	}

	if result.Cancelled {
		t.opts.Logger.Printf("Run %s: cancelled after %d files (%d batches committed)",
			t.runID, result.Processed, result.Batches)
	} else {
		t.opts.Logger.Printf("Run %s: aborted after %d files: %v", t.runID, result.Processed, err)
	}

	if t.opts.Metrics != nil {
		t.opts.Metrics.ObserveBulkRun(result.Terminal, 0)
	}
	if t.opts.Notify != nil {
		t.opts.Notify(*result)
	}
	return err
}

// processFile applies the three-way membership predicate to one
// candidate inside the open drawable transaction:
//
//   - known-benign -> remove any existing record
//   - qualifies as drawable -> upsert a record from current attributes
//   - otherwise -> remove any existing record
//
// The metadata cache suppresses removals already known to be no-ops.
func processFile(ctx context.Context, tx *drawable.Tx, cache *FileMetadataCache, f *catalog.FileRef) error {
	if !f.KnownBenign && isDrawable(f) {
		rec := recordFromFile(f)
		if err := tx.UpsertRecord(ctx, rec); err != nil {
			return &StorageError{Op: "record upsert", Err: err}
		}
		cache.Put(rec)
		return nil
	}

	existing, err := cache.Record(ctx, f.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if err := tx.RemoveRecord(ctx, f.ID); err != nil {
		return &StorageError{Op: "record removal", Err: err}
	}
	cache.Remove(f.ID)
	return nil
}

// recordFromFile builds an index row from current catalog attributes.
func recordFromFile(f *catalog.FileRef) *drawable.Record {
	return &drawable.Record{
		FileID:       f.ID,
		DataSourceID: f.DataSourceID,
		Path:         f.ParentPath,
		Name:         f.Name,
		IsVideo:      isVideo(f),
		HasExif:      f.HasExifArtifact,
		HasHashHit:   f.HasHashSetHit,
		Tagged:       f.Tagged,
	}
}
