package gallery

import (
	"context"
	"fmt"

	"github.com/sleuthkit/drawsync/internal/catalog"
	"github.com/sleuthkit/drawsync/internal/drawable"
)

// StalenessEvaluator answers "is the drawable index usable right now"
// per data source. It is a pure query layer over the build status
// store and a pair of catalog summary predicates; it never mutates
// either store.
type StalenessEvaluator struct {
	db  *drawable.DB
	cat catalog.Catalog
}

// NewStalenessEvaluator creates an evaluator over the given stores.
func NewStalenessEvaluator(db *drawable.DB, cat catalog.Catalog) *StalenessEvaluator {
	return &StalenessEvaluator{db: db, cat: cat}
}

// IsStale reports whether the index for one data source needs a
// rebuild. Decision table, first match wins:
//
//  1. COMPLETE or IN_PROGRESS -> not stale
//  2. REBUILT_STALE -> stale
//  3. UNKNOWN row and the catalog has classified files -> stale
//     (classification ran upstream but the index was never built)
//  4. UNKNOWN row and nothing classified yet -> not stale
//  5. no status row at all -> stale (data source never seen)
func (e *StalenessEvaluator) IsStale(ctx context.Context, dataSourceID int64) (bool, error) {
	status, exists, err := e.db.LookupStatus(ctx, dataSourceID)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate staleness for data source %d: %w", dataSourceID, err)
	}
	if !exists {
		return true, nil
	}

	switch status {
	case drawable.StatusComplete, drawable.StatusInProgress:
		return false, nil
	case drawable.StatusRebuiltStale:
		return true, nil
	default: // StatusUnknown
		classified, err := e.cat.HasClassifiedFiles(ctx, dataSourceID)
		if err != nil {
			return false, fmt.Errorf("failed to query classified files for data source %d: %w", dataSourceID, err)
		}
		return classified, nil
	}
}

// AnyStale reports whether any data source needs a rebuild. Data
// sources present in the catalog but absent from the status store are
// included and always stale.
func (e *StalenessEvaluator) AnyStale(ctx context.Context) (bool, error) {
	ids, err := e.StaleDataSourceIDs(ctx)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// StaleDataSourceIDs returns every data source that currently needs a
// rebuild: all catalog data sources evaluated through IsStale. Status
// rows whose data source the catalog no longer reports are not
// rebuild candidates; OrphanStatusIDs surfaces those for cleanup.
func (e *StalenessEvaluator) StaleDataSourceIDs(ctx context.Context) ([]int64, error) {
	ids, err := e.cat.DataSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}

	var stale []int64
	for _, id := range ids {
		isStale, err := e.IsStale(ctx, id)
		if err != nil {
			return nil, err
		}
		if isStale {
			stale = append(stale, id)
		}
	}
	return stale, nil
}

// OrphanStatusIDs returns data sources that have a status row but that
// the catalog no longer reports: leftovers of a missed cascade
// deletion. Rebuilding one would resurrect the row, so callers delete
// them instead.
func (e *StalenessEvaluator) OrphanStatusIDs(ctx context.Context) ([]int64, error) {
	ids, err := e.cat.DataSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	present := make(map[int64]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}

	statuses, err := e.db.AllStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot build statuses: %w", err)
	}

	var orphans []int64
	for id := range statuses {
		if !present[id] {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}

// StatusSnapshot returns the build status of every data source known
// to the catalog, StatusUnknown where no row exists. This is the
// diagnostics listing; unlike IsStale it does not treat a missing row
// as implicitly stale.
func (e *StalenessEvaluator) StatusSnapshot(ctx context.Context) (map[int64]drawable.BuildStatus, error) {
	ids, err := e.cat.DataSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}

	statuses, err := e.db.AllStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot build statuses: %w", err)
	}

	snapshot := make(map[int64]drawable.BuildStatus, len(ids))
	for _, id := range ids {
		snapshot[id] = statuses[id] // zero value is StatusUnknown
	}
	return snapshot, nil
}
