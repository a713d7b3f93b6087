// Package gallery keeps the drawable index synchronized with the
// primary file catalog.
//
// The package is the hub for flow of control: catalog notifications
// arrive at the EventDispatcher, become status transitions or queued
// sync tasks, pass through the single-worker TaskQueue, and end as
// drawable-store and build-status mutations that the staleness
// evaluator reads back out for callers.
package gallery

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/sleuthkit/drawsync/internal/catalog"
	"github.com/sleuthkit/drawsync/internal/drawable"
)

// Config holds configuration for a Controller.
type Config struct {
	// BatchSize is the bulk-run transaction batch size.
	// Defaults to DefaultBatchSize.
	BatchSize int

	// Yield is the pause after each bulk batch commit. Defaults to
	// DefaultYield; negative disables the pause.
	Yield time.Duration

	// ShutdownTimeout bounds how long Close waits for the task queue
	// to drain.
	ShutdownTimeout time.Duration

	// TagCacheSize bounds the UI-facing tag cache.
	TagCacheSize int

	// Metrics receives instrumentation when non-nil.
	Metrics *Metrics

	// Notify, if non-nil, is invoked with every finished bulk run.
	Notify func(BulkResult)

	// NotifyStale, if non-nil, is invoked when the possibly-stale
	// notice changes state.
	NotifyStale func(stale bool)

	// NotifyIncremental, if non-nil, receives every applied
	// incremental sync.
	NotifyIncremental func(fileID int64, action string)

	// Logger for controller activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:       DefaultBatchSize,
		Yield:           DefaultYield,
		ShutdownTimeout: 30 * time.Second,
		TagCacheSize:    4096,
		Logger:          log.New(os.Stderr, "[gallery] ", log.LstdFlags),
	}
}

// Controller owns the sync machinery for one case: the drawable store,
// the task queue, the staleness evaluator, and the tag cache. Create
// one per open case through the Registry.
type Controller struct {
	caseID string
	db     *drawable.DB
	cat    catalog.Catalog
	queue  *TaskQueue
	eval   *StalenessEvaluator
	tags   *TagCache
	config *Config
	logger *log.Logger

	mu        sync.Mutex
	listening bool
	notice    bool
	// analysisCache lives from analysis-started to the reconciliation
	// step after analysis-completed, so incremental tasks during an
	// analysis run share one read-through cache.
	analysisCache *FileMetadataCache
}

// NewController creates a controller for one case. The drawable store
// must already have its schema initialized.
func NewController(caseID string, db *drawable.DB, cat catalog.Catalog, config *Config) (*Controller, error) {
	if caseID == "" {
		return nil, fmt.Errorf("caseID cannot be empty")
	}
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[gallery] ", log.LstdFlags)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	if config.TagCacheSize <= 0 {
		config.TagCacheSize = 4096
	}

	tags, err := NewTagCache(config.TagCacheSize)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		caseID: caseID,
		db:     db,
		cat:    cat,
		queue:  NewTaskQueue(config.Logger),
		eval:   NewStalenessEvaluator(db, cat),
		tags:   tags,
		config: config,
		logger: config.Logger,
	}

	if config.Metrics != nil {
		m := config.Metrics
		c.queue.SetDepthListener(func(depth int) {
			m.QueueDepth.Set(float64(depth))
		})
	}

	return c, nil
}

// CaseID returns the identifier of the case this controller serves.
func (c *Controller) CaseID() string {
	return c.caseID
}

// DB returns the drawable store.
func (c *Controller) DB() *drawable.DB {
	return c.db
}

// TagCache returns the UI-facing tag cache.
func (c *Controller) TagCache() *TagCache {
	return c.tags
}

// IsStale reports whether one data source's index needs a rebuild.
func (c *Controller) IsStale(ctx context.Context, dataSourceID int64) (bool, error) {
	return c.eval.IsStale(ctx, dataSourceID)
}

// AnyStale reports whether any data source needs a rebuild.
func (c *Controller) AnyStale(ctx context.Context) (bool, error) {
	return c.eval.AnyStale(ctx)
}

// StatusSnapshot returns every catalog data source's build status.
func (c *Controller) StatusSnapshot(ctx context.Context) (map[int64]drawable.BuildStatus, error) {
	return c.eval.StatusSnapshot(ctx)
}

// QueueDepth returns the number of sync tasks queued or running.
func (c *Controller) QueueDepth() int {
	return c.queue.Depth()
}

// Rebuild enqueues a bulk sync for one data source and returns its
// future.
func (c *Controller) Rebuild(dataSourceID int64) *Result {
	task := NewBulkSyncTask(c.db, c.cat, dataSourceID, BulkOptions{
		BatchSize: c.config.BatchSize,
		Yield:     c.config.Yield,
		Logger:    c.logger,
		Metrics:   c.config.Metrics,
		Notify:    c.config.Notify,
	})
	c.logger.Printf("Queueing bulk sync for data source %d", dataSourceID)
	return c.queue.Submit(task)
}

// RebuildStale enqueues a bulk sync for every currently stale data
// source and returns the futures in enqueue order. Status rows whose
// data source has left the catalog are swept with a cascade delete
// rather than rebuilt.
func (c *Controller) RebuildStale(ctx context.Context) ([]*Result, error) {
	ids, err := c.eval.StaleDataSourceIDs(ctx)
	if err != nil {
		return nil, err
	}

	orphans, err := c.eval.OrphanStatusIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range orphans {
		c.logger.Printf("Sweeping orphan index state for data source %d", id)
		c.queue.Submit(NewTask(fmt.Sprintf("delete-data-source-%d", id), func(ctx context.Context) error {
			return c.db.DeleteDataSource(ctx, id)
		}))
	}

	results := make([]*Result, 0, len(ids))
	for _, id := range ids {
		results = append(results, c.Rebuild(id))
	}
	return results, nil
}

// SetListeningEnabled turns processing of catalog analysis events on
// or off. Turning listening on when the index is stale triggers a
// rebuild of all stale data sources.
func (c *Controller) SetListeningEnabled(enabled bool) {
	c.mu.Lock()
	was := c.listening
	c.listening = enabled
	c.mu.Unlock()

	if enabled && !was {
		if _, err := c.RebuildStale(context.Background()); err != nil {
			c.logger.Printf("Failed to rebuild stale data sources: %v", err)
		}
	}
}

// IsListeningEnabled reports whether catalog events are being
// processed.
func (c *Controller) IsListeningEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// SetStaleNotice sets the user-facing "index possibly stale" notice
// raised when a cooperating process finishes analysis against the
// shared catalog. It never triggers a rebuild by itself.
func (c *Controller) SetStaleNotice(stale bool) {
	c.mu.Lock()
	changed := c.notice != stale
	c.notice = stale
	c.mu.Unlock()

	if changed && c.config.NotifyStale != nil {
		c.config.NotifyStale(stale)
	}
}

// StaleNotice reports whether the possibly-stale notice is raised.
func (c *Controller) StaleNotice() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

// currentAnalysisCache returns the analysis-scoped metadata cache, or
// nil when no analysis is in flight.
func (c *Controller) currentAnalysisCache() *FileMetadataCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analysisCache
}

// beginAnalysisCache installs a fresh analysis-scoped cache.
func (c *Controller) beginAnalysisCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.analysisCache == nil {
		c.analysisCache = NewFileMetadataCache(c.db)
	}
}

// endAnalysisCache frees the analysis-scoped cache.
func (c *Controller) endAnalysisCache() {
	c.mu.Lock()
	cache := c.analysisCache
	c.analysisCache = nil
	c.mu.Unlock()

	if cache != nil {
		cache.Free()
	}
}

// Close shuts the task queue down with the configured bounded wait.
// The drawable store connection is left to the caller, which owns it.
func (c *Controller) Close() error {
	err := c.queue.Shutdown(c.config.ShutdownTimeout)
	if err == nil {
		// The worker has exited, so no task still holds the
		// analysis-scoped cache.
		c.endAnalysisCache()
		return nil
	}

	// Shutdown timed out: a stuck task may still be using the cache.
	// Drop our reference and leave the memory to the task.
	c.mu.Lock()
	c.analysisCache = nil
	c.mu.Unlock()
	return err
}
