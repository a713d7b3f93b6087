package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemCatalog is an in-memory implementation of Catalog and EventSource.
//
// It backs the standalone daemon (fed by the ingest watcher) and the
// test suites. All methods are safe for concurrent use. Events are
// delivered on a best-effort basis: a subscriber that falls behind has
// events dropped rather than blocking the publisher.
type MemCatalog struct {
	mu          sync.RWMutex
	files       map[int64]FileRef
	dataSources map[int64]bool
	nextFileID  int64

	subMu sync.Mutex
	subs  []chan Event

	// commits counts committed read transactions, a hook for tests
	// that assert batching behavior.
	commits int
}

// NewMemCatalog creates an empty in-memory catalog.
func NewMemCatalog() *MemCatalog {
	return &MemCatalog{
		files:       make(map[int64]FileRef),
		dataSources: make(map[int64]bool),
		nextFileID:  1,
	}
}

// AddDataSource registers a data source and publishes a local
// DataSourceAdded event. Adding an existing data source is a no-op.
func (c *MemCatalog) AddDataSource(id int64) {
	c.mu.Lock()
	exists := c.dataSources[id]
	c.dataSources[id] = true
	c.mu.Unlock()

	if !exists {
		c.publish(Event{Kind: EventDataSourceAdded, DataSourceID: id, Local: true})
	}
}

// RemoveDataSource deletes a data source and all of its files, then
// publishes a local DataSourceDeleted event.
func (c *MemCatalog) RemoveDataSource(id int64) {
	c.mu.Lock()
	delete(c.dataSources, id)
	for fid, f := range c.files {
		if f.DataSourceID == id {
			delete(c.files, fid)
		}
	}
	c.mu.Unlock()

	c.publish(Event{Kind: EventDataSourceDeleted, DataSourceID: id, Local: true})
}

// AddFile stores a file and returns its assigned identifier. The
// file's data source is registered implicitly.
func (c *MemCatalog) AddFile(f FileRef) int64 {
	c.mu.Lock()
	if f.ID == 0 {
		f.ID = c.nextFileID
		c.nextFileID++
	} else if f.ID >= c.nextFileID {
		c.nextFileID = f.ID + 1
	}
	c.files[f.ID] = f
	c.dataSources[f.DataSourceID] = true
	c.mu.Unlock()
	return f.ID
}

// UpdateFile replaces a file's attributes in place.
func (c *MemCatalog) UpdateFile(f FileRef) {
	c.mu.Lock()
	c.files[f.ID] = f
	c.mu.Unlock()
}

// ClassifyFile records the detected MIME type for a file and publishes
// a local FileClassified event.
func (c *MemCatalog) ClassifyFile(fileID int64, mimeType string) {
	c.mu.Lock()
	f, ok := c.files[fileID]
	if ok {
		f.MIMEType = &mimeType
		c.files[fileID] = f
	}
	c.mu.Unlock()

	if ok {
		c.publish(Event{Kind: EventFileClassified, FileID: fileID, Local: true})
	}
}

// StartAnalysis publishes an AnalysisStarted event for a data source.
func (c *MemCatalog) StartAnalysis(dataSourceID int64, local bool) {
	c.publish(Event{Kind: EventAnalysisStarted, DataSourceID: dataSourceID, Local: local})
}

// CompleteAnalysis publishes an AnalysisCompleted event for a data source.
func (c *MemCatalog) CompleteAnalysis(dataSourceID int64, local bool) {
	c.publish(Event{Kind: EventAnalysisCompleted, DataSourceID: dataSourceID, Local: local})
}

// TagFile marks a file tagged and publishes a local TagAdded event.
func (c *MemCatalog) TagFile(fileID int64, tagName string) {
	c.mu.Lock()
	if f, ok := c.files[fileID]; ok {
		f.Tagged = true
		c.files[fileID] = f
	}
	c.mu.Unlock()

	c.publish(Event{Kind: EventTagAdded, FileID: fileID, TagName: tagName, Local: true})
}

// UntagFile clears a file's tagged flag and publishes a local
// TagDeleted event.
func (c *MemCatalog) UntagFile(fileID int64, tagName string) {
	c.mu.Lock()
	if f, ok := c.files[fileID]; ok {
		f.Tagged = false
		c.files[fileID] = f
	}
	c.mu.Unlock()

	c.publish(Event{Kind: EventTagDeleted, FileID: fileID, TagName: tagName, Local: true})
}

// DataSources implements Catalog.DataSources.
func (c *MemCatalog) DataSources(ctx context.Context) ([]int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]int64, 0, len(c.dataSources))
	for id := range c.dataSources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// FindCandidateFiles implements Catalog.FindCandidateFiles.
//
// Results are ordered by parent path, then file ID for a stable order
// within a directory.
func (c *MemCatalog) FindCandidateFiles(ctx context.Context, dataSourceID int64, filter CandidateFilter) ([]FileRef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []FileRef
	for _, f := range c.files {
		if f.DataSourceID != dataSourceID || f.Kind != KindRegular {
			continue
		}
		if matchesFilter(&f, filter) {
			out = append(out, f)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ParentPath != out[j].ParentPath {
			return out[i].ParentPath < out[j].ParentPath
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// matchesFilter applies the candidate predicate: detected MIME type in
// the allow-list, or no MIME type yet and extension in the fallback
// allow-list.
func matchesFilter(f *FileRef, filter CandidateFilter) bool {
	if f.MIMEType != nil {
		for _, mt := range filter.MIMETypes {
			if matchMIME(*f.MIMEType, mt) {
				return true
			}
		}
		return false
	}
	ext := strings.ToLower(f.Extension)
	for _, e := range filter.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// matchMIME supports exact entries and prefix entries ending in "/*"
// (e.g. "image/*").
func matchMIME(mimeType, pattern string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(mimeType, prefix+"/")
	}
	return mimeType == pattern
}

// FileByID implements Catalog.FileByID.
func (c *MemCatalog) FileByID(ctx context.Context, fileID int64) (FileRef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.files[fileID]
	if !ok {
		return FileRef{}, ErrFileNotFound
	}
	return f, nil
}

// HasUnclassifiedFiles implements Catalog.HasUnclassifiedFiles.
func (c *MemCatalog) HasUnclassifiedFiles(ctx context.Context, dataSourceID int64) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, f := range c.files {
		if f.DataSourceID == dataSourceID && f.Kind == KindRegular && f.MIMEType == nil {
			return true, nil
		}
	}
	return false, nil
}

// HasClassifiedFiles implements Catalog.HasClassifiedFiles.
func (c *MemCatalog) HasClassifiedFiles(ctx context.Context, dataSourceID int64) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, f := range c.files {
		if f.DataSourceID == dataSourceID && f.MIMEType != nil {
			return true, nil
		}
	}
	return false, nil
}

// Begin implements Catalog.Begin. The in-memory catalog has no real
// transaction isolation; the returned Tx counts commits so callers'
// batching behavior stays observable.
func (c *MemCatalog) Begin(ctx context.Context) (Tx, error) {
	return &memTx{cat: c}, nil
}

// CommitCount returns the number of read transactions committed so
// far. Used by tests to verify batch boundaries.
func (c *MemCatalog) CommitCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.commits
}

type memTx struct {
	cat  *MemCatalog
	done bool
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.cat.mu.Lock()
	t.cat.commits++
	t.cat.mu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	t.done = true
	return nil
}

// Subscribe implements EventSource.Subscribe.
func (c *MemCatalog) Subscribe() <-chan Event {
	ch := make(chan Event, 128)
	c.subMu.Lock()
	c.subs = append(c.subs, ch)
	c.subMu.Unlock()
	return ch
}

// Unsubscribe implements EventSource.Unsubscribe.
func (c *MemCatalog) Unsubscribe(ch <-chan Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for i, sub := range c.subs {
		if sub == ch {
			close(sub)
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

// Close closes all subscriber channels.
func (c *MemCatalog) Close() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, sub := range c.subs {
		close(sub)
	}
	c.subs = nil
}

func (c *MemCatalog) publish(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, sub := range c.subs {
		select {
		case sub <- ev:
		default:
			// Slow subscriber; drop rather than block the catalog.
		}
	}
}
