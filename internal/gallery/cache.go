package gallery

import (
	"context"

	"github.com/sleuthkit/drawsync/internal/drawable"
)

// FileMetadataCache is a bulk-run-local read-through cache over the
// drawable store. It saves a scan from issuing one lookup per file
// when deciding whether a removal is a no-op.
//
// The cache is built before a bulk operation, owned exclusively by the
// worker goroutine for the run's lifetime, and freed afterwards. It is
// deliberately NOT safe for concurrent use; the single-worker task
// queue is what makes that safe.
type FileMetadataCache struct {
	db      *drawable.DB
	records map[int64]*drawable.Record
}

// NewFileMetadataCache creates an empty cache reading through to db.
func NewFileMetadataCache(db *drawable.DB) *FileMetadataCache {
	return &FileMetadataCache{
		db:      db,
		records: make(map[int64]*drawable.Record),
	}
}

// Record returns the index row for a file, loading it from the store
// on first access. A nil record with nil error means the file is not
// in the index.
func (c *FileMetadataCache) Record(ctx context.Context, fileID int64) (*drawable.Record, error) {
	if rec, ok := c.records[fileID]; ok {
		return rec, nil
	}

	rec, err := c.db.GetRecord(ctx, fileID)
	if err != nil {
		return nil, &StorageError{Op: "cache load", Err: err}
	}
	if c.records != nil {
		c.records[fileID] = rec
	}
	return rec, nil
}

// Put records the index row written for a file so later loop
// iterations see the pending state without another store round trip.
func (c *FileMetadataCache) Put(rec *drawable.Record) {
	if c.records != nil {
		c.records[rec.FileID] = rec
	}
}

// Remove records that a file was deleted from the index.
func (c *FileMetadataCache) Remove(fileID int64) {
	if c.records != nil {
		c.records[fileID] = nil
	}
}

// Len returns the number of cached entries.
func (c *FileMetadataCache) Len() int {
	return len(c.records)
}

// Free drops all cached entries. The cache is unusable afterwards
// except by rebuilding via NewFileMetadataCache.
func (c *FileMetadataCache) Free() {
	c.records = nil
}
