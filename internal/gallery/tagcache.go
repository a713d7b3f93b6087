package gallery

import (
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TagCache is the UI-facing cache of tag names applied to indexed
// files. Tag events from the catalog are forwarded here by the event
// dispatcher; it has no effect on build statuses.
//
// The cache is bounded: entries for files the UI is not looking at may
// be evicted and are transparently rebuilt from events as they recur.
type TagCache struct {
	tags *lru.Cache[int64, []string]
}

// NewTagCache creates a tag cache holding at most size file entries.
func NewTagCache(size int) (*TagCache, error) {
	cache, err := lru.New[int64, []string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag cache: %w", err)
	}
	return &TagCache{tags: cache}, nil
}

// Add records a tag applied to a file.
func (c *TagCache) Add(fileID int64, tagName string) {
	names, _ := c.tags.Get(fileID)
	for _, n := range names {
		if n == tagName {
			return
		}
	}
	names = append(names, tagName)
	sort.Strings(names)
	c.tags.Add(fileID, names)
}

// Remove records a tag removed from a file.
func (c *TagCache) Remove(fileID int64, tagName string) {
	names, ok := c.tags.Get(fileID)
	if !ok {
		return
	}
	out := names[:0]
	for _, n := range names {
		if n != tagName {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		c.tags.Remove(fileID)
		return
	}
	c.tags.Add(fileID, out)
}

// Tags returns the known tag names for a file.
func (c *TagCache) Tags(fileID int64) []string {
	names, _ := c.tags.Get(fileID)
	return names
}

// Len returns the number of files with cached tags.
func (c *TagCache) Len() int {
	return c.tags.Len()
}
