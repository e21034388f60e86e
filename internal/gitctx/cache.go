// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gitctx

import (
	"container/list"
	"os"
	"sync"
	"time"
)

// =============================================================================
// FILE CACHE
// =============================================================================

// FileCache is an LRU cache for formatted file reads. Entries are
// invalidated when the file's modification time moves past the cached
// one. Safe for concurrent use.
type FileCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
	maxBytes   int64
	curBytes   int64

	hits   int
	misses int
}

type cacheEntry struct {
	path    string
	content string
	modTime time.Time
}

// FileCacheStats holds cache counters.
type FileCacheStats struct {
	Hits       int
	Misses     int
	EntryCount int
	TotalBytes int64
	HitRate    float64
}

// NewFileCache creates a cache bounded by entry count and total bytes.
func NewFileCache(maxEntries int, maxBytes int64) *FileCache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	if maxBytes <= 0 {
		maxBytes = 32 * 1024 * 1024
	}
	return &FileCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
	}
}

// DefaultFileCache is the shared cache used by fetchers.
var DefaultFileCache = NewFileCache(100, 32*1024*1024)

// Get returns the cached content for a path when still valid.
func (c *FileCache) Get(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[path]
	if !ok {
		c.misses++
		return "", false
	}
	entry := el.Value.(*cacheEntry)

	info, err := os.Stat(path)
	if err != nil || info.ModTime().After(entry.modTime) {
		// Gone or modified since caching.
		c.removeLocked(el)
		c.misses++
		return "", false
	}

	c.order.MoveToFront(el)
	c.hits++
	return entry.content, true
}

// Put stores formatted content for a path. Oversized content is not
// cached.
func (c *FileCache) Put(path, content string, modTime time.Time) {
	size := int64(len(content))
	if size > c.maxBytes/10 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[path]; ok {
		c.removeLocked(el)
	}

	for c.curBytes+size > c.maxBytes || len(c.entries) >= c.maxEntries {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeLocked(back)
	}

	el := c.order.PushFront(&cacheEntry{path: path, content: content, modTime: modTime})
	c.entries[path] = el
	c.curBytes += size
}

// Invalidate drops one path from the cache.
func (c *FileCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[path]; ok {
		c.removeLocked(el)
	}
}

// Clear drops everything.
func (c *FileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.curBytes = 0
}

// Stats returns cache counters.
func (c *FileCache) Stats() FileCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	rate := 0.0
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return FileCacheStats{
		Hits:       c.hits,
		Misses:     c.misses,
		EntryCount: len(c.entries),
		TotalBytes: c.curBytes,
		HitRate:    rate,
	}
}

func (c *FileCache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	c.order.Remove(el)
	delete(c.entries, entry.path)
	c.curBytes -= int64(len(entry.content))
}
