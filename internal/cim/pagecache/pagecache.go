// Package pagecache implements an optional, size-bounded cache of decoded
// page bytes keyed by (file kind, physical page number), wrapping
// hashicorp/golang-lru/v2 rather than hand-rolling an eviction policy.
package pagecache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// FileKind distinguishes the two paged files sharing one cache instance
// would otherwise collide on physical page number.
type FileKind int

const (
	IndexFile FileKind = iota
	ObjectsFile
)

type key struct {
	kind     FileKind
	physical uint32
}

// Cache bounds the number of decoded page byte-slices held in memory,
// keyed by (file, physical_page_number).
type Cache struct {
	lru *lru.Cache[key, []byte]
}

// New creates a page cache holding at most size entries. size <= 0
// disables caching (Get always misses, Add is a no-op).
func New(size int) *Cache {
	if size <= 0 {
		return &Cache{}
	}
	c, err := lru.New[key, []byte](size)
	if err != nil {
		// Only returned by golang-lru for a non-positive size, which is
		// excluded above.
		return &Cache{}
	}
	return &Cache{lru: c}
}

// Get returns the cached raw page bytes for (kind, physicalPage), if any.
func (c *Cache) Get(kind FileKind, physicalPage uint32) ([]byte, bool) {
	if c == nil || c.lru == nil {
		return nil, false
	}
	return c.lru.Get(key{kind, physicalPage})
}

// Add stores the raw page bytes for (kind, physicalPage).
func (c *Cache) Add(kind FileKind, physicalPage uint32, data []byte) {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Add(key{kind, physicalPage}, data)
}

// Purge empties the cache; called from the repository façade's Close().
func (c *Cache) Purge() {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Purge()
}
