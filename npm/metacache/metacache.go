// Package metacache implements the in-memory, append-only metadata cache
// (§3, §4.4): a single growing byte vector plus a map from package name to
// the (offset, length) of the blob first inserted for it. Insertion never
// overwrites — a second insert for the same key is a no-op that reports
// false.
package metacache

import (
	"fmt"
	"sync"

	"github.com/a-h/npmmirror/npm/pkgindex"
)

type span struct {
	offset int
	length int
}

// Cache is the metadata cache. The zero value is not usable; construct
// with New.
type Cache struct {
	mu     sync.RWMutex
	buf    []byte
	spans  map[string]span
}

// New returns an empty metadata cache.
func New() *Cache {
	return &Cache{spans: make(map[string]span)}
}

// Insert appends blob and records it under package. If package already has
// an entry, Insert does nothing and returns false.
func (c *Cache) Insert(pkg string, blob []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.spans[pkg]; exists {
		return false
	}
	offset := len(c.buf)
	c.buf = append(c.buf, blob...)
	c.spans[pkg] = span{offset: offset, length: len(blob)}
	return true
}

// Get decodes and returns the PackageIndex stored for package, if any. A
// decode failure here indicates a corrupt cache and is a logic error: the
// process aborts rather than returning a recoverable error, per §4.4.
func (c *Cache) Get(pkg string) (pkgindex.PackageIndex, bool) {
	c.mu.RLock()
	s, exists := c.spans[pkg]
	var blob []byte
	if exists {
		blob = make([]byte, s.length)
		copy(blob, c.buf[s.offset:s.offset+s.length])
	}
	c.mu.RUnlock()

	if !exists {
		return pkgindex.PackageIndex{}, false
	}

	idx, err := pkgindex.Decode(blob)
	if err != nil {
		panic(fmt.Sprintf("metacache: corrupt entry for %q: %v", pkg, err))
	}
	return idx, true
}

// Has reports whether package has an entry, without decoding it.
func (c *Cache) Has(pkg string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.spans[pkg]
	return exists
}
