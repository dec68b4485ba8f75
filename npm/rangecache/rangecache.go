// Package rangecache implements the per-package accumulated-range cache
// and tombstone set (§3, §4.5) that drives the novelty predicate behind
// Phase 1 and Phase 2's "do we need to fetch this?" decisions.
package rangecache

import (
	"sync"

	"github.com/a-h/npmmirror/npm/semver"
)

// InsertResult reports what an Insert call discovered.
type InsertResult struct {
	PackageIsNew bool
	RangeIsNew   bool
}

// Cache is the range cache. The zero value is not usable; construct with
// New.
type Cache struct {
	mu      sync.RWMutex
	ranges  map[string][]semver.Range
	removed map[string]struct{}
}

// New returns an empty range cache.
func New() *Cache {
	return &Cache{
		ranges:  make(map[string][]semver.Range),
		removed: make(map[string]struct{}),
	}
}

// Insert accumulates r under pkg and reports novelty per §4.5:
//   - {false,false} if pkg is tombstoned,
//   - {false,false} if r is a superset of some existing range for pkg (r
//     is then not stored),
//   - {false,true} if pkg exists and r is a superset of none of its ranges,
//   - {true,true} if pkg was previously unseen.
//
// The dominance check and the append run under one exclusive lock, so
// concurrent Insert calls are serialized.
func (c *Cache) Insert(pkg string, r semver.Range) InsertResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, tombstoned := c.removed[pkg]; tombstoned {
		return InsertResult{}
	}

	existing, exists := c.ranges[pkg]
	if !exists {
		c.ranges[pkg] = []semver.Range{r}
		return InsertResult{PackageIsNew: true, RangeIsNew: true}
	}

	for _, prior := range existing {
		if r.AllowsAll(prior) {
			return InsertResult{}
		}
	}

	c.ranges[pkg] = append(existing, r)
	return InsertResult{RangeIsNew: true}
}

// Satisfies reports whether some accumulated range for pkg is satisfied by
// v. Always false for a tombstoned package.
func (c *Cache) Satisfies(pkg string, v semver.Version) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, tombstoned := c.removed[pkg]; tombstoned {
		return false
	}
	for _, r := range c.ranges[pkg] {
		if r.Satisfies(v) {
			return true
		}
	}
	return false
}

// MaxSatisfying returns, for every accumulated range of pkg, that range's
// maximal satisfying element from versions (duplicates permitted; Phase 2
// skips versions it has already visited, while Phase 3 queues a tarball
// request for every returned element). Empty for a tombstoned or unseen
// package.
func (c *Cache) MaxSatisfying(pkg string, versions []semver.Version) []semver.Version {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, tombstoned := c.removed[pkg]; tombstoned {
		return nil
	}
	var out []semver.Version
	for _, r := range c.ranges[pkg] {
		if v, ok := r.MaxSatisfying(versions); ok {
			out = append(out, v)
		}
	}
	return out
}

// Satisfying returns every version in versions satisfying any accumulated
// range for pkg — the "greedy" selection mode of §4.7.
func (c *Cache) Satisfying(pkg string, versions []semver.Version) []semver.Version {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, tombstoned := c.removed[pkg]; tombstoned {
		return nil
	}
	ranges := c.ranges[pkg]
	var out []semver.Version
	for _, v := range versions {
		for _, r := range ranges {
			if r.Satisfies(v) {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

// Remove tombstones pkg: it is dropped from the ranges map and added to
// the removed set, absorbing all future Satisfies/Insert calls per §8.
func (c *Cache) Remove(pkg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ranges, pkg)
	c.removed[pkg] = struct{}{}
}

// Packages returns every package name currently tracked (not tombstoned),
// the seed set for Phase 2's initial frontier.
func (c *Cache) Packages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.ranges))
	for pkg := range c.ranges {
		out = append(out, pkg)
	}
	return out
}
