// Package semver implements the version and range algebra the mirror needs:
// a totally-ordered Version and a Range that supports satisfaction, the
// maximal-element query, and the superset test the range cache relies on.
//
// Version parsing and comparison are delegated to Masterminds/semver/v3.
// Range is our own: Masterminds' own constraint grammar has no notion of
// "does this range allow everything that range allows" (the superset test
// the rangecache package relies on), nor a maximal-satisfying query, so Range is built
// directly on top of explicit interval bounds derived from the npm range
// grammar (caret, tilde, hyphen, x-ranges, OR via "||").
package semver

import (
	"fmt"

	mmsemver "github.com/Masterminds/semver/v3"
)

// Version is a parsed, totally ordered semantic version.
type Version struct {
	inner *mmsemver.Version
}

// ParseVersion parses a semantic version string.
func ParseVersion(s string) (Version, error) {
	v, err := mmsemver.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("semver: parsing version %q: %w", s, err)
	}
	return Version{inner: v}, nil
}

// String renders the version as originally written.
func (v Version) String() string {
	if v.inner == nil {
		return ""
	}
	return v.inner.Original()
}

// IsZero reports whether v is the zero value (not a parsed version).
func (v Version) IsZero() bool {
	return v.inner == nil
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than other.
func (v Version) Compare(other Version) int {
	return v.inner.Compare(other.inner)
}

// LessThan reports whether v orders before other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

// Equal reports whether v and other compare equal.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

func (v Version) major() int64 { return v.inner.Major() }
func (v Version) minor() int64 { return v.inner.Minor() }
func (v Version) patch() int64 { return v.inner.Patch() }

func versionFrom(major, minor, patch int64) Version {
	v, err := mmsemver.NewVersion(fmt.Sprintf("%d.%d.%d", major, minor, patch))
	if err != nil {
		panic(fmt.Sprintf("semver: internal: %v", err))
	}
	return Version{inner: v}
}
