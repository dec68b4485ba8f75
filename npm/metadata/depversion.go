package metadata

import (
	"strings"

	"github.com/a-h/npmmirror/npm/semver"
)

// DepKind discriminates the DepVersion sum type (§3).
type DepKind int

const (
	// KindTag is a dist-tag name, resolved against the dependee's index.
	KindTag DepKind = iota
	// KindRange is an ordinary semver range.
	KindRange
	// KindSubDep is an alias dependency, npm:<name>@<range>.
	KindSubDep
	// KindOther is anything not followed further: link:, git, gist,
	// workspace:, http, file:, a leading "." or "/", or an empty string.
	KindOther
)

// DepVersion is the classified form of a raw dependency spec string.
type DepVersion struct {
	Kind DepKind

	// Tag holds the dist-tag label when Kind == KindTag, or the raw spec
	// when Kind == KindOther.
	Tag string

	// Range holds the parsed range when Kind == KindRange or KindSubDep.
	Range semver.Range

	// SubDepPackage holds the aliased package name when Kind == KindSubDep.
	SubDepPackage string
}

var otherPrefixes = []string{"link:", "git", "gist", "workspace:", "http", "file:", ".", "/"}

// ClassifyDepVersion applies the §4.3 precedence rules to a raw dependency
// spec string.
func ClassifyDepVersion(raw string) DepVersion {
	if r, err := semver.ParseRange(raw); err == nil {
		return DepVersion{Kind: KindRange, Range: r}
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || hasOtherPrefix(trimmed) {
		return DepVersion{Kind: KindOther, Tag: raw}
	}

	if strings.HasPrefix(trimmed, "npm:") {
		rest := strings.TrimPrefix(trimmed, "npm:")
		if i := strings.LastIndexByte(rest, '@'); i > 0 {
			name, versionPart := rest[:i], rest[i+1:]
			if r, err := semver.ParseRange(versionPart); err == nil {
				return DepVersion{Kind: KindSubDep, SubDepPackage: name, Range: r}
			}
		}
	}

	return DepVersion{Kind: KindTag, Tag: raw}
}

func hasOtherPrefix(s string) bool {
	for _, p := range otherPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
