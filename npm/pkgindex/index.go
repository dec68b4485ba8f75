// Package pkgindex implements the compact binary projection of a metadata
// document (§3 PackageIndex, §4.2 codec) that is written alongside each
// cached metadata document and held in the in-memory metadata cache.
package pkgindex

import (
	"sort"
	"strings"

	"github.com/a-h/npmmirror/npm/metadata"
	"github.com/a-h/npmmirror/npm/semver"
)

// TarballKind discriminates the TarballUrl sum type.
type TarballKind int

const (
	// TarballShort stores only the basename; the full URL is rebuilt from
	// the registry, package name, and basename.
	TarballShort TarballKind = iota
	// TarballFull stores the complete URL verbatim.
	TarballFull
)

// TarballURL is either a Short(basename) or a Full(url), per §3.
type TarballURL struct {
	Kind TarballKind
	// Value holds the basename when Kind == TarballShort, or the full URL
	// when Kind == TarballFull.
	Value string
}

// DepKind mirrors metadata.DepKind for the index's own dependency
// representation (IdxDepVersion, §3), keeping pkgindex decodable without
// importing semver.Range's richer parsed form into the wire format.
type DepKind int

const (
	IdxTag DepKind = iota
	IdxRange
	IdxSubDep
	IdxOther
)

// IdxDepVersion is the index-projected form of a DepVersion: ranges are
// stored as their original spec string, not a parsed semver.Range, so the
// index stays a plain serializable value.
type IdxDepVersion struct {
	Kind          DepKind
	Raw           string // original spec string for Tag/Other
	RangeSpec     string // original range spec string for Range/SubDep
	SubDepPackage string // aliased package name for SubDep
}

// IdxDep is one dependency table entry.
type IdxDep struct {
	Package string
	Range   IdxDepVersion
}

// PackageIndex is the local, derived projection described in §3: parallel
// arrays indexed by version position, plus a label→version-index dist-tag
// map.
type PackageIndex struct {
	Versions []string
	Tarballs []*TarballURL // nil entry means "no tarball for this version"
	Deps     [][]IdxDep
	DistTags map[string]int
}

// ProjectionOptions controls which dependency tables are concatenated into
// each version's Deps entry (§6 no_dev_deps / no_optional_deps /
// no_peer_deps flags).
type ProjectionOptions struct {
	RegistryURL    string
	NoDevDeps      bool
	NoOptionalDeps bool
	NoPeerDeps     bool
}

// FromSparse projects a decoded metadata document into a PackageIndex,
// following the deterministic rules of §4.2.
func FromSparse(pkg string, s metadata.Sparse, opts ProjectionOptions) PackageIndex {
	idx := PackageIndex{
		Versions: make([]string, 0, len(s.Versions)),
		Tarballs: make([]*TarballURL, 0, len(s.Versions)),
		Deps:     make([][]IdxDep, 0, len(s.Versions)),
		DistTags: make(map[string]int),
	}
	if len(s.Versions) == 0 {
		return idx
	}

	versionPos := make(map[string]int, len(s.Versions))

	for _, entry := range s.Versions {
		pos := len(idx.Versions)
		idx.Versions = append(idx.Versions, entry.Version)
		versionPos[entry.Version] = pos

		if entry.Info == nil {
			idx.Tarballs = append(idx.Tarballs, nil)
			idx.Deps = append(idx.Deps, nil)
			continue
		}

		idx.Tarballs = append(idx.Tarballs, stripPath(entry.Info.Dist.Tarball, pkg, opts.RegistryURL))
		idx.Deps = append(idx.Deps, projectDeps(*entry.Info, opts))
	}

	for label, version := range s.DistTags {
		if pos, ok := versionPos[version]; ok {
			idx.DistTags[label] = pos
		}
	}

	return idx
}

// projectDeps concatenates dependency tables in the fixed order §4.2
// prescribes: dependencies, then devDependencies, optionalDependencies,
// peerDependencies, each gated by opts.
func projectDeps(info metadata.VersionInfo, opts ProjectionOptions) []IdxDep {
	var deps []IdxDep
	deps = appendTable(deps, info.Dependencies)
	if !opts.NoDevDeps {
		deps = appendTable(deps, info.DevDependencies)
	}
	if !opts.NoOptionalDeps {
		deps = appendTable(deps, info.OptionalDependencies)
	}
	if !opts.NoPeerDeps {
		deps = appendTable(deps, info.PeerDependencies)
	}
	return deps
}

// appendTable appends table's entries in ascending key order: map iteration
// order is randomized per process, and §4.2 requires a deterministic
// projection (original_source/src/metadata/package_index.rs types these
// tables as BTreeMap, which iterates sorted by construction).
func appendTable(deps []IdxDep, table map[string]string) []IdxDep {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		deps = append(deps, IdxDep{Package: name, Range: toIdxDepVersion(table[name])})
	}
	return deps
}

func toIdxDepVersion(raw string) IdxDepVersion {
	classified := metadata.ClassifyDepVersion(raw)
	switch classified.Kind {
	case metadata.KindRange:
		return IdxDepVersion{Kind: IdxRange, RangeSpec: classified.Range.String()}
	case metadata.KindSubDep:
		return IdxDepVersion{Kind: IdxSubDep, SubDepPackage: classified.SubDepPackage, RangeSpec: classified.Range.String()}
	case metadata.KindOther:
		return IdxDepVersion{Kind: IdxOther, Raw: classified.Tag}
	default:
		return IdxDepVersion{Kind: IdxTag, Raw: classified.Tag}
	}
}

// ToDepVersion re-parses an IdxDepVersion back into a metadata.DepVersion,
// for callers (Phase 2 expansion) that need the richer semver.Range form.
func (d IdxDepVersion) ToDepVersion() (metadata.DepVersion, error) {
	switch d.Kind {
	case IdxRange:
		r, err := semver.ParseRange(d.RangeSpec)
		if err != nil {
			return metadata.DepVersion{}, err
		}
		return metadata.DepVersion{Kind: metadata.KindRange, Range: r}, nil
	case IdxSubDep:
		r, err := semver.ParseRange(d.RangeSpec)
		if err != nil {
			return metadata.DepVersion{}, err
		}
		return metadata.DepVersion{Kind: metadata.KindSubDep, SubDepPackage: d.SubDepPackage, Range: r}, nil
	case IdxOther:
		return metadata.DepVersion{Kind: metadata.KindOther, Tag: d.Raw}, nil
	default:
		return metadata.DepVersion{Kind: metadata.KindTag, Tag: d.Raw}, nil
	}
}

// stripPath implements §4.2 rule 3: a tarball URL is stored as Short(basename)
// when it has the registry as a prefix and the remainder contains
// "<package>/-/" as a substring; otherwise Full(url) is stored verbatim.
//
// The substring search tolerates package names that happen to appear
// earlier in the path for pathological scoped-package URLs — preserved
// as-is per §9.
func stripPath(url, pkg, registry string) *TarballURL {
	if url == "" {
		return nil
	}
	if registry == "" || !strings.HasPrefix(url, registry) {
		return &TarballURL{Kind: TarballFull, Value: url}
	}

	sentinel := pkg + "/-/"
	remainder := strings.TrimPrefix(url, registry)
	idx := strings.Index(remainder, sentinel)
	if idx < 0 {
		return &TarballURL{Kind: TarballFull, Value: url}
	}

	basename := remainder[idx+len(sentinel):]
	return &TarballURL{Kind: TarballShort, Value: basename}
}

// RebuildURL is the canonical inverse of stripPath (§8 short/long tarball
// parity), used by the mirror's Phase 3 to recover a fetchable URL from a
// Short entry.
func RebuildURL(t *TarballURL, pkg, registry string) string {
	if t == nil {
		return ""
	}
	if t.Kind == TarballFull {
		return t.Value
	}
	return registry + "/" + pkg + "/-/" + t.Value
}

// TarballByVersion returns the tarball URL for the version at a given
// index position, if present.
func (idx PackageIndex) TarballByVersion(pos int) (*TarballURL, bool) {
	if pos < 0 || pos >= len(idx.Tarballs) {
		return nil, false
	}
	return idx.Tarballs[pos], idx.Tarballs[pos] != nil
}

// VersionByTag resolves a dist-tag label to its version string.
func (idx PackageIndex) VersionByTag(label string) (string, bool) {
	pos, ok := idx.DistTags[label]
	if !ok || pos < 0 || pos >= len(idx.Versions) {
		return "", false
	}
	return idx.Versions[pos], true
}

// DepsByVersion returns the dependency list for the version at a given
// index position.
func (idx PackageIndex) DepsByVersion(pos int) []IdxDep {
	if pos < 0 || pos >= len(idx.Deps) {
		return nil
	}
	return idx.Deps[pos]
}

// VersionPosition returns the index position of a version string.
func (idx PackageIndex) VersionPosition(version string) (int, bool) {
	for i, v := range idx.Versions {
		if v == version {
			return i, true
		}
	}
	return 0, false
}

// ParsedVersions parses every version string in the index, skipping any
// that fail to parse (upstream data occasionally carries non-semver
// version strings; callers that need strict parsing should call
// semver.ParseVersion directly and handle the error).
func (idx PackageIndex) ParsedVersions() []semver.Version {
	out := make([]semver.Version, 0, len(idx.Versions))
	for _, v := range idx.Versions {
		parsed, err := semver.ParseVersion(v)
		if err != nil {
			continue
		}
		out = append(out, parsed)
	}
	return out
}
