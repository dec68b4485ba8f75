// Package metadata decodes the upstream registry's metadata documents and
// classifies each dependency spec string into the DepVersion shapes the
// mirror orchestrator needs to drive further resolution.
//
// Field shapes follow the teacher's npm/models abbreviated-metadata struct,
// but unlike that server-side model this parser is read-once and tolerant:
// every map is optional, and a null VersionInfo is kept as a version entry
// with a nil Info rather than rejected. The codec's projection rule requires a deterministic
// version order, which encoding/json's map decoding does not give us, so
// Sparse.Versions is parsed by hand with a streaming decoder and sorted
// into ascending semver order.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/a-h/npmmirror/npm/semver"
)

// Sparse is the upstream package metadata document, decoded once per fetch.
type Sparse struct {
	Name     string
	DistTags map[string]string
	// Versions is sorted in ascending semver order; a nil *VersionInfo marks a
	// version whose entry was null or absent.
	Versions []VersionEntry
}

// VersionEntry pairs a version string with its (possibly absent) info.
type VersionEntry struct {
	Version string
	Info    *VersionInfo
}

// VersionInfo describes one published version. Any of the dependency tables
// may be absent; missing tables are treated as empty.
type VersionInfo struct {
	Dist                 Dist              `json:"dist"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	DevDependencies      map[string]string `json:"devDependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
}

// Dist carries the version's tarball location.
type Dist struct {
	Tarball string `json:"tarball"`
}

// rawSparse mirrors the upstream document shape for the top-level fields;
// Versions is decoded separately for deterministic ordering.
type rawSparse struct {
	Name     string            `json:"name"`
	DistTags map[string]string `json:"dist-tags"`
	Versions json.RawMessage   `json:"versions"`
}

// ParseSparse decodes a registry metadata document from its raw JSON bytes.
func ParseSparse(data []byte) (Sparse, error) {
	var raw rawSparse
	if err := json.Unmarshal(data, &raw); err != nil {
		return Sparse{}, fmt.Errorf("metadata: decoding document: %w", err)
	}

	versions, err := decodeOrderedVersions(raw.Versions)
	if err != nil {
		return Sparse{}, fmt.Errorf("metadata: decoding versions: %w", err)
	}

	return Sparse{
		Name:     raw.Name,
		DistTags: raw.DistTags,
		Versions: versions,
	}, nil
}

// decodeOrderedVersions walks the "versions" object's tokens with a
// streaming decoder rather than through a Go map (whose iteration order is
// randomized), then sorts the result into ascending semver order to match
// original_source/src/metadata/package_index.rs's BTreeMap<Version, ...>,
// giving index projection (§4.2) a deterministic version order regardless
// of the upstream document's own key order.
func decodeOrderedVersions(data json.RawMessage) ([]VersionEntry, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var entries []VersionEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %v", keyTok)
		}

		var info *VersionInfo
		if err := dec.Decode(&info); err != nil {
			return nil, fmt.Errorf("version %q: %w", key, err)
		}
		entries = append(entries, VersionEntry{Version: key, Info: info})
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		vi, erri := semver.ParseVersion(entries[i].Version)
		vj, errj := semver.ParseVersion(entries[j].Version)
		if erri != nil || errj != nil {
			return entries[i].Version < entries[j].Version
		}
		return vi.LessThan(vj)
	})
	return entries, nil
}
