package metadata

import (
	"encoding/json"
	"fmt"

	"github.com/a-h/npmmirror/npm/semver"
)

// Manifest is a user-supplied file declaring top-level package→range pairs
// (§6 Input manifest format). Order is irrelevant here: unlike the
// metadata codec, Phase 1 just seeds the range cache.
type Manifest struct {
	Dependencies map[string]semver.Range
}

type rawManifest struct {
	Dependencies map[string]string `json:"dependencies"`
}

// ParseManifest decodes a manifest file's contents. A malformed range
// aborts parsing, matching §6: "failure to parse aborts Phase 1".
func ParseManifest(data []byte) (Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("metadata: decoding manifest: %w", err)
	}

	deps := make(map[string]semver.Range, len(raw.Dependencies))
	for name, spec := range raw.Dependencies {
		r, err := semver.ParseRange(spec)
		if err != nil {
			return Manifest{}, fmt.Errorf("metadata: manifest dependency %q: %w", name, err)
		}
		deps[name] = r
	}
	return Manifest{Dependencies: deps}, nil
}
