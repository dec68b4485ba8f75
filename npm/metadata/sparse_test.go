package metadata

import (
	"testing"

	"github.com/a-h/npmmirror/npm/semver"
)

func mustTestVersion(t *testing.T, s string) semver.Version {
	t.Helper()
	v, err := semver.ParseVersion(s)
	if err != nil {
		t.Fatalf("parsing version %q: %v", s, err)
	}
	return v
}

func TestParseSparseSortsVersionsAscending(t *testing.T) {
	doc := []byte(`{
		"name": "leaf",
		"dist-tags": {"latest": "2.0.0"},
		"versions": {
			"2.0.0": {"dist": {"tarball": "https://registry.npmjs.org/leaf/-/leaf-2.0.0.tgz"}},
			"1.0.0": {"dist": {"tarball": "https://registry.npmjs.org/leaf/-/leaf-1.0.0.tgz"}},
			"1.10.0": {"dist": {"tarball": "https://registry.npmjs.org/leaf/-/leaf-1.10.0.tgz"}}
		}
	}`)

	s, err := ParseSparse(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(s.Versions))
	}
	got := []string{s.Versions[0].Version, s.Versions[1].Version, s.Versions[2].Version}
	want := []string{"1.0.0", "1.10.0", "2.0.0"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected ascending semver order %v, got %v", want, got)
		}
	}
}

func TestParseSparseTreatsMissingVersionsAsEmpty(t *testing.T) {
	s, err := ParseSparse([]byte(`{"name": "empty"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Versions) != 0 {
		t.Fatalf("expected no versions, got %d", len(s.Versions))
	}
}

func TestParseSparseToleratesNullVersionEntry(t *testing.T) {
	s, err := ParseSparse([]byte(`{"name": "x", "versions": {"1.0.0": null}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Versions) != 1 || s.Versions[0].Info != nil {
		t.Fatalf("expected one null-info version entry, got %+v", s.Versions)
	}
}
