package metadata

import "testing"

func TestClassifyDepVersion(t *testing.T) {
	cases := []struct {
		raw  string
		kind DepKind
	}{
		{"^1.2.3", KindRange},
		{"~1.2.3", KindRange},
		{"1.x", KindRange},
		{"latest", KindTag},
		{"next", KindTag},
		{"npm:lodash@^4.0.0", KindSubDep},
		{"link:../local", KindOther},
		{"git+https://example.com/repo.git", KindOther},
		{"gist:11081aaa281", KindOther},
		{"workspace:*", KindOther},
		{"http://example.com/tarball.tgz", KindOther},
		{"file:../foo.tgz", KindOther},
		{"./local", KindOther},
		{"/abs/local", KindOther},
		{"", KindOther},
		{"   ", KindOther},
	}
	for _, c := range cases {
		got := ClassifyDepVersion(c.raw)
		if got.Kind != c.kind {
			t.Errorf("ClassifyDepVersion(%q).Kind = %v, want %v", c.raw, got.Kind, c.kind)
		}
	}
}

func TestClassifySubDepFields(t *testing.T) {
	got := ClassifyDepVersion("npm:lodash@^4.0.0")
	if got.Kind != KindSubDep {
		t.Fatalf("expected KindSubDep, got %v", got.Kind)
	}
	if got.SubDepPackage != "lodash" {
		t.Fatalf("expected package lodash, got %q", got.SubDepPackage)
	}
	if !got.Range.Satisfies(mustTestVersion(t, "4.5.0")) {
		t.Fatalf("expected range to satisfy 4.5.0")
	}
}

func TestClassifySubDepFallsThroughToTag(t *testing.T) {
	// npm: prefix but the remainder after the last '@' does not parse as a
	// range, so this falls through to Tag per §4.3 step 3.
	got := ClassifyDepVersion("npm:lodash@not-a-range")
	if got.Kind != KindTag {
		t.Fatalf("expected fallthrough to KindTag, got %v", got.Kind)
	}
}
