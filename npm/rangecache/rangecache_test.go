package rangecache

import (
	"testing"

	"github.com/a-h/npmmirror/npm/semver"
)

func mustRange(t *testing.T, s string) semver.Range {
	t.Helper()
	r, err := semver.ParseRange(s)
	if err != nil {
		t.Fatalf("parsing range %q: %v", s, err)
	}
	return r
}

func mustVersion(t *testing.T, s string) semver.Version {
	t.Helper()
	v, err := semver.ParseVersion(s)
	if err != nil {
		t.Fatalf("parsing version %q: %v", s, err)
	}
	return v
}

func TestInsertFirstIsPackageNew(t *testing.T) {
	c := New()
	got := c.Insert("leaf", mustRange(t, "^1.0.0"))
	if !got.PackageIsNew || !got.RangeIsNew {
		t.Fatalf("expected first insert to be package-new and range-new, got %+v", got)
	}
}

func TestInsertSupersetRangeIsNotNew(t *testing.T) {
	c := New()
	c.Insert("leaf", mustRange(t, "1.2.3 - 1.5.0"))
	got := c.Insert("leaf", mustRange(t, "^1.0.0"))
	if got.PackageIsNew || got.RangeIsNew {
		t.Fatalf("expected a superset of an existing range to report no novelty, got %+v", got)
	}
}

func TestInsertDisjointRangeIsRangeNewButNotPackageNew(t *testing.T) {
	c := New()
	c.Insert("leaf", mustRange(t, "1.2.3 - 1.5.0"))
	got := c.Insert("leaf", mustRange(t, "^2.0.0"))
	if got.PackageIsNew {
		t.Fatalf("package was already seen, PackageIsNew must be false")
	}
	if !got.RangeIsNew {
		t.Fatalf("expected the disjoint range to be reported as new")
	}
}

func TestPackageNewAtMostOnce(t *testing.T) {
	c := New()
	first := c.Insert("leaf", mustRange(t, "^1.0.0"))
	second := c.Insert("leaf", mustRange(t, "^2.0.0"))
	if !first.PackageIsNew {
		t.Fatalf("expected first insert to be package-new")
	}
	if second.PackageIsNew {
		t.Fatalf("expected package_is_new to never be true twice for the same package")
	}
}

func TestTombstoneAbsorption(t *testing.T) {
	c := New()
	c.Insert("leaf", mustRange(t, "^1.0.0"))
	c.Remove("leaf")

	if c.Satisfies("leaf", mustVersion(t, "1.0.0")) {
		t.Fatalf("expected tombstoned package to never satisfy")
	}
	got := c.Insert("leaf", mustRange(t, "^1.0.0"))
	if got.PackageIsNew || got.RangeIsNew {
		t.Fatalf("expected insert on a tombstoned package to report {false,false}, got %+v", got)
	}
}

func TestSatisfiesAndMaxSatisfying(t *testing.T) {
	c := New()
	c.Insert("leaf", mustRange(t, "^1.0.0"))

	if !c.Satisfies("leaf", mustVersion(t, "1.5.0")) {
		t.Fatalf("expected 1.5.0 to satisfy ^1.0.0")
	}
	if c.Satisfies("leaf", mustVersion(t, "2.0.0")) {
		t.Fatalf("did not expect 2.0.0 to satisfy ^1.0.0")
	}

	versions := []semver.Version{
		mustVersion(t, "1.0.0"),
		mustVersion(t, "1.5.0"),
		mustVersion(t, "2.0.0"),
	}
	got := c.MaxSatisfying("leaf", versions)
	if len(got) != 1 || !got[0].Equal(mustVersion(t, "1.5.0")) {
		t.Fatalf("expected [1.5.0], got %v", got)
	}
}

func TestSatisfyingGreedyMode(t *testing.T) {
	c := New()
	c.Insert("leaf", mustRange(t, "^1.0.0"))
	versions := []semver.Version{
		mustVersion(t, "1.0.0"),
		mustVersion(t, "1.2.0"),
		mustVersion(t, "1.5.3"),
		mustVersion(t, "2.0.0"),
	}
	got := c.Satisfying("leaf", versions)
	if len(got) != 3 {
		t.Fatalf("expected all three 1.x versions, got %v", got)
	}
}

func TestMonotonicityAcrossInterleavedInserts(t *testing.T) {
	c := New()
	ranges := []semver.Range{
		mustRange(t, "1.0.0 - 1.2.0"),
		mustRange(t, "1.1.0 - 1.4.0"),
		mustRange(t, "2.0.0 - 2.1.0"),
	}
	for _, r := range ranges {
		c.Insert("leaf", r)
	}
	// Every version any individual range allows must be satisfied by the
	// accumulated set.
	probes := []string{"1.0.0", "1.2.0", "1.4.0", "2.0.0", "2.1.0"}
	for _, p := range probes {
		if !c.Satisfies("leaf", mustVersion(t, p)) {
			t.Errorf("expected accumulated ranges to satisfy %s", p)
		}
	}
}
