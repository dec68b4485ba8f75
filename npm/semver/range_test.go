package semver

import "testing"

func mustVersion(t *testing.T, s string) Version {
	t.Helper()
	v, err := ParseVersion(s)
	if err != nil {
		t.Fatalf("parsing version %q: %v", s, err)
	}
	return v
}

func mustRange(t *testing.T, s string) Range {
	t.Helper()
	r, err := ParseRange(s)
	if err != nil {
		t.Fatalf("parsing range %q: %v", s, err)
	}
	return r
}

func TestSatisfiesCaret(t *testing.T) {
	cases := []struct {
		rng    string
		vers   string
		expect bool
	}{
		{"^1.2.3", "1.2.3", true},
		{"^1.2.3", "1.9.9", true},
		{"^1.2.3", "2.0.0", false},
		{"^1.2.3", "1.2.2", false},
		{"^0.2.3", "0.2.9", true},
		{"^0.2.3", "0.3.0", false},
		{"^0.0.3", "0.0.3", true},
		{"^0.0.3", "0.0.4", false},
	}
	for _, c := range cases {
		r := mustRange(t, c.rng)
		v := mustVersion(t, c.vers)
		if got := r.Satisfies(v); got != c.expect {
			t.Errorf("%s satisfies %s: got %v, want %v", c.rng, c.vers, got, c.expect)
		}
	}
}

func TestSatisfiesTilde(t *testing.T) {
	cases := []struct {
		rng    string
		vers   string
		expect bool
	}{
		{"~1.2.3", "1.2.9", true},
		{"~1.2.3", "1.3.0", false},
		{"~1.2", "1.2.9", true},
		{"~1.2", "1.3.0", false},
		{"~1", "1.9.9", true},
		{"~1", "2.0.0", false},
	}
	for _, c := range cases {
		r := mustRange(t, c.rng)
		v := mustVersion(t, c.vers)
		if got := r.Satisfies(v); got != c.expect {
			t.Errorf("%s satisfies %s: got %v, want %v", c.rng, c.vers, got, c.expect)
		}
	}
}

func TestSatisfiesHyphenAndXRange(t *testing.T) {
	cases := []struct {
		rng    string
		vers   string
		expect bool
	}{
		{"1.2.3 - 2.3.4", "1.2.3", true},
		{"1.2.3 - 2.3.4", "2.3.4", true},
		{"1.2.3 - 2.3.4", "2.3.5", false},
		{"1.2.x", "1.2.9", true},
		{"1.2.x", "1.3.0", false},
		{"*", "9.9.9", true},
		{"1.x || 2.x", "1.5.0", true},
		{"1.x || 2.x", "2.5.0", true},
		{"1.x || 2.x", "3.0.0", false},
	}
	for _, c := range cases {
		r := mustRange(t, c.rng)
		v := mustVersion(t, c.vers)
		if got := r.Satisfies(v); got != c.expect {
			t.Errorf("%s satisfies %s: got %v, want %v", c.rng, c.vers, got, c.expect)
		}
	}
}

func TestMaxSatisfying(t *testing.T) {
	r := mustRange(t, "^1.2.0")
	versions := []Version{
		mustVersion(t, "1.2.0"),
		mustVersion(t, "1.5.3"),
		mustVersion(t, "2.0.0"),
		mustVersion(t, "1.9.9"),
	}
	got, ok := r.MaxSatisfying(versions)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !got.Equal(mustVersion(t, "1.9.9")) {
		t.Fatalf("got %s, want 1.9.9", got)
	}
}

func TestMaxSatisfyingNoMatch(t *testing.T) {
	r := mustRange(t, "^3.0.0")
	versions := []Version{mustVersion(t, "1.0.0"), mustVersion(t, "2.0.0")}
	if _, ok := r.MaxSatisfying(versions); ok {
		t.Fatalf("expected no match")
	}
}

func TestAllowsAllSuperset(t *testing.T) {
	wide := mustRange(t, "^1.0.0")
	narrow := mustRange(t, "1.2.3 - 1.5.0")
	if !wide.AllowsAll(narrow) {
		t.Fatalf("expected %s to allow everything %s allows", wide, narrow)
	}
	if narrow.AllowsAll(wide) {
		t.Fatalf("did not expect %s to allow everything %s allows", narrow, wide)
	}
}

func TestAllowsAllDisjoint(t *testing.T) {
	a := mustRange(t, "^1.0.0")
	b := mustRange(t, "^2.0.0")
	if a.AllowsAll(b) {
		t.Fatalf("disjoint ranges must not allow each other")
	}
	if b.AllowsAll(a) {
		t.Fatalf("disjoint ranges must not allow each other")
	}
}

func TestAllowsAllReflexive(t *testing.T) {
	r := mustRange(t, "^1.2.3")
	if !r.AllowsAll(r) {
		t.Fatalf("range must allow itself")
	}
}

func TestAllowsAllAdjacentOrRanges(t *testing.T) {
	union := mustRange(t, "1.x || 2.x")
	subset := mustRange(t, "1.5.0 - 2.5.0")
	if !union.AllowsAll(subset) {
		t.Fatalf("expected %s to allow %s via merged adjacent intervals", union, subset)
	}
}
