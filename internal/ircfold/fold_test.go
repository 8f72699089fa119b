package ircfold

import "testing"

func TestFoldEquivalences(t *testing.T) {
	cases := []struct{ a, b string }{
		{"foo", "FOO"},
		{"foo", "Foo"},
		{"foo[", "FOO{"},
		{"a]b", "A}B"},
		{"a\\b", "A|B"},
		{"a^b", "A~B"},
	}
	for _, c := range cases {
		if !Equal(c.a, c.b) {
			t.Errorf("Equal(%q, %q) = false, want true", c.a, c.b)
		}
	}
}

func TestSanitizeReplacesDisallowed(t *testing.T) {
	got := Sanitize("#foo bar,baz<x>y!z\x00:w")
	for _, c := range got {
		switch c {
		case '#', ' ', ',', '<', '>', '!', 0, ':':
			t.Fatalf("Sanitize left disallowed byte %q in %q", c, got)
		}
	}
}

func TestSanitizeEmptyFallsBackToUnderscore(t *testing.T) {
	if got := Sanitize(""); got != "_" {
		t.Fatalf("Sanitize(%q) = %q, want _", "", got)
	}
}

type fakeMap map[string]bool

func (f fakeMap) Has(folded string) bool { return f[folded] }

func TestArbitrateFreeName(t *testing.T) {
	m := fakeMap{}
	got := Arbitrate("alice", m)
	if got != "alice" {
		t.Fatalf("Arbitrate = %q, want alice", got)
	}
}

func TestArbitrateCollisionAppendsSuffix(t *testing.T) {
	m := fakeMap{"alice": true, "alice1": true}
	got := Arbitrate("alice", m)
	if got != "alice2" {
		t.Fatalf("Arbitrate = %q, want alice2", got)
	}
}

func TestArbitrateReservedNickGetsSuffixed(t *testing.T) {
	m := fakeMap{}
	got := Arbitrate("x", m)
	if got != "x1" {
		t.Fatalf("Arbitrate(x) = %q, want x1", got)
	}
}

func TestArbitrateDeterministic(t *testing.T) {
	m := fakeMap{"bob": true}
	a := Arbitrate("bob", m)
	b := Arbitrate("bob", m)
	if a != b {
		t.Fatalf("Arbitrate not deterministic: %q vs %q", a, b)
	}
}
