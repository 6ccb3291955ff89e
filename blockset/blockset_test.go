package blockset

import "testing"

func TestGrowsOnDemand(t *testing.T) {
	var s Set
	if s.Get(1000) {
		t.Fatal("fresh set should read false everywhere")
	}
	s.Set(1000, true)
	if !s.Get(1000) {
		t.Fatal("bit 1000 should be set")
	}
	if s.Get(999) || s.Get(1001) {
		t.Fatal("neighboring bits should remain unset")
	}
}

func TestEnsureThenSet(t *testing.T) {
	s := New(4)
	s.Ensure(1 << 20)
	s.Set(1<<20-1, true)
	if !s.Get(1<<20 - 1) {
		t.Fatal("expected bit to be set after Ensure grew capacity")
	}
}
