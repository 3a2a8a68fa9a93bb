package ident

import "testing"

func TestUUIDv7_Uniqueness(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("UUIDv7: duplicate at iteration %d: %q", i, id)
		}
		if !Valid(id) {
			t.Fatalf("UUIDv7: invalid uuid %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		next := gen()
		if next <= prev {
			t.Fatalf("expected %q > %q", next, prev)
		}
		prev = next
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("r")
	if got := gen(); got != "r-1" {
		t.Errorf("first id = %q, want r-1", got)
	}
	if got := gen(); got != "r-2" {
		t.Errorf("second id = %q, want r-2", got)
	}
}

func TestNew_UsesDefault(t *testing.T) {
	orig := Default
	defer func() { Default = orig }()
	Default = Sequence("x")
	if got := New(); got != "x-1" {
		t.Errorf("New() = %q, want x-1", got)
	}
}

func TestValid(t *testing.T) {
	if Valid("not-a-uuid") {
		t.Error("expected invalid")
	}
}
