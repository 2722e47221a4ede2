package registry

import "testing"

func TestRegisterAndLookup(t *testing.T) {
	tbl := New[string]()

	if _, ok := tbl.Register(1, "ctx-1"); !ok {
		t.Fatal("Register() should succeed for a new pid")
	}

	v, ok := tbl.Lookup(1)
	if !ok || v != "ctx-1" {
		t.Fatalf("Lookup(1) = %q, %v, want ctx-1, true", v, ok)
	}
}

func TestRegisterRejectsDuplicatePID(t *testing.T) {
	tbl := New[string]()

	if _, ok := tbl.Register(1, "ctx-1"); !ok {
		t.Fatal("first Register() should succeed")
	}
	if _, ok := tbl.Register(1, "ctx-2"); ok {
		t.Error("second Register() for the same pid should fail")
	}

	v, _ := tbl.Lookup(1)
	if v != "ctx-1" {
		t.Errorf("duplicate Register should not replace the existing entry, got %q", v)
	}
}

func TestUnregister(t *testing.T) {
	tbl := New[string]()
	tbl.Register(1, "ctx-1")

	v, ok := tbl.Unregister(1)
	if !ok || v != "ctx-1" {
		t.Fatalf("Unregister(1) = %q, %v, want ctx-1, true", v, ok)
	}

	if _, ok := tbl.Lookup(1); ok {
		t.Error("Lookup after Unregister should fail")
	}

	if _, ok := tbl.Unregister(1); ok {
		t.Error("second Unregister should fail")
	}
}

func TestLen(t *testing.T) {
	tbl := New[int]()
	tbl.Register(1, 100)
	tbl.Register(2, 200)

	if tbl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tbl.Len())
	}

	tbl.Unregister(1)
	if tbl.Len() != 1 {
		t.Errorf("Len() after Unregister = %d, want 1", tbl.Len())
	}
}
