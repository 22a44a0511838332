package codeid

import "testing"

func TestForCodeDeterministic(t *testing.T) {
	a, err := ForCode([]byte("wasm bytes v0"))
	if err != nil {
		t.Fatalf("ForCode failed: %v", err)
	}
	b, err := ForCode([]byte("wasm bytes v0"))
	if err != nil {
		t.Fatalf("ForCode failed: %v", err)
	}
	if a != b {
		t.Fatalf("same bytes produced different CIDs: %s vs %s", a, b)
	}

	c, err := ForCode([]byte("wasm bytes v1"))
	if err != nil {
		t.Fatalf("ForCode failed: %v", err)
	}
	if a == c {
		t.Fatalf("different bytes produced the same CID")
	}
}

func TestStringMatchesForCode(t *testing.T) {
	code := []byte("payload")
	id, err := ForCode(code)
	if err != nil {
		t.Fatalf("ForCode failed: %v", err)
	}
	if got := String(code); got != id.String() {
		t.Fatalf("String = %q, want %q", got, id.String())
	}
}

func TestEmptyCodeHasCID(t *testing.T) {
	// The registry rejects empty bytecode upstream; the CID itself is still
	// well-defined.
	id, err := ForCode(nil)
	if err != nil {
		t.Fatalf("ForCode(nil) failed: %v", err)
	}
	if !id.Defined() {
		t.Fatalf("ForCode(nil) returned undefined CID")
	}
}
