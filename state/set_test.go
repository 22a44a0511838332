package state_test

import (
	"reflect"
	"testing"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
)

func newSet(t *testing.T) state.UnorderedSet {
	t.Helper()
	return state.NewUnorderedSet(state.NewMemKV(), "s:")
}

func mustInsert(t *testing.T, s state.UnorderedSet, elems ...string) {
	t.Helper()
	for _, e := range elems {
		ok, err := s.Insert(e)
		if err != nil {
			t.Fatalf("Insert(%q) failed: %v", e, err)
		}
		if !ok {
			t.Fatalf("Insert(%q) reported duplicate", e)
		}
	}
}

func TestSetInsertOrder(t *testing.T) {
	s := newSet(t)
	mustInsert(t, s, "a", "b", "c")

	got, err := s.Elements()
	if err != nil {
		t.Fatalf("Elements failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("Elements = %v", got)
	}
	n, err := s.Len()
	if err != nil || n != 3 {
		t.Fatalf("Len = %d, %v", n, err)
	}
}

func TestSetDuplicateInsert(t *testing.T) {
	s := newSet(t)
	mustInsert(t, s, "a")
	ok, err := s.Insert("a")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if ok {
		t.Fatalf("duplicate insert reported success")
	}
	n, err := s.Len()
	if err != nil || n != 1 {
		t.Fatalf("Len = %d, %v", n, err)
	}
}

func TestSetSwapRemove(t *testing.T) {
	s := newSet(t)
	mustInsert(t, s, "a", "b", "c", "d")

	ok, err := s.Remove("b")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !ok {
		t.Fatalf("Remove reported absent")
	}

	// Swap-remove moves the last element into the vacated slot.
	got, err := s.Elements()
	if err != nil {
		t.Fatalf("Elements failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "d", "c"}) {
		t.Fatalf("Elements = %v, want [a d c]", got)
	}

	if has, _ := s.Contains("b"); has {
		t.Fatalf("removed element still a member")
	}
	if has, _ := s.Contains("d"); !has {
		t.Fatalf("moved element lost membership")
	}

	// The moved element must remain removable through its new index.
	if ok, err := s.Remove("d"); err != nil || !ok {
		t.Fatalf("Remove(moved) = %v, %v", ok, err)
	}
	got, err = s.Elements()
	if err != nil {
		t.Fatalf("Elements failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("Elements = %v, want [a c]", got)
	}
}

func TestSetRemoveLast(t *testing.T) {
	s := newSet(t)
	mustInsert(t, s, "a", "b")
	if ok, err := s.Remove("b"); err != nil || !ok {
		t.Fatalf("Remove = %v, %v", ok, err)
	}
	got, err := s.Elements()
	if err != nil {
		t.Fatalf("Elements failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("Elements = %v, want [a]", got)
	}
}

func TestSetRemoveAbsent(t *testing.T) {
	s := newSet(t)
	mustInsert(t, s, "a")
	ok, err := s.Remove("zz")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if ok {
		t.Fatalf("Remove of absent element reported success")
	}
}

func TestSetWindow(t *testing.T) {
	s := newSet(t)
	mustInsert(t, s, "a", "b", "c", "d", "e")

	cases := []struct {
		name        string
		from, limit uint64
		want        []string
	}{
		{"FullRange", 0, 10, []string{"a", "b", "c", "d", "e"}},
		{"Middle", 1, 2, []string{"b", "c"}},
		{"TailClamped", 3, 10, []string{"d", "e"}},
		{"PastEnd", 9, 5, []string{}},
		{"ZeroLimit", 0, 0, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Window(tc.from, tc.limit)
			if err != nil {
				t.Fatalf("Window failed: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Window(%d,%d) = %v, want %v", tc.from, tc.limit, got, tc.want)
			}
		})
	}
}

func TestSetWindowIdempotent(t *testing.T) {
	s := newSet(t)
	mustInsert(t, s, "a", "b", "c")
	first, err := s.Window(0, 2)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	second, err := s.Window(0, 2)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated Window diverged: %v vs %v", first, second)
	}
}

func TestSetsShareKVWithoutCollision(t *testing.T) {
	kv := state.NewMemKV()
	a := state.NewUnorderedSet(kv, "a:")
	b := state.NewUnorderedSet(kv, "b:")

	if ok, err := a.Insert("x"); err != nil || !ok {
		t.Fatalf("Insert = %v, %v", ok, err)
	}
	if has, _ := b.Contains("x"); has {
		t.Fatalf("prefixes collided")
	}
	n, err := b.Len()
	if err != nil || n != 0 {
		t.Fatalf("b.Len = %d, %v", n, err)
	}
}

func TestLookupMap(t *testing.T) {
	kv := state.NewMemKV()
	m := state.NewLookupMap(kv, "m:")

	if m.Has("k") {
		t.Fatalf("empty map has key")
	}
	if err := m.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := m.Get("k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if err := m.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get("k"); !state.IsNotFound(err) {
		t.Fatalf("Get after Delete err = %v", err)
	}
}
