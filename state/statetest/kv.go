// Package statetest provides a conformance suite for state.KV backends.
package statetest

import (
	"bytes"
	"testing"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
)

// NewKV constructs a fresh, empty KV instance for a test.
// The returned KV MUST be isolated from other tests.
type NewKV func(t *testing.T) state.KV

func RunKVConformance(t *testing.T, newKV NewKV) {
	t.Helper()

	t.Run("SetGetRoundTrip", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Set("k1", []byte("v1")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := kv.Get("k1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, []byte("v1")) {
			t.Fatalf("Get = %q, want v1", got)
		}
	})

	t.Run("GetMissingIsNotFound", func(t *testing.T) {
		kv := newKV(t)
		_, err := kv.Get("absent")
		if !state.IsNotFound(err) {
			t.Fatalf("Get(absent) err = %v, want ErrNotFound", err)
		}
	})

	t.Run("OverwriteReplaces", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Set("k", []byte("old")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := kv.Set("k", []byte("new")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := kv.Get("k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "new" {
			t.Fatalf("Get = %q, want new", got)
		}
	})

	t.Run("DeleteThenMissing", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Set("k", []byte("v")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := kv.Delete("k"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := kv.Get("k"); !state.IsNotFound(err) {
			t.Fatalf("Get after Delete err = %v, want ErrNotFound", err)
		}
		// Deleting an absent key is a no-op.
		if err := kv.Delete("k"); err != nil {
			t.Fatalf("Delete(absent) failed: %v", err)
		}
	})

	t.Run("ValuesDoNotAlias", func(t *testing.T) {
		kv := newKV(t)
		src := []byte("mutable")
		if err := kv.Set("k", src); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		src[0] = 'X'
		got, err := kv.Get("k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "mutable" {
			t.Fatalf("stored value aliased caller buffer: %q", got)
		}
		got[0] = 'Y'
		again, err := kv.Get("k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(again) != "mutable" {
			t.Fatalf("returned value aliased store buffer: %q", again)
		}
	})

	t.Run("EmptyValueAllowed", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Set("k", nil); err != nil {
			t.Fatalf("Set(nil) failed: %v", err)
		}
		got, err := kv.Get("k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("Get = %q, want empty", got)
		}
	})

	t.Run("RejectEmptyKey", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Set("", []byte("v")); err == nil {
			t.Fatalf("Set with empty key should fail")
		}
		if _, err := kv.Get(""); err == nil {
			t.Fatalf("Get with empty key should fail")
		}
	})
}
