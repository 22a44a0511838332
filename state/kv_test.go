package state_test

import (
	"testing"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state/statetest"
)

func TestMemKVConformance(t *testing.T) {
	statetest.RunKVConformance(t, func(t *testing.T) state.KV {
		return state.NewMemKV()
	})
}

func TestDirKVConformance(t *testing.T) {
	statetest.RunKVConformance(t, func(t *testing.T) state.KV {
		kv, err := state.NewDirKV(t.TempDir())
		if err != nil {
			t.Fatalf("NewDirKV failed: %v", err)
		}
		return kv
	})
}

func TestTxConformance(t *testing.T) {
	statetest.RunKVConformance(t, func(t *testing.T) state.KV {
		return state.NewTx(state.NewMemKV())
	})
}

func TestPrefixedIsolation(t *testing.T) {
	base := state.NewMemKV()
	a := state.Prefixed(base, "a:")
	b := state.Prefixed(base, "b:")

	if err := a.Set("k", []byte("from-a")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := b.Get("k"); !state.IsNotFound(err) {
		t.Fatalf("prefix b sees prefix a's key: err = %v", err)
	}
	got, err := a.Get("k")
	if err != nil || string(got) != "from-a" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}
