// Package state provides the key-value substrate the contracts persist into,
// plus the collection types built over it.
package state

import "errors"

var (
	ErrNotFound = errors.New("state: not found")
	ErrEmptyKey = errors.New("state: empty key")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// KV is a flat byte store.
//
// Contract:
// - Get MUST return ErrNotFound when the key is absent.
// - Returned values MUST NOT alias the store's internal buffers.
// - Delete of an absent key is a no-op.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Has reports whether key is present.
func Has(kv KV, key string) bool {
	_, err := kv.Get(key)
	return err == nil
}

// Prefixed returns a view of kv with every key namespaced under prefix.
// Each contract account gets its own prefix so contracts can never read or
// write each other's entries.
func Prefixed(kv KV, prefix string) KV {
	return prefixKV{kv: kv, prefix: prefix}
}

type prefixKV struct {
	kv     KV
	prefix string
}

func (p prefixKV) Get(key string) ([]byte, error) { return p.kv.Get(p.prefix + key) }
func (p prefixKV) Set(key string, v []byte) error { return p.kv.Set(p.prefix+key, v) }
func (p prefixKV) Delete(key string) error { return p.kv.Delete(p.prefix + key) }
