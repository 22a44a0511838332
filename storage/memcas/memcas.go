// Package memcas provides an in-memory storage.CAS, used by tests and by
// hosts that keep bytecode only for the life of the process.
package memcas

import (
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/codeid"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage"
)

type CAS struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func New() *CAS {
	return &CAS{m: make(map[string][]byte)}
}

func (c *CAS) Put(bytes []byte) (cid.Cid, error) {
	id, err := codeid.ForCode(bytes)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	cp := make([]byte, len(bytes))
	copy(cp, bytes)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id.String()] = cp
	return id, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	c.mu.RLock()
	b, ok := c.m[id.String()]
	c.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	c.mu.RLock()
	_, ok := c.m[id.String()]
	c.mu.RUnlock()
	return ok
}
