package state

// Tx is a copy-on-write overlay over a base KV.
//
// All writes land in the overlay until Commit pushes them to the base in one
// pass. Discard drops them. The runtime wraps every receipt in a Tx so a
// failed call leaves no partial writes behind.
//
// A Tx is single-use: after Commit or Discard it must not be touched again.
type Tx struct {
	base KV
	// nil value marks a deletion.
	writes map[string][]byte
	done   bool
}

func NewTx(base KV) *Tx {
	return &Tx{base: base, writes: make(map[string][]byte)}
}

func (t *Tx) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if v, ok := t.writes[key]; ok {
		if v == nil {
			return nil, ErrNotFound
		}
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
	return t.base.Get(key)
}

func (t *Tx) Set(key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	v := make([]byte, len(value))
	copy(v, value)
	t.writes[key] = v
	return nil
}

func (t *Tx) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	t.writes[key] = nil
	return nil
}

// Commit applies the overlay to the base store.
func (t *Tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	for key, v := range t.writes {
		if v == nil {
			if err := t.base.Delete(key); err != nil {
				return err
			}
			continue
		}
		if err := t.base.Set(key, v); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops all buffered writes.
func (t *Tx) Discard() {
	t.done = true
	t.writes = nil
}

// Dirty reports whether the overlay holds any writes.
func (t *Tx) Dirty() bool { return len(t.writes) > 0 }
