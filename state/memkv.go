package state

// MemKV is an in-memory KV. It is not safe for concurrent use; the runtime
// executes receipts one at a time.
type MemKV struct {
	m map[string][]byte
}

func NewMemKV() *MemKV {
	return &MemKV{m: make(map[string][]byte)}
}

func (s *MemKV) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	v, ok := s.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemKV) Set(key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.m[key] = v
	return nil
}

func (s *MemKV) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	delete(s.m, key)
	return nil
}

// Len returns the number of stored keys.
func (s *MemKV) Len() int { return len(s.m) }
