package state

// LookupMap is a string-keyed byte map persisted under a key prefix.
// It offers no iteration; callers that need enumeration pair it with an
// UnorderedSet of keys.
type LookupMap struct {
	kv     KV
	prefix string
}

func NewLookupMap(kv KV, prefix string) LookupMap {
	return LookupMap{kv: kv, prefix: prefix}
}

func (m LookupMap) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	return m.kv.Get(m.prefix + key)
}

func (m LookupMap) Set(key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	return m.kv.Set(m.prefix+key, value)
}

func (m LookupMap) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return m.kv.Delete(m.prefix + key)
}

func (m LookupMap) Has(key string) bool {
	_, err := m.Get(key)
	return err == nil
}
