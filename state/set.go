package state

import (
	"fmt"
	"strconv"
)

// UnorderedSet is an insertion-ordered string set persisted in a KV under a
// key prefix.
//
// Layout under prefix p:
//
//	p + "n"          -> element count (decimal)
//	p + "i:" + idx   -> element at idx (insertion order)
//	p + "e:" + elem  -> idx of elem (decimal)
//
// Removal swaps the last element into the vacated slot, so iteration order
// is stable only in the absence of removals. Membership and length are O(1).
type UnorderedSet struct {
	kv     KV
	prefix string
}

func NewUnorderedSet(kv KV, prefix string) UnorderedSet {
	return UnorderedSet{kv: kv, prefix: prefix}
}

func (s UnorderedSet) lenKey() string { return s.prefix + "n" }
func (s UnorderedSet) idxKey(i uint64) string {
	return s.prefix + "i:" + strconv.FormatUint(i, 10)
}
func (s UnorderedSet) elemKey(elem string) string { return s.prefix + "e:" + elem }

// Len returns the number of elements.
func (s UnorderedSet) Len() (uint64, error) {
	b, err := s.kv.Get(s.lenKey())
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("state: corrupt set length %q: %w", b, err)
	}
	return n, nil
}

// Contains reports membership.
func (s UnorderedSet) Contains(elem string) (bool, error) {
	_, err := s.kv.Get(s.elemKey(elem))
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Insert adds elem. It returns false when elem was already present.
func (s UnorderedSet) Insert(elem string) (bool, error) {
	if elem == "" {
		return false, ErrEmptyKey
	}
	ok, err := s.Contains(elem)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	n, err := s.Len()
	if err != nil {
		return false, err
	}
	if err := s.kv.Set(s.idxKey(n), []byte(elem)); err != nil {
		return false, err
	}
	if err := s.kv.Set(s.elemKey(elem), []byte(strconv.FormatUint(n, 10))); err != nil {
		return false, err
	}
	if err := s.kv.Set(s.lenKey(), []byte(strconv.FormatUint(n+1, 10))); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes elem via swap-remove. It returns false when elem was absent.
func (s UnorderedSet) Remove(elem string) (bool, error) {
	b, err := s.kv.Get(s.elemKey(elem))
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	idx, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return false, fmt.Errorf("state: corrupt set index %q: %w", b, err)
	}
	n, err := s.Len()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("state: set index entry without elements")
	}

	last := n - 1
	if idx != last {
		moved, err := s.kv.Get(s.idxKey(last))
		if err != nil {
			return false, err
		}
		if err := s.kv.Set(s.idxKey(idx), moved); err != nil {
			return false, err
		}
		if err := s.kv.Set(s.elemKey(string(moved)), []byte(strconv.FormatUint(idx, 10))); err != nil {
			return false, err
		}
	}
	if err := s.kv.Delete(s.idxKey(last)); err != nil {
		return false, err
	}
	if err := s.kv.Delete(s.elemKey(elem)); err != nil {
		return false, err
	}
	if err := s.kv.Set(s.lenKey(), []byte(strconv.FormatUint(last, 10))); err != nil {
		return false, err
	}
	return true, nil
}

// Window returns up to limit elements starting at from, in index order.
// Ranges past the end yield an empty slice, never an error.
func (s UnorderedSet) Window(from, limit uint64) ([]string, error) {
	n, err := s.Len()
	if err != nil {
		return nil, err
	}
	if from >= n || limit == 0 {
		return []string{}, nil
	}
	end := from + limit
	if end > n {
		end = n
	}
	out := make([]string, 0, end-from)
	for i := from; i < end; i++ {
		b, err := s.kv.Get(s.idxKey(i))
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}

// Elements returns the whole set in index order.
func (s UnorderedSet) Elements() ([]string, error) {
	n, err := s.Len()
	if err != nil {
		return nil, err
	}
	return s.Window(0, n)
}
