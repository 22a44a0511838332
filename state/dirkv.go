package state

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
)

// DirKV is a filesystem-backed KV: one file per key under a root directory.
//
// Keys are hex-encoded into filenames, fanned out by the first hex byte.
// Writes go through a temp file, fsync and rename, so a crash never leaves a
// partially written value behind.
type DirKV struct {
	root string
}

func NewDirKV(root string) (*DirKV, error) {
	if root == "" {
		return nil, errors.New("state: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DirKV{root: root}, nil
}

func (s *DirKV) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	b, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *DirKV) Set(key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	path := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (s *DirKV) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	err := os.Remove(s.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *DirKV) pathFor(key string) string {
	name := hex.EncodeToString([]byte(key))
	if len(name) < 2 {
		return filepath.Join(s.root, name)
	}
	return filepath.Join(s.root, name[:2], name)
}
