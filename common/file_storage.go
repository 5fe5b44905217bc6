package common

import (
	"os"
	"path/filepath"
)

var _ Storage = (*fileStorage)(nil)

// fileStorage keeps one file per key under a directory. Files are written
// with 0600 so stored credentials are not world-readable.
type fileStorage struct {
	dir string
}

// NewFileStorage returns a Storage that persists values as files under dir.
func NewFileStorage(dir string) Storage {
	return &fileStorage{dir: dir}
}

func (f *fileStorage) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *fileStorage) Get(key string) ([]byte, bool) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (f *fileStorage) Set(key string, value []byte) {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return
	}
	_ = os.WriteFile(f.path(key), value, 0o600)
}

func (f *fileStorage) Remove(key string) {
	_ = os.Remove(f.path(key))
}
