package common

import (
	"github.com/patrickmn/go-cache"
)

var _ Storage = (*memoryStorage)(nil)

type memoryStorage struct {
	cache *cache.Cache
}

// NewMemoryStorage returns a Storage backed by an in-process cache. Nothing
// survives a restart; use it for tests or sessions that should not persist.
func NewMemoryStorage() Storage {
	return &memoryStorage{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (m *memoryStorage) Get(key string) ([]byte, bool) {
	value, found := m.cache.Get(key)
	if found {
		return value.([]byte), true
	}
	return nil, false
}

func (m *memoryStorage) Set(key string, value []byte) {
	m.cache.Set(key, value, cache.NoExpiration)
}

func (m *memoryStorage) Remove(key string) {
	m.cache.Delete(key)
}
