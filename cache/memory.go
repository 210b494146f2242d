package cache

import (
	"context"
	"net/http"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process Store. Entries never expire.
type MemoryStore struct {
	cache  *gocache.Cache
	closed bool
	lock   sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: gocache.New(gocache.NoExpiration, 0)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return Entry{}, false, ErrClosed
	}
	item, ok := s.cache.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	return copyEntry(item.(Entry)), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return ErrClosed
	}
	s.cache.Set(key, copyEntry(entry), gocache.NoExpiration)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return ErrClosed
	}
	s.cache.Delete(key)
	return nil
}

// Len returns the number of cached entries.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}

func (s *MemoryStore) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.closed {
		s.closed = true
		s.cache.Flush()
	}
	return nil
}

// copyEntry returns a copy of e that shares no memory with it.
func copyEntry(e Entry) Entry {
	return Entry{
		Status: e.Status,
		Header: http.Header(e.Header).Clone(),
		Body:   append([]byte(nil), e.Body...),
	}
}
