// Package kv is the in-memory coordination store used to gate concurrent
// health-check stampedes (pkg/health) with a named lock plus TTL, and
// anywhere else a process-local, expiring key is cheaper than a row lock.
package kv

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store is a small TTL-keyed coordination primitive.
type Store interface {
	// SetNX sets key to a held marker if it is not already present, with
	// the given TTL. It reports whether the caller won the lock.
	SetNX(key string, ttl time.Duration) (bool, error)
	// Incr increments an integer counter stored at key and returns the
	// new value. The counter itself never expires once created.
	Incr(key string) (int64, error)
	// Release removes key, making it available to the next SetNX caller.
	Release(key string) error
}

// CacheStore implements Store with an in-process LRU-less TTL cache. It is
// only suitable for single-process deployments; a clustered deployment
// would back this interface with a shared store instead.
type CacheStore struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// NewCacheStore creates a Store with the given default TTL and cleanup
// interval. A cleanupInterval of 0 disables periodic cleanup.
func NewCacheStore(defaultTTL, cleanupInterval time.Duration) *CacheStore {
	return &CacheStore{c: gocache.New(defaultTTL, cleanupInterval)}
}

func (s *CacheStore) SetNX(key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.c.Get(key); found {
		return false, nil
	}
	s.c.Set(key, true, ttl)
	return true, nil
}

func (s *CacheStore) Incr(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.c.Get(key); !found {
		s.c.Set(key, int64(0), gocache.NoExpiration)
	}
	if err := s.c.Increment(key, 1); err != nil {
		return 0, err
	}
	v, _ := s.c.Get(key)
	return v.(int64), nil
}

func (s *CacheStore) Release(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Delete(key)
	return nil
}
