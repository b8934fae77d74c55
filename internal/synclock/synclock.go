// Package synclock provides a keyed, TTL-scoped lock used to de-duplicate
// concurrent background syncs. Locks auto-release after their TTL even if
// the holder never calls Release, so a crashed sync cannot wedge a user.
//
// The in-memory implementation is per-process. A multi-instance deployment
// can substitute a distributed implementation behind the same interface;
// redundant syncs across instances are safe, merely wasteful.
package synclock

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Locker acquires and releases named locks with a bounded lifetime.
type Locker interface {
	// TryAcquire takes the lock for key if it is free, returning true on
	// success. The lock auto-expires after ttl.
	TryAcquire(key string, ttl time.Duration) bool

	// Held reports whether the lock for key is currently held.
	Held(key string) bool

	// Release frees the lock for key. Releasing an unheld lock is a no-op.
	Release(key string)
}

type memoryLocker struct {
	c *gocache.Cache
}

// NewMemoryLocker returns an in-process Locker backed by a TTL cache.
func NewMemoryLocker() Locker {
	return &memoryLocker{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *memoryLocker) TryAcquire(key string, ttl time.Duration) bool {
	return m.c.Add(key, struct{}{}, ttl) == nil
}

func (m *memoryLocker) Held(key string) bool {
	_, held := m.c.Get(key)
	return held
}

func (m *memoryLocker) Release(key string) {
	m.c.Delete(key)
}
