package synclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTryAcquireIsExclusive(t *testing.T) {
	l := NewMemoryLocker()

	assert.True(t, l.TryAcquire("sync:user-1", time.Minute))
	assert.False(t, l.TryAcquire("sync:user-1", time.Minute))
	assert.True(t, l.Held("sync:user-1"))

	// A different key is independent.
	assert.True(t, l.TryAcquire("sync:user-2", time.Minute))
}

func TestReleaseFreesLock(t *testing.T) {
	l := NewMemoryLocker()

	assert.True(t, l.TryAcquire("sync:user-1", time.Minute))
	l.Release("sync:user-1")
	assert.False(t, l.Held("sync:user-1"))
	assert.True(t, l.TryAcquire("sync:user-1", time.Minute))
}

func TestReleaseUnheldIsNoOp(t *testing.T) {
	l := NewMemoryLocker()
	l.Release("sync:never-held")
	assert.False(t, l.Held("sync:never-held"))
}

func TestLockExpiresAfterTTL(t *testing.T) {
	l := NewMemoryLocker()

	assert.True(t, l.TryAcquire("sync:user-1", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	assert.False(t, l.Held("sync:user-1"))
	assert.True(t, l.TryAcquire("sync:user-1", time.Minute))
}
