// Package distlock serializes work across goroutines and hosts.
//
// DistLock is a single named, non-blocking lock used for leader-style jobs
// (one scheduler tick across the fleet). Locker hands out blocking locks per
// key and is what the campaign service uses to serialize state transitions
// for one campaign while leaving other campaigns untouched.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when releasing a lock this process no longer owns.
var ErrNotHeld = errors.New("lock not held")

// DistLock is the interface for a single named distributed lock.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Locker grants mutual exclusion per key. Lock blocks until the key is free
// or ctx is done; the returned func releases it and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// NewLock creates a named lock using the best available backend.
// If redisClient is non-nil, uses Redis (preferred for cross-host locking).
// Otherwise falls back to PostgreSQL advisory locks.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// NewLocker returns a keyed locker. With Redis the lock spans hosts; without
// it, locking is process-local, which is correct for a single engine instance.
func NewLocker(redisClient *redis.Client, ttl time.Duration) Locker {
	local := NewLocalLocker()
	if redisClient == nil {
		return local
	}
	return NewRedisLocker(redisClient, ttl, local)
}
