package lock

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker hands out per-key exclusive leases. Acquire never blocks waiting
// for a holder: it returns appErrors.ErrLockNotAcquired instead.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// New picks the best available backend: Redis, then Postgres advisory
// locks, then an in-process lock set.
func New(redisClient *redis.Client, db *sql.DB) Locker {
	if redisClient != nil {
		return NewRedisLocker(redisClient)
	}
	if db != nil {
		return NewPGAdvisoryLocker(db)
	}
	return NewLocalLocker()
}
