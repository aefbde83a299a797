package lock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
)

// PGAdvisoryLocker uses session-scoped advisory locks. Each lease pins one
// pooled connection, since unlock must run on the session that locked.
// ttl is ignored: the lock drops with the session.
type PGAdvisoryLocker struct {
	db *sql.DB
}

func NewPGAdvisoryLocker(db *sql.DB) *PGAdvisoryLocker {
	return &PGAdvisoryLocker{db: db}
}

func advisoryID(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

func (l *PGAdvisoryLocker) Acquire(ctx context.Context, key string, _ time.Duration) (Lease, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection for lock %s: %w", key, err)
	}
	id := advisoryID(key)

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !acquired {
		conn.Close()
		return nil, appErrors.ErrLockNotAcquired
	}
	return &pgLease{conn: conn, id: id}, nil
}

type pgLease struct {
	once sync.Once
	conn *sql.Conn
	id   int64
}

func (l *pgLease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		_, err = l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.id)
		if cerr := l.conn.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
