package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	advisoryLockSQL   = "SELECT pg_advisory_lock(hashtext($1))"
	advisoryUnlockSQL = "SELECT pg_advisory_unlock(hashtext($1))"
)

// unlockTimeout bounds releasing the advisory locks, which runs detached
// from the caller's context.
const unlockTimeout = 10 * time.Second

// LockPartitions takes a session advisory lock for every VERSAO on one
// dedicated connection so other processes writing the same table wait.
// Locks are taken in key order. The returned func releases them and hands
// the connection back to the pool; it is safe to call more than once.
func (s *Store) LockPartitions(ctx context.Context, versions []string) (func(), error) {
	keys := partitionLockKeys(s.names.table, versions)
	if len(keys) == 0 {
		return func() {}, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	for i, key := range keys {
		if _, err := conn.Exec(ctx, advisoryLockSQL, key); err != nil {
			releaseAdvisory(conn, keys[:i])
			return nil, fmt.Errorf("advisory lock %s: %w", key, err)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { releaseAdvisory(conn, keys) })
	}, nil
}

// releaseAdvisory unlocks keys and releases conn. When an unlock fails the
// connection is closed instead, which drops every session lock it holds.
func releaseAdvisory(conn *pgxpool.Conn, keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()

	for _, key := range keys {
		if _, err := conn.Exec(ctx, advisoryUnlockSQL, key); err != nil {
			slog.Warn("advisory unlock failed, closing connection", "key", key, "error", err)
			_ = conn.Conn().Close(ctx)
			break
		}
	}
	conn.Release()
}

// partitionLockKeys returns the sorted, distinct advisory lock keys for
// versions on table. Empty versions are skipped.
func partitionLockKeys(table string, versions []string) []string {
	seen := make(map[string]bool, len(versions))
	keys := make([]string, 0, len(versions))
	for _, v := range versions {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		keys = append(keys, table+"/"+v)
	}
	sort.Strings(keys)
	return keys
}
