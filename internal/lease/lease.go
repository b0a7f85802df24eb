// Package lease provides per-tick-kind mutual exclusion so a tick never
// overlaps a still-running tick of the same kind, in this process or another.
package lease

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/matthewjhunter/crier/internal/storage"
)

// Locker acquires and releases named leases. Acquire is not re-entrant: a
// holder asking again is refused until it releases or the lease expires.
type Locker interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// OwnerID identifies this process as a lease holder.
func OwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()
}

// SQLite stores leases in the tick_leases table, which is enough when every
// scheduler shares one database file.
type SQLite struct {
	store *storage.Store
	owner string
}

func NewSQLite(store *storage.Store, owner string) *SQLite {
	return &SQLite{store: store, owner: owner}
}

func (l *SQLite) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return l.store.TryAcquireLease(ctx, name, l.owner, ttl)
}

func (l *SQLite) Release(ctx context.Context, name string) error {
	return l.store.ReleaseLease(ctx, name, l.owner)
}

// Redis holds leases as keys with a TTL, for schedulers on several hosts.
type Redis struct {
	client goredis.UniversalClient
	prefix string
	owner  string
}

func NewRedis(client goredis.UniversalClient, prefix, owner string) *Redis {
	if prefix == "" {
		prefix = "crier"
	}
	return &Redis{client: client, prefix: prefix, owner: owner}
}

func (l *Redis) key(name string) string {
	return fmt.Sprintf("%s:lease:%s", l.prefix, name)
}

func (l *Redis) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(name), l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return ok, nil
}

// Releasing compares the owner first so an expired-then-retaken lease is
// never deleted by its previous holder.
var releaseLeaseScript = goredis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
else
  return 0
end
`)

func (l *Redis) Release(ctx context.Context, name string) error {
	if err := releaseLeaseScript.Run(ctx, l.client, []string{l.key(name)}, l.owner).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", name, err)
	}
	return nil
}
