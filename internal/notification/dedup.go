package notification

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/franksunye/fsoa-agent/internal/store"
)

// DedupBackend is the optional fast-path pending-task lookup, consulted
// before the Postgres-backed source of truth. A nil backend falls back
// to an in-process map, mirroring the teacher's idempotency.Store
// nil-backend-falls-back-to-memory pattern.
type DedupBackend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisDedupBackend wraps a go-redis client.
type RedisDedupBackend struct {
	Client *redis.Client
}

func (b *RedisDedupBackend) Get(ctx context.Context, key string) (string, error) {
	v, err := b.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

func (b *RedisDedupBackend) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return b.Client.Set(ctx, key, value, ttl).Err()
}

// Dedup consults an optional fast-path backend (Redis) in front of the
// Postgres-backed FindTaskByKey, with an in-memory fallback when no
// backend is configured. It never becomes the source of truth: a miss
// here always falls through to the real store lookup.
type Dedup struct {
	backend DedupBackend
	mem     sync.Map
}

// NewDedup builds a Dedup; backend may be nil.
func NewDedup(backend DedupBackend) *Dedup {
	return &Dedup{backend: backend}
}

// MarkPending records that key has a Pending task outstanding, with a
// bounded TTL so a crashed process doesn't wedge the fast path forever.
func (d *Dedup) MarkPending(ctx context.Context, key store.TaskKey, ttl time.Duration) {
	k := dedupKey(key)
	if d.backend != nil {
		_ = d.backend.Set(ctx, k, "1", ttl)
		return
	}
	d.mem.Store(k, time.Now().Add(ttl))
}

// HasPendingHint reports whether the fast path believes key has a
// Pending task outstanding. A false here is not authoritative — callers
// must still consult the store; a true lets them skip that round trip.
func (d *Dedup) HasPendingHint(ctx context.Context, key store.TaskKey) bool {
	k := dedupKey(key)
	if d.backend != nil {
		v, err := d.backend.Get(ctx, k)
		return err == nil && v != ""
	}
	v, ok := d.mem.Load(k)
	if !ok {
		return false
	}
	expiry, _ := v.(time.Time)
	if time.Now().After(expiry) {
		d.mem.Delete(k)
		return false
	}
	return true
}

func dedupKey(key store.TaskKey) string {
	return "fsoa:dedup:" + string(key.Type) + ":" + key.OrderNum
}
