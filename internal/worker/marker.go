package worker

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Marker records that a one-off action happened. Mark reports true only the
// first time a key is seen within ttl.
type Marker interface {
	Mark(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type RedisMarker struct {
	Client *redis.Client
	Prefix string
}

func NewRedisMarker(rdb *redis.Client) *RedisMarker {
	return &RedisMarker{Client: rdb, Prefix: "wishbucket:"}
}

func (m *RedisMarker) Mark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return m.Client.SetNX(ctx, m.Prefix+key, "1", ttl).Result()
}

// MemoryMarker is the single-process fallback when Redis is not configured.
type MemoryMarker struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{keys: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryMarker) Mark(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.keys {
		if now.After(exp) {
			delete(m.keys, k)
		}
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = now.Add(ttl)
	return true, nil
}
