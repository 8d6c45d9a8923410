package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"rag-chatbot-backend/models"

	"github.com/redis/go-redis/v9"
)

// Store persists session histories outside the process.
type Store interface {
	// Load returns nil turns and no error for an unknown session.
	Load(ctx context.Context, id string) ([]models.Turn, error)
	Save(ctx context.Context, id string, turns []models.Turn) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps histories in a map. It is the store used when no Redis is
// configured.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]models.Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]models.Turn)}
}

func (m *MemoryStore) Load(_ context.Context, id string) ([]models.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return append([]models.Turn(nil), turns...), nil
}

func (m *MemoryStore) Save(_ context.Context, id string, turns []models.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[id] = append([]models.Turn(nil), turns...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// RedisStore keeps each history as a JSON list under "session:<id>" with an
// idle expiry refreshed on every save.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func redisKey(id string) string { return "session:" + id }

func (r *RedisStore) Load(ctx context.Context, id string) ([]models.Turn, error) {
	data, err := r.rdb.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var turns []models.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return turns, nil
}

func (r *RedisStore) Save(ctx context.Context, id string, turns []models.Turn) error {
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}
	if err := r.rdb.Set(ctx, redisKey(id), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, redisKey(id)).Err()
}
