package session

import (
	"context"
	"testing"
	"time"

	"rag-chatbot-backend/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, time.Hour)
	ctx := context.Background()

	turns, err := store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, turns)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	want := []models.Turn{
		{Role: models.RoleUser, Content: "What is the capital of France?", At: at},
		{Role: models.RoleAssistant, Content: "Paris", At: at},
	}
	require.NoError(t, store.Save(ctx, "abc", want))
	assert.True(t, mr.Exists("session:abc"))
	assert.Equal(t, time.Hour, mr.TTL("session:abc"))

	got, err := store.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	mr.FastForward(2 * time.Hour)
	got, err = store.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreDelete(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "abc", []models.Turn{{Role: models.RoleUser, Content: "hi"}}))
	require.NoError(t, store.Delete(ctx, "abc"))
	assert.False(t, mr.Exists("session:abc"))
}

func TestRedisStoreCorruptValue(t *testing.T) {
	mr, rdb := newTestRedis(t)
	require.NoError(t, mr.Set("session:abc", "not json"))

	_, err := NewRedisStore(rdb, time.Hour).Load(context.Background(), "abc")
	assert.Error(t, err)
}

func TestManagerWithRedisStore(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, time.Hour)

	m := NewManager(store, 2, time.Hour)
	s, err := m.Get(context.Background(), "abc")
	require.NoError(t, err)
	s.Append(models.RoleUser, "one")
	s.Append(models.RoleAssistant, "two")
	s.Append(models.RoleUser, "three")
	require.NoError(t, m.Save(context.Background(), s))

	turns, err := store.Load(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "two", turns[0].Content)
}
