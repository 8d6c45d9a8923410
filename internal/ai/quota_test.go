package ai

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	day := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	q := NewDailyQuota(rdb, "gemini", 2)
	q.now = func() time.Time { return day }

	ctx := context.Background()
	require.NoError(t, q.Allow(ctx))
	require.NoError(t, q.Allow(ctx))
	assert.ErrorIs(t, q.Allow(ctx), ErrDailyQuotaExceeded)

	used, err := q.Used(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, used)
	assert.True(t, mr.TTL("quota:gemini:2026-03-01") > 0)

	// a new day starts from zero
	day = day.Add(2 * time.Hour)
	assert.NoError(t, q.Allow(ctx))
}

func TestNilQuotaAllows(t *testing.T) {
	var q *DailyQuota
	assert.NoError(t, q.Allow(context.Background()))
	used, err := q.Used(context.Background())
	require.NoError(t, err)
	assert.Zero(t, used)

	assert.Equal(t, 1000, NewTierQuota(nil, "g", "free").limit)
}
