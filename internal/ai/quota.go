package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrDailyQuotaExceeded = errors.New("daily request quota exceeded")

// DailyQuota caps the requests sent to a provider per UTC day. The counter
// lives in Redis so the API and the worker share it. A nil *DailyQuota allows
// everything.
type DailyQuota struct {
	rdb   *redis.Client
	name  string
	limit int
	now   func() time.Time
}

func NewDailyQuota(rdb *redis.Client, name string, limit int) *DailyQuota {
	return &DailyQuota{rdb: rdb, name: name, limit: limit, now: time.Now}
}

// NewTierQuota sizes the quota from the request-per-day limit of a Gemini tier.
func NewTierQuota(rdb *redis.Client, name, tier string) *DailyQuota {
	return NewDailyQuota(rdb, name, getRateLimits(tier).RPD)
}

func (q *DailyQuota) key() string {
	return fmt.Sprintf("quota:%s:%s", q.name, q.now().UTC().Format("2006-01-02"))
}

// Allow counts one request. Redis failures do not block the request.
func (q *DailyQuota) Allow(ctx context.Context) error {
	if q == nil || q.rdb == nil || q.limit <= 0 {
		return nil
	}

	key := q.key()
	count, err := q.rdb.Incr(ctx, key).Result()
	if err != nil {
		return nil
	}
	if count == 1 {
		q.rdb.Expire(ctx, key, 48*time.Hour)
	}
	if count > int64(q.limit) {
		return fmt.Errorf("%w: %s used %d of %d", ErrDailyQuotaExceeded, q.name, count-1, q.limit)
	}
	return nil
}

// Used returns today's request count.
func (q *DailyQuota) Used(ctx context.Context) (int, error) {
	if q == nil || q.rdb == nil {
		return 0, nil
	}
	n, err := q.rdb.Get(ctx, q.key()).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// GeminiOption configures the Gemini embedder and completer.
type GeminiOption func(*geminiOptions)

type geminiOptions struct {
	quota *DailyQuota
}

func WithDailyQuota(q *DailyQuota) GeminiOption {
	return func(o *geminiOptions) { o.quota = q }
}

func applyGeminiOptions(opts []GeminiOption) geminiOptions {
	var o geminiOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
