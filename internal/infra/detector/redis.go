package detector

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "custodia:window:"

// RedisWindows shares detector windows across processes using sorted
// sets scored by observation time. Entries expire with the window, so an
// idle key costs nothing.
type RedisWindows struct {
	client *redis.Client
	seq    atomic.Uint64
}

func NewRedisWindows(client *redis.Client) *RedisWindows {
	return &RedisWindows{client: client}
}

func (w *RedisWindows) CountEvents(ctx context.Context, key string, at time.Time, window time.Duration) (int, error) {
	// Each observation needs a unique member or ZADD would collapse
	// same-instant events into one.
	member := fmt.Sprintf("%d-%d", at.UnixNano(), w.seq.Add(1))
	return w.observe(ctx, key, member, at, window)
}

func (w *RedisWindows) CountDistinct(ctx context.Context, key, member string, at time.Time, window time.Duration) (int, error) {
	return w.observe(ctx, key, member, at, window)
}

func (w *RedisWindows) observe(ctx context.Context, key, member string, at time.Time, window time.Duration) (int, error) {
	redisKey := redisKeyPrefix + key
	cutoff := at.Add(-window).UnixNano()

	var card *redis.IntCmd
	_, err := w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(at.UnixNano()), Member: member})
		pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("(%d", cutoff))
		card = pipe.ZCard(ctx, redisKey)
		pipe.PExpire(ctx, redisKey, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis window %s: %w", key, err)
	}
	return int(card.Val()), nil
}
