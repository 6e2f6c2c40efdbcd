package stats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "flowrun:roll:"

// RedisStore keeps rolling windows in Redis lists, newest sample at index 0.
// The read-compute-push-trim cycle runs inside MULTI/EXEC so each key's
// update is atomic even with several pipeline processes pointed at the same
// instance.
type RedisStore struct {
	client redis.Cmdable
	closer func() error
	window int
	ttl    time.Duration
}

// NewRedisStore connects a rolling store to the Redis instance at addr.
func NewRedisStore(addr, password string, db, window int, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})
	return &RedisStore{client: client, closer: client.Close, window: window, ttl: ttl}
}

// NewRedisStoreWithClient wraps an existing client; tests inject mocks here.
func NewRedisStoreWithClient(client redis.Cmdable, window int, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, closer: func() error { return nil }, window: window, ttl: ttl}
}

// Update records value for key and returns pre-insert baseline statistics.
func (s *RedisStore) Update(ctx context.Context, key string, value float64) (Snapshot, error) {
	k := keyPrefix + key
	val := strconv.FormatFloat(value, 'f', -1, 64)

	var read *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		read = pipe.LRange(ctx, k, 0, int64(s.window-1))
		pipe.LPush(ctx, k, val)
		pipe.LTrim(ctx, k, 0, int64(s.window-1))
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("rolling update for %s: %w", key, err)
	}

	raw := read.Val()
	window := make([]float64, 0, len(raw))
	for _, r := range raw {
		f, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return Snapshot{}, fmt.Errorf("rolling window for %s holds non-numeric sample %q", key, r)
		}
		window = append(window, f)
	}
	return snapshot(window, value), nil
}

// Ping checks connectivity; the health endpoint reports it.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.closer()
}
