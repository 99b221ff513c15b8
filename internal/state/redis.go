package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// claimScript atomically claims an interval window on a last-run key.
// KEYS[1] = last-run key, ARGV[1] = now (unix ms), ARGV[2] = interval ms.
// Returns 1 and overwrites the key when it is absent or at least one
// interval old, 0 otherwise.
var claimScript = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
if last and (now - tonumber(last)) < interval then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// RedisStore implements Store on a shared Redis backend.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies reachability with a short
// ping so the caller can fall back before serving traffic.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("state: parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("state: ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// Get returns the value for key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("state: get %s: %w", key, err)
	}
	return v, nil
}

// Set stores value under key.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("state: set %s: %w", key, err)
	}
	return nil
}

// ListPush prepends value to the list at key.
func (s *RedisStore) ListPush(ctx context.Context, key, value string) error {
	if err := s.rdb.LPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("state: lpush %s: %w", key, err)
	}
	return nil
}

// ListRange returns list elements from start through stop inclusive.
func (s *RedisStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("state: lrange %s: %w", key, err)
	}
	return vals, nil
}

// ListTrim discards list elements outside [start, stop].
func (s *RedisStore) ListTrim(ctx context.Context, key string, start, stop int64) error {
	if err := s.rdb.LTrim(ctx, key, start, stop).Err(); err != nil {
		return fmt.Errorf("state: ltrim %s: %w", key, err)
	}
	return nil
}

// TryClaim runs the compare-and-set claim script on the last-run key so
// concurrent triggers cannot double-claim the same interval window.
func (s *RedisStore) TryClaim(ctx context.Context, key string, now time.Time, interval time.Duration) (bool, error) {
	res, err := claimScript.Run(ctx, s.rdb, []string{key},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(interval.Milliseconds(), 10),
	).Int()
	if err != nil {
		return false, fmt.Errorf("state: claim %s: %w", key, err)
	}
	return res == 1, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
