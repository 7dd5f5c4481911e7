package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkAndIncr reads both windows and increments them only when neither has
// reached its limit, so a rejected request never consumes quota.
//
// KEYS: minute key, day key. ARGV: minute limit, day limit, minute TTL, day TTL.
// Returns {allowed, minute count, day count}.
var checkAndIncr = redis.NewScript(`
local minute = tonumber(redis.call('GET', KEYS[1]) or '0')
local day = tonumber(redis.call('GET', KEYS[2]) or '0')
if minute >= tonumber(ARGV[1]) or day >= tonumber(ARGV[2]) then
  return {0, minute, day}
end
minute = redis.call('INCR', KEYS[1])
day = redis.call('INCR', KEYS[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
redis.call('EXPIRE', KEYS[2], ARGV[4])
return {1, minute, day}
`)

// RedisCounter implements Counter on Redis with a single Lua script per call.
type RedisCounter struct {
	client redis.UniversalClient
}

func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) CheckAndIncrement(ctx context.Context, minuteKey, dayKey string, limits Limits, minuteTTL, dayTTL time.Duration) (bool, int64, int64, error) {
	res, err := checkAndIncr.Run(ctx, c.client,
		[]string{minuteKey, dayKey},
		limits.PerMinute, limits.PerDay, int(minuteTTL.Seconds()), int(dayTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return false, 0, 0, fmt.Errorf("rate limit script: unexpected reply length %d", len(res))
	}
	return res[0] == 1, res[1], res[2], nil
}

func (c *RedisCounter) Counts(ctx context.Context, minuteKey, dayKey string) (int64, int64, error) {
	vals, err := c.client.MGet(ctx, minuteKey, dayKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("read counters: %w", err)
	}
	minute, err := parseCount(vals[0])
	if err != nil {
		return 0, 0, err
	}
	day, err := parseCount(vals[1])
	if err != nil {
		return 0, 0, err
	}
	return minute, day, nil
}

func parseCount(v interface{}) (int64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected counter value %T", v)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse counter %q: %w", s, err)
	}
	return n, nil
}
