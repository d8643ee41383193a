package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements the sliding window over a Redis sorted set, one ZSET
// per user+action key, scored by attempt time in microseconds.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

var admitScript = redis.NewScript(`
-- KEYS[1] = window zset
-- ARGV[1] = now_us
-- ARGV[2] = window_us
-- ARGV[3] = limit
-- ARGV[4] = member (unique per attempt)
--
-- Returns: {count_before, allowed(0|1), oldest_us}
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

-- Drop attempts at or before the window edge.
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)

local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  return {count, 0, oldest[2]}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], math.ceil(window / 1000))
return {count, 1, '0'}
`)

func (s *RedisStore) Admit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (int, bool, time.Time, error) {
	if s.rdb == nil {
		return 0, false, time.Time{}, fmt.Errorf("ratelimit: redis client is nil")
	}

	nowUS := now.UnixMicro()
	// Member must be unique per attempt; two attempts can share a microsecond.
	member := strconv.FormatInt(nowUS, 10) + ":" + uuid.NewString()

	res, err := admitScript.Run(ctx, s.rdb, []string{key},
		nowUS, window.Microseconds(), limit, member).Slice()
	if err != nil {
		return 0, false, time.Time{}, fmt.Errorf("ratelimit: admit script: %w", err)
	}
	if len(res) != 3 {
		return 0, false, time.Time{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}

	count, _ := res[0].(int64)
	allowed, _ := res[1].(int64)

	var oldest time.Time
	if allowed == 0 {
		if raw, ok := res[2].(string); ok {
			if us, err := strconv.ParseFloat(raw, 64); err == nil {
				oldest = time.UnixMicro(int64(us)).UTC()
			}
		}
	}
	return int(count), allowed == 1, oldest, nil
}
