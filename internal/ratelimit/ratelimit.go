package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result describes the outcome of a single Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests against a key within a fixed window. Counters are
// shared across instances when backed by Redis.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (Result, error)
}

// Lua script: atomic INCR + set EXPIRE only on first hit
var incrExpireScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter is a fixed-window counter in Redis (INCR + PEXPIRE).
type RedisLimiter struct {
	rdb *redis.Client
}

func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{rdb: rdb}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	countI, err := incrExpireScript.Run(ctx, l.rdb, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return Result{}, err
	}
	count := toInt(countI)

	res := Result{
		Allowed:   count <= max,
		Limit:     max,
		Remaining: max - count,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		if ttl, err := l.rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			res.RetryAfter = ttl
		}
	}
	return res, nil
}

func toInt(v interface{}) int {
	switch x := v.(type) {
	case int64:
		return int(x)
	case int:
		return x
	case string:
		i, _ := strconv.Atoi(x)
		return i
	}
	return 0
}

var _ Limiter = (*RedisLimiter)(nil)
