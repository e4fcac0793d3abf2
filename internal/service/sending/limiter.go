package sending

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// LocalLimiter is an in-process token bucket shared by every worker of
// every run in this process.
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter allows perSecond sends per second with the given burst.
// perSecond <= 0 disables the ceiling.
func NewLocalLimiter(perSecond float64, burst int) *LocalLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &LocalLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a token is available.
func (l *LocalLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Lua script for an atomic fixed-window counter. Only increments when the
// window still has room, so denied callers never consume capacity.
const windowLimitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return {0, current}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end
return {1, newVal}
`

// RedisLimiter enforces one ceiling across every engine instance sharing a
// Redis. It counts sends in one-second windows.
type RedisLimiter struct {
	client    *redis.Client
	script    *redis.Script
	key       string
	perSecond int
	poll      time.Duration
	now       func() time.Time
}

// NewRedisLimiter allows perSecond sends per second for everyone using name.
func NewRedisLimiter(client *redis.Client, name string, perSecond float64) *RedisLimiter {
	n := int(math.Ceil(perSecond))
	if n < 1 {
		n = 1
	}
	return &RedisLimiter{
		client:    client,
		script:    redis.NewScript(windowLimitLuaScript),
		key:       "ratelimit:" + name,
		perSecond: n,
		poll:      20 * time.Millisecond,
		now:       time.Now,
	}
}

// Allow takes one slot in the current window if one is free.
func (r *RedisLimiter) Allow(ctx context.Context) (bool, error) {
	key := fmt.Sprintf("%s:sec:%d", r.key, r.now().Unix())
	result, err := r.script.Run(ctx, r.client, []string{key}, r.perSecond, 2).Slice()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	allowed, _ := result[0].(int64)
	return allowed == 1, nil
}

// Wait polls until a slot frees up in some window or ctx is done.
func (r *RedisLimiter) Wait(ctx context.Context) error {
	for {
		ok, err := r.Allow(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		now := r.now()
		delay := now.Truncate(time.Second).Add(time.Second).Sub(now)
		if delay > r.poll {
			delay = r.poll
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
