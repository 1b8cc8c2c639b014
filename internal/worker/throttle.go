package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrThrottled signals that the account's API budget is exhausted and
// the job should be deferred, not failed.
var ErrThrottled = errors.New("account throttled")

// AccountThrottle provides atomic per-account API budgeting using Redis
// Lua scripts. The platform rate-limits per ad account; a GET → check →
// INCR pattern would race between concurrent workers, so the check and
// increment happen in one script.
type AccountThrottle struct {
	redis *redis.Client

	usageScript *redis.Script
}

// ThrottleLimit defines the per-account hourly API call budget.
type ThrottleLimit struct {
	CallsPerHour int
}

// DefaultThrottleLimit is conservative against the platform's documented
// per-account insights quota.
var DefaultThrottleLimit = ThrottleLimit{CallsPerHour: 600}

// Lua script for atomic usage accounting. Honors an explicit
// throttle_until deadline first, then the hourly counter. Returns
// {allowed, retry_after_seconds, current}.
const usageLuaScript = `
local usageKey = KEYS[1]
local untilKey = KEYS[2]
local increment = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local nowSec = tonumber(ARGV[4])

-- An explicit throttle_until set after a platform 429 wins over counters
local deadline = tonumber(redis.call("GET", untilKey) or "0")
if deadline > nowSec then
    return {0, deadline - nowSec, 0}
end

local current = tonumber(redis.call("GET", usageKey) or "0")
if current + increment > limit then
    local retry = redis.call("TTL", usageKey)
    if retry < 0 then retry = ttl end
    return {0, retry, current}
end

local newVal = redis.call("INCRBY", usageKey, increment)
if newVal == increment then
    redis.call("EXPIRE", usageKey, ttl)
end

return {1, 0, newVal}
`

// NewAccountThrottle creates a throttle with a pre-compiled Lua script.
func NewAccountThrottle(redisClient *redis.Client) *AccountThrottle {
	return &AccountThrottle{
		redis:       redisClient,
		usageScript: redis.NewScript(usageLuaScript),
	}
}

// NewAccountThrottleFromURL creates a throttle by connecting to Redis.
func NewAccountThrottleFromURL(redisURL string) (*AccountThrottle, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Printf("[AccountThrottle] Connected to Redis at %s", redisURL)
	return NewAccountThrottle(client), nil
}

// Allow atomically checks and increments the account's usage counter.
// When denied it returns the wait before the next attempt makes sense.
func (t *AccountThrottle) Allow(ctx context.Context, accountID string, cost int, limit ThrottleLimit) (bool, time.Duration, error) {
	if t.redis == nil {
		return true, 0, nil // throttling disabled
	}
	if cost <= 0 {
		cost = 1
	}

	now := time.Now()
	keys := []string{
		fmt.Sprintf("throttle:usage:%s:%s", accountID, now.UTC().Format("2006010215")),
		fmt.Sprintf("throttle:until:%s", accountID),
	}
	res, err := t.usageScript.Run(ctx, t.redis, keys,
		cost, limit.CallsPerHour, 3600, now.Unix()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("throttle script: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return false, 0, fmt.Errorf("unexpected throttle script result: %v", res)
	}
	allowed := toInt64(vals[0]) == 1
	retry := time.Duration(toInt64(vals[1])) * time.Second
	return allowed, retry, nil
}

// SetThrottleUntil records a platform-imposed backoff deadline, e.g.
// from a 429 response. Allow denies everything for this account until
// the deadline passes.
func (t *AccountThrottle) SetThrottleUntil(ctx context.Context, accountID string, until time.Time) error {
	if t.redis == nil {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	key := fmt.Sprintf("throttle:until:%s", accountID)
	if err := t.redis.Set(ctx, key, until.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("set throttle_until: %w", err)
	}
	log.Printf("[AccountThrottle] Account %s throttled until %s", accountID, until.UTC().Format(time.RFC3339))
	return nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}
