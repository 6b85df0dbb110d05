package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// tokens 與最後補充時間存在同一個 hash，整段在 redis 內原子執行
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1])
local lastRefill = tonumber(bucket[2])
if tokens == nil then
	tokens = capacity
	lastRefill = now
end

local elapsed = math.max(0, now - lastRefill) / 1000
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill', now)
redis.call('PEXPIRE', key, ttl)
return allowed
`)

// RedisTokenBucket 所有 api instance 共用同一組 bucket
type RedisTokenBucket struct {
	client redis.Scripter
	cfg    Config
	scope  string
	now    func() time.Time
}

// NewRedisTokenBucket scope 用來區分不同用途的限流，例如 checkout
func NewRedisTokenBucket(client redis.Scripter, scope string, cfg Config) (*RedisTokenBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RedisTokenBucket{client: client, cfg: cfg, scope: scope, now: time.Now}, nil
}

func Key(scope, key string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, scope, key)
}

func (r *RedisTokenBucket) Allow(ctx context.Context, key string) (bool, error) {
	res, err := tokenBucketScript.Run(ctx, r.client,
		[]string{Key(r.scope, key)},
		r.cfg.Capacity,
		r.cfg.RatePS,
		r.now().UnixMilli(),
		r.cfg.idleTTL().Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}
	return res == 1, nil
}

var (
	_ Limiter = (*RedisTokenBucket)(nil)
	_ Limiter = (*MemoryTokenBucket)(nil)
)
