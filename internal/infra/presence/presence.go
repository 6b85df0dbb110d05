package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrInvalidUser = errors.New("invalid user id")

const DefaultTTL = 60 * time.Second

// Store 記錄使用者目前的即時連線，所有 api 與 worker instance 共用
type Store interface {
	Register(ctx context.Context, userID int64, connID string) error
	// Touch 連線仍存活，延長有效期限
	Touch(ctx context.Context, userID int64, connID string) error
	Unregister(ctx context.Context, userID int64, connID string) error
	IsOnline(ctx context.Context, userID int64) (bool, error)
	Connections(ctx context.Context, userID int64) ([]string, error)
}

func Key(userID int64) string {
	return fmt.Sprintf("presence:user:%d", userID)
}

// RedisStore 每個使用者一個 sorted set，member 為連線 id，score 為最後心跳時間 (unix ms)
// 超過 ttl 沒有心跳的連線視為離線，instance 異常結束也不會殘留
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func (s *RedisStore) Register(ctx context.Context, userID int64, connID string) error {
	return s.Touch(ctx, userID, connID)
}

func (s *RedisStore) Touch(ctx context.Context, userID int64, connID string) error {
	if userID <= 0 {
		return ErrInvalidUser
	}
	key := Key(userID)
	now := s.now()

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: connID})
	pipe.PExpire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touch presence failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Unregister(ctx context.Context, userID int64, connID string) error {
	if userID <= 0 {
		return ErrInvalidUser
	}
	if err := s.client.ZRem(ctx, Key(userID), connID).Err(); err != nil {
		return fmt.Errorf("unregister presence failed: %w", err)
	}
	return nil
}

/*
使用 lua script 保持原子性
1. 移除超過 ttl 沒有心跳的連線
2. 回傳剩餘連線
*/
const liveConnectionsScript = `
local key = KEYS[1]
local expired_before = tonumber(ARGV[1])

redis.call('ZREMRANGEBYSCORE', key, '-inf', expired_before)
return redis.call('ZRANGE', key, 0, -1)
`

func (s *RedisStore) Connections(ctx context.Context, userID int64) ([]string, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	expiredBefore := s.now().Add(-s.ttl).UnixMilli()

	result, err := s.client.Eval(ctx, liveConnectionsScript, []string{Key(userID)}, expiredBefore).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get presence failed: %w", err)
	}
	return result, nil
}

func (s *RedisStore) IsOnline(ctx context.Context, userID int64) (bool, error) {
	conns, err := s.Connections(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(conns) > 0, nil
}
