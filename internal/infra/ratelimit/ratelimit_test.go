package ratelimit

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, Config{Capacity: 5, RatePS: 1}.Validate())
	require.ErrorIs(t, Config{Capacity: 0, RatePS: 1}.Validate(), ErrInvalidConfig)
	require.ErrorIs(t, Config{Capacity: 5, RatePS: 0}.Validate(), ErrInvalidConfig)

	_, err := NewMemoryTokenBucket(Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMemoryTokenBucket(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	limiter, err := NewMemoryTokenBucket(Config{Capacity: 3, RatePS: 2})
	require.NoError(t, err)
	limiter.now = clock.Now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "user:42")
		require.NoError(t, err)
		require.True(t, allowed, "request %d", i+1)
	}
	allowed, _ := limiter.Allow(ctx, "user:42")
	require.False(t, allowed)

	// 其他 key 不受影響
	allowed, _ = limiter.Allow(ctx, "user:43")
	require.True(t, allowed)

	// 0.5 秒補 1 個 token
	clock.Advance(500 * time.Millisecond)
	allowed, _ = limiter.Allow(ctx, "user:42")
	require.True(t, allowed)
	allowed, _ = limiter.Allow(ctx, "user:42")
	require.False(t, allowed)

	// 補充不會超過上限
	clock.Advance(time.Minute)
	for i := 0; i < 3; i++ {
		allowed, _ = limiter.Allow(ctx, "user:42")
		require.True(t, allowed)
	}
	allowed, _ = limiter.Allow(ctx, "user:42")
	require.False(t, allowed)
}

func TestMemoryTokenBucketEvictsIdle(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	limiter, err := NewMemoryTokenBucket(Config{Capacity: 2, RatePS: 1})
	require.NoError(t, err)
	limiter.now = clock.Now

	_, _ = limiter.Allow(context.Background(), "ip:10.0.0.1")
	require.Len(t, limiter.buckets, 1)

	clock.Advance(10 * time.Second)
	_, _ = limiter.Allow(context.Background(), "ip:10.0.0.2")
	require.Len(t, limiter.buckets, 1)
	require.Contains(t, limiter.buckets, "ip:10.0.0.2")
}

func TestMemoryTokenBucketConcurrent(t *testing.T) {
	limiter, err := NewMemoryTokenBucket(Config{Capacity: 10, RatePS: 0.001})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := limiter.Allow(context.Background(), "shared"); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 10, granted)
}

func TestKey(t *testing.T) {
	require.Equal(t, "ratelimit:checkout:user:42", Key("checkout", "user:42"))
}

type RedisTokenBucketTestSuite struct {
	suite.Suite
	client *redis.Client
	ctx    context.Context
}

func TestRedisTokenBucketTestSuite(t *testing.T) {
	if os.Getenv("STOREFRONT_INTEGRATION") == "" {
		t.Skip("STOREFRONT_INTEGRATION 未設置，跳過 redis 整合測試")
	}
	suite.Run(t, new(RedisTokenBucketTestSuite))
}

func (suite *RedisTokenBucketTestSuite) SetupSuite() {
	suite.client = redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   0,
	})
	suite.ctx = context.Background()
	require.NoError(suite.T(), suite.client.Ping(suite.ctx).Err())
}

func (suite *RedisTokenBucketTestSuite) TearDownSuite() {
	suite.client.Close()
}

func (suite *RedisTokenBucketTestSuite) TestBasicRateLimit() {
	clock := &fakeClock{t: time.Now()}
	limiter, err := NewRedisTokenBucket(suite.client, "test", Config{Capacity: 5, RatePS: 2})
	require.NoError(suite.T(), err)
	limiter.now = clock.Now

	key := uuid.NewString()
	defer suite.client.Del(suite.ctx, Key("test", key))

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(suite.ctx, key)
		require.NoError(suite.T(), err)
		require.True(suite.T(), allowed, "request %d", i+1)
	}
	allowed, err := limiter.Allow(suite.ctx, key)
	require.NoError(suite.T(), err)
	require.False(suite.T(), allowed)

	clock.Advance(time.Second)
	for i := 0; i < 2; i++ {
		allowed, err = limiter.Allow(suite.ctx, key)
		require.NoError(suite.T(), err)
		require.True(suite.T(), allowed)
	}
	allowed, _ = limiter.Allow(suite.ctx, key)
	require.False(suite.T(), allowed)

	ttl, err := suite.client.PTTL(suite.ctx, Key("test", key)).Result()
	require.NoError(suite.T(), err)
	require.Greater(suite.T(), ttl, time.Duration(0))
}
