package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// MemoryTokenBucket 單一 process 使用，Allow 時才依經過時間補充 token
type MemoryTokenBucket struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewMemoryTokenBucket(cfg Config) (*MemoryTokenBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MemoryTokenBucket{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}, nil
}

func (t *MemoryTokenBucket) Allow(ctx context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.evict(now)

	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(t.cfg.Capacity), lastRefill: now}
		t.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(float64(t.cfg.Capacity), b.tokens+elapsed*t.cfg.RatePS)
	b.lastRefill = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// evict 移除已補滿的 bucket
func (t *MemoryTokenBucket) evict(now time.Time) {
	ttl := t.cfg.idleTTL()
	for key, b := range t.buckets {
		if now.Sub(b.lastRefill) > ttl {
			delete(t.buckets, key)
		}
	}
}
