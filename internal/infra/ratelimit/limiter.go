package ratelimit

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidConfig = errors.New("rate limit capacity and rate must be positive")

// Limiter 以 key 區分的 token bucket
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Config struct {
	Capacity int     // bucket 上限，也是允許的瞬間流量
	RatePS   float64 // tokens/秒
}

func (c Config) Validate() error {
	if c.Capacity <= 0 || c.RatePS <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// idleTTL bucket 補滿所需時間，之後沒有存在的必要
func (c Config) idleTTL() time.Duration {
	d := time.Duration(float64(c.Capacity) / c.RatePS * float64(time.Second))
	if d < time.Second {
		return time.Second
	}
	return d
}
