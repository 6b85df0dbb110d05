package notification

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/infra/metrics"
	"github.com/RoyceAzure/lab/storefront/internal/infra/presence"
	"github.com/RoyceAzure/lab/storefront/internal/infra/pubsub"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultDeliveryTimeout = 3 * time.Second
	DefaultConcurrency     = 16
)

type FanOutResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type IPublisher interface {
	FanOut(ctx context.Context, ev Event, recipients []int64) FanOutResult
}

// Publisher 依 presence 推送到每個使用者的群組
// 單一收件人失敗只記錄，不影響其他人，也不回傳錯誤
type Publisher struct {
	broker      pubsub.Broker
	presence    presence.Store
	timeout     time.Duration
	concurrency int
	metrics     *metrics.ConsumerMetrics
	logger      *zerolog.Logger
}

type PublisherOption func(*Publisher)

func WithDeliveryTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithConcurrency(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.ConsumerMetrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithLogger(logger *zerolog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPublisher(broker pubsub.Broker, store presence.Store, opts ...PublisherOption) *Publisher {
	nop := zerolog.Nop()
	p := &Publisher{
		broker:      broker,
		presence:    store,
		timeout:     DefaultDeliveryTimeout,
		concurrency: DefaultConcurrency,
		logger:      &nop,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) FanOut(ctx context.Context, ev Event, recipients []int64) FanOutResult {
	ids := dedupeRecipients(recipients)
	if len(ids) == 0 {
		return FanOutResult{}
	}

	payload, err := json.Marshal(NewEnvelope(ev))
	if err != nil {
		p.logger.Error().Err(err).Int64("notification_id", ev.ID).Msg("marshal notification failed")
		res := FanOutResult{Failed: len(ids)}
		p.metrics.ObserveFanOut(res.Delivered, res.Failed, res.Skipped)
		return res
	}

	var delivered, failed, skipped atomic.Int64
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			switch p.deliver(ctx, id, payload) {
			case deliveryDelivered:
				delivered.Add(1)
			case deliverySkipped:
				skipped.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := FanOutResult{
		Delivered: int(delivered.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
	p.metrics.ObserveFanOut(res.Delivered, res.Failed, res.Skipped)
	p.logger.Debug().
		Int64("notification_id", ev.ID).
		Int("delivered", res.Delivered).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("notification fan out finished")
	return res
}

type delivery int

const (
	deliveryFailed delivery = iota
	deliveryDelivered
	deliverySkipped
)

func (p *Publisher) deliver(ctx context.Context, userID int64, payload []byte) delivery {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	online, err := p.presence.IsOnline(ctx, userID)
	if err != nil {
		p.logger.Warn().Err(err).Int64("user_id", userID).Msg("check presence failed")
		return deliveryFailed
	}
	if !online {
		return deliverySkipped
	}

	if err := p.broker.Publish(ctx, pubsub.UserChannel(userID), payload); err != nil {
		p.logger.Warn().Err(err).Int64("user_id", userID).Msg("publish notification failed")
		return deliveryFailed
	}
	return deliveryDelivered
}

// dedupeRecipients 去除重複與非法 id，保留原順序
func dedupeRecipients(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	res := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}

var _ IPublisher = (*Publisher)(nil)
