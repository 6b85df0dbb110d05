package consumer

import (
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/infra/kafka/config"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// NewReader 建立 consumer group reader
// offset 由 Consumer 自行批次 commit，reader 本身使用同步 commit (CommitInterval 為 0)
func NewReader(cfg *config.Config, logger *zerolog.Logger) (*kafka.Reader, error) {
	if err := cfg.ValidateConsumer(); err != nil {
		return nil, err
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: cfg.ConsumerMinBytes,
		MaxBytes: cfg.ConsumerMaxBytes,
		MaxWait:  cfg.ConsumerMaxWait,

		// 重連機制設定
		Dialer: &kafka.Dialer{
			Timeout:   cfg.RetryBackoffMax,
			DualStack: true,
			KeepAlive: 30 * time.Second,
		},

		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error().Msgf("kafka reader error: "+msg, args...)
		}),

		ReadLagInterval: -1,
		ReadBackoffMin:  cfg.RetryBackoffMin,
		ReadBackoffMax:  cfg.RetryBackoffMax,
	}), nil
}

var _ KafkaReader = (*kafka.Reader)(nil)
