package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model/command"
	"github.com/RoyceAzure/lab/storefront/internal/infra/kafka/config"
	ka_err "github.com/RoyceAzure/lab/storefront/internal/infra/kafka/errors"
	"github.com/RoyceAzure/lab/storefront/internal/infra/tracing"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// NewWriter 建立寫入固定 topic 的 kafka writer
// 同步寫入，RequiredAcks 由 cfg 決定，預設等待所有副本確認
func NewWriter(cfg *config.Config, topic string, logger *zerolog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     cfg.GetBalancer(),
		Topic:        topic,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),

		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error().Msgf("kafka producer error: "+msg, args...)
		}),
	}
}

// SubmissionProducer 將訂單提交寫入 durable queue
// 併發安全，所有 http handler 共用同一個 producer
type SubmissionProducer struct {
	writer Writer
	topic  string
	closed atomic.Bool
}

func NewSubmissionProducer(cfg *config.Config, logger *zerolog.Logger) (*SubmissionProducer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewSubmissionProducerWithWriter(NewWriter(cfg, cfg.Topic, logger), cfg.Topic), nil
}

func NewSubmissionProducerWithWriter(writer Writer, topic string) *SubmissionProducer {
	return &SubmissionProducer{
		writer: writer,
		topic:  topic,
	}
}

// Produce 同步寫入，回傳 nil 表示 broker 已確認持久化
func (p *SubmissionProducer) Produce(ctx context.Context, submission *command.OrderSubmission) error {
	if p.closed.Load() {
		return ka_err.ErrClientClosed
	}
	if submission == nil || submission.SubmissionID == "" {
		return fmt.Errorf("%w: submission id is required", ka_err.ErrInvalidateParameter)
	}

	msg, err := NewSubmissionMessage(ctx, submission)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return ka_err.NewKafkaError("Write", p.topic, err)
	}
	return nil
}

func (p *SubmissionProducer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}

// NewSubmissionMessage key 為 submission id，附帶 command type、retry count 與 trace context
func NewSubmissionMessage(ctx context.Context, submission *command.OrderSubmission) (kafka.Message, error) {
	if submission == nil {
		return kafka.Message{}, errors.New("submission is nil")
	}
	value, err := json.Marshal(submission)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal submission failed: %w", err)
	}

	headers := []kafka.Header{
		{Key: command.HeaderCommandType, Value: []byte(submission.Type())},
		{Key: command.HeaderRetryCount, Value: []byte("0")},
	}

	return kafka.Message{
		Key:     []byte(submission.GetID()),
		Value:   value,
		Headers: tracing.InjectKafkaHeaders(ctx, headers),
	}, nil
}
