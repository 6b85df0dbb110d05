package consumer

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
)

// ErrPoisonMessage 無法處理的訊息，不重試直接送 DLQ
var ErrPoisonMessage = errors.New("poison message")

// DLQ header key
const (
	HeaderError             = "error"
	HeaderRetryCount        = "retry_count"
	HeaderOriginalTopic     = "original_topic"
	HeaderOriginalPartition = "original_partition"
	HeaderOriginalOffset    = "original_offset"
)

//go:generate mockgen -source=base.go -destination=mock/base.go -package=mock_consumer

// KafkaReader 非併發安全，只能由一個 goroutine 呼叫 FetchMessage
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Processer 處理單一訊息
// 回傳 nil 表示可以 commit，ErrPoisonMessage 表示直接送 DLQ，其餘錯誤會重試
type Processer interface {
	Process(ctx context.Context, msg kafka.Message) error
}

type ConsumeError struct {
	Message    kafka.Message
	Err        error
	RetryCount int
}
