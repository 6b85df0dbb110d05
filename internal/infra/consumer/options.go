package consumer

import (
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Option func(*Consumer)

func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSuccessHandler 訊息處理成功後呼叫，由 commit goroutine 執行
func WithSuccessHandler(f func(kafka.Message)) Option {
	return func(c *Consumer) {
		if f != nil {
			c.handlerSuccessfunc = f
		}
	}
}

// WithDeadLetterHandler 訊息成功寫入 DLQ 後呼叫
func WithDeadLetterHandler(f func(ConsumeError)) Option {
	return func(c *Consumer) {
		if f != nil {
			c.handlerErrorfunc = f
		}
	}
}
