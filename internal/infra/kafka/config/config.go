package config

import (
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	ErrNoBrokers = errors.New("no brokers provided")
	ErrNoTopic   = errors.New("no topic provided")
	ErrNoGroup   = errors.New("no consumer group provided")
)

const (
	DefaultSubmissionTopic = "order-submissions"
	DefaultDLQSuffix       = ".dlq"
)

// Config 訂單提交佇列的 kafka 設定，producer 與 consumer 共用
type Config struct {
	// Broker 配置
	Brokers  []string
	Topic    string
	DLQTopic string

	// 消費者配置
	ConsumerGroup    string
	ConsumerMinBytes int
	ConsumerMaxBytes int
	ConsumerMaxWait  time.Duration
	CommitInterval   time.Duration
	WorkerNum        int

	// 生產者配置
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int

	// 通用配置
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// 處理失敗重試配置
	MaxRetryAttempts   int           // 最大重試次數，超過即送往 DLQ
	RetryBackoffMin    time.Duration // 最小重試間隔
	RetryBackoffMax    time.Duration // 最大重試間隔
	RetryBackoffFactor float64       // 重試間隔增長因子

	// 分區策略配置
	Balancer kafka.Balancer
}

// GetBalancer 取得負載平衡器，如果沒有設定則使用預設的 Hash
// 同一個 key 必須落在同一個分區
func (c *Config) GetBalancer() kafka.Balancer {
	if c.Balancer != nil {
		return c.Balancer
	}
	return &kafka.Hash{}
}

// GetDLQTopic 未設定時使用 {topic}.dlq
func (c *Config) GetDLQTopic() string {
	if c.DLQTopic != "" {
		return c.DLQTopic
	}
	return c.Topic + DefaultDLQSuffix
}

// DefaultConfig returns a Config with default settings
func DefaultConfig() *Config {
	return &Config{
		Topic:              DefaultSubmissionTopic,
		ConsumerMinBytes:   1,
		ConsumerMaxBytes:   10e6, // 10MB
		ConsumerMaxWait:    time.Second,
		CommitInterval:     200 * time.Millisecond,
		WorkerNum:          8,
		BatchSize:          1,
		BatchTimeout:       10 * time.Millisecond,
		RequiredAcks:       int(kafka.RequireAll), // 等待所有副本確認
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRetryAttempts:   5,
		RetryBackoffMin:    100 * time.Millisecond,
		RetryBackoffMax:    5 * time.Second,
		RetryBackoffFactor: 2,
	}
}

// Validate checks if the configuration is valid and fills zero values with defaults
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	if c.Topic == "" {
		return ErrNoTopic
	}

	def := DefaultConfig()
	if c.WorkerNum <= 0 {
		c.WorkerNum = def.WorkerNum
	}
	if c.CommitInterval <= 0 {
		c.CommitInterval = def.CommitInterval
	}
	if c.MaxRetryAttempts < 0 {
		c.MaxRetryAttempts = 0
	}
	if c.RetryBackoffMin <= 0 {
		c.RetryBackoffMin = def.RetryBackoffMin
	}
	if c.RetryBackoffMax < c.RetryBackoffMin {
		c.RetryBackoffMax = c.RetryBackoffMin
	}
	if c.RetryBackoffFactor < 1 {
		c.RetryBackoffFactor = def.RetryBackoffFactor
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = def.BatchTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	return nil
}

// ValidateConsumer 消費者另外需要 group id
func (c *Config) ValidateConsumer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ConsumerGroup == "" {
		return ErrNoGroup
	}
	return nil
}

// Backoff 第 attempt 次重試 (從 1 開始) 前的等待時間
func (c *Config) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return c.RetryBackoffMin
	}
	d := float64(c.RetryBackoffMin)
	for i := 1; i < attempt; i++ {
		d *= c.RetryBackoffFactor
		if d >= float64(c.RetryBackoffMax) {
			return c.RetryBackoffMax
		}
	}
	return time.Duration(d)
}
