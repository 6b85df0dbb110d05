package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	viper "github.com/spf13/viper"
)

/*
把init config跟read config分開
init : 需要設置viper watch 與 onConfigChange
read config : 一般讀取  需要使用讀寫鎖
*/
var config_singleton *ConfigSingleTon
var muonce sync.Once

var (
	ErrNoBrokers = errors.New("KAFKA_BROKERS is required")
	ErrNoTopic   = errors.New("KAFKA_SUBMISSION_TOPIC is required")
)

const (
	ConfigFileEnv     = "CONFIG_FILE"
	DefaultConfigFile = "./.env"
)

type ConfigSingleTon struct {
	Config    *Config
	v         *viper.Viper
	mu        sync.RWMutex
	listeners []func(*Config)
}

type Config struct {
	ServiceName string `mapstructure:"SERVICE_NAME"`
	ServerPort  string `mapstructure:"SERVER_PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	DbName       string `mapstructure:"POSTGRES_DB"`
	DbHost       string `mapstructure:"POSTGRES_HOST"`
	DbPort       string `mapstructure:"POSTGRES_PORT"`
	DbUser       string `mapstructure:"POSTGRES_USER"`
	DbPas        string `mapstructure:"POSTGRES_PASSWORD"`
	MigrationURL string `mapstructure:"MIGRATION_URL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	KafkaBrokers         []string `mapstructure:"KAFKA_BROKERS"`
	KafkaSubmissionTopic string   `mapstructure:"KAFKA_SUBMISSION_TOPIC"`
	KafkaDLQTopic        string   `mapstructure:"KAFKA_DLQ_TOPIC"`
	KafkaConsumerGroup   string   `mapstructure:"KAFKA_CONSUMER_GROUP"`
	KafkaPartitions      int      `mapstructure:"KAFKA_TOPIC_PARTITIONS"`
	KafkaReplication     int      `mapstructure:"KAFKA_REPLICATION_FACTOR"`

	WorkerNum        int           `mapstructure:"WORKER_NUM"`
	MaxRetryAttempts int           `mapstructure:"MAX_RETRY_ATTEMPTS"`
	RetryBackoffMin  time.Duration `mapstructure:"RETRY_BACKOFF_MIN"`
	RetryBackoffMax  time.Duration `mapstructure:"RETRY_BACKOFF_MAX"`
	TxTimeout        time.Duration `mapstructure:"TX_TIMEOUT"`
	NotifyTimeout    time.Duration `mapstructure:"NOTIFY_TIMEOUT"`
	PresenceTTL      time.Duration `mapstructure:"PRESENCE_TTL"`

	// 每個使用者或 ip 的結帳限流，rate 為 0 時不限流
	CheckoutRateLimit float64 `mapstructure:"CHECKOUT_RATE_LIMIT"`
	CheckoutBurst     int     `mapstructure:"CHECKOUT_BURST"`

	EventStoreURL  string `mapstructure:"EVENTSTORE_URL"`
	GoogleClientID string `mapstructure:"GOOGLE_CLIENT_ID"`
}

func defaults() map[string]any {
	return map[string]any{
		"SERVICE_NAME":           "storefront",
		"SERVER_PORT":            "8080",
		"LOG_LEVEL":              "info",
		"KAFKA_SUBMISSION_TOPIC": "order-submissions",
		"KAFKA_CONSUMER_GROUP":   "storefront-fulfillment",
		"WORKER_NUM":             8,
		"MAX_RETRY_ATTEMPTS":     5,
		"RETRY_BACKOFF_MIN":      "100ms",
		"RETRY_BACKOFF_MAX":      "5s",
		"TX_TIMEOUT":             "5s",
		"NOTIFY_TIMEOUT":         "10s",
		"PRESENCE_TTL":           "60s",
		"CHECKOUT_RATE_LIMIT":    1,
		"CHECKOUT_BURST":         5,
	}
}

func GetConfig() *Config {
	initConfig()
	config_singleton.mu.RLock()
	defer config_singleton.mu.RUnlock()
	return config_singleton.Config
}

// OnChange 設定檔被修改並重新載入成功後呼叫
func OnChange(f func(*Config)) {
	initConfig()
	config_singleton.mu.Lock()
	defer config_singleton.mu.Unlock()
	config_singleton.listeners = append(config_singleton.listeners, f)
}

func initConfig() {
	muonce.Do(func() {
		config_singleton = &ConfigSingleTon{v: viper.New()}
		cf, err := loadConfig(config_singleton.v, configFile())
		if err != nil {
			log.Fatalf("error read config: %v", err)
		}
		config_singleton.Config = cf

		if config_singleton.v.ConfigFileUsed() == "" {
			return
		}
		config_singleton.v.OnConfigChange(func(e fsnotify.Event) {
			cf, err := unmarshal(config_singleton.v)
			if err != nil {
				// 保留舊設定
				log.Printf("failed to reload config file %s: %v", e.Name, err)
				return
			}
			config_singleton.mu.Lock()
			config_singleton.Config = cf
			listeners := append([]func(*Config){}, config_singleton.listeners...)
			config_singleton.mu.Unlock()
			for _, f := range listeners {
				f(cf)
			}
		})
		config_singleton.v.WatchConfig()
	})
}

func configFile() string {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path
	}
	return DefaultConfigFile
}

// LoadConfig 讀取單一設定檔，不啟用 watch
func LoadConfig(path string) (*Config, error) {
	return loadConfig(viper.New(), path)
}

/*
單純回傳錯誤  由外部決定要不要Fatal, 畢竟有可能有替代方案
設定檔不存在時只使用環境變數
*/
func loadConfig(v *viper.Viper, path string) (*Config, error) {
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	for _, key := range configKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cf := &Config{}
	if err := v.Unmarshal(cf); err != nil {
		return nil, err
	}
	if err := cf.Validate(); err != nil {
		return nil, err
	}
	return cf, nil
}

// configKeys 所有 mapstructure key，沒有設定檔時 Unmarshal 才讀得到環境變數
func configKeys() []string {
	t := reflect.TypeOf(Config{})
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("mapstructure"); tag != "" {
			keys = append(keys, tag)
		}
	}
	return keys
}

// Validate 補上預設值，kafka 必要欄位缺少時回傳錯誤
func (c *Config) Validate() error {
	if len(c.KafkaBrokers) == 0 {
		return ErrNoBrokers
	}
	if c.KafkaSubmissionTopic == "" {
		return ErrNoTopic
	}
	if c.KafkaDLQTopic == "" {
		c.KafkaDLQTopic = c.KafkaSubmissionTopic + ".dlq"
	}
	if c.WorkerNum <= 0 {
		c.WorkerNum = 1
	}
	if c.MaxRetryAttempts < 0 {
		c.MaxRetryAttempts = 0
	}
	if c.RetryBackoffMax < c.RetryBackoffMin {
		c.RetryBackoffMax = c.RetryBackoffMin
	}
	if c.TxTimeout <= 0 {
		c.TxTimeout = 5 * time.Second
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 10 * time.Second
	}
	if c.PresenceTTL <= 0 {
		c.PresenceTTL = 60 * time.Second
	}
	if c.CheckoutRateLimit > 0 && c.CheckoutBurst <= 0 {
		c.CheckoutBurst = 1
	}
	return nil
}

// Level 無法解析時使用 info
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// DatabaseURL golang-migrate 使用，MIGRATION_URL 未設定時由 POSTGRES_* 組成
func (c *Config) DatabaseURL() string {
	if c.MigrationURL != "" {
		return c.MigrationURL
	}
	return db.MigrationURL(c.DbName, c.DbHost, c.DbPort, c.DbUser, c.DbPas)
}
