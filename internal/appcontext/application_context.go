package appcontext

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/RoyceAzure/lab/storefront/internal/api/middleware"
	"github.com/RoyceAzure/lab/storefront/internal/api/ws"
	"github.com/RoyceAzure/lab/storefront/internal/config"
	handler "github.com/RoyceAzure/lab/storefront/internal/handler/command"
	"github.com/RoyceAzure/lab/storefront/internal/infra/auth/google_auth"
	"github.com/RoyceAzure/lab/storefront/internal/infra/consumer"
	"github.com/RoyceAzure/lab/storefront/internal/infra/kafka/admin"
	kafkacfg "github.com/RoyceAzure/lab/storefront/internal/infra/kafka/config"
	"github.com/RoyceAzure/lab/storefront/internal/infra/metrics"
	"github.com/RoyceAzure/lab/storefront/internal/infra/presence"
	"github.com/RoyceAzure/lab/storefront/internal/infra/producer"
	"github.com/RoyceAzure/lab/storefront/internal/infra/pubsub"
	"github.com/RoyceAzure/lab/storefront/internal/infra/ratelimit"
	"github.com/RoyceAzure/lab/storefront/internal/infra/redis_client"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/eventdb"
	"github.com/RoyceAzure/lab/storefront/internal/infra/tracing"
	"github.com/RoyceAzure/lab/storefront/internal/service"
	"github.com/RoyceAzure/lab/storefront/internal/service/notification"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Role 決定要初始化哪些元件
type Role string

const (
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
)

const consumerStopTimeout = 20 * time.Second

type ApplicationContext struct {
	Role   Role
	Cf     *config.Config
	Logger *zerolog.Logger

	DbConn      *gorm.DB
	DbDao       db.IStore
	RedisClient *redis.Client
	EventClient *esdb.Client
	ActivityLog eventdb.IOrderActivityRepository
	Presence    presence.Store
	Broker      pubsub.Broker
	KafkaCf     *kafkacfg.Config

	// api
	GoogleAuthVerifier google_auth.IAuthVerifier
	Authenticator      *middleware.Authenticator
	SubmissionProducer *producer.SubmissionProducer
	CheckoutService    service.ICheckoutService
	OrderService       service.IOrderService
	Gateway            *ws.Gateway
	CheckoutLimiter    ratelimit.Limiter
	ServerMetrics      *metrics.ServerMetrics

	// worker
	ConsumerMetrics     *metrics.ConsumerMetrics
	NotificationService notification.INotificationService
	SubmissionHandler   *handler.SubmissionHandler
	Reader              *kafka.Reader
	DLQWriter           *kafka.Writer
	Consumer            *consumer.Consumer
}

func NewApplicationContext(cf *config.Config, role Role) (*ApplicationContext, error) {
	app := ApplicationContext{
		Role: role,
		Cf:   cf,
	}
	err := app.Init()
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (app *ApplicationContext) Init() error {
	steps := []func() error{
		app.setUpLogger,
		app.setUpTracing,
		app.setUpdbConn,
		app.setUpdbDao,
		app.setUpRedis,
		app.setUpPresence,
		app.setUpBroker,
		app.setUpEventStore,
		app.setUpKafkaConfig,
	}
	switch app.Role {
	case RoleAPI:
		steps = append(steps,
			app.setUpServerMetrics,
			app.setGoogleVerifier,
			app.setUpAuthenticator,
			app.setUpSubmissionProducer,
			app.setUpCheckoutService,
			app.setUpOrderService,
			app.setUpGateway,
			app.setUpCheckoutLimiter,
		)
	case RoleWorker:
		steps = append(steps,
			app.setUpConsumerMetrics,
			app.setUpKafkaTopics,
			app.setUpNotificationService,
			app.setUpSubmissionHandler,
			app.setUpConsumer,
		)
	default:
		return fmt.Errorf("unknown role %q", app.Role)
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (app *ApplicationContext) setUpLogger() error {
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", app.Cf.ServiceName).
		Str("role", string(app.Role)).
		Logger()
	zerolog.SetGlobalLevel(app.Cf.Level())
	app.Logger = &logger

	config.OnChange(func(cf *config.Config) {
		zerolog.SetGlobalLevel(cf.Level())
		app.Logger.Info().Str("level", cf.Level().String()).Msg("config reloaded")
	})
	app.Logger.Info().Msg("Finish setup logger")
	return nil
}

func (app *ApplicationContext) setUpTracing() error {
	tracing.Init()
	return nil
}

func (app *ApplicationContext) setUpdbConn() error {
	app.Logger.Info().Msg("Start setup database connection")
	if err := db.RunMigration(app.Cf.DatabaseURL()); err != nil {
		return fmt.Errorf("run migration: %w", err)
	}
	conn, err := db.GetDbConn(app.Cf.DbName, app.Cf.DbHost, app.Cf.DbPort, app.Cf.DbUser, app.Cf.DbPas, db.WithSilentLogger())
	if err != nil {
		return err
	}
	app.DbConn = conn
	app.Logger.Info().Msg("Finish setup database connection")
	return nil
}

func (app *ApplicationContext) setUpdbDao() error {
	app.DbDao = db.NewStore(app.DbConn)
	return nil
}

func (app *ApplicationContext) setUpRedis() error {
	app.Logger.Info().Msg("Start setup redis client")
	client, err := redis_client.GetRedisClient(app.Cf.RedisAddr,
		redis_client.WithPassword(app.Cf.RedisPassword),
		redis_client.WithDB(app.Cf.RedisDB),
	)
	if err != nil {
		return err
	}
	app.RedisClient = client
	app.Logger.Info().Msg("Finish setup redis client")
	return nil
}

func (app *ApplicationContext) setUpPresence() error {
	app.Presence = presence.NewRedisStore(app.RedisClient, app.Cf.PresenceTTL)
	return nil
}

func (app *ApplicationContext) setUpBroker() error {
	app.Broker = pubsub.NewRedisBroker(app.RedisClient)
	return nil
}

// setUpEventStore 未設定 EVENTSTORE_URL 時不記錄訂單歷程
func (app *ApplicationContext) setUpEventStore() error {
	if app.Cf.EventStoreURL == "" {
		app.Logger.Warn().Msg("EVENTSTORE_URL not set, order activity log disabled")
		return nil
	}
	app.Logger.Info().Msg("Start setup eventstore client")
	client, err := eventdb.NewClient(app.Cf.EventStoreURL)
	if err != nil {
		return err
	}
	app.EventClient = client
	app.ActivityLog = eventdb.NewOrderActivityRepo(eventdb.NewEventDao(client))
	app.Logger.Info().Msg("Finish setup eventstore client")
	return nil
}

func (app *ApplicationContext) setUpKafkaConfig() error {
	cf := kafkacfg.DefaultConfig()
	cf.Brokers = app.Cf.KafkaBrokers
	cf.Topic = app.Cf.KafkaSubmissionTopic
	cf.DLQTopic = app.Cf.KafkaDLQTopic
	cf.ConsumerGroup = app.Cf.KafkaConsumerGroup
	cf.WorkerNum = app.Cf.WorkerNum
	cf.MaxRetryAttempts = app.Cf.MaxRetryAttempts
	cf.RetryBackoffMin = app.Cf.RetryBackoffMin
	cf.RetryBackoffMax = app.Cf.RetryBackoffMax
	if err := cf.Validate(); err != nil {
		return err
	}
	app.KafkaCf = cf
	return nil
}

func (app *ApplicationContext) setUpServerMetrics() error {
	app.ServerMetrics = metrics.NewServerMetrics(prometheus.DefaultRegisterer, string(app.Role))
	return nil
}

func (app *ApplicationContext) setGoogleVerifier() error {
	app.GoogleAuthVerifier = google_auth.NewGoogleAuthVerifier(app.Cf.GoogleClientID)
	return nil
}

func (app *ApplicationContext) setUpAuthenticator() error {
	app.Authenticator = middleware.NewAuthenticator(app.GoogleAuthVerifier, app.DbDao, app.Logger)
	return nil
}

func (app *ApplicationContext) setUpSubmissionProducer() error {
	app.Logger.Info().Msg("Start setup submission producer")
	p, err := producer.NewSubmissionProducer(app.KafkaCf, app.Logger)
	if err != nil {
		return err
	}
	app.SubmissionProducer = p
	app.Logger.Info().Msg("Finish setup submission producer")
	return nil
}

func (app *ApplicationContext) setUpCheckoutService() error {
	app.CheckoutService = service.NewCheckoutService(app.SubmissionProducer, app.Logger)
	return nil
}

func (app *ApplicationContext) setUpOrderService() error {
	// nil interface 與 nil pointer 不同，未啟用時明確傳 nil
	var activity service.IActivityReader
	if app.ActivityLog != nil {
		activity = app.ActivityLog
	}
	app.OrderService = service.NewOrderService(app.DbDao, activity, app.Logger)
	return nil
}

func (app *ApplicationContext) setUpGateway() error {
	app.Gateway = ws.NewGateway(app.Authenticator, app.Presence, app.Broker,
		ws.WithHeartbeat(app.Cf.PresenceTTL/2),
		ws.WithLogger(app.Logger),
	)
	return nil
}

// setUpCheckoutLimiter 以 redis 共用 bucket，CHECKOUT_RATE_LIMIT 為 0 時不限流
func (app *ApplicationContext) setUpCheckoutLimiter() error {
	if app.Cf.CheckoutRateLimit <= 0 {
		return nil
	}
	limiter, err := ratelimit.NewRedisTokenBucket(app.RedisClient, "checkout", ratelimit.Config{
		Capacity: app.Cf.CheckoutBurst,
		RatePS:   app.Cf.CheckoutRateLimit,
	})
	if err != nil {
		return err
	}
	app.CheckoutLimiter = limiter
	return nil
}

func (app *ApplicationContext) setUpConsumerMetrics() error {
	app.ConsumerMetrics = metrics.NewConsumerMetrics(prometheus.DefaultRegisterer, string(app.Role))
	return nil
}

// setUpKafkaTopics 建立提交與 DLQ topic，已存在則略過
func (app *ApplicationContext) setUpKafkaTopics() error {
	app.Logger.Info().Msg("Start setup kafka topics")
	a, err := admin.NewAdmin(app.KafkaCf.Brokers)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = a.EnsureTopics(ctx,
		admin.TopicConfig{Name: app.KafkaCf.Topic, Partitions: app.Cf.KafkaPartitions, ReplicationFactor: app.Cf.KafkaReplication},
		admin.TopicConfig{Name: app.KafkaCf.GetDLQTopic(), Partitions: app.Cf.KafkaPartitions, ReplicationFactor: app.Cf.KafkaReplication},
	)
	if err != nil {
		return err
	}
	app.Logger.Info().Msg("Finish setup kafka topics")
	return nil
}

func (app *ApplicationContext) setUpNotificationService() error {
	publisher := notification.NewPublisher(app.Broker, app.Presence,
		notification.WithMetrics(app.ConsumerMetrics),
		notification.WithLogger(app.Logger),
	)
	app.NotificationService = notification.NewService(app.DbDao, publisher, app.Logger)
	return nil
}

func (app *ApplicationContext) setUpSubmissionHandler() error {
	opts := []handler.Option{
		handler.WithMetrics(app.ConsumerMetrics),
		handler.WithLogger(app.Logger),
		handler.WithTxTimeout(app.Cf.TxTimeout),
		handler.WithNotifyTimeout(app.Cf.NotifyTimeout),
	}
	if app.ActivityLog != nil {
		opts = append(opts, handler.WithActivityLog(app.ActivityLog))
	}
	app.SubmissionHandler = handler.NewSubmissionHandler(app.DbDao, app.NotificationService, opts...)
	return nil
}

func (app *ApplicationContext) setUpConsumer() error {
	app.Logger.Info().Msg("Start setup fulfillment consumer")
	reader, err := consumer.NewReader(app.KafkaCf, app.Logger)
	if err != nil {
		return err
	}
	app.Reader = reader
	app.DLQWriter = producer.NewWriter(app.KafkaCf, app.KafkaCf.GetDLQTopic(), app.Logger)

	app.Consumer = consumer.NewConsumer(app.KafkaCf, reader, app.DLQWriter, app.SubmissionHandler,
		consumer.WithLogger(app.Logger),
		consumer.WithDeadLetterHandler(func(e consumer.ConsumeError) {
			app.ConsumerMetrics.IncDeadLetter()
		}),
	)
	app.Logger.Info().Msg("Finish setup fulfillment consumer")
	return nil
}

// Ready 給 /healthz 使用
func (app *ApplicationContext) Ready(r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := app.RedisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	sqlDB, err := app.DbConn.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	return nil
}

func (app *ApplicationContext) Shutdown(ctx context.Context) error {
	app.Logger.Info().Msg("Start application shutdown")

	done := make(chan error, 1)
	go func() {
		// 先停止接收新工作
		var g errgroup.Group
		if app.Gateway != nil {
			g.Go(func() error {
				return app.Gateway.Shutdown(ctx)
			})
		}
		if app.Consumer != nil {
			g.Go(func() error {
				return app.Consumer.Stop(consumerStopTimeout)
			})
		}
		err := g.Wait()

		// 再關閉底層連線
		if app.SubmissionProducer != nil {
			err = errors.Join(err, app.SubmissionProducer.Close())
		}
		if app.Reader != nil {
			err = errors.Join(err, app.Reader.Close())
		}
		if app.DLQWriter != nil {
			err = errors.Join(err, app.DLQWriter.Close())
		}
		if app.EventClient != nil {
			err = errors.Join(err, app.EventClient.Close())
		}
		redis_client.CloseAll()
		if app.DbConn != nil {
			if sqlDB, dbErr := app.DbConn.DB(); dbErr == nil {
				err = errors.Join(err, sqlDB.Close())
			}
		}
		done <- err
	}()

	select {
	case err := <-done:
		app.Logger.Info().Err(err).Msg("Application shutdown complete")
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %v", ctx.Err())
	}
}
