package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/api/middleware"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/presence"
	"github.com/RoyceAzure/lab/storefront/internal/infra/pubsub"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"
)

const (
	DefaultHeartbeat = presence.DefaultTTL / 2
	cleanupTimeout   = 3 * time.Second
)

// Gateway 瀏覽器的即時連線，每條連線訂閱自己使用者的群組並轉送通知
type Gateway struct {
	auth      *middleware.Authenticator
	presence  presence.Store
	broker    pubsub.Broker
	heartbeat time.Duration
	logger    *zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
	conns     sync.WaitGroup
}

type Option func(*Gateway)

// WithHeartbeat presence 續期間隔，需小於 presence ttl
func WithHeartbeat(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.heartbeat = d
		}
	}
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func NewGateway(auth *middleware.Authenticator, store presence.Store, broker pubsub.Broker, opts ...Option) *Gateway {
	nop := zerolog.Nop()
	g := &Gateway{
		auth:      auth,
		presence:  store,
		broker:    broker,
		heartbeat: DefaultHeartbeat,
		logger:    &nop,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user := g.authenticate(r)
	if user == nil {
		g.logger.Debug().Str("remote", r.RemoteAddr).Msg("websocket unauthorized")
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	// 不檢查 Origin，驗證已由 token 完成
	srv := websocket.Server{
		Handler: func(conn *websocket.Conn) {
			g.serveConn(conn, user)
		},
	}
	srv.ServeHTTP(w, r.WithContext(util.WithUser(r.Context(), user)))
}

// authenticate 已經過 AuthPayloadMiddleware 時直接取 ctx 的使用者
func (g *Gateway) authenticate(r *http.Request) *model.User {
	if user := util.GetUserFromContext(r.Context()); user != nil {
		return user
	}
	if g.auth == nil {
		return nil
	}
	token := middleware.BearerToken(r)
	if token == "" {
		return nil
	}
	user, err := g.auth.Authenticate(r.Context(), token)
	if err != nil {
		g.logger.Debug().Err(err).Msg("websocket authenticate failed")
		return nil
	}
	return user
}

func (g *Gateway) serveConn(conn *websocket.Conn, user *model.User) {
	g.conns.Add(1)
	defer g.conns.Done()
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connID := uuid.NewString()
	logger := g.logger.With().Int64("user_id", user.ID).Str("conn_id", connID).Logger()

	// 先訂閱再登記 presence，publisher 看到上線時訂閱一定已經存在
	sub, err := g.broker.Subscribe(ctx, pubsub.UserChannel(user.ID))
	if err != nil {
		logger.Error().Err(err).Msg("subscribe user channel failed")
		return
	}
	defer sub.Close()

	if err := g.presence.Register(ctx, user.ID, connID); err != nil {
		logger.Error().Err(err).Msg("register presence failed")
		return
	}
	defer func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cleanupCancel()
		if err := g.presence.Unregister(cleanupCtx, user.ID, connID); err != nil {
			logger.Warn().Err(err).Msg("unregister presence failed")
		}
	}()
	logger.Debug().Msg("websocket connected")

	// client 不會送有意義的資料，讀取只用來偵測斷線
	go func() {
		defer cancel()
		var discard string
		for {
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(g.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("websocket disconnected")
			return
		case <-g.done:
			return
		case <-ticker.C:
			if err := g.presence.Touch(ctx, user.ID, connID); err != nil {
				logger.Warn().Err(err).Msg("touch presence failed")
			}
		case payload, ok := <-sub.C():
			if !ok {
				return
			}
			// payload 已是 {type, payload} 格式
			if err := websocket.Message.Send(conn, string(payload)); err != nil {
				logger.Debug().Err(err).Msg("websocket send failed")
				return
			}
		}
	}
}

// Shutdown 關閉所有連線並等待 presence 清除
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.closeOnce.Do(func() { close(g.done) })

	finished := make(chan struct{})
	go func() {
		g.conns.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
