package api

import (
	"net/http"

	"github.com/RoyceAzure/lab/storefront/internal/api/handler"
	"github.com/RoyceAzure/lab/storefront/internal/api/middleware"
	"github.com/RoyceAzure/lab/storefront/internal/api/ws"
	"github.com/RoyceAzure/lab/storefront/internal/infra/metrics"
	"github.com/RoyceAzure/lab/storefront/internal/infra/ratelimit"
)

type Server struct {
	CheckoutHandler *handler.CheckoutHandler
	OrderHandler    *handler.OrderHandler
	Gateway         *ws.Gateway
	Authenticator   *middleware.Authenticator
	Metrics         *metrics.ServerMetrics
	// CheckoutLimiter 為 nil 時不限流
	CheckoutLimiter ratelimit.Limiter
	// Ready 回傳 nil 表示依賴的服務都可用
	Ready func(r *http.Request) error
}

func NewServer(
	checkoutHandler *handler.CheckoutHandler,
	orderHandler *handler.OrderHandler,
	gateway *ws.Gateway,
	authenticator *middleware.Authenticator,
	serverMetrics *metrics.ServerMetrics,
) *Server {
	return &Server{
		CheckoutHandler: checkoutHandler,
		OrderHandler:    orderHandler,
		Gateway:         gateway,
		Authenticator:   authenticator,
		Metrics:         serverMetrics,
	}
}
