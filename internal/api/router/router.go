package router

import (
	"net/http"

	"github.com/RoyceAzure/lab/storefront/internal/api"
	m "github.com/RoyceAzure/lab/storefront/internal/api/middleware"
	"github.com/RoyceAzure/lab/storefront/internal/infra/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func SetupRouter(server *api.Server, logger *zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// 全局中間件
	r.Use(m.RequestIdMiddleware)
	if server.Authenticator != nil {
		r.Use(m.AuthPayloadMiddleware(server.Authenticator))
	}
	r.Use(middleware.RealIP)
	r.Use(m.LoggerMiddleware(logger))
	r.Use(m.RecoverMiddleware(logger))
	r.Use(m.MetricsMiddleware(server.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if server.Ready != nil {
			if err := server.Ready(r); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	// 即時通知
	if server.Gateway != nil {
		r.Handle("/ws", server.Gateway)
	}

	// API 路由
	r.Route("/api/v1", func(r chi.Router) {
		// 訪客也可以結帳
		r.Group(func(r chi.Router) {
			if server.CheckoutLimiter != nil {
				r.Use(m.RateLimitMiddleware(server.CheckoutLimiter, logger))
			}
			r.Post("/checkout", server.CheckoutHandler.Submit)
		})

		r.Group(func(r chi.Router) {
			r.Use(m.AuthMiddleware)
			r.Get("/orders", server.OrderHandler.ListOrders)
			r.Get("/orders/{code}", server.OrderHandler.GetOrder)
		})
	})

	if logger != nil {
		_ = chi.Walk(r, func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			logger.Debug().Str("method", method).Str("route", route).Msg("route registered")
			return nil
		})
	}
	return r
}
