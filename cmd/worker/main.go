package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/appcontext"
	"github.com/RoyceAzure/lab/storefront/internal/config"
	"github.com/RoyceAzure/lab/storefront/internal/infra/metrics"
)

// fulfillment worker，可以同時啟動多個 process，由 consumer group 分配 partition
func main() {
	app, err := appcontext.NewApplicationContext(config.GetConfig(), appcontext.RoleWorker)
	if err != nil {
		log.Fatal(err)
		return
	}

	// 只提供 metrics 與 healthz
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.Ready(r); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("OK"))
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", app.Cf.ServerPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			app.Logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	if err := app.Consumer.Start(); err != nil {
		app.Logger.Fatal().Err(err).Msg("start consumer failed")
	}
	app.Logger.Info().
		Str("topic", app.KafkaCf.Topic).
		Str("group", app.KafkaCf.ConsumerGroup).
		Int("workers", app.KafkaCf.WorkerNum).
		Msg("Worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		app.Logger.Info().Msg("Received shutdown signal")
	case <-app.Consumer.C():
		app.Logger.Warn().Msg("Consumer stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("metrics server shutdown error")
	}
	if err := app.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Application shutdown error")
	}
	app.Logger.Info().Msg("closed completed")
}
