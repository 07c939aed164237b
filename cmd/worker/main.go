package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/notarization-api/internal/bootstrap"
	"github.com/kirillkom/notarization-api/internal/config"
	"github.com/kirillkom/notarization-api/internal/core/domain"
	"github.com/kirillkom/notarization-api/internal/observability/logging"
	"github.com/kirillkom/notarization-api/internal/observability/metrics"
)

const deliveryTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(os.Stdout, "notary-worker", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.NewWorker(cfg, logger, workerMetrics)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeEmail(ctx, func(handlerCtx context.Context, msg domain.EmailMessage) error {
		if !msg.QueuedAt.IsZero() {
			workerMetrics.ObserveQueueLag(time.Since(msg.QueuedAt))
		}
		workerMetrics.StartDelivery()
		start := time.Now()

		sendCtx, cancel := context.WithTimeout(handlerCtx, deliveryTimeout)
		defer cancel()
		err := app.Mailer.Send(sendCtx, msg)
		workerMetrics.FinishDelivery(string(msg.Kind), time.Since(start), err)
		if err == nil {
			logger.Info("email_delivered", "kind", msg.Kind, "related_id", msg.RelatedID, "recipients", len(msg.To))
		}
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
