package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Whisker2257/casa/internal/bootstrap"
	"github.com/Whisker2257/casa/internal/config"
	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/observability/logging"
	"github.com/Whisker2257/casa/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeProcessJobs(ctx, func(handlerCtx context.Context, job domain.ProcessJob) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 15*time.Minute)
		defer cancel()

		start := time.Now()
		workerMetrics.JobStarted()
		processErr := app.ProcessUC.Process(processCtx, job)

		status := "ok"
		if processErr != nil {
			status = "error"
			logger.Error("process job failed",
				"project_id", job.ProjectID,
				"path", job.Path,
				"op", job.Op,
				"error", processErr,
			)
		}
		workerMetrics.JobFinished("worker", job.Op, status, time.Since(start))
		return processErr
	})
	if err != nil {
		logger.Error("worker subscribe error", "error", err)
		os.Exit(1)
	}
}
