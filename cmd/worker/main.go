package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mariankugiel/labintake/internal/bootstrap"
	"github.com/mariankugiel/labintake/internal/config"
	"github.com/mariankugiel/labintake/internal/core/domain"
	"github.com/mariankugiel/labintake/internal/infrastructure/repository/postgres"
	"github.com/mariankugiel/labintake/internal/observability/logging"
	"github.com/mariankugiel/labintake/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	audits := postgres.NewAuditRepository(db)
	if err := audits.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	workerMetrics := metrics.NewWorkerMetrics("worker")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", workerMetrics.Handler())
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := http.ListenAndServe(":"+cfg.WorkerMetricsPort, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeSessionSaved(ctx, func(handlerCtx context.Context, event domain.SessionSavedEvent) error {
		workerMetrics.ObserveQueueLag("worker", time.Since(event.SavedAt))
		workerMetrics.StartAudit()
		start := time.Now()

		writeCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()

		writeErr := audits.RecordIntake(writeCtx, &domain.IntakeAudit{
			SessionID:        event.SessionID,
			DocumentID:       event.DocumentID,
			FileName:         event.FileName,
			DetectedLanguage: event.DetectedLanguage,
			CreatedRecords:   event.CreatedRecords,
			UpdatedRecords:   event.UpdatedRecords,
			Rejected:         event.Rejected,
			OCRUsed:          event.OCRUsed,
			SavedAt:          event.SavedAt,
		})
		workerMetrics.FinishAudit("worker", time.Since(start), writeErr)
		return writeErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
