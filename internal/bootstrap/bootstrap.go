// Package bootstrap wires configuration into concrete adapters. Both binaries
// share it so the worker and the api agree on queue subjects and schema.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mariankugiel/labintake/internal/config"
	"github.com/mariankugiel/labintake/internal/core/ports"
	"github.com/mariankugiel/labintake/internal/core/usecase"
	"github.com/mariankugiel/labintake/internal/infrastructure/auth"
	"github.com/mariankugiel/labintake/internal/infrastructure/labapi"
	"github.com/mariankugiel/labintake/internal/infrastructure/preflight"
	"github.com/mariankugiel/labintake/internal/infrastructure/queue/nats"
	"github.com/mariankugiel/labintake/internal/infrastructure/report"
	"github.com/mariankugiel/labintake/internal/infrastructure/resilience"
	"github.com/mariankugiel/labintake/internal/infrastructure/storage/localfs"
	"github.com/mariankugiel/labintake/internal/infrastructure/storage/s3store"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue   *nats.Queue
	Intake  *usecase.Intake
	Editor  ports.DocumentEditor
	Reports ports.ReportBuilder

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	tokens := auth.NewTokenSource(auth.Credentials{
		AccessToken:  cfg.AuthAccessToken,
		RefreshToken: cfg.AuthRefreshToken,
	}, auth.NewHTTPRefresher(cfg.AuthRefreshURL))

	backend := labapi.New(labapi.Config{
		BaseURL:         cfg.LabAPIBaseURL,
		AnalysisTimeout: cfg.LabAPIAnalysisTimeout,
		OCRTimeout:      cfg.LabAPIOCRTimeout,
	}, tokens, resilience.NewExecutor(resilience.DefaultConfig()))

	inspector := preflight.NewInspector()

	intake := usecase.NewIntake(backend, inspector, storage, queue, logger, cfg.SessionTTL)
	editor := usecase.NewDocumentEdits(backend, inspector, storage, logger)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Queue:   queue,
		Intake:  intake,
		Editor:  editor,
		Reports: report.NewExcelBuilder(),

		closeFn: func() {
			queue.Close()
		},
	}, nil
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "s3":
		return s3store.New(ctx, s3store.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			KeyPrefix: cfg.S3KeyPrefix,
		})
	default:
		return localfs.New(cfg.StoragePath)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
