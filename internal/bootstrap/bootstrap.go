package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/frontrangetitle/titleworks/internal/config"
	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
	"github.com/frontrangetitle/titleworks/internal/core/usecase"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/batchfile"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/commercial"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/court"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/extraction"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/notify"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/queue/nats"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/recorder"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/report"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/repository/postgres"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/resilience"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/storage/localfs"
)

// App holds the wired object graph shared by the api and worker
// binaries. Both construct the full graph; the api simply never
// subscribes to the task lanes.
type App struct {
	Config config.Config

	Queue         *nats.Queue
	Searches      ports.SearchRepository
	Documents     ports.DocumentRepository
	Jurisdictions ports.JurisdictionRepository

	Submit      *usecase.SubmitUseCase
	Batches     *usecase.BatchUseCase
	Orchestrate *usecase.OrchestrateUseCase
	Maintenance *usecase.MaintenanceUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	searches := postgres.NewSearchRepository(db)
	properties := postgres.NewPropertyRepository(db)
	documents := postgres.NewDocumentRepository(db)
	chains := postgres.NewChainRepository(db)
	batches := postgres.NewBatchRepository(db)
	jurisdictions := postgres.NewJurisdictionRepository(db)

	blobs, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.Options{})

	app := &App{Config: cfg}

	// The queue reports retry-exhausted tasks back into the usecases,
	// which are built after the queue itself; dispatch through the App
	// so the late binding is safe.
	queue, err := nats.New(cfg.NATSURL, cfg.NATSStream, nats.Options{
		RetryDelay:         cfg.TaskRetryDelay,
		ResilienceExecutor: executor,
		OnTerminalFailure: func(ctx context.Context, task domain.Task, taskErr error) {
			app.terminalFailure(ctx, task, taskErr, logger)
		},
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init task queue: %w", err)
	}

	audit := notify.NewAuditSink(queue, cfg.AuditSubject, logger)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	recorders := recorder.NewRegistry(recorder.Deps{HTTPClient: httpClient, Executor: executor})
	courts := court.NewRegistry(court.Deps{HTTPClient: httpClient, Executor: executor})

	var commercialSource ports.CommercialSource
	commercialEnabled := cfg.CommercialAPIURL != ""
	if commercialEnabled {
		commercialSource = commercial.NewClient(cfg.CommercialAPIURL, cfg.CommercialAPIKey, httpClient, executor)
	}

	extractor := extraction.NewService(blobs, documents, logger)
	reports := report.NewService(blobs, properties, documents, logger)

	app.Submit = usecase.NewSubmitUseCase(searches, properties, jurisdictions, queue, audit,
		usecase.SubmitConfig{
			DefaultSearchYears: cfg.DefaultSearchYears,
			DefaultState:       cfg.DefaultState,
			CommercialEnabled:  commercialEnabled,
		}, logger)

	app.Orchestrate = usecase.NewOrchestrateUseCase(
		searches, properties, documents, chains, jurisdictions,
		queue, recorders, courts, commercialSource, extractor, reports, blobs, audit,
		usecase.OrchestrateConfig{
			FallbackAfterRetries:   cfg.FallbackAfterRetries,
			UnhealthyAfterFailures: cfg.UnhealthyAfterFailures,
			DefaultState:           cfg.DefaultState,
		}, logger)

	app.Batches = usecase.NewBatchUseCase(batches, queue, app.Submit, batchfile.Parse, logger)
	app.Maintenance = usecase.NewMaintenanceUseCase(searches, jurisdictions, audit, httpClient, cfg.StaleAfter, logger)

	if err := seedJurisdictions(ctx, cfg.JurisdictionSeedPath, jurisdictions, logger); err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}

	app.Queue = queue
	app.Searches = searches
	app.Documents = documents
	app.Jurisdictions = jurisdictions
	app.closeFn = func() {
		queue.Close()
		_ = db.Close()
	}
	return app, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// terminalFailure routes a retry-exhausted task to the usecase that
// owns its aggregate so the failure lands in a visible status instead
// of vanishing with the message.
func (a *App) terminalFailure(ctx context.Context, task domain.Task, taskErr error, logger *slog.Logger) {
	switch task.Type {
	case domain.TaskProcessBatch:
		if a.Batches != nil {
			a.Batches.OnTerminalFailure(ctx, task, taskErr)
		}
	case domain.TaskProbeJurisdictions, domain.TaskExpireStale:
		logger.Error("maintenance_task_abandoned", "task_type", string(task.Type), "error", taskErr)
	default:
		if a.Orchestrate != nil {
			a.Orchestrate.OnTerminalFailure(ctx, task, taskErr)
		}
	}
}

func seedJurisdictions(ctx context.Context, path string, repo ports.JurisdictionRepository, logger *slog.Logger) error {
	configs, err := config.LoadJurisdictionSeed(path)
	if err != nil {
		return err
	}
	for i := range configs {
		if err := repo.Upsert(ctx, &configs[i]); err != nil {
			return fmt.Errorf("seed jurisdiction %s: %w", configs[i].Name, err)
		}
	}
	if len(configs) > 0 {
		logger.Info("jurisdictions_seeded", "count", len(configs))
	}
	return nil
}
