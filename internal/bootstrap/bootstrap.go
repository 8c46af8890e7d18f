package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseffiran/SilkRouteHelper-1/internal/config"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/extraction"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/ports"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/refdata"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/usecase"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/queue/nats"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/recognizer/textlayer"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/repository/postgres"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/resilience"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/storage/localfs"
	"github.com/joseffiran/SilkRouteHelper-1/internal/observability/metrics"
)

// Options tune process-specific wiring. A nil Registerer disables extraction metrics.
type Options struct {
	Service    string
	Registerer prometheus.Registerer
}

type App struct {
	Config config.Config

	Queue      *nats.Queue
	Documents  ports.DocumentRepository
	Templates  *usecase.TemplateService
	Ingest     *usecase.IngestDocumentUseCase
	Process    *usecase.ProcessDocumentUseCase
	Dispatcher *usecase.DispatchUseCase
	Cleanup    *usecase.CleanupUseCase
	Metrics    *metrics.ExtractionMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if cfg.MigrateOnBoot {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	docs := postgres.NewDocumentRepository(db)
	templates := usecase.NewTemplateService(postgres.NewTemplateRepository(db), cfg.TemplateCacheTTL)
	if err := EnsureActiveTemplate(ctx, templates, cfg.TemplateSeedPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed template: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	var (
		extractionMetrics *metrics.ExtractionMetrics
		observer          ports.ExtractionObserver
		executorOpts      []resilience.Option
	)
	if opts.Registerer != nil {
		extractionMetrics = metrics.NewExtractionMetrics(opts.Service, opts.Registerer)
		observer = extractionMetrics
		executorOpts = append(executorOpts, resilience.WithStateObserver(extractionMetrics.BreakerStateChanged))
	}
	executor := resilience.NewExecutor(resilienceConfig(cfg), executorOpts...)

	queue, err := nats.New(ctx, cfg.NATSURL, nats.Options{
		Stream:             cfg.NATSStream,
		Subject:            cfg.NATSSubject,
		Durable:            cfg.NATSDurable,
		MaxDeliver:         cfg.BackgroundMaxAttempts,
		RetryBackoff:       cfg.BackgroundRetryBackoff,
		AckWait:            cfg.NATSAckWait,
		Workers:            cfg.WorkerConcurrent,
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init job queue: %w", err)
	}
	jobs, err := nats.NewJobStates(ctx, queue, cfg.NATSJobBucket, cfg.NATSJobStateTTL)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init job state store: %w", err)
	}

	orchestrator, normalizer, err := NewEngine(cfg)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}

	process := usecase.NewProcessDocumentUseCase(
		docs,
		textlayer.NewRecognizer(storage),
		templates,
		orchestrator,
		normalizer,
		observer,
	)
	dispatcher := usecase.NewDispatchUseCase(docs, storage, queue, jobs, process, usecase.DispatchConfig{
		SyncMaxFileBytes: cfg.SyncMaxFileBytes,
		MaxAttempts:      cfg.BackgroundMaxAttempts,
		MinEstimate:      usecase.DefaultDispatchConfig().MinEstimate,
		EstimatePerMiB:   usecase.DefaultDispatchConfig().EstimatePerMiB,
	})

	return &App{
		Config:     cfg,
		Queue:      queue,
		Documents:  docs,
		Templates:  templates,
		Ingest:     usecase.NewIngestDocumentUseCase(docs, storage, dispatcher),
		Process:    process,
		Dispatcher: dispatcher,
		Cleanup:    usecase.NewCleanupUseCase(docs, cfg.ProcessingTimeout),
		Metrics:    extractionMetrics,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// NewEngine builds the extraction pipeline that needs no infrastructure:
// the orchestrator and the reference data normalizer.
func NewEngine(cfg config.Config) (*extraction.Orchestrator, *refdata.Normalizer, error) {
	evalCfg := extraction.DefaultConfig()
	if cfg.KeywordWindowChars > 0 {
		evalCfg.KeywordWindow = cfg.KeywordWindowChars
	}
	if cfg.RegexCacheSize > 0 {
		evalCfg.RegexCacheSize = cfg.RegexCacheSize
	}
	orchestrator := extraction.NewOrchestrator(
		extraction.NewEvaluator(evalCfg),
		extraction.WithConcurrency(cfg.ExtractionConcurrency),
		extraction.WithHighConfidenceThreshold(cfg.HighConfidenceThreshold),
		extraction.WithDefaultConfidence(cfg.DefaultFieldConfidence),
	)

	tables := refdata.DefaultTables()
	if cfg.ReferenceDataPath != "" {
		overrides, err := refdata.LoadWorkbook(cfg.ReferenceDataPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load reference data: %w", err)
		}
		tables = refdata.Merge(tables, overrides...)
		slog.Info("reference_data_loaded", "path", cfg.ReferenceDataPath, "tables", len(overrides))
	}
	return orchestrator, refdata.NewNormalizer(tables, refdata.DefaultBindings()), nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.RetryInitialBackoff = cfg.ResilienceRetryInitial
	out.RetryMaxBackoff = cfg.ResilienceRetryMax
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	out.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	return out
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
