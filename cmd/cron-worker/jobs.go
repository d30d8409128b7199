package main

import (
	"fmt"

	"github.com/angelmondragon/convertflow/internal/conversions"
	"github.com/angelmondragon/convertflow/internal/cron"
	"github.com/angelmondragon/convertflow/internal/files"
	"github.com/angelmondragon/convertflow/internal/notifications"
	"github.com/angelmondragon/convertflow/internal/probe"
	"github.com/angelmondragon/convertflow/internal/processes"
	"github.com/angelmondragon/convertflow/internal/reconciler"
	"github.com/angelmondragon/convertflow/internal/submission"
	"github.com/angelmondragon/convertflow/pkg/config"
	"github.com/angelmondragon/convertflow/pkg/db"
	"github.com/angelmondragon/convertflow/pkg/logger"
	"github.com/angelmondragon/convertflow/pkg/metrics"
	"github.com/angelmondragon/convertflow/pkg/pubsub"
	"github.com/angelmondragon/convertflow/pkg/storage/gcs"
)

type jobDeps struct {
	cfg     *config.Config
	logg    *logger.Logger
	db      *db.Client
	storage *gcs.Client
	queue   *pubsub.Queue
	audit   conversions.AuditSink
	metrics *metrics.ConversionMetrics
}

// buildJobs wires every component and returns the cron jobs in run order.
func buildJobs(deps jobDeps) ([]cron.Job, error) {
	cfg := deps.cfg
	conn := deps.db.DB()
	registry := processes.Default()

	fileRepo := files.NewRepository(conn)
	store, err := files.NewStore(files.StoreParams{
		Repo:   fileRepo,
		Root:   cfg.Files.Root,
		Logger: deps.logg,
	})
	if err != nil {
		return nil, fmt.Errorf("files store: %w", err)
	}

	records := conversions.NewRepository(conn, registry)
	messages := notifications.NewRepository(conn)

	prober, err := probe.NewProber(probe.ProberParams{
		Logger:    deps.logg,
		Repo:      fileRepo,
		Files:     store,
		Inspector: probe.FFProbe{Binary: cfg.Files.FFProbePath},
		BatchSize: cfg.Conversion.MaxRecordsPerRun,
	})
	if err != nil {
		return nil, fmt.Errorf("prober: %w", err)
	}

	ingestor, err := notifications.NewIngestor(notifications.IngestorParams{
		Logger:      deps.logg,
		DB:          deps.db,
		Repo:        messages,
		Queue:       deps.queue,
		Metrics:     deps.metrics,
		SiteID:      cfg.Conversion.SiteID,
		MaxMessages: cfg.Conversion.IngestMaxMessages,
		Wait:        cfg.Conversion.QueueWait,
	})
	if err != nil {
		return nil, fmt.Errorf("ingestor: %w", err)
	}

	engine, err := submission.NewEngine(submission.Params{
		Logger:           deps.logg,
		Registry:         registry,
		Records:          records,
		Candidates:       fileRepo,
		Files:            store,
		Storage:          deps.storage,
		InputBucket:      cfg.Storage.InputBucket,
		SiteID:           cfg.Conversion.SiteID,
		EnabledProcesses: cfg.Conversion.EnabledProcesses,
		Presets:          cfg.Conversion.Presets,
		CreateCutoff:     cfg.Conversion.CreateCutoff,
		Limit:            cfg.Conversion.MaxRecordsPerRun,
		Metrics:          deps.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("submission engine: %w", err)
	}

	importer, err := conversions.NewResultImporter(conversions.ImporterParams{
		Logger:       deps.logg,
		Storage:      deps.storage,
		Bucket:       cfg.Storage.OutputBucket,
		Files:        store,
		ServeBaseURL: cfg.Files.ServeBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("result importer: %w", err)
	}

	cleaner, err := conversions.NewStorageCleaner(deps.logg, deps.storage, cfg.Storage.InputBucket, cfg.Storage.OutputBucket)
	if err != nil {
		return nil, fmt.Errorf("storage cleaner: %w", err)
	}

	machine, err := conversions.NewMachine(conversions.MachineParams{
		Logger:   deps.logg,
		Registry: registry,
		Records:  records,
		Messages: messages,
		Importer: importer,
		Cleaner:  cleaner,
		Audit:    deps.audit,
		Metrics:  deps.metrics,

		ImportRetryWindow: deps.cfg.Conversion.ImportRetryWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("state machine: %w", err)
	}

	stale, err := reconciler.New(reconciler.Params{
		Logger:       deps.logg,
		Records:      records,
		Machine:      machine,
		Storage:      deps.storage,
		OutputBucket: cfg.Storage.OutputBucket,
		StaleAfter:   cfg.Conversion.StaleAfter,
		Limit:        cfg.Conversion.MaxRecordsPerRun,
		Metrics:      deps.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("reconciler: %w", err)
	}

	probeJob, err := cron.NewProbeJob(deps.logg, prober)
	if err != nil {
		return nil, err
	}
	ingestJob, err := cron.NewIngestJob(deps.logg, ingestor)
	if err != nil {
		return nil, err
	}
	createJob, err := cron.NewCreateConversionsJob(deps.logg, engine)
	if err != nil {
		return nil, err
	}
	submitJob, err := cron.NewSubmitPendingJob(deps.logg, engine)
	if err != nil {
		return nil, err
	}
	advanceJob, err := cron.NewAdvanceJob(cron.AdvanceJobParams{
		Logger:  deps.logg,
		Records: records,
		Machine: machine,
		Limit:   cfg.Conversion.MaxRecordsPerRun,
		Workers: cfg.Conversion.Workers,
	})
	if err != nil {
		return nil, err
	}
	reconcileJob, err := cron.NewReconcileJob(deps.logg, stale)
	if err != nil {
		return nil, err
	}

	return []cron.Job{probeJob, ingestJob, createJob, submitJob, advanceJob, reconcileJob}, nil
}
