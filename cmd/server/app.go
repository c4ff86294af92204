package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/artivo/restyle-api/internal/config"
	"github.com/artivo/restyle-api/internal/events"
	"github.com/artivo/restyle-api/internal/pipeline"
	"github.com/artivo/restyle-api/internal/platform/blob"
	"github.com/artivo/restyle-api/internal/platform/gemini"
	"github.com/artivo/restyle-api/internal/platform/memory"
	"github.com/artivo/restyle-api/internal/platform/postgres"
	"github.com/artivo/restyle-api/internal/platform/styles"
	"github.com/artivo/restyle-api/internal/queue"
	"github.com/artivo/restyle-api/internal/store"
	"github.com/artivo/restyle-api/internal/worker"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger
	db     *sql.DB

	// Stores (using interfaces for proper abstraction)
	transformationStore store.TransformationStore
	subscriberStore     store.WebhookSubscriberStore
	usageRecorder       pipeline.UsageRecorder

	// Pipeline collaborators
	blobStore    pipeline.BlobStore
	styleCatalog *styles.Catalog
	transformer  pipeline.Transformer

	// Pipeline machinery
	jobs         *queue.JobQueue
	bus          *events.Bus
	dispatcher   *events.Dispatcher
	orchestrator *pipeline.Orchestrator
	pool         *worker.Pool
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger, and
// database connection that must be established before application
// initialization. A nil db selects the in-memory stores.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Initialize stores
	if db != nil {
		app.transformationStore = postgres.NewPostgresTransformationStore(db, logger)
		app.subscriberStore = postgres.NewPostgresWebhookSubscriberStore(db, logger)
		app.usageRecorder = postgres.NewPostgresUsageRecorder(db, logger)
		logger.Info("Using PostgreSQL stores")
	} else {
		app.transformationStore = memory.NewTransformationStore()
		app.subscriberStore = memory.NewWebhookSubscriberStore()
		app.usageRecorder = memory.NewUsageRecorder()
		logger.Info("Using in-memory stores")
	}

	// Initialize the blob store holding source and result images
	var err error
	app.blobStore, err = blob.NewFSStore(cfg.Storage.BlobDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	app.styleCatalog = styles.NewCatalog()

	// Create the transform model client
	app.transformer, err = gemini.NewTransformer(
		ctx,
		logger.With("component", "transformer"),
		cfg.Transform,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize transformer: %w", err)
	}
	logger.Info("Transform model client initialized", "model", cfg.Transform.ModelName)

	// Initialize the job queue
	app.jobs = queue.New(queue.Config{
		Size:          cfg.Pipeline.QueueSize,
		MaxAttempts:   cfg.Pipeline.MaxAttempts,
		RetryBackoff:  time.Duration(cfg.Pipeline.RetryBackoffSeconds) * time.Second,
		DequeueRate:   cfg.Pipeline.DequeueRate,
		DequeueWindow: time.Duration(cfg.Pipeline.DequeueWindowSeconds) * time.Second,
	}, logger)

	// Initialize the event bus and the webhook dispatcher reading from it
	app.bus = events.NewBus(events.BusConfig{
		DeliveryQueueSize: cfg.Webhook.QueueSize,
		SubscriberBuffer:  cfg.Events.SubscriberBuffer,
	}, logger)

	app.dispatcher = events.NewDispatcher(app.bus, app.subscriberStore, events.DispatcherConfig{
		RequestTimeout: time.Duration(cfg.Webhook.RequestTimeoutSeconds) * time.Second,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		RetryBackoff:   time.Duration(cfg.Webhook.RetryBackoffSeconds) * time.Second,
	}, logger)

	// Wire the pipeline orchestrator
	app.orchestrator = pipeline.NewOrchestrator(
		app.transformationStore,
		app.jobs,
		app.bus,
		app.blobStore,
		app.transformer,
		app.styleCatalog,
		app.usageRecorder,
		time.Duration(cfg.Pipeline.TransformTimeoutSeconds)*time.Second,
		logger,
	)

	// Start background processing
	app.pool = worker.New(app.jobs, app.orchestrator, cfg.Pipeline.WorkerCount, logger)
	app.pool.Start(ctx)
	app.dispatcher.Start(ctx)

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources. The job
// queue closes first so the workers drain and exit, then the bus so the
// dispatcher finishes delivering what is already queued.
func (app *application) cleanup() {
	if app.jobs != nil {
		app.jobs.Close()
	}
	if app.pool != nil {
		app.pool.Stop()
	}
	if app.bus != nil {
		app.bus.Close()
	}
	if app.dispatcher != nil {
		app.dispatcher.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
