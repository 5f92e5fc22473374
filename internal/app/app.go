package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/San-2310/hsbc-hack/internal/config"
	apierrors "github.com/San-2310/hsbc-hack/internal/errors"
	"github.com/San-2310/hsbc-hack/internal/events"
	"github.com/San-2310/hsbc-hack/internal/files"
	"github.com/San-2310/hsbc-hack/internal/infrastructure"
	"github.com/San-2310/hsbc-hack/internal/ingestion"
	customMiddleware "github.com/San-2310/hsbc-hack/internal/middleware"
	"github.com/San-2310/hsbc-hack/internal/operations"
	"github.com/San-2310/hsbc-hack/internal/rulestore"
	_ "github.com/San-2310/hsbc-hack/internal/rulestore/all"
	"github.com/San-2310/hsbc-hack/internal/services"
	handlers "github.com/San-2310/hsbc-hack/internal/transport/http"
	ws "github.com/San-2310/hsbc-hack/internal/websocket"
	"github.com/San-2310/hsbc-hack/pkg/contracts"
	contractevents "github.com/San-2310/hsbc-hack/pkg/contracts/events"
)

// AppName is logged at startup
const AppName = "HSBC data engine"

// jobStopTimeout bounds how long Stop waits for running jobs
const jobStopTimeout = 30 * time.Second

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	WebSocketHub  *ws.Hub
	RuleStore     rulestore.Store
	Publisher     events.Publisher
	Uploads       *files.Store
	JobQueue      *operations.JobQueue
	Broadcaster   *operations.StatusBroadcaster
	Engine        *services.EngineService
	HealthService *services.HealthService

	errorHandler *apierrors.ErrorHandler
	jobCancel    context.CancelFunc
}

// NewApplication loads the configuration and logger, then builds the application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(context.Background(), cfg, logger)
}

// New wires every component from cfg. Nothing listens until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Application starting",
		slog.String("name", AppName),
		slog.String("version", contracts.GetVersionInfo().String()))

	otelProviders, err := infrastructure.InitializeOTel(otelConfig(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.CreateBusinessMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
		errorHandler:  apierrors.NewErrorHandler(logger, cfg.Telemetry.Environment == "development"),
	}

	if err := a.initializeServices(ctx); err != nil {
		a.cleanup(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

// otelConfig maps telemetry settings onto the OpenTelemetry setup
func otelConfig(t config.TelemetryConfig) *infrastructure.OTelConfig {
	oc := infrastructure.DefaultOTelConfig()
	if t.ServiceName != "" {
		oc.ServiceName = t.ServiceName
	}
	if t.Environment != "" {
		oc.Environment = t.Environment
	}
	oc.EnableMetrics = t.EnableMetrics
	if !t.EnableMetrics {
		oc.MetricExporter = "none"
	}
	if t.StdoutTraces {
		oc.TraceExporter = "stdout"
	}
	oc.SampleRatio = t.SampleRatio
	return oc
}

// initializeServices builds the stores, the job queue and the engine
func (a *Application) initializeServices(ctx context.Context) error {
	cfg := a.Config

	hub := ws.NewHub(a.Logger)
	hub.Start()
	a.WebSocketHub = hub
	if a.OTelProviders.Registry != nil {
		if err := a.OTelProviders.Registry.Register(hub.Collector()); err != nil {
			return fmt.Errorf("register websocket metrics: %w", err)
		}
	}

	store, err := rulestore.Open(ctx, rulestore.Config{
		Driver:     cfg.RuleStore.Driver,
		DSN:        cfg.RuleStore.DSN,
		Key:        cfg.RuleStore.Key,
		Passphrase: cfg.RuleStore.Passphrase,
	})
	if err != nil {
		return apierrors.NewConfigError("open rule store", err)
	}
	a.RuleStore = store

	sink, err := events.Open(events.Config{
		Driver:  cfg.Events.Driver,
		Brokers: cfg.Events.Brokers,
		Topic:   cfg.Events.Topic,
	}, a.Logger)
	if err != nil {
		return apierrors.NewConfigError("open event publisher", err)
	}
	a.Publisher = events.NewMulti(sink, events.NewHubPublisher(hub))

	uploads, err := files.NewStore(cfg.Processing.UploadDir, cfg.Processing.MaxFileSize, a.Logger)
	if err != nil {
		return apierrors.NewStorageError("prepare upload directory", err)
	}
	a.Uploads = uploads

	a.Broadcaster = operations.NewStatusBroadcaster(hub, a.Logger)
	a.Broadcaster.OnTerminal(a.jobFinished)
	a.JobQueue = operations.NewJobQueue(operations.QueueConfig{
		Workers:   cfg.Jobs.Workers,
		QueueSize: cfg.Jobs.QueueSize,
		Retention: cfg.Jobs.Retention,
	}, operations.NewMemoryJobStore(), a.Broadcaster, a.Logger)

	adapter, err := a.newAdapter(ctx)
	if err != nil {
		return err
	}

	datasets := services.NewMemoryDatasetStore(cfg.Processing.MaxDatasets)
	a.Engine = services.NewEngineService(services.EngineConfig{
		MaxRowsPreview:   cfg.Processing.MaxRowsPreview,
		NormalizeUploads: true,
	}, services.EngineDeps{
		Adapter:   adapter,
		Datasets:  datasets,
		RuleStore: store,
		Publisher: a.Publisher,
		Jobs:      a.JobQueue,
		Uploads:   uploads,
		Metrics:   a.Metrics,
	}, a.Logger)
	if err := a.Engine.Start(ctx); err != nil {
		return err
	}

	a.HealthService = services.NewHealthService(uploads.Dir(), store, hub, a.JobQueue, datasets, a.Logger)
	return nil
}

// newAdapter builds the ingestion adapter. Google Sheets is enabled when
// credentials or an API key are configured.
func (a *Application) newAdapter(ctx context.Context) (*ingestion.Adapter, error) {
	ic := a.Config.Ingestion
	var opts []ingestion.Option
	if ic.SheetsCredentialsFile != "" || ic.SheetsAPIKey != "" {
		sheets, err := ingestion.NewGoogleSheets(ctx, ic.SheetsCredentialsFile, ic.SheetsAPIKey)
		if err != nil {
			return nil, apierrors.NewConfigError("configure google sheets", err)
		}
		opts = append(opts, ingestion.WithSheetsReader(sheets))
	}
	return ingestion.NewAdapter(ingestion.Config{
		MaxFileSize: a.Config.Processing.MaxFileSize,
		HTTPTimeout: ic.HTTPTimeout,
		RateLimit:   ic.RateLimit,
		RateBurst:   ic.RateBurst,
	}, a.Logger, opts...), nil
}

// jobFinished publishes the terminal state of a job and records its metrics
func (a *Application) jobFinished(job operations.Job) {
	ctx := context.Background()
	var duration time.Duration
	if job.StartedAt != nil && job.CompletedAt != nil {
		duration = job.CompletedAt.Sub(*job.StartedAt)
	}
	a.Metrics.RecordJob(ctx, job.Kind, string(job.Status), duration)

	data := map[string]any{
		"kind":   job.Kind,
		"status": string(job.Status),
	}
	if job.Error != "" {
		data["error"] = job.Error
	}
	if id, ok := job.Result["dataset_id"].(string); ok {
		data["dataset_id"] = id
	}
	if traceID, ok := job.Metadata["trace_id"].(string); ok && traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, traceID)
	}
	err := a.Publisher.Publish(ctx, contractevents.Event{
		Name:      contractevents.JobCompleted,
		JobID:     job.ID,
		DatasetID: job.DatasetID,
		Data:      data,
	})
	if err != nil {
		a.Logger.WarnContext(ctx, "event publish failed",
			slog.String("event", string(contractevents.JobCompleted)),
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Safe for websocket upgrades: none of these wrap the ResponseWriter
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StripSlashes)

	r.HandleFunc("/ws", ws.ServeWS(a.WebSocketHub, ws.Upgrader(a.Config.Security.AllowedOrigins)))
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	r.Group(func(r chi.Router) {
		// OTel → security → CORS → rate limit → logging
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics, a.Logger).Handler)
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(a.corsConfig()))
		if a.Config.Security.RateLimit > 0 {
			r.Use(customMiddleware.NewRateLimiter(a.Config.Security.RateLimit, a.Config.Security.RateBurst, a.Logger).Handler)
		}

		healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.StructuredLogger(a.Logger))
			r.Use(customMiddleware.Recoverer(a.Logger))
			r.Get("/healthz", healthHandler.HealthCheck)
			r.Get("/readyz", healthHandler.ReadinessCheck)
		})

		// API requests also log the redacted body of failed requests
		r.Group(func(r chi.Router) {
			r.Use(apierrors.NewErrorMiddleware(a.errorHandler, a.Logger).Handler)
			a.setupAPIRoutes(r, healthHandler)
		})
	})

	a.Router = r
}

// setupAPIRoutes mounts the versioned API
func (a *Application) setupAPIRoutes(r chi.Router, health *handlers.HealthHandler) {
	// Multipart uploads get the file limit plus room for the form envelope
	uploadLimit := a.Config.Processing.MaxFileSize + 1<<20

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/version", health.Version)
		r.Get("/stats", health.Stats)

		datasetHandler := handlers.NewDatasetHandler(a.Engine, handlers.DatasetConfig{
			MaxUploadSize:  32 << 20,
			MaxPreviewRows: a.Config.Processing.MaxRowsPreview,
		}, a.Logger, a.errorHandler)
		r.With(customMiddleware.MaxBodySize(uploadLimit)).Mount("/datasets", datasetHandler.Routes())

		r.Group(func(r chi.Router) {
			const jsonLimit = 10 << 20
			requests := customMiddleware.NewValidationMiddleware(a.Logger, a.errorHandler, jsonLimit)
			r.Use(customMiddleware.MaxBodySize(jsonLimit))
			r.Use(requests.RequireContentType("application/json"))
			r.Use(requests.ValidateRequest)
			r.Mount("/rules", handlers.NewRuleHandler(a.Engine, a.Logger, a.errorHandler).Routes())
			r.Mount("/jobs", handlers.NewJobHandler(a.Engine, a.Logger, a.errorHandler).Routes())
		})
	})
}

// corsConfig builds the CORS policy from the security settings
func (a *Application) corsConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		Logger:         a.Logger,
	}
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Server.Address(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start runs the job workers and the HTTP server. Listen errors cancel
// through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	jobCtx, jobCancel := context.WithCancel(context.Background())
	a.jobCancel = jobCancel
	a.JobQueue.Start(jobCtx)

	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		jobCancel()
		return fmt.Errorf("listen on %s: %w", a.Server.Addr, err)
	}
	a.Server.Addr = ln.Addr().String()

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", a.Server.Addr),
		slog.String("rule_store", a.Config.RuleStore.Driver),
		slog.String("events", a.Config.Events.Driver),
		slog.Int("job_workers", a.Config.Jobs.Workers))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if a.JobQueue != nil {
		if err := a.JobQueue.Stop(jobStopTimeout); err != nil {
			a.Logger.ErrorContext(ctx, "Failed to stop job queue gracefully", slog.String("error", err.Error()))
		}
	}
	if a.jobCancel != nil {
		a.jobCancel()
	}
	a.cleanup(shutdownCtx)

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

// cleanup releases everything built by New, in reverse order
func (a *Application) cleanup(ctx context.Context) {
	if a.Broadcaster != nil {
		a.Broadcaster.Stop()
	}
	if a.WebSocketHub != nil {
		a.WebSocketHub.Stop()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "Error closing event publisher", slog.String("error", err.Error()))
		}
	}
	if a.RuleStore != nil {
		if err := a.RuleStore.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "Error closing rule store", slog.String("error", err.Error()))
		}
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
	}

	err := a.Stop(context.Background())
	if cerr := infrastructure.CloseLogFile(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
