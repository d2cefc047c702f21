package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/yuckyman/url-portal/internal/action"
	"github.com/yuckyman/url-portal/internal/api/handler"
	"github.com/yuckyman/url-portal/internal/api/router"
	"github.com/yuckyman/url-portal/internal/archive"
	"github.com/yuckyman/url-portal/internal/catalog"
	"github.com/yuckyman/url-portal/internal/config"
	"github.com/yuckyman/url-portal/internal/dispatch"
	"github.com/yuckyman/url-portal/internal/events"
	"github.com/yuckyman/url-portal/internal/jobstore"
	"github.com/yuckyman/url-portal/internal/metrics"
	"github.com/yuckyman/url-portal/internal/worker"
	"github.com/yuckyman/url-portal/shared/clock"
	"github.com/yuckyman/url-portal/shared/logger"
	"github.com/yuckyman/url-portal/shared/postgresql"
	"github.com/yuckyman/url-portal/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("PORTAL_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/portal-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting portal service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	if cfg.Portal.WebhookSecret == "" {
		appLogger.Warn("WM_PORTAL_WEBHOOK_SECRET is not set, trigger signatures are NOT verified")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	clk := clock.NewRealClock()
	store := jobstore.NewStore()
	queue := jobstore.NewQueue()
	portalMetrics := metrics.New(reg, queue.Len)

	dispatcher := dispatch.NewDispatcher(store, queue, dispatch.Options{
		Secret:      cfg.Portal.WebhookSecret,
		ReplayTTL:   cfg.Portal.WebhookTTL.Std(),
		DedupWindow: cfg.Portal.DedupWindowDuration(),
		Clock:       clk,
		Logger:      appLogger.Logger,
		Metrics:     portalMetrics,
	})

	observers, closeObservers, err := initObservers(ctx, cfg, appLogger.Logger)
	if err != nil {
		return err
	}
	defer closeObservers()

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:          appLogger.Logger,
		Store:           store,
		Queue:           queue,
		Executor:        initActions(&cfg.Vault, clk, appLogger.Logger),
		Clock:           clk,
		Metrics:         portalMetrics,
		Observers:       observers,
		Concurrency:     cfg.Worker.Concurrency,
		JobTimeout:      cfg.Worker.JobTimeout,
		ObserverTimeout: cfg.Worker.ObserverTimeout,
	})
	if err := workerInstance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	r, err := initRouter(cfg, appLogger.Logger, dispatcher, store, reg)
	if err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	addr := cfg.Server.Address()
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Int("workers", cfg.Worker.Concurrency),
			slog.Duration("dedup_window", cfg.Portal.DedupWindowDuration()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if retention := cfg.Portal.RecordRetention.Std(); retention > 0 {
		g.Go(func() error {
			dispatcher.RunSweeper(gctx, cfg.Portal.SweepInterval.Std(), retention)
			return nil
		})
	}

	serveErr := g.Wait()
	if serveErr != nil {
		appLogger.Error("Server error", slog.Any("error", serveErr))
	}

	stopWorker(workerInstance, cfg.Worker.ShutdownTimeout, appLogger.Logger)

	appLogger.Info("Portal service shutdown complete")
	return serveErr
}

// stopWorker waits for in-flight jobs up to timeout
func stopWorker(w *worker.Worker, timeout time.Duration, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("Worker shutdown timeout exceeded, abandoning in-flight jobs")
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initActions builds the action registry the worker executes against
func initActions(cfg *config.VaultConfig, clk clock.Clock, logger *slog.Logger) *action.Registry {
	vault := action.Vault{
		RepoPath:        cfg.RepoPath,
		TemplatePath:    cfg.TemplatePath,
		JournalDir:      cfg.JournalDir,
		GiteaBaseURL:    cfg.GiteaBaseURL,
		GiteaRepo:       cfg.GiteaRepo,
		Branch:          cfg.Branch,
		WorkingCopyRepo: cfg.WorkingCopyRepo,
	}
	git := &action.Git{
		RepoPath:  cfg.RepoPath,
		UserName:  cfg.GitUserName,
		UserEmail: cfg.GitUserEmail,
		Push:      cfg.GitPush,
		Logger:    logger,
	}

	daily := action.NewDailyNote(vault, git, clk, logger)

	registry := action.NewRegistry(logger)
	registry.Register(action.NameOpenDaily, daily)
	registry.Register(action.NameHydration, action.NewHydration(daily, vault, git, clk, logger))

	logger.Info("Actions registered", slog.Any("actions", registry.Names()))
	return registry
}

// initObservers connects the optional job archive and event publisher. The
// returned func releases their connections.
func initObservers(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]worker.Observer, func(), error) {
	var (
		observers []worker.Observer
		closers   []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Database.Enabled {
		dbClient, err := initPostgreSQL(ctx, &cfg.Database, logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		closers = append(closers, func() { dbClient.Close() })

		storage := archive.NewStorage(dbClient.GetDB(), logger)
		if err := storage.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		observers = append(observers, storage)
		logger.Info("Job archive enabled")
	}

	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		closers = append(closers, func() { rabbitClient.Close() })

		observers = append(observers, events.NewPublisher(rabbitClient, cfg.RabbitMQ.RoutingBase, logger))
		logger.Info("Job events enabled", slog.String("exchange", cfg.RabbitMQ.Exchange.Name))
	}

	return observers, closeAll, nil
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectTimeout:  cfg.ConnectTimeout,
	}

	return postgresql.NewClient(ctx, dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, dispatcher *dispatch.Dispatcher, store *jobstore.Store, reg *prometheus.Registry) (*gin.Engine, error) {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger:     logger,
		Dispatcher: dispatcher,
		Store:      store,
		Catalog:    catalog.NewFileCatalog(cfg.Portal.CatalogPath, logger),
	}

	return router.SetupRouter(handlerDeps, router.Options{
		CORS:     cfg.CORS,
		Gatherer: reg,
	})
}
