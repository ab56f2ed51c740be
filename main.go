package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/config"
	"github.com/RobNhz/zaptec-invoice-app/database"
	"github.com/RobNhz/zaptec-invoice-app/handlers"
	"github.com/RobNhz/zaptec-invoice-app/logging"
	"github.com/RobNhz/zaptec-invoice-app/middleware"
	"github.com/RobNhz/zaptec-invoice-app/services"
	"github.com/RobNhz/zaptec-invoice-app/services/ocpp"
	"github.com/RobNhz/zaptec-invoice-app/services/storage"
	"github.com/RobNhz/zaptec-invoice-app/services/zaptec"
)

const (
	vendorTimeout = 30 * time.Second
	runLockTTL    = 30 * time.Minute
)

func recoverMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						zap.Any("panic", err),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()))

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"Internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting zaptec invoice service", zap.String("address", cfg.ServerAddress))

	if err := database.RunMigrations(cfg.DatabasePath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	db, err := database.InitDB(cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	store := database.NewStore(db)

	renderer, err := newRenderer(cfg, logger)
	if err != nil {
		return err
	}
	documents, err := newDocumentStore(ctx, cfg)
	if err != nil {
		return err
	}
	lock, err := newRunLock(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var events services.EventPublisher = services.NoopPublisher{}
	if cfg.MQTT.Broker != "" {
		publisher, err := services.NewMQTTPublisher(cfg.MQTT, logger)
		if err != nil {
			logger.Warn("mqtt unavailable, events disabled", zap.Error(err))
		} else {
			defer publisher.Close()
			events = publisher
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := services.NewMetrics(registry)

	httpClient := &http.Client{Timeout: vendorTimeout}
	api := zaptec.NewAPIClient(httpClient, cfg.ZaptecBaseURL)

	syncDeps := services.SyncDeps{
		Store:   store,
		API:     api,
		Tokens:  zaptec.NewTokenCache(api, cfg.ZaptecUsername, cfg.ZaptecPassword, logger),
		Events:  events,
		Metrics: metrics,
		Logger:  logger.Named("sync"),
	}
	if cfg.OCPPAPIURL != "" {
		syncDeps.OCPP = ocpp.NewClient(httpClient, cfg.OCPPAPIURL, cfg.OCPPAPIToken)
	}
	syncService := services.NewSyncService(cfg, syncDeps)

	billingService := services.NewBillingService(cfg, services.BillingDeps{
		Store:     store,
		Renderer:  renderer,
		Documents: documents,
		Events:    events,
		Metrics:   metrics,
		Logger:    logger.Named("billing"),
	})

	var scheduler *services.AutoBillingScheduler
	if cfg.AutoBillingDay > 0 {
		scheduler = services.NewAutoBillingScheduler(store, syncService, billingService, lock, cfg.AutoBillingDay, cfg.Location(), logger.Named("scheduler"))
		go scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	authHandler := handlers.NewAuthHandler(api, cfg.JWTSecret, logger)
	syncHandler := handlers.NewSyncHandler(syncService, lock, logger)
	billingHandler := handlers.NewBillingHandler(store, billingService, documents, lock, logger)
	ownerHandler := handlers.NewOwnerHandler(store, logger)
	consumptionHandler := handlers.NewConsumptionHandler(store, logger)
	autoBillingHandler := handlers.NewAutoBillingHandler(scheduler, logger)
	healthHandler := handlers.NewHealthHandler(store)

	r := mux.NewRouter()
	r.Use(recoverMiddleware(logger))
	r.Use(loggingMiddleware(logger))

	// Public routes
	r.HandleFunc("/api/health", healthHandler.Health).Methods("GET")
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")

	// Session-aware routes
	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWTSecret, cfg.AuthRequired))

	protected.HandleFunc("/sync", syncHandler.Sync).Methods("POST")
	protected.HandleFunc("/refresh", syncHandler.Refresh).Methods("GET")

	protected.HandleFunc("/invoices/generate", billingHandler.GenerateInvoices).Methods("POST")
	protected.HandleFunc("/invoices", billingHandler.ListInvoices).Methods("GET")
	protected.HandleFunc("/invoices/{id}", billingHandler.GetInvoice).Methods("GET")
	protected.HandleFunc("/invoices/{id}/document", billingHandler.DownloadDocument).Methods("GET")

	protected.HandleFunc("/owners", ownerHandler.List).Methods("GET")
	protected.HandleFunc("/owners/{id}", ownerHandler.Update).Methods("PUT")

	protected.HandleFunc("/export/consumption", consumptionHandler.ExportConsumption).Methods("GET")
	protected.HandleFunc("/import/consumption", consumptionHandler.ImportConsumption).Methods("POST")

	protected.HandleFunc("/auto-billing", autoBillingHandler.GetStatus).Methods("GET")
	protected.HandleFunc("/auto-billing/run", autoBillingHandler.RunNow).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      c.Handler(r),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  180 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("address", cfg.ServerAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newRenderer(cfg *config.Config, logger *zap.Logger) (services.Renderer, error) {
	if cfg.Renderer == config.RendererHTML {
		renderer, err := services.NewHTMLRenderer(cfg.ChromePath, logger.Named("renderer"))
		if err != nil {
			return nil, fmt.Errorf("failed to create html renderer: %w", err)
		}
		return renderer, nil
	}
	return services.NewPDFGenerator(logger.Named("renderer")), nil
}

func newDocumentStore(ctx context.Context, cfg *config.Config) (storage.DocumentStore, error) {
	if cfg.Storage != config.StorageS3 {
		return storage.NewLocalStore(cfg.InvoiceDir)
	}

	s3, err := storage.NewS3Store(storage.S3Options{
		Endpoint:  cfg.S3.Endpoint,
		Bucket:    cfg.S3.Bucket,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Region:    cfg.S3.Region,
		UseSSL:    cfg.S3.UseSSL,
		URLTTL:    cfg.SignedURLTTL,
	})
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx, cfg.S3.Region); err != nil {
		return nil, err
	}
	return s3, nil
}

func newRunLock(ctx context.Context, cfg *config.Config, logger *zap.Logger) (services.RunLock, error) {
	if cfg.RedisURL == "" {
		return services.NewLocalRunLock(), nil
	}
	client, err := services.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return services.NewRedisRunLock(client, runLockTTL, logger.Named("runlock")), nil
}
