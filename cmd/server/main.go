package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	syncapp "github.com/ledgerlink/backend/internal/application/sync"
	"github.com/ledgerlink/backend/internal/domain/sync"
	"github.com/ledgerlink/backend/internal/infrastructure/cache"
	"github.com/ledgerlink/backend/internal/infrastructure/config"
	"github.com/ledgerlink/backend/internal/infrastructure/convert"
	"github.com/ledgerlink/backend/internal/infrastructure/event"
	"github.com/ledgerlink/backend/internal/infrastructure/logger"
	"github.com/ledgerlink/backend/internal/infrastructure/persistence"
	"github.com/ledgerlink/backend/internal/infrastructure/remote"
	"github.com/ledgerlink/backend/internal/infrastructure/syncengine"
	"github.com/ledgerlink/backend/internal/infrastructure/telemetry"
	"github.com/ledgerlink/backend/internal/interfaces/http/handler"
	"github.com/ledgerlink/backend/internal/interfaces/http/middleware"
	"github.com/ledgerlink/backend/internal/interfaces/http/router"
)

//	@title			LedgerLink Backend API
//	@version		1.0
//	@description	Bidirectional CRM-to-accounting sync engine

//	@contact.name	API Support
//	@contact.url	https://github.com/ledgerlink/backend

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting LedgerLink Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Ship logs to the OTLP collector alongside traces and metrics when enabled
	logsProvider, err := telemetry.NewLoggerProvider(context.Background(), telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logs provider", zap.Error(err))
	}
	defer func() {
		if err := logsProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down logs provider", zap.Error(err))
		}
	}()
	if logsProvider.IsEnabled() {
		level, parseErr := zapcore.ParseLevel(cfg.Log.Level)
		if parseErr != nil {
			level = zapcore.InfoLevel
		}
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: logsProvider,
			Level:          level,
		})
		log = telemetry.NewBridgedLogger(log.Core(), otelCore,
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
	}

	// Continuous profiling pushes to the Pyroscope server when configured
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:             cfg.Telemetry.ProfilingEnabled,
		ServerAddress:       cfg.Telemetry.ProfilingServerAddress,
		ApplicationName:     cfg.App.Name,
		ProfileCPU:          true,
		ProfileAllocObjects: true,
		ProfileAllocSpace:   true,
		ProfileInuseObjects: true,
		ProfileInuseSpace:   true,
		ProfileGoroutines:   true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()

	// Initialize OpenTelemetry tracing and metrics
	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Register database tracing callbacks
	if cfg.Telemetry.Enabled {
		dbTracing := telemetry.NewDBTracingPlugin(telemetry.DefaultDBTracingConfig(), log)
		if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}

	// Query and connection pool metrics; RegisterDBMetrics is a no-op when the
	// meter provider is disabled
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(context.Background())
		defer dbMetrics.Stop()
	}

	// Initialize repositories
	mappingRepo := persistence.NewGormSyncMappingRepository(db.DB)
	jobRepo := persistence.NewGormSyncJobRepository(db.DB)
	batchRepo := persistence.NewGormSyncBatchRepository(db.DB)
	transitionRepo := persistence.NewGormSyncTransitionRepository(db.DB)
	localStore := persistence.NewGormLocalRecordStore(db.DB)

	// Initialize event serializer and register all event types
	eventSerializer := event.NewEventSerializer()
	event.RegisterAllEvents(eventSerializer)

	// Initialize event bus
	eventBus := event.NewInMemoryEventBus(log)

	// Sync outcome metrics are fed by status change events off the hot path
	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider.Meter("sync"), log)
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}
	eventBus.Subscribe(syncMetrics, syncMetrics.EventTypes()...)
	log.Info("Event handlers registered",
		zap.Strings("sync_metrics_events", syncMetrics.EventTypes()),
	)

	// Start event bus
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Status tracker records transitions and publishes change events
	tracker := syncengine.NewTracker(transitionRepo, eventBus, log)

	// Accounting API client
	remoteClient := remote.NewClient(remote.ClientConfig{
		BaseURL:  cfg.Remote.BaseURL,
		Timeout:  cfg.Remote.Timeout,
		PageSize: cfg.Remote.PageSize,
	}, credentialProvider(cfg, log), log)

	// Record conversion and job execution
	converter := convert.NewRecordConverter()
	executor := syncapp.NewExecutor(converter, mappingRepo, localStore, remoteClient, log)

	// In-flight registry: Redis when enabled so multiple instances share
	// duplicate suppression, otherwise in-process
	var inflight sync.InFlightRegistry
	if cfg.Redis.Enabled {
		redisRegistry, err := cache.NewRedisInFlightRegistry(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		inflight = redisRegistry
		log.Info("Using Redis in-flight registry",
			zap.String("host", cfg.Redis.Host),
			zap.Int("port", cfg.Redis.Port),
		)
	} else {
		inflight = cache.NewInMemoryInFlightRegistry()
		log.Info("Using in-memory in-flight registry")
	}

	// Batch processor
	processor, err := syncengine.NewProcessor(syncengine.ProcessorConfig{
		ChunkSize:        cfg.Sync.ChunkSize,
		WorkersPerTenant: cfg.Sync.WorkersPerTenant,
		JobTimeout:       cfg.Sync.JobTimeout,
		RateLimitPause:   cfg.Sync.RateLimitPause,
		Backoff: syncengine.BackoffPolicy{
			BaseDelay:      cfg.Sync.RetryBaseDelay,
			MaxDelay:       cfg.Sync.RetryMaxDelay,
			MaxAttempts:    cfg.Sync.MaxAttempts,
			JitterFraction: 0.2,
		},
	}, executor, tracker, jobRepo, batchRepo, inflight, log)
	if err != nil {
		log.Fatal("Failed to create batch processor", zap.Error(err))
	}

	// Sync orchestrator
	orchestrator := syncapp.NewOrchestrator(syncapp.OrchestratorConfig{
		InFlightTTL:   cfg.Sync.InFlightTTL,
		BatchPageSize: cfg.Sync.BatchPageSize,
	}, jobRepo, batchRepo, mappingRepo, tracker, processor, inflight, localStore, remoteClient, log)

	// Initialize HTTP handlers
	syncHandler := handler.NewSyncHandler(orchestrator)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Tracing/Metrics - OpenTelemetry instrumentation
	// 5. Security - Add security headers
	// 6. CORS - Handle cross-origin requests
	// 7. BodyLimit - Limit request body size
	// 8. RateLimit - Apply rate limiting (if enabled)
	// 9. Tenant - Resolve tenant context for API routes
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.Tracing())
		engine.Use(middleware.HTTPMetricsWithMeter(meterProvider.Meter("http"), true))
	}
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Tenant resolution for all sync routes; system and health endpoints stay open
	tenantConfig := middleware.DefaultTenantConfig()
	tenantConfig.SkipPaths = append(tenantConfig.SkipPaths,
		"/api/v1/ping",
		"/api/v1/system",
	)
	tenantConfig.Logger = log
	engine.Use(middleware.TenantMiddlewareWithConfig(tenantConfig))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Sync domain routes; bulk operations require the elevated capability flag
	// set by the auth layer in front of this service
	requireBulk := middleware.RequireCapability(middleware.CapabilityBulk)
	syncRoutes := router.NewDomainGroup("sync", "/sync")
	syncRoutes.POST("", syncHandler.SyncRecord)
	syncRoutes.POST("/batch", requireBulk, syncHandler.SyncBatch)
	syncRoutes.GET("/:id/status", syncHandler.GetStatus)
	syncRoutes.POST("/batches/:id/cancel", syncHandler.CancelBatch)
	syncRoutes.POST("/batches/:id/retry", requireBulk, syncHandler.RetryFailed)
	syncRoutes.GET("/mappings", syncHandler.ListMappings)
	syncRoutes.DELETE("/mappings/:entity_type/:local_id", syncHandler.Unlink)

	// System routes
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	r.Register(syncRoutes).
		Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// credentialProvider builds the per-tenant accounting API key provider from
// configuration. Malformed tenant IDs are skipped with a warning rather than
// aborting startup.
func credentialProvider(cfg *config.Config, log *zap.Logger) *remote.StaticCredentialProvider {
	keys := make(map[uuid.UUID]string, len(cfg.Remote.APIKeys))
	for tenant, key := range cfg.Remote.APIKeys {
		tenantID, err := uuid.Parse(tenant)
		if err != nil {
			log.Warn("Skipping remote API key with invalid tenant ID",
				zap.String("tenant_id", tenant),
			)
			continue
		}
		keys[tenantID] = key
	}
	return &remote.StaticCredentialProvider{
		Keys:       keys,
		DefaultKey: cfg.Remote.APIKey,
	}
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
