package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/telesis-app/telesis/pkg/api"
	"github.com/telesis-app/telesis/pkg/auth"
	"github.com/telesis-app/telesis/pkg/billing"
	"github.com/telesis-app/telesis/pkg/config"
	"github.com/telesis-app/telesis/pkg/materials"
	"github.com/telesis-app/telesis/pkg/middleware"
	"github.com/telesis-app/telesis/pkg/observability"
	"github.com/telesis-app/telesis/pkg/orgs"
	"github.com/telesis-app/telesis/pkg/security"
	"github.com/telesis-app/telesis/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting telesis")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize tracing")
		os.Exit(1)
	}

	metrics := observability.NewMetrics(nil)

	// Database
	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: time.Hour,
		MaxIdleTime: 10 * time.Minute,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	conns.StartHealthCheckRoutine(ctx, 30*time.Second)

	if err := postgres.EnsureSchema(conns.Primary()); err != nil {
		logger.WithError(err).Error("failed to apply database schema")
		os.Exit(1)
	}

	// Redis (optional)
	var redisClient *postgres.RedisClient
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(postgres.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			logger.WithError(err).Error("failed to connect to redis")
			os.Exit(1)
		}
		logger.Info("redis cache enabled")
	}

	// Blob storage (optional)
	var blobs materials.BlobStore
	if cfg.Storage.S3Endpoint != "" || cfg.Storage.S3AccessKey != "" {
		store, err := materials.NewS3BlobStore(ctx, materials.S3Config{
			Endpoint:     cfg.Storage.S3Endpoint,
			Region:       cfg.Storage.S3Region,
			Bucket:       cfg.Storage.S3Bucket,
			AccessKey:    cfg.Storage.S3AccessKey,
			SecretKey:    cfg.Storage.S3SecretKey,
			UsePathStyle: cfg.Storage.S3UsePathStyle,
		})
		if err != nil {
			logger.WithError(err).Error("failed to initialize blob storage")
			os.Exit(1)
		}
		blobs = store
		logger.WithField("bucket", cfg.Storage.S3Bucket).Info("blob storage enabled")
	}

	// Identity provider
	provider, err := auth.NewClerkProvider(ctx, cfg.Clerk.IssuerURL)
	if err != nil {
		logger.WithError(err).Error("failed to initialize identity provider")
		os.Exit(1)
	}

	// Security event log
	secLog := security.NewLogger(logger,
		security.WithAlertFunc(func(e security.Event) {
			logger.WithFields(map[string]interface{}{
				"event_type": string(e.Type),
				"level":      string(e.Level),
				"user_id":    e.UserID,
				"endpoint":   e.Endpoint,
			}).Error("security alert: " + e.Message)
		}),
		security.WithEventHook(func(e security.Event) {
			metrics.SecurityEventsTotal.WithLabelValues(string(e.Type), string(e.Level)).Inc()
		}),
	)

	// Request gates
	guard := middleware.NewAuthGuard(provider, secLog, func(reason string) {
		metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
	})
	limiter := middleware.NewRateLimiter()
	limiter.StartCleanup(ctx, 5*time.Minute)
	var distributed *middleware.DistributedRateLimiter
	if redisClient != nil {
		distributed = middleware.NewDistributedRateLimiter(redisClient.GetClient(), "ratelimit")
	}
	rateLimit := middleware.NewRateLimitMiddleware(limiter, distributed, secLog, func(resource string) {
		metrics.RateLimitDenialsTotal.WithLabelValues(resource).Inc()
	})
	boundary := middleware.NewOrgBoundary(cfg.Clerk.OrganizationsEnabled, secLog, func() {
		metrics.CrossTenantDenialsTotal.Inc()
	})

	// Services
	orgService := orgs.NewPostgresService(conns, redisClient)
	materialService := materials.NewPostgresService(conns, blobs, redisClient)

	var billingHandlers *billing.Handlers
	if cfg.StripeEnabled() {
		billingService := billing.NewPostgresService(conns, orgService)
		stripeClient := billing.NewStripeClient(cfg.Stripe.SecretKey)
		billingHandlers = billing.NewHandlers(billingService, orgService, stripeClient,
			cfg.Stripe.WebhookSecret, secLog, logger)
		logger.Info("billing enabled")
	}

	var redisConn *redis.Client
	if redisClient != nil {
		redisConn = redisClient.GetClient()
	}
	health := observability.NewHealthChecker(conns.Primary(), redisConn)

	server := api.NewServer(api.Deps{
		Logger:           logger,
		Metrics:          metrics,
		SecLog:           secLog,
		Guard:            guard,
		RateLimit:        rateLimit,
		Boundary:         boundary,
		Health:           health,
		OrgHandlers:      orgs.NewHandlers(orgService, secLog, logger),
		MaterialHandlers: materials.NewHandlers(materialService, boundary, secLog, logger),
		BillingHandlers:  billingHandlers,
		SecurityHandlers: security.NewHandlers(secLog),
		TracingEnabled:   cfg.Observability.OTelEnabled,
	})

	startGaugeRefresher(ctx, conns, metrics, orgService, materialService, logger)
	startEventRetention(ctx, secLog, logger)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux(health, metrics, cfg.Observability.MetricsEnabled),
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("api server failed")
			os.Exit(1)
		}
	}()

	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
		return healthServer.Shutdown(shutdownCtx)
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		return conns.Close()
	})
	if redisClient != nil {
		sm.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	if otelProviders != nil {
		sm.RegisterShutdownFunc(otelProviders.Shutdown)
	}

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
}

// healthMux serves liveness, readiness and metrics on the internal port
func healthMux(health *observability.HealthChecker, metrics *observability.Metrics, metricsEnabled bool) http.Handler {
	m := http.NewServeMux()
	m.HandleFunc("/healthz", health.Liveness)
	m.HandleFunc("/readyz", health.Readiness)
	if metricsEnabled {
		m.Handle("/metrics", metrics.Handler())
	}
	return m
}

// startGaugeRefresher periodically refreshes business and pool gauges
func startGaugeRefresher(ctx context.Context, conns *postgres.ConnectionManager, metrics *observability.Metrics,
	orgService *orgs.PostgresService, materialService *materials.PostgresService, logger *observability.Logger) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				refreshGauges(refreshCtx, conns.Primary(), metrics, orgService, materialService, logger)
				cancel()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// startEventRetention drops security events older than the retention window
func startEventRetention(ctx context.Context, secLog *security.Logger, logger *observability.Logger) {
	const retention = 7 * 24 * time.Hour

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if removed := secLog.ClearOldEvents(retention); removed > 0 {
					logger.WithField("removed", removed).Debug("pruned old security events")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func refreshGauges(ctx context.Context, db *sql.DB, metrics *observability.Metrics,
	orgService *orgs.PostgresService, materialService *materials.PostgresService, logger *observability.Logger) {
	stats := db.Stats()
	metrics.DBConnectionsActive.Set(float64(stats.InUse))
	metrics.DBConnectionsIdle.Set(float64(stats.Idle))

	if n, err := orgService.Count(ctx); err == nil {
		metrics.OrganizationsTotal.Set(float64(n))
	} else {
		logger.WithError(err).Debug("failed to refresh organization gauge")
	}
	if n, err := materialService.Count(ctx); err == nil {
		metrics.MaterialsTotal.Set(float64(n))
	} else {
		logger.WithError(err).Debug("failed to refresh material gauge")
	}
}
