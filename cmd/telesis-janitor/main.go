package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/telesis-app/telesis/pkg/billing"
	"github.com/telesis-app/telesis/pkg/observability"
	"github.com/telesis-app/telesis/pkg/orgs"
	"github.com/telesis-app/telesis/pkg/storage/postgres"
)

var (
	dbURL           = flag.String("db-url", getEnv("DATABASE_URL", ""), "PostgreSQL connection URL")
	redisURL        = flag.String("redis-url", getEnv("TELESIS_REDIS_URL", ""), "Redis URL (optional)")
	billingSchedule = flag.String("billing-schedule", "0 1 * * *", "Cron schedule for billing rollover (default: 01:00 UTC)")
	sweepSchedule   = flag.String("sweep-schedule", "*/30 * * * *", "Cron schedule for rate bucket sweep (default: every 30 minutes)")
	runOnce         = flag.Bool("run-once", false, "Run all jobs once and exit")
	logLevel        = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	logger := observability.NewLogger(parseLevel(*logLevel), os.Stdout)

	if *dbURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  *dbURL,
		MaxConns:    5,
		MinConns:    1,
		Timeout:     5 * time.Second,
		MaxLifetime: time.Hour,
		MaxIdleTime: 10 * time.Minute,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer conns.Close()

	var redisClient *postgres.RedisClient
	if *redisURL != "" {
		redisClient, err = postgres.NewRedisClient(postgres.RedisConfig{URL: *redisURL, DB: -1})
		if err != nil {
			logger.WithError(err).Error("failed to connect to redis")
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	orgService := orgs.NewPostgresService(conns, redisClient)
	billingService := billing.NewPostgresService(conns, orgService)

	if *runOnce {
		g, ctx := errgroup.WithContext(context.Background())
		g.Go(func() error { return rolloverBilling(ctx, billingService, logger) })
		if redisClient != nil {
			g.Go(func() error { return sweepRateBuckets(ctx, redisClient.GetClient(), logger) })
		}
		if err := g.Wait(); err != nil {
			logger.WithError(err).Error("janitor run failed")
			os.Exit(1)
		}
		logger.Info("janitor run complete")
		return
	}

	c := cron.New()

	_, err = c.AddFunc(*billingSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := rolloverBilling(ctx, billingService, logger); err != nil {
			logger.WithError(err).Error("billing rollover failed")
		}
	})
	if err != nil {
		logger.WithError(err).Error("failed to schedule billing rollover")
		os.Exit(1)
	}

	if redisClient != nil {
		_, err = c.AddFunc(*sweepSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := sweepRateBuckets(ctx, redisClient.GetClient(), logger); err != nil {
				logger.WithError(err).Error("rate bucket sweep failed")
			}
		})
		if err != nil {
			logger.WithError(err).Error("failed to schedule rate bucket sweep")
			os.Exit(1)
		}
	}

	c.Start()
	logger.Info("telesis janitor started")
	logger.WithField("schedule", *billingSchedule).Info("billing rollover scheduled")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	<-c.Stop().Done()
}

// rolloverBilling marks subscriptions whose paid period has lapsed
func rolloverBilling(ctx context.Context, svc *billing.PostgresService, logger *observability.Logger) error {
	expired, err := svc.ExpireLapsed(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if expired > 0 {
		logger.WithField("expired", expired).Info("expired lapsed subscriptions")
	}
	return nil
}

// sweepRateBuckets deletes rate limit counters left without a TTL. A counter
// loses its TTL when the INCR succeeds but the EXPIRE in the pipeline fails.
func sweepRateBuckets(ctx context.Context, client *redis.Client, logger *observability.Logger) error {
	var removed int

	iter := client.Scan(ctx, 0, "ratelimit:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := client.TTL(ctx, key).Result()
		if err != nil {
			return err
		}
		if ttl == -1 {
			if err := client.Del(ctx, key).Err(); err != nil {
				return err
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if removed > 0 {
		logger.WithField("removed", removed).Info("swept orphaned rate buckets")
	}
	return nil
}

func parseLevel(level string) observability.LogLevel {
	switch level {
	case "debug":
		return observability.DebugLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
