package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rivio/ranking-server/internal/config"
	"github.com/rivio/ranking-server/internal/pkg/distlock"
	"github.com/rivio/ranking-server/internal/repository/postgres"
	"github.com/rivio/ranking-server/internal/service/billing"
	"github.com/rivio/ranking-server/internal/snowflake"
	"github.com/rivio/ranking-server/internal/worker"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("Starting Rivio background worker...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Redis unavailable, falling back to advisory locks: %v", err)
			redisClient = nil
		}
	}

	maintRepo := postgres.NewMaintenanceRepo(db)
	lockTTL := 10 * time.Minute

	retention := worker.NewRetentionWorker(
		maintRepo,
		distlock.NewLock(redisClient, db, "worker:retention", lockTTL),
		time.Duration(cfg.Retention.IntervalHours)*time.Hour,
		cfg.Retention.OTPDays,
		cfg.Retention.LoginAttemptsDays,
		cfg.Retention.ContactChangesDays,
	)
	go retention.Start(ctx)

	deletions := worker.NewDeletionWorker(
		maintRepo,
		distlock.NewLock(redisClient, db, "worker:deletions", lockTTL),
		time.Hour,
	)
	go deletions.Start(ctx)

	if cfg.Billing.ReconcileIntervalMins > 0 {
		googlePlay, err := billing.NewGooglePlayClient(ctx, cfg.Billing.GooglePlayCredentials, cfg.Billing.GooglePlayPackage)
		if err != nil {
			log.Fatalf("Failed to build Google Play client: %v", err)
		}
		billingSvc := billing.NewService(postgres.NewBillingRepo(db), billing.Config{
			Provider:         cfg.Billing.Provider,
			WebhookSecret:    cfg.Billing.WebhookSecret,
			RequireSignature: cfg.Billing.RequireSignature,
			WebhookMaxAge:    cfg.Billing.WebhookMaxAge(),
			ProductPlans:     cfg.Billing.ProductPlans(),
		}, billing.NewAppStoreClient(cfg.Billing.AppStoreSharedSecret), googlePlay)

		reconcile := worker.NewReconcileWorker(
			billingSvc,
			distlock.NewLock(redisClient, db, "worker:billing-reconcile", lockTTL),
			time.Duration(cfg.Billing.ReconcileIntervalMins)*time.Minute,
			cfg.Billing.ReconcileBatchLimit,
		)
		go reconcile.Start(ctx)
	}

	if cfg.Warehouse.Enabled {
		wh, err := snowflake.NewClient(cfg.Warehouse)
		if err != nil {
			log.Fatalf("Failed to build warehouse client: %v", err)
		}
		defer wh.Close()
		export := worker.NewWarehouseWorker(
			maintRepo,
			wh,
			distlock.NewLock(redisClient, db, "worker:warehouse", lockTTL),
			time.Duration(cfg.Warehouse.IntervalMinutes)*time.Minute,
		)
		go export.Start(ctx)
	}

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	log.Println("Worker stopped")
}
