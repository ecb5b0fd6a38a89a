package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rivio/ranking-server/internal/api"
	"github.com/rivio/ranking-server/internal/avatar"
	"github.com/rivio/ranking-server/internal/config"
	"github.com/rivio/ranking-server/internal/notifier"
	"github.com/rivio/ranking-server/internal/repository/postgres"
	"github.com/rivio/ranking-server/internal/service/analytics"
	"github.com/rivio/ranking-server/internal/service/billing"
	"github.com/rivio/ranking-server/internal/service/catalog"
	"github.com/rivio/ranking-server/internal/service/entitlement"
	"github.com/rivio/ranking-server/internal/service/history"
	"github.com/rivio/ranking-server/internal/service/identity"
	"github.com/rivio/ranking-server/internal/service/match"
	"github.com/rivio/ranking-server/internal/service/profile"
	"github.com/rivio/ranking-server/internal/service/ranking"
	"github.com/rivio/ranking-server/internal/service/support"
	"github.com/rivio/ranking-server/internal/token"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("Starting Rivio ranking server...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

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
			log.Printf("Redis unavailable, leaderboard cache disabled: %v", err)
			redisClient = nil
		} else {
			log.Println("Connected to Redis")
		}
	}

	tokens := token.NewManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.OTPPepper,
		cfg.Auth.PIIPepper,
		cfg.Auth.AccessTTL(),
		cfg.Auth.RefreshTTL(),
	)

	notify := notifier.New(ctx, notifier.Config{
		Region:  cfg.Notifier.SESRegion,
		From:    senderAddress(cfg.Notifier),
		AppName: cfg.Notifier.FromName,
	})

	var avatars profile.AvatarProcessor
	if cfg.Avatar.S3Bucket != "" {
		store, err := avatar.NewS3Store(ctx, cfg.Avatar.S3Region, cfg.Avatar.S3Bucket)
		if err != nil {
			log.Fatalf("Failed to initialize avatar storage: %v", err)
		}
		avatars = avatar.NewProcessor(store, cfg.Avatar.MaxBytes, cfg.Avatar.TargetSize)
	} else {
		log.Println("Avatar uploads disabled (no S3 bucket configured)")
	}

	googlePlay, err := billing.NewGooglePlayClient(ctx, cfg.Billing.GooglePlayCredentials, cfg.Billing.GooglePlayPackage)
	if err != nil {
		log.Fatalf("Failed to build Google Play client: %v", err)
	}

	ratingParams := postgres.RatingParams{
		ProvisionalMatches: cfg.Rating.ProvisionalMatches,
		ProvisionalCap:     cfg.Rating.ProvisionalCap,
	}

	identitySvc := identity.NewService(postgres.NewIdentityRepo(db), tokens, notify, identity.Config{
		OTPTTL:            cfg.Auth.OTPTTL(),
		OTPCooldown:       cfg.Auth.OTPCooldown(),
		LoginWindow:       cfg.Auth.LoginWindow(),
		LoginMaxFailures:  cfg.Auth.LoginMaxFailures,
		PasswordMinLength: cfg.Auth.PasswordMinLength,
		DeletionGrace:     time.Duration(cfg.Auth.DeletionGraceDays) * 24 * time.Hour,
	})
	profileSvc := profile.NewService(postgres.NewProfileRepo(db), avatars, cfg.Avatar.BaseURL)
	matchSvc := match.NewService(postgres.NewMatchRepo(db, ratingParams), match.Config{
		ConfirmWindow:   cfg.Match.ConfirmWindow(),
		MaxProposals:    cfg.Match.MaxScoreProposals,
		MaxOpenPending:  cfg.Match.MaxOpenPending,
		ExpiredLookback: time.Duration(cfg.Match.ExpiredLookbackDays) * 24 * time.Hour,
	})
	rankingSvc := ranking.NewService(postgres.NewRankingRepo(db), redisClient,
		time.Duration(cfg.Redis.TTLSeconds)*time.Second)
	historySvc := history.NewService(postgres.NewHistoryRepo(db))
	entitlementSvc := entitlement.NewService(postgres.NewEntitlementRepo(db), entitlement.Config{
		DevMode: cfg.Server.IsDev(),
	})
	analyticsSvc := analytics.NewService(postgres.NewAnalyticsRepo(db), entitlementSvc)
	billingSvc := billing.NewService(postgres.NewBillingRepo(db), billing.Config{
		Provider:           cfg.Billing.Provider,
		WebhookSecret:      cfg.Billing.WebhookSecret,
		RequireSignature:   cfg.Billing.RequireSignature,
		WebhookMaxAge:      cfg.Billing.WebhookMaxAge(),
		ProductPlans:       cfg.Billing.ProductPlans(),
		CheckoutSuccessURL: cfg.Billing.CheckoutSuccessURL,
		CheckoutCancelURL:  cfg.Billing.CheckoutCancelURL,
		DevMode:            cfg.Server.IsDev(),
	}, billing.NewAppStoreClient(cfg.Billing.AppStoreSharedSecret), googlePlay)
	supportSvc := support.NewService(postgres.NewSupportRepo(db), support.Config{
		ContactEmail:      cfg.Support.ContactEmail,
		TicketsEnabled:    cfg.Support.TicketsEnabled,
		MaxTicketsPerDay:  cfg.Support.MaxTicketsPerDay,
		MinTicketInterval: time.Duration(cfg.Support.MinSecondsBetweenTickets) * time.Second,
		AppName:           cfg.Notifier.FromName,
	})
	catalogSvc := catalog.NewService(postgres.NewCatalogRepo(db))

	server := api.NewServer(cfg.Server, &api.Handlers{
		Identity:    identitySvc,
		Profile:     profileSvc,
		Match:       matchSvc,
		Ranking:     rankingSvc,
		History:     historySvc,
		Analytics:   analyticsSvc,
		Entitlement: entitlementSvc,
		Billing:     billingSvc,
		Support:     supportSvc,
		Catalog:     catalogSvc,
		Health:      db.PingContext,
	}, tokens)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()
	log.Printf("Server listening on %s:%d (env=%s)", cfg.Server.Host, cfg.Server.Port, cfg.Server.Env)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	cancel()
	log.Println("Server stopped")
}

func senderAddress(cfg config.NotifierConfig) string {
	if !cfg.Enabled {
		return ""
	}
	return cfg.FromEmail
}
