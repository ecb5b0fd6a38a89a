package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/rivio/ranking-server/internal/config"
	"github.com/rivio/ranking-server/internal/repository/postgres"

	_ "github.com/lib/pq"
)

// Replays every verified match through the analytics projection after a
// TRUNCATE of the derived tables. Run offline; the projection tables are
// unavailable while it runs.
func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	dsn := cfg.Database.URL
	if v := os.Getenv("DATABASE_URL"); v != "" {
		dsn = v
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	log.Println("Rebuilding analytics projection...")
	res, err := postgres.NewAnalyticsRepo(db).Rebuild(ctx)
	if err != nil {
		log.Fatalf("Rebuild failed: %v", err)
	}
	log.Printf("Rebuild complete: %d matches, %d applied rows, took %s",
		res.Matches, res.AppliedRows, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
}
