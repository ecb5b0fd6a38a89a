// Package worker holds the background loops: auth artifact retention,
// scheduled account deletions, billing reconciliation, and the optional
// warehouse export. Each loop takes a distributed lock per cycle so
// multiple replicas never sweep concurrently.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/rivio/ranking-server/internal/pkg/distlock"
	"github.com/rivio/ranking-server/internal/repository/postgres"
)

// RetentionWorker removes settled OTPs, login attempts, contact change
// requests, and dead sessions past their retention windows.
type RetentionWorker struct {
	repo     *postgres.MaintenanceRepo
	lock     distlock.DistLock
	interval time.Duration

	otpDays      int
	attemptsDays int
	contactDays  int
}

// NewRetentionWorker creates the retention sweeper.
func NewRetentionWorker(repo *postgres.MaintenanceRepo, lock distlock.DistLock, interval time.Duration, otpDays, attemptsDays, contactDays int) *RetentionWorker {
	return &RetentionWorker{
		repo:         repo,
		lock:         lock,
		interval:     interval,
		otpDays:      otpDays,
		attemptsDays: attemptsDays,
		contactDays:  contactDays,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (w *RetentionWorker) Start(ctx context.Context) {
	log.Printf("[RetentionWorker] starting (interval=%s)", w.interval)

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[RetentionWorker] stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *RetentionWorker) sweep(ctx context.Context) {
	ok, err := w.lock.Acquire(ctx)
	if err != nil {
		log.Printf("[RetentionWorker] lock acquire failed: %v", err)
		return
	}
	if !ok {
		return
	}
	defer w.lock.Release(ctx)

	now := time.Now().UTC()
	stats, err := w.repo.CleanupAuthArtifacts(ctx,
		now.AddDate(0, 0, -w.otpDays),
		now.AddDate(0, 0, -w.attemptsDays),
		now.AddDate(0, 0, -w.contactDays),
	)
	if err != nil {
		log.Printf("[RetentionWorker] sweep failed: %v", err)
		return
	}
	if stats.OTPs+stats.LoginAttempts+stats.ContactChanges+stats.Sessions > 0 {
		log.Printf("[RetentionWorker] removed otps=%d attempts=%d contact_changes=%d sessions=%d",
			stats.OTPs, stats.LoginAttempts, stats.ContactChanges, stats.Sessions)
	}
}
