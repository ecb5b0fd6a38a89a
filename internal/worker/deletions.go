package worker

import (
	"context"
	"log"
	"time"

	"github.com/rivio/ranking-server/internal/pkg/distlock"
	"github.com/rivio/ranking-server/internal/repository/postgres"
)

const deletionBatchSize = 100

// DeletionWorker executes account deletion requests whose grace period
// has elapsed, anonymizing the account while keeping match history.
type DeletionWorker struct {
	repo     *postgres.MaintenanceRepo
	lock     distlock.DistLock
	interval time.Duration
}

// NewDeletionWorker creates the deletion executor.
func NewDeletionWorker(repo *postgres.MaintenanceRepo, lock distlock.DistLock, interval time.Duration) *DeletionWorker {
	return &DeletionWorker{repo: repo, lock: lock, interval: interval}
}

// Start runs the executor loop until ctx is cancelled.
func (w *DeletionWorker) Start(ctx context.Context) {
	log.Printf("[DeletionWorker] starting (interval=%s)", w.interval)

	w.run(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[DeletionWorker] stopping")
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *DeletionWorker) run(ctx context.Context) {
	ok, err := w.lock.Acquire(ctx)
	if err != nil {
		log.Printf("[DeletionWorker] lock acquire failed: %v", err)
		return
	}
	if !ok {
		return
	}
	defer w.lock.Release(ctx)

	due, err := w.repo.DueDeletionRequests(ctx, deletionBatchSize)
	if err != nil {
		log.Printf("[DeletionWorker] list due requests failed: %v", err)
		return
	}
	for _, req := range due {
		if err := w.repo.ExecuteDeletion(ctx, req.ID); err != nil {
			log.Printf("[DeletionWorker] execute %s failed: %v", req.ID, err)
			continue
		}
		log.Printf("[DeletionWorker] anonymized user %s (request %s)", req.UserID, req.ID)
	}
}
