package worker

import (
	"context"
	"log"
	"time"

	"github.com/rivio/ranking-server/internal/pkg/distlock"
	"github.com/rivio/ranking-server/internal/service/billing"
)

// ReconcileWorker periodically re-validates store-managed subscriptions
// against the App Store and Google Play, catching missed notifications.
type ReconcileWorker struct {
	billing  *billing.Service
	lock     distlock.DistLock
	interval time.Duration
	limit    int
}

// NewReconcileWorker creates the billing reconciliation loop.
func NewReconcileWorker(svc *billing.Service, lock distlock.DistLock, interval time.Duration, limit int) *ReconcileWorker {
	return &ReconcileWorker{billing: svc, lock: lock, interval: interval, limit: limit}
}

// Start runs the reconciliation loop until ctx is cancelled.
func (w *ReconcileWorker) Start(ctx context.Context) {
	log.Printf("[ReconcileWorker] starting (interval=%s, limit=%d)", w.interval, w.limit)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReconcileWorker] stopping")
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *ReconcileWorker) run(ctx context.Context) {
	ok, err := w.lock.Acquire(ctx)
	if err != nil {
		log.Printf("[ReconcileWorker] lock acquire failed: %v", err)
		return
	}
	if !ok {
		return
	}
	defer w.lock.Release(ctx)

	stats, err := w.billing.Reconcile(ctx, w.limit)
	if err != nil {
		log.Printf("[ReconcileWorker] reconcile failed: %v", err)
		return
	}
	if stats.Processed > 0 {
		log.Printf("[ReconcileWorker] processed=%d updated=%d skipped=%d errors=%d",
			stats.Processed, stats.Updated, stats.Skipped, stats.Errors)
	}
}
