package worker

import (
	"context"
	"log"
	"time"

	"github.com/rivio/ranking-server/internal/pkg/distlock"
	"github.com/rivio/ranking-server/internal/repository/postgres"
	"github.com/rivio/ranking-server/internal/snowflake"
)

const warehouseBatchSize = 5000

// WarehouseWorker ships rating events and ladder snapshots to Snowflake.
// The watermark lives warehouse-side, so a restarted worker resumes from
// where the last export stopped.
type WarehouseWorker struct {
	repo      *postgres.MaintenanceRepo
	warehouse *snowflake.Client
	lock      distlock.DistLock
	interval  time.Duration

	stateWatermark time.Time
}

// NewWarehouseWorker creates the export loop.
func NewWarehouseWorker(repo *postgres.MaintenanceRepo, wh *snowflake.Client, lock distlock.DistLock, interval time.Duration) *WarehouseWorker {
	return &WarehouseWorker{repo: repo, warehouse: wh, lock: lock, interval: interval}
}

// Start runs the export loop until ctx is cancelled.
func (w *WarehouseWorker) Start(ctx context.Context) {
	log.Printf("[WarehouseWorker] starting (interval=%s)", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[WarehouseWorker] stopping")
			return
		case <-ticker.C:
			w.export(ctx)
		}
	}
}

func (w *WarehouseWorker) export(ctx context.Context) {
	ok, err := w.lock.Acquire(ctx)
	if err != nil {
		log.Printf("[WarehouseWorker] lock acquire failed: %v", err)
		return
	}
	if !ok {
		return
	}
	defer w.lock.Release(ctx)

	since, err := w.warehouse.LatestEventTimestamp(ctx)
	if err != nil {
		log.Printf("[WarehouseWorker] watermark load failed: %v", err)
		return
	}

	events, err := w.repo.RatingEventsSince(ctx, since, warehouseBatchSize)
	if err != nil {
		log.Printf("[WarehouseWorker] list rating events failed: %v", err)
		return
	}
	shipped, err := w.warehouse.InsertRatingEvents(ctx, events)
	if err != nil {
		log.Printf("[WarehouseWorker] ship rating events failed: %v", err)
		return
	}

	states, err := w.repo.LadderStatesChangedSince(ctx, w.stateWatermark, warehouseBatchSize)
	if err != nil {
		log.Printf("[WarehouseWorker] list ladder states failed: %v", err)
		return
	}
	merged, err := w.warehouse.UpsertLadderStates(ctx, states)
	if err != nil {
		log.Printf("[WarehouseWorker] merge ladder states failed: %v", err)
		return
	}
	if len(states) > 0 {
		w.stateWatermark = states[len(states)-1].UpdatedAt
	}

	if shipped > 0 || merged > 0 {
		log.Printf("[WarehouseWorker] shipped events=%d states=%d", shipped, merged)
	}
}
