package analytics

import (
	"context"
	"time"

	"github.com/rivio/ranking-server/internal/domain"
)

// TrendPoint is one applied match projected onto the dashboard time
// series: rating trajectory, rolling win rates, and streak after.
type TrendPoint struct {
	MatchID          string
	PlayedAt         time.Time
	IsWin            bool
	RatingAfter      *int
	RatingDelta      *int
	Rolling10WinRate *float64
	Rolling20WinRate *float64
	Rolling50WinRate *float64
	StreakTypeAfter  *string
	StreakLenAfter   *int
}

// VolumePoint counts verified matches per calendar bucket.
type VolumePoint struct {
	Bucket  time.Time
	Matches int
	Wins    int
}

// RebuildResult summarizes a full projection replay.
type RebuildResult struct {
	Matches     int
	AppliedRows int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Repository is the analytics read surface plus the rebuild entrypoint.
// The incremental write path lives inside the match confirmation
// transaction and is not exposed here.
type Repository interface {
	// ProfileVisibility returns (exists, isPublic) for a user.
	ProfileVisibility(ctx context.Context, userID string) (bool, bool, error)

	// States returns the per-ladder projection rows for a user, ordered
	// by ladder code. ladder filters to one ladder when non-empty.
	States(ctx context.Context, userID, ladder string) ([]domain.AnalyticsState, error)

	// Trend returns the most recent applied rows for (user, ladder) in
	// played order, oldest first, capped at limit.
	Trend(ctx context.Context, userID, ladder string, limit int) ([]TrendPoint, error)

	// Volume buckets verified matches by ISO week or month.
	Volume(ctx context.Context, userID, ladder, bucket string, since time.Time) ([]VolumePoint, error)

	// TopPartners returns teammate aggregates ordered by matches desc.
	TopPartners(ctx context.Context, userID, ladder string, limit int) ([]domain.PairStats, error)

	// TopRivals returns opponent aggregates ordered by matches desc.
	TopRivals(ctx context.Context, userID, ladder string, limit int) ([]domain.PairStats, error)

	// Rebuild truncates the projection and replays every verified match
	// in deterministic order. Runs in a single transaction.
	Rebuild(ctx context.Context) (RebuildResult, error)
}
