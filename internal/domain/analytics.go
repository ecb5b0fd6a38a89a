package domain

import "time"

// Bit-packed form windows. Bits are shifted in from the right, newest match
// in the lowest bit; treat as unsigned with these masks.
const (
	RecentFormWindow  = 20
	RollingFormWindow = 50
	RecentFormMask    = (uint64(1) << RecentFormWindow) - 1
	RollingFormMask   = (uint64(1) << RollingFormWindow) - 1
)

// CloseMatchSets is the set count that marks a match as close.
const CloseMatchSets = 3

// QualityBucket classifies an opponent pairing by rating difference.
type QualityBucket string

const (
	QualityStronger QualityBucket = "stronger"
	QualitySimilar  QualityBucket = "similar"
	QualityWeaker   QualityBucket = "weaker"
)

// QualityBucketThreshold is the rating-diff boundary between buckets.
const QualityBucketThreshold = 75

// BucketForDiff maps (opponent avg − own rating before) to a bucket.
func BucketForDiff(diff int) QualityBucket {
	switch {
	case diff >= QualityBucketThreshold:
		return QualityStronger
	case diff <= -QualityBucketThreshold:
		return QualityWeaker
	default:
		return QualitySimilar
	}
}

// StreakWin and StreakLoss tag the current streak direction.
const (
	StreakWin  = "W"
	StreakLoss = "L"
)

// AnalyticsState is the incremental per-(user, ladder) projection. All
// counters are derived solely from verified matches, in applied order.
type AnalyticsState struct {
	UserID            string  `json:"user_id" db:"user_id"`
	LadderCode        string  `json:"ladder_code" db:"ladder_code"`
	TotalMatches      int     `json:"total_verified_matches" db:"total_verified_matches"`
	Wins              int     `json:"wins" db:"wins"`
	Losses            int     `json:"losses" db:"losses"`
	WinRate           float64 `json:"win_rate" db:"win_rate"`
	CurrentStreakType *string `json:"current_streak_type,omitempty" db:"current_streak_type"`
	CurrentStreakLen  int     `json:"current_streak_len" db:"current_streak_len"`
	BestWinStreak     int     `json:"best_win_streak" db:"best_win_streak"`
	BestLossStreak    int     `json:"best_loss_streak" db:"best_loss_streak"`

	RecentFormBits  uint64  `json:"-" db:"recent_form_bits"`
	RecentFormSize  int     `json:"recent_form_size" db:"recent_form_size"`
	Recent10Matches int     `json:"recent_10_matches" db:"recent_10_matches"`
	Recent10Wins    int     `json:"recent_10_wins" db:"recent_10_wins"`
	Recent10WinRate float64 `json:"recent_10_win_rate" db:"recent_10_win_rate"`

	RollingBits50     uint64  `json:"-" db:"rolling_bits_50"`
	RollingSize50     int     `json:"rolling_size_50" db:"rolling_size_50"`
	Rolling5WinRate   float64 `json:"rolling_5_win_rate" db:"rolling_5_win_rate"`
	Rolling20WinRate  float64 `json:"rolling_20_win_rate" db:"rolling_20_win_rate"`
	Rolling50WinRate  float64 `json:"rolling_50_win_rate" db:"rolling_50_win_rate"`

	Matches7d  int `json:"matches_7d" db:"matches_7d"`
	Matches30d int `json:"matches_30d" db:"matches_30d"`
	Matches90d int `json:"matches_90d" db:"matches_90d"`

	CloseMatches   int     `json:"close_matches" db:"close_matches"`
	CloseMatchRate float64 `json:"close_match_rate" db:"close_match_rate"`

	VsStrongerMatches int     `json:"vs_stronger_matches" db:"vs_stronger_matches"`
	VsStrongerWins    int     `json:"vs_stronger_wins" db:"vs_stronger_wins"`
	VsStrongerWinRate float64 `json:"vs_stronger_win_rate" db:"vs_stronger_win_rate"`
	VsSimilarMatches  int     `json:"vs_similar_matches" db:"vs_similar_matches"`
	VsSimilarWins     int     `json:"vs_similar_wins" db:"vs_similar_wins"`
	VsSimilarWinRate  float64 `json:"vs_similar_win_rate" db:"vs_similar_win_rate"`
	VsWeakerMatches   int     `json:"vs_weaker_matches" db:"vs_weaker_matches"`
	VsWeakerWins      int     `json:"vs_weaker_wins" db:"vs_weaker_wins"`
	VsWeakerWinRate   float64 `json:"vs_weaker_win_rate" db:"vs_weaker_win_rate"`

	CurrentRating *int       `json:"current_rating,omitempty" db:"current_rating"`
	PeakRating    *int       `json:"peak_rating,omitempty" db:"peak_rating"`
	LastMatchID   *string    `json:"last_match_id,omitempty" db:"last_match_id"`
	LastMatchAt   *time.Time `json:"last_match_at,omitempty" db:"last_match_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AnalyticsApplied is the idempotency record plus denormalized per-event
// features; its (user_id, match_id) key is the projection fence.
type AnalyticsApplied struct {
	UserID     string    `json:"user_id" db:"user_id"`
	MatchID    string    `json:"match_id" db:"match_id"`
	LadderCode string    `json:"ladder_code" db:"ladder_code"`
	IsWin      bool      `json:"is_win" db:"is_win"`
	PlayedAt   time.Time `json:"played_at" db:"played_at"`

	IsCloseMatch      bool          `json:"is_close_match" db:"is_close_match"`
	TeammateUserID    *string       `json:"teammate_user_id,omitempty" db:"teammate_user_id"`
	OpponentAUserID   *string       `json:"opponent_a_user_id,omitempty" db:"opponent_a_user_id"`
	OpponentBUserID   *string       `json:"opponent_b_user_id,omitempty" db:"opponent_b_user_id"`
	OpponentAvgRating *int          `json:"opponent_avg_rating,omitempty" db:"opponent_avg_rating"`
	QualityBucket     QualityBucket `json:"quality_bucket" db:"quality_bucket"`

	RatingBefore *int `json:"rating_before,omitempty" db:"rating_before"`
	RatingAfter  *int `json:"rating_after,omitempty" db:"rating_after"`
	RatingDelta  *int `json:"rating_delta,omitempty" db:"rating_delta"`

	Rolling10WinRate *float64 `json:"rolling_10_win_rate,omitempty" db:"rolling_10_win_rate"`
	Rolling20WinRate *float64 `json:"rolling_20_win_rate,omitempty" db:"rolling_20_win_rate"`
	Rolling50WinRate *float64 `json:"rolling_50_win_rate,omitempty" db:"rolling_50_win_rate"`
	StreakTypeAfter  *string  `json:"streak_type_after,omitempty" db:"streak_type_after"`
	StreakLenAfter   *int     `json:"streak_len_after,omitempty" db:"streak_len_after"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PairStats aggregates matches shared with one other user, either as
// teammate (partner) or across the net (rival).
type PairStats struct {
	UserID       string     `json:"user_id" db:"user_id"`
	LadderCode   string     `json:"ladder_code" db:"ladder_code"`
	OtherUserID  string     `json:"other_user_id"`
	OtherAlias   string     `json:"other_alias,omitempty"`
	Matches      int        `json:"matches" db:"matches"`
	Wins         int        `json:"wins" db:"wins"`
	Losses       int        `json:"losses" db:"losses"`
	WinRate      float64    `json:"win_rate" db:"win_rate"`
	LastPlayedAt *time.Time `json:"last_played_at,omitempty" db:"last_played_at"`
}
