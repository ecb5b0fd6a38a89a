package domain

import "time"

// Ladder codes. Fixed set: men (HM), women (WM), mixed (MX).
const (
	LadderMen   = "HM"
	LadderWomen = "WM"
	LadderMixed = "MX"
)

// ValidLadder reports whether code names one of the three ladders.
func ValidLadder(code string) bool {
	return code == LadderMen || code == LadderWomen || code == LadderMixed
}

// Ladder is one of the three rating scopes.
type Ladder struct {
	Code     string `json:"code" db:"code"`
	Name     string `json:"name" db:"name"`
	IsActive bool   `json:"is_active" db:"is_active"`
}

// Category is a skill tier within a ladder. Smaller sort_order = stronger.
type Category struct {
	ID         string `json:"id" db:"id"`
	LadderCode string `json:"ladder_code" db:"ladder_code"`
	Code       string `json:"code" db:"code"`
	Name       string `json:"name" db:"name"`
	SortOrder  int    `json:"sort_order" db:"sort_order"`
}

// Club is a venue. Matches may reference an active club.
type Club struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	City     string `json:"city" db:"city"`
	IsActive bool   `json:"is_active" db:"is_active"`
}

// DefaultRating is the starting Elo for a fresh ladder state.
const DefaultRating = 1000

// UserLadderState is the per-(user, ladder) rating snapshot.
// is_provisional holds iff verified_matches < the provisional threshold.
type UserLadderState struct {
	UserID          string    `json:"user_id" db:"user_id"`
	LadderCode      string    `json:"ladder_code" db:"ladder_code"`
	CategoryID      string    `json:"category_id" db:"category_id"`
	Rating          int       `json:"rating" db:"rating"`
	VerifiedMatches int       `json:"verified_matches" db:"verified_matches"`
	IsProvisional   bool      `json:"is_provisional" db:"is_provisional"`
	TrustScore      int       `json:"trust_score" db:"trust_score"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// MxCategoryEntry maps a primary-ladder category to its mixed-ladder
// counterpart. Static lookup seeded with the category catalog.
type MxCategoryEntry struct {
	Gender      string `json:"gender" db:"gender"`
	PrimaryCode string `json:"primary_code" db:"primary_code"`
	MxCode      string `json:"mx_code" db:"mx_code"`
	MxScore     int    `json:"mx_score" db:"mx_score"`
}

// RatingEvent is the immutable per-(match, user) Elo audit record.
// Deltas are zero-sum across the two teams of a match.
type RatingEvent struct {
	ID         string    `json:"id" db:"id"`
	MatchID    string    `json:"match_id" db:"match_id"`
	LadderCode string    `json:"ladder_code" db:"ladder_code"`
	CategoryID string    `json:"category_id" db:"category_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	OldRating  int       `json:"old_rating" db:"old_rating"`
	NewRating  int       `json:"new_rating" db:"new_rating"`
	Delta      int       `json:"delta" db:"delta"`
	KFactor    int       `json:"k_factor" db:"k_factor"`
	Weight     float64   `json:"weight" db:"weight"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
