package profile

import (
	"context"
	"time"

	"github.com/rivio/ranking-server/internal/domain"
)

// FieldUpdate carries only the fields present in the PATCH payload; nil
// means "leave unchanged".
type FieldUpdate struct {
	Alias         *string
	Gender        *string
	IsPublic      *bool
	Country       *string
	City          *string
	Handedness    *string
	PreferredSide *string
	Birthdate     *time.Time
	FirstName     *string
	LastName      *string
}

// LadderUpsert creates or corrects one ladder state as part of a profile
// update transaction.
type LadderUpsert struct {
	LadderCode string
	CategoryID string
}

// LadderStateView is a ladder state joined with its category for display.
type LadderStateView struct {
	LadderCode      string `json:"ladder_code"`
	CategoryID      string `json:"category_id"`
	CategoryCode    string `json:"category_code"`
	CategoryName    string `json:"category_name"`
	Rating          int    `json:"rating"`
	VerifiedMatches int    `json:"verified_matches"`
	IsProvisional   bool   `json:"is_provisional"`
	TrustScore      int    `json:"trust_score"`
}

// MatchFilter narrows the caller's own match list.
type MatchFilter struct {
	Ladder string
	Status string
	Limit  int
	Offset int
}

// MyMatchRow is one row of the caller's match list.
type MyMatchRow struct {
	ID                   string     `json:"id"`
	LadderCode           string     `json:"ladder_code"`
	CategoryCode         string     `json:"category_code"`
	ClubID               *string    `json:"club_id,omitempty"`
	ClubName             *string    `json:"club_name,omitempty"`
	PlayedAt             time.Time  `json:"played_at"`
	Status               string     `json:"status"`
	ConfirmationDeadline time.Time  `json:"confirmation_deadline"`
	ConfirmedCount       int        `json:"confirmed_count"`
	HasDispute           bool       `json:"has_dispute"`
	MyTeamNo             int        `json:"my_team_no"`
	MyConfirmation       string     `json:"my_confirmation_status"`
}

// Repository defines the data access contract for profiles.
type Repository interface {
	// UserByID loads the identity anchor. ErrNotFound when absent.
	UserByID(ctx context.Context, id string) (*domain.User, error)

	// ProfileByUserID loads the profile row. ErrNotFound when absent.
	ProfileByUserID(ctx context.Context, userID string) (*domain.UserProfile, error)

	// AliasInUse reports whether another user already holds the alias
	// (case-insensitive).
	AliasInUse(ctx context.Context, alias, excludeUserID string) (bool, error)

	// CountUserMatches counts match participations; empty ladderCode means
	// across all ladders.
	CountUserMatches(ctx context.Context, userID, ladderCode string) (int, error)

	// ApplyProfileUpdate runs the update transaction: patch the profile
	// row, upsert ladder states under the category-change rules, and
	// append the audit entry. Returns ErrAliasTaken or ErrCategoryLocked.
	ApplyProfileUpdate(ctx context.Context, userID string, u FieldUpdate, ladders []LadderUpsert) error

	// CategoryByCode resolves a category within a ladder. ErrInvalidCategory
	// when unknown.
	CategoryByCode(ctx context.Context, ladderCode, code string) (*domain.Category, error)

	// MxCode maps (gender, primary category code) to the mixed-ladder code.
	// ErrInvalidCategory when unmapped.
	MxCode(ctx context.Context, gender, primaryCode string) (string, error)

	// LadderStates lists the user's ladder states with category labels.
	LadderStates(ctx context.Context, userID string) ([]LadderStateView, error)

	// HasVerifiedIdentity reports whether any contact channel is verified.
	HasVerifiedIdentity(ctx context.Context, userID string) (bool, error)

	// MyMatches lists matches the user participates in, newest first.
	MyMatches(ctx context.Context, userID string, f MatchFilter) ([]MyMatchRow, error)

	// SetAvatar updates the avatar columns.
	SetAvatar(ctx context.Context, userID string, mode domain.AvatarMode, presetKey, url *string) error

	// AvatarPresetByKey resolves an active preset. ErrInvalidPreset when
	// unknown or inactive.
	AvatarPresetByKey(ctx context.Context, key string) (*domain.AvatarPreset, error)
}
