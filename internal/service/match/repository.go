package match

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/score"
)

// ParticipantProfile is the minimal per-player view creation validates.
type ParticipantProfile struct {
	UserID      string
	Alias       string
	Gender      string
	HasVerified bool
}

// CreateSeed carries everything the creation transaction writes.
type CreateSeed struct {
	MatchID      string
	LadderCode   string
	CategoryID   string
	ClubID       *string
	PlayedAt     time.Time
	CreatedBy    string
	Deadline     time.Time
	Participants []domain.MatchParticipant
	Score        score.Score
	WinnerTeamNo int
}

// ConfirmInput is the confirm transaction's payload. Proposed is non-nil
// when the caller submitted a score; the repository decides inside the
// transaction whether it differs from the active score.
type ConfirmInput struct {
	MatchID      string
	UserID       string
	Note         *string
	Source       *string
	Proposed     *score.Score
	MaxProposals int
}

// ConfirmResult reports the state after a confirm.
type ConfirmResult struct {
	OK               bool   `json:"ok"`
	ConfirmedCount   int    `json:"confirmed_count"`
	TeamsConfirmed   int    `json:"teams_confirmed"`
	ProposalAccepted bool   `json:"proposal_accepted,omitempty"`
	Status           string `json:"status"`
}

// ConfirmationRow is one participant's stance joined with their alias.
type ConfirmationRow struct {
	UserID    string     `json:"user_id"`
	Alias     string     `json:"alias"`
	TeamNo    int        `json:"team_no"`
	Status    string     `json:"status"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// ConfirmationsView is the confirmations panel for one match.
type ConfirmationsView struct {
	MatchID              string            `json:"match_id"`
	Status               string            `json:"status"`
	ConfirmationDeadline time.Time         `json:"confirmation_deadline"`
	ConfirmedCount       int               `json:"confirmed_count"`
	HasDispute           bool              `json:"has_dispute"`
	Rows                 []ConfirmationRow `json:"rows"`
}

// ParticipantView pairs a participant with their display alias.
type ParticipantView struct {
	UserID string `json:"user_id"`
	Alias  string `json:"alias"`
	TeamNo int    `json:"team_no"`
}

// DetailView is the full match read: labels, participants, and the active
// score (an open proposal shadows the canonical score).
type DetailView struct {
	ID                   string            `json:"id"`
	LadderCode           string            `json:"ladder_code"`
	CategoryID           string            `json:"category_id"`
	CategoryCode         string            `json:"category_code"`
	ClubID               *string           `json:"club_id,omitempty"`
	ClubName             *string           `json:"club_name,omitempty"`
	PlayedAt             time.Time         `json:"played_at"`
	CreatedBy            string            `json:"created_by"`
	Status               string            `json:"status"`
	ConfirmationDeadline time.Time         `json:"confirmation_deadline"`
	ConfirmedCount       int               `json:"confirmed_count"`
	HasDispute           bool              `json:"has_dispute"`
	Participants         []ParticipantView `json:"participants"`
	ScoreJSON            json.RawMessage   `json:"score_json"`
	WinnerTeamNo         int               `json:"winner_team_no"`
}

// Repository defines the data access contract for matches. Confirm and
// Dispute run complete transactions including rating and analytics
// application.
type Repository interface {
	// IsParticipant reports whether the user plays in the match.
	IsParticipant(ctx context.Context, matchID, userID string) (bool, error)

	// CountPendingCreated counts the user's open pending matches.
	CountPendingCreated(ctx context.Context, userID string) (int, error)

	// CountRecentExpired counts matches the user created since the given
	// instant that are expired, materialized or past-deadline pending.
	CountRecentExpired(ctx context.Context, userID string, since time.Time) (int, error)

	// ClubActive reports whether the club exists and is active.
	ClubActive(ctx context.Context, clubID string) (bool, error)

	// ParticipantProfiles loads the creation-validation view for a set of
	// users; absent profiles are simply missing from the result.
	ParticipantProfiles(ctx context.Context, userIDs []string) ([]ParticipantProfile, error)

	// LadderSortOrders maps user id to their category sort_order on the
	// ladder; users without a state are absent.
	LadderSortOrders(ctx context.Context, ladderCode string, userIDs []string) (map[string]int, error)

	// CategoriesForLadder lists a ladder's categories.
	CategoriesForLadder(ctx context.Context, ladderCode string) ([]domain.Category, error)

	// CreateMatch runs the creation transaction: match, participants,
	// canonical score, confirmations with creator pre-confirmed, audit.
	CreateMatch(ctx context.Context, seed CreateSeed) error

	// GetMatch loads the match row. ErrNotFound when absent.
	GetMatch(ctx context.Context, matchID string) (*domain.Match, error)

	// MarkExpired materializes lazy expiration; only flips pending rows.
	MarkExpired(ctx context.Context, matchID string) error

	// Confirmations returns the confirmations panel.
	Confirmations(ctx context.Context, matchID string) (*ConfirmationsView, error)

	// Detail returns the full read view.
	Detail(ctx context.Context, matchID string) (*DetailView, error)

	// Confirm runs the confirm transaction: row-lock, lazy expiration,
	// plain confirm or proposal, cross-team ratification with inline
	// rating and analytics application.
	Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error)

	// Dispute records a participant dispute and freezes the match.
	Dispute(ctx context.Context, matchID, userID string, note *string) error
}
