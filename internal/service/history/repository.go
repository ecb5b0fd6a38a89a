package history

import (
	"context"
	"encoding/json"
	"time"
)

// Scope selects which match states a timeline includes.
type Scope string

const (
	ScopeVerified Scope = "verified"
	ScopePending  Scope = "pending"
	ScopeAll      Scope = "all"
)

// TimelineQuery filters a timeline read. MaskPrivate hides aliases of
// non-public participants from outside viewers.
type TimelineQuery struct {
	TargetUserID     string
	VisibilityReason string
	Scope            Scope
	Ladder           string
	DateFrom         *time.Time
	DateTo           *time.Time
	ClubID           string
	ClubCity         string
	MatchID          string
	MaskPrivate      bool
	Limit            int
	Offset           int
}

// TimelineItem is one row of a user's match history with the derived
// status and ranking-impact reasons.
type TimelineItem struct {
	MatchID              string    `json:"match_id"`
	LadderCode           string    `json:"ladder_code"`
	CategoryID           string    `json:"category_id"`
	CategoryCode         string    `json:"category_code"`
	ClubID               *string   `json:"club_id,omitempty"`
	ClubName             *string   `json:"club_name,omitempty"`
	ClubCity             *string   `json:"club_city,omitempty"`
	PlayedAt             time.Time `json:"played_at"`
	CreatedAt            time.Time `json:"created_at"`
	ConfirmationDeadline time.Time `json:"confirmation_deadline"`
	ConfirmedCount       int       `json:"confirmed_count"`
	HasDispute           bool      `json:"has_dispute"`
	Status               string    `json:"status"`
	StatusReason         string    `json:"status_reason"`
	VisibilityReason     string    `json:"visibility_reason"`
	RankingImpact        bool      `json:"ranking_impact"`
	RankingImpactReason  string    `json:"ranking_impact_reason"`
	FocusTeamNo          int       `json:"focus_team_no"`
	RivalAliases         []string  `json:"rival_aliases"`
	WinnerTeamNo         *int      `json:"winner_team_no,omitempty"`
	DidFocusUserWin      *bool     `json:"did_focus_user_win,omitempty"`
	CreatedBy            string    `json:"created_by"`
	CreatedByAlias       *string   `json:"created_by_alias,omitempty"`
}

// Participant is one player in the detail view with their confirmation.
type Participant struct {
	UserID             string     `json:"user_id"`
	Alias              string     `json:"alias"`
	Gender             *string    `json:"gender,omitempty"`
	TeamNo             int        `json:"team_no"`
	ConfirmationStatus string     `json:"confirmation_status"`
	DecidedAt          *time.Time `json:"decided_at,omitempty"`
}

// Score is the canonical ratified score in the detail view.
type Score struct {
	ScoreJSON    json.RawMessage `json:"score_json"`
	WinnerTeamNo int             `json:"winner_team_no"`
}

// Repository defines the data access contract for history reads.
type Repository interface {
	// ProfileVisibility reports whether the target profile is public.
	// ErrNotFound when the user has no profile.
	ProfileVisibility(ctx context.Context, userID string) (bool, error)

	// Timeline lists the target's matches newest first, with effective
	// status computed at read time.
	Timeline(ctx context.Context, q TimelineQuery) ([]TimelineItem, error)

	// Participants lists the match's players with confirmation status.
	// MaskPrivate replaces non-public aliases and hides gender.
	Participants(ctx context.Context, matchID string, maskPrivate bool) ([]Participant, error)

	// CanonicalScore loads the ratified score, nil when absent.
	CanonicalScore(ctx context.Context, matchID string) (*Score, error)
}
