package domain

import (
	"encoding/json"
	"time"
)

// MatchStatus enumerates the confirmation state machine.
// disputed and expired are terminal for ranking purposes.
type MatchStatus string

const (
	MatchPendingConfirm MatchStatus = "pending_confirm"
	MatchVerified       MatchStatus = "verified"
	MatchDisputed       MatchStatus = "disputed"
	MatchExpired        MatchStatus = "expired"
	MatchVoid           MatchStatus = "void"
)

// Terminal reports whether no further confirmation input is accepted.
func (s MatchStatus) Terminal() bool {
	return s != MatchPendingConfirm
}

// EffectiveStatus applies lazy expiration at read time: a pending match past
// its deadline reads as expired even before any write flips the row.
func (m Match) EffectiveStatus(now time.Time) MatchStatus {
	if m.Status == MatchPendingConfirm && now.After(m.ConfirmationDeadline) {
		return MatchExpired
	}
	return m.Status
}

// Match is the protocol entity. The proposed_* fields carry a score appeal
// that has not yet been ratified into MatchScore.
type Match struct {
	ID                   string          `json:"id" db:"id"`
	LadderCode           string          `json:"ladder_code" db:"ladder_code"`
	CategoryID           string          `json:"category_id" db:"category_id"`
	ClubID               *string         `json:"club_id,omitempty" db:"club_id"`
	PlayedAt             time.Time       `json:"played_at" db:"played_at"`
	CreatedBy            string          `json:"created_by" db:"created_by"`
	Status               MatchStatus     `json:"status" db:"status"`
	ConfirmationDeadline time.Time       `json:"confirmation_deadline" db:"confirmation_deadline"`
	ConfirmedCount       int             `json:"confirmed_count" db:"confirmed_count"`
	HasDispute           bool            `json:"has_dispute" db:"has_dispute"`
	RankProcessedAt      *time.Time      `json:"rank_processed_at,omitempty" db:"rank_processed_at"`
	AntiFarmingWeight    float64         `json:"anti_farming_weight" db:"anti_farming_weight"`
	ProposedScoreJSON    json.RawMessage `json:"proposed_score_json,omitempty" db:"proposed_score_json"`
	ProposedWinnerTeam   *int            `json:"proposed_winner_team_no,omitempty" db:"proposed_winner_team_no"`
	ProposedBy           *string         `json:"proposed_by,omitempty" db:"proposed_by"`
	ProposedAt           *time.Time      `json:"proposed_at,omitempty" db:"proposed_at"`
	ProposalCount        int             `json:"proposal_count" db:"proposal_count"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}

// MatchParticipant places a user on one of the two teams.
// Exactly four per match, two per team, all users distinct.
type MatchParticipant struct {
	MatchID   string    `json:"match_id" db:"match_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	TeamNo    int       `json:"team_no" db:"team_no"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MatchScore is the canonical (ratified) score, separate from any open
// proposal on the match row.
type MatchScore struct {
	MatchID      string          `json:"match_id" db:"match_id"`
	ScoreJSON    json.RawMessage `json:"score_json" db:"score_json"`
	WinnerTeamNo int             `json:"winner_team_no" db:"winner_team_no"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// ConfirmationStatus is a participant's stance on the active score.
type ConfirmationStatus string

const (
	ConfirmationPending   ConfirmationStatus = "pending"
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	ConfirmationDisputed  ConfirmationStatus = "disputed"
)

// MatchConfirmation records one participant's decision. Source tags how the
// decision was made (creator, app, proposal).
type MatchConfirmation struct {
	MatchID   string             `json:"match_id" db:"match_id"`
	UserID    string             `json:"user_id" db:"user_id"`
	Status    ConfirmationStatus `json:"status" db:"status"`
	DecidedAt *time.Time         `json:"decided_at,omitempty" db:"decided_at"`
	Note      *string            `json:"note,omitempty" db:"note"`
	Source    *string            `json:"source,omitempty" db:"source"`
}

// MatchDispute is opened by a participant and freezes the match for ranking.
type MatchDispute struct {
	MatchID    string    `json:"match_id" db:"match_id"`
	OpenedBy   string    `json:"opened_by" db:"opened_by"`
	ReasonCode string    `json:"reason_code" db:"reason_code"`
	Comment    *string   `json:"comment,omitempty" db:"comment"`
	OpenedAt   time.Time `json:"opened_at" db:"opened_at"`
	Status     string    `json:"status" db:"status"`
}
