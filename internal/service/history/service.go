package history

import (
	"context"
	"strings"

	"github.com/rivio/ranking-server/internal/domain"
)

// Service implements history reads with the visibility rules.
type Service struct {
	repo Repository
}

// NewService creates a history service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline is the paginated response envelope.
type Timeline struct {
	TargetUserID string         `json:"target_user_id"`
	Rows         []TimelineItem `json:"rows"`
	Limit        int            `json:"limit"`
	Offset       int            `json:"offset"`
	NextOffset   *int           `json:"next_offset,omitempty"`
}

// UserTimeline returns the target's timeline under the visibility rules:
// self sees any scope; others only verified matches of public profiles,
// with private aliases masked. Hidden profiles answer ErrNotFound.
func (s *Service) UserTimeline(ctx context.Context, viewerID, targetID string, q TimelineQuery) (*Timeline, error) {
	isSelf := viewerID == targetID

	isPublic, err := s.repo.ProfileVisibility(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !isSelf && !isPublic {
		return nil, ErrNotFound
	}

	if q.Ladder != "" {
		q.Ladder = strings.ToUpper(strings.TrimSpace(q.Ladder))
		if !domain.ValidLadder(q.Ladder) {
			return nil, ErrInvalidLadder
		}
	}
	if q.DateFrom != nil && q.DateTo != nil && q.DateFrom.After(*q.DateTo) {
		return nil, ErrInvalidRange
	}
	if q.Scope == "" {
		q.Scope = ScopeVerified
	}
	if !isSelf && q.Scope != ScopeVerified {
		return nil, ErrForbiddenScope
	}

	q.TargetUserID = targetID
	q.MaskPrivate = !isSelf
	if isSelf {
		q.VisibilityReason = "self_participant"
	} else {
		q.VisibilityReason = "public_verified_history"
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	rows, err := s.repo.Timeline(ctx, q)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []TimelineItem{}
	}

	t := &Timeline{TargetUserID: targetID, Rows: rows, Limit: q.Limit, Offset: q.Offset}
	if len(rows) == q.Limit {
		next := q.Offset + q.Limit
		t.NextOffset = &next
	}
	return t, nil
}

// MatchDetail is the single-event response with participants and the
// canonical score.
type MatchDetail struct {
	FocusUserID     string        `json:"focus_user_id"`
	Event           TimelineItem  `json:"event"`
	Participants    []Participant `json:"participants"`
	TeammateAliases []string      `json:"teammate_aliases"`
	RivalAliases    []string      `json:"rival_aliases"`
	Score           *Score        `json:"score,omitempty"`
}

// Detail returns one history event with full traceability.
func (s *Service) Detail(ctx context.Context, viewerID, targetID, matchID string) (*MatchDetail, error) {
	isSelf := viewerID == targetID
	isPublic, err := s.repo.ProfileVisibility(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !isSelf && !isPublic {
		return nil, ErrNotFound
	}

	scope := ScopeVerified
	reason := "public_verified_history"
	if isSelf {
		scope = ScopeAll
		reason = "self_participant"
	}
	rows, err := s.repo.Timeline(ctx, TimelineQuery{
		TargetUserID:     targetID,
		VisibilityReason: reason,
		Scope:            scope,
		MatchID:          matchID,
		MaskPrivate:      !isSelf,
		Limit:            1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	event := rows[0]

	parts, err := s.repo.Participants(ctx, matchID, !isSelf)
	if err != nil {
		return nil, err
	}

	var teammates, rivals []string
	for _, p := range parts {
		switch {
		case p.TeamNo == event.FocusTeamNo && p.UserID != targetID:
			teammates = append(teammates, p.Alias)
		case p.TeamNo != event.FocusTeamNo:
			rivals = append(rivals, p.Alias)
		}
	}

	sc, err := s.repo.CanonicalScore(ctx, matchID)
	if err != nil {
		return nil, err
	}

	return &MatchDetail{
		FocusUserID:     targetID,
		Event:           event,
		Participants:    parts,
		TeammateAliases: teammates,
		RivalAliases:    rivals,
		Score:           sc,
	}, nil
}
