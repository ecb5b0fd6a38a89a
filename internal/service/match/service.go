package match

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/score"
)

// Config holds the protocol tunables.
type Config struct {
	ConfirmWindow   time.Duration
	MaxProposals    int
	MaxOpenPending  int
	ExpiredLookback time.Duration
}

// Service implements the match protocol.
type Service struct {
	repo Repository
	cfg  Config
}

// NewService creates a match service.
func NewService(repo Repository, cfg Config) *Service {
	return &Service{repo: repo, cfg: cfg}
}

// ParticipantInput places one user on a team.
type ParticipantInput struct {
	UserID string `json:"user_id"`
	TeamNo int    `json:"team_no"`
}

// CreateInput is the creation payload.
type CreateInput struct {
	PlayedAt     time.Time          `json:"played_at"`
	ClubID       *string            `json:"club_id,omitempty"`
	Participants []ParticipantInput `json:"participants"`
	ScoreJSON    json.RawMessage    `json:"score_json"`
	WinnerTeamNo *int               `json:"winner_team_no,omitempty"`
}

// Create validates the block rules, participants, gender mix and score, then
// writes the match with the creator pre-confirmed.
func (s *Service) Create(ctx context.Context, creatorID string, in CreateInput) (*domain.Match, error) {
	if err := s.checkBlockRules(ctx, creatorID); err != nil {
		return nil, err
	}

	if len(in.Participants) != 4 {
		return nil, ErrBadParticipants
	}
	seen := map[string]bool{}
	team := map[int]int{}
	creatorIn := false
	ids := make([]string, 0, 4)
	for _, p := range in.Participants {
		if p.UserID == "" || seen[p.UserID] || (p.TeamNo != 1 && p.TeamNo != 2) {
			return nil, ErrBadParticipants
		}
		seen[p.UserID] = true
		team[p.TeamNo]++
		if p.UserID == creatorID {
			creatorIn = true
		}
		ids = append(ids, p.UserID)
	}
	if !creatorIn || team[1] != 2 || team[2] != 2 {
		return nil, ErrBadParticipants
	}

	if in.ClubID != nil {
		ok, err := s.repo.ClubActive(ctx, *in.ClubID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrClubNotFound
		}
	}

	profiles, err := s.repo.ParticipantProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := map[string]ParticipantProfile{}
	for _, p := range profiles {
		byID[p.UserID] = p
	}
	genders := make([]string, 0, 4)
	for _, id := range ids {
		p, ok := byID[id]
		if !ok || p.Alias == "" || !p.HasVerified {
			return nil, ErrNotEligible
		}
		if p.Gender != domain.GenderMale && p.Gender != domain.GenderFemale {
			return nil, ErrNotEligible
		}
		genders = append(genders, p.Gender)
	}

	ladder, err := ladderFromGenders(genders)
	if err != nil {
		return nil, err
	}

	categoryID, err := s.deriveCategory(ctx, ladder, ids)
	if err != nil {
		return nil, err
	}

	sc, err := score.Parse(in.ScoreJSON)
	if err != nil {
		return nil, err
	}
	winner := score.Winner(sc)
	if in.WinnerTeamNo != nil && *in.WinnerTeamNo != winner {
		return nil, ErrWinnerMismatch
	}

	now := time.Now().UTC()
	seed := CreateSeed{
		MatchID:      uuid.NewString(),
		LadderCode:   ladder,
		CategoryID:   categoryID,
		ClubID:       in.ClubID,
		PlayedAt:     in.PlayedAt,
		CreatedBy:    creatorID,
		Deadline:     now.Add(s.cfg.ConfirmWindow),
		Score:        sc,
		WinnerTeamNo: winner,
	}
	for _, p := range in.Participants {
		seed.Participants = append(seed.Participants, domain.MatchParticipant{
			MatchID: seed.MatchID,
			UserID:  p.UserID,
			TeamNo:  p.TeamNo,
		})
	}

	if err := s.repo.CreateMatch(ctx, seed); err != nil {
		return nil, err
	}
	return s.repo.GetMatch(ctx, seed.MatchID)
}

// checkBlockRules rejects creators with too many open matches or any
// recently expired one.
func (s *Service) checkBlockRules(ctx context.Context, userID string) error {
	pending, err := s.repo.CountPendingCreated(ctx, userID)
	if err != nil {
		return err
	}
	since := time.Now().UTC().Add(-s.cfg.ExpiredLookback)
	expired, err := s.repo.CountRecentExpired(ctx, userID, since)
	if err != nil {
		return err
	}
	if pending >= s.cfg.MaxOpenPending || expired >= 1 {
		return ErrCreatorBlocked
	}
	return nil
}

func ladderFromGenders(genders []string) (string, error) {
	m, f := 0, 0
	for _, g := range genders {
		switch g {
		case domain.GenderMale:
			m++
		case domain.GenderFemale:
			f++
		}
	}
	switch {
	case m == 4:
		return domain.LadderMen, nil
	case f == 4:
		return domain.LadderWomen, nil
	case m == 2 && f == 2:
		return domain.LadderMixed, nil
	}
	return "", ErrInvalidGenderMix
}

// deriveCategory labels the match with the category whose sort_order is
// nearest to the ceiling of the participants' median (tie toward stronger).
func (s *Service) deriveCategory(ctx context.Context, ladder string, ids []string) (string, error) {
	orders, err := s.repo.LadderSortOrders(ctx, ladder, ids)
	if err != nil {
		return "", err
	}
	if len(orders) != 4 {
		return "", ErrMissingLadderState
	}
	vals := make([]int, 0, 4)
	for _, v := range orders {
		vals = append(vals, v)
	}
	sort.Ints(vals)
	target := int(math.Ceil(float64(vals[1]+vals[2]) / 2.0))

	cats, err := s.repo.CategoriesForLadder(ctx, ladder)
	if err != nil {
		return "", err
	}
	if len(cats) == 0 {
		return "", ErrMissingLadderState
	}
	best := cats[0]
	bestDist := abs(best.SortOrder - target)
	for _, c := range cats[1:] {
		d := abs(c.SortOrder - target)
		if d < bestDist || (d == bestDist && c.SortOrder < best.SortOrder) {
			best, bestDist = c, d
		}
	}
	return best.ID, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Get returns the match row with lazy expiration applied at read time.
func (s *Service) Get(ctx context.Context, matchID, viewerID string) (*domain.Match, error) {
	if err := s.requireParticipant(ctx, matchID, viewerID); err != nil {
		return nil, err
	}
	m, err := s.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	m.Status = m.EffectiveStatus(time.Now().UTC())
	return m, nil
}

// Confirmations returns the confirmations panel for a participant.
func (s *Service) Confirmations(ctx context.Context, matchID, viewerID string) (*ConfirmationsView, error) {
	if err := s.requireParticipant(ctx, matchID, viewerID); err != nil {
		return nil, err
	}
	return s.repo.Confirmations(ctx, matchID)
}

// Detail returns the full read view, materializing expiration when the
// deadline has passed.
func (s *Service) Detail(ctx context.Context, matchID, viewerID string) (*DetailView, error) {
	if err := s.requireParticipant(ctx, matchID, viewerID); err != nil {
		return nil, err
	}
	d, err := s.repo.Detail(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if d.Status == string(domain.MatchPendingConfirm) && time.Now().UTC().After(d.ConfirmationDeadline) {
		if err := s.repo.MarkExpired(ctx, matchID); err != nil {
			return nil, err
		}
		d.Status = string(domain.MatchExpired)
	}
	return d, nil
}

// ConfirmRequest is the confirm endpoint payload.
type ConfirmRequest struct {
	Status    string          `json:"status"`
	Note      *string         `json:"note,omitempty"`
	Source    *string         `json:"source,omitempty"`
	ScoreJSON json.RawMessage `json:"score_json,omitempty"`
}

// Confirm applies a participant decision. A differing score_json counts as
// a proposal; cross-team agreement ratifies and applies ratings inline.
func (s *Service) Confirm(ctx context.Context, matchID, userID string, req ConfirmRequest) (*ConfirmResult, error) {
	if err := s.requireParticipant(ctx, matchID, userID); err != nil {
		return nil, err
	}

	if req.Status == string(domain.ConfirmationDisputed) {
		if err := s.repo.Dispute(ctx, matchID, userID, req.Note); err != nil {
			return nil, err
		}
		return &ConfirmResult{OK: true, Status: string(domain.MatchDisputed)}, nil
	}
	if req.Status != string(domain.ConfirmationConfirmed) {
		return nil, score.ErrInvalid
	}

	in := ConfirmInput{
		MatchID:      matchID,
		UserID:       userID,
		Note:         req.Note,
		Source:       req.Source,
		MaxProposals: s.cfg.MaxProposals,
	}
	if len(req.ScoreJSON) > 0 {
		sc, err := score.Parse(req.ScoreJSON)
		if err != nil {
			return nil, err
		}
		in.Proposed = &sc
	}
	return s.repo.Confirm(ctx, in)
}

func (s *Service) requireParticipant(ctx context.Context, matchID, userID string) error {
	ok, err := s.repo.IsParticipant(ctx, matchID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}
