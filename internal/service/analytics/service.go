package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math/bits"
	"strconv"
	"time"

	"github.com/rivio/ranking-server/internal/domain"
)

const (
	recentFormRender = 10
	trendLimitFree   = 20
	trendLimitPlus   = 200
	pairLimit        = 5
	exportLimit      = 1000
)

// Entitlements resolves the caller's effective plan for premium gates.
type Entitlements interface {
	EffectivePlan(ctx context.Context, userID string) (domain.PlanCode, error)
}

// Service answers analytics reads and owns the premium dashboard shape.
type Service struct {
	repo Repository
	ent  Entitlements
}

// NewService creates an analytics service.
func NewService(repo Repository, ent Entitlements) *Service {
	return &Service{repo: repo, ent: ent}
}

// StateView is one ladder's projection with the bit-packed form rendered
// as client-facing "W"/"L" markers, newest first.
type StateView struct {
	domain.AnalyticsState
	RecentForm []string `json:"recent_form"`
}

func renderForm(formBits uint64, size int) []string {
	n := size
	if n > recentFormRender {
		n = recentFormRender
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if formBits&(uint64(1)<<uint(i)) != 0 {
			out = append(out, domain.StreakWin)
		} else {
			out = append(out, domain.StreakLoss)
		}
	}
	return out
}

func (s *Service) states(ctx context.Context, userID, ladder string) ([]StateView, error) {
	if ladder != "" && !domain.ValidLadder(ladder) {
		return nil, ErrInvalidLadder
	}
	rows, err := s.repo.States(ctx, userID, ladder)
	if err != nil {
		return nil, err
	}
	out := make([]StateView, 0, len(rows))
	for _, st := range rows {
		out = append(out, StateView{
			AnalyticsState: st,
			RecentForm:     renderForm(st.RecentFormBits, st.RecentFormSize),
		})
	}
	return out, nil
}

// MyStates returns the caller's per-ladder projections.
func (s *Service) MyStates(ctx context.Context, userID, ladder string) ([]StateView, error) {
	return s.states(ctx, userID, ladder)
}

// UserStates returns another user's projections. Hidden profiles and
// unknown users are indistinguishable to the viewer.
func (s *Service) UserStates(ctx context.Context, viewerID, targetID, ladder string) ([]StateView, error) {
	if viewerID != targetID {
		exists, public, err := s.repo.ProfileVisibility(ctx, targetID)
		if err != nil {
			return nil, err
		}
		if !exists || !public {
			return nil, ErrNotFound
		}
	}
	return s.states(ctx, targetID, ladder)
}

// Dashboard is the time-series payload behind the analytics screen. The
// premium plan unlocks the full depth; the free plan gets a short rating
// trend and the recent-form summary already present in the states.
type Dashboard struct {
	Plan        domain.PlanCode    `json:"plan"`
	LadderCode  string             `json:"ladder_code"`
	States      []StateView        `json:"states"`
	RatingTrend []TrendPoint       `json:"rating_trend"`
	VolumeWeek  []VolumePoint      `json:"volume_week,omitempty"`
	VolumeMonth []VolumePoint      `json:"volume_month,omitempty"`
	TopPartners []domain.PairStats `json:"top_partners,omitempty"`
	TopRivals   []domain.PairStats `json:"top_rivals,omitempty"`
}

// UserDashboard assembles the dashboard for the caller on one ladder.
func (s *Service) UserDashboard(ctx context.Context, userID, ladder string) (*Dashboard, error) {
	if !domain.ValidLadder(ladder) {
		return nil, ErrInvalidLadder
	}
	plan, err := s.ent.EffectivePlan(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan: %w", err)
	}
	states, err := s.states(ctx, userID, ladder)
	if err != nil {
		return nil, err
	}

	limit := trendLimitFree
	if plan == domain.PlanPlus {
		limit = trendLimitPlus
	}
	trend, err := s.repo.Trend(ctx, userID, ladder, limit)
	if err != nil {
		return nil, fmt.Errorf("load trend: %w", err)
	}

	dash := &Dashboard{
		Plan:        plan,
		LadderCode:  ladder,
		States:      states,
		RatingTrend: trend,
	}
	if plan != domain.PlanPlus {
		return dash, nil
	}

	now := time.Now().UTC()
	if dash.VolumeWeek, err = s.repo.Volume(ctx, userID, ladder, "week", now.AddDate(0, -3, 0)); err != nil {
		return nil, fmt.Errorf("load weekly volume: %w", err)
	}
	if dash.VolumeMonth, err = s.repo.Volume(ctx, userID, ladder, "month", now.AddDate(-1, 0, 0)); err != nil {
		return nil, fmt.Errorf("load monthly volume: %w", err)
	}
	if dash.TopPartners, err = s.repo.TopPartners(ctx, userID, ladder, pairLimit); err != nil {
		return nil, fmt.Errorf("load partners: %w", err)
	}
	if dash.TopRivals, err = s.repo.TopRivals(ctx, userID, ladder, pairLimit); err != nil {
		return nil, fmt.Errorf("load rivals: %w", err)
	}
	return dash, nil
}

// Export renders the caller's applied-match history as CSV. Premium only.
func (s *Service) Export(ctx context.Context, userID, ladder string) ([]byte, error) {
	if !domain.ValidLadder(ladder) {
		return nil, ErrInvalidLadder
	}
	plan, err := s.ent.EffectivePlan(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan: %w", err)
	}
	if plan != domain.PlanPlus {
		return nil, ErrPlanRequired
	}
	points, err := s.repo.Trend(ctx, userID, ladder, exportLimit)
	if err != nil {
		return nil, fmt.Errorf("load export rows: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"match_id", "played_at", "result", "rating_after", "rating_delta", "rolling_10", "rolling_20", "rolling_50", "streak"})
	for _, p := range points {
		result := domain.StreakLoss
		if p.IsWin {
			result = domain.StreakWin
		}
		streak := ""
		if p.StreakTypeAfter != nil && p.StreakLenAfter != nil {
			streak = fmt.Sprintf("%s%d", *p.StreakTypeAfter, *p.StreakLenAfter)
		}
		_ = w.Write([]string{
			p.MatchID,
			p.PlayedAt.UTC().Format(time.RFC3339),
			result,
			intPtrCSV(p.RatingAfter),
			intPtrCSV(p.RatingDelta),
			floatPtrCSV(p.Rolling10WinRate),
			floatPtrCSV(p.Rolling20WinRate),
			floatPtrCSV(p.Rolling50WinRate),
			streak,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Rebuild replays the projection from the verified-match log.
func (s *Service) Rebuild(ctx context.Context) (RebuildResult, error) {
	return s.repo.Rebuild(ctx)
}

// WinRateFromBits derives a percentage over the newest window matches,
// using however many are actually present.
func WinRateFromBits(formBits uint64, size, window int) float64 {
	n := size
	if n > window {
		n = window
	}
	if n == 0 {
		return 0
	}
	mask := (uint64(1) << uint(n)) - 1
	wins := bits.OnesCount64(formBits & mask)
	rate := float64(wins) * 100 / float64(n)
	// two decimal places, matching the stored counters
	v, _ := strconv.ParseFloat(strconv.FormatFloat(rate, 'f', 2, 64), 64)
	return v
}

func intPtrCSV(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func floatPtrCSV(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}
