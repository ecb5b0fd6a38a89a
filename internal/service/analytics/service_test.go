package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivio/ranking-server/internal/domain"
)

type fakeRepo struct {
	exists     bool
	public     bool
	states     []domain.AnalyticsState
	trend      []TrendPoint
	trendLimit int
	volume     []VolumePoint
	partners   []domain.PairStats
	rivals     []domain.PairStats
}

func (f *fakeRepo) ProfileVisibility(_ context.Context, _ string) (bool, bool, error) {
	return f.exists, f.public, nil
}

func (f *fakeRepo) States(_ context.Context, _, _ string) ([]domain.AnalyticsState, error) {
	return f.states, nil
}

func (f *fakeRepo) Trend(_ context.Context, _, _ string, limit int) ([]TrendPoint, error) {
	f.trendLimit = limit
	return f.trend, nil
}

func (f *fakeRepo) Volume(_ context.Context, _, _, _ string, _ time.Time) ([]VolumePoint, error) {
	return f.volume, nil
}

func (f *fakeRepo) TopPartners(_ context.Context, _, _ string, _ int) ([]domain.PairStats, error) {
	return f.partners, nil
}

func (f *fakeRepo) TopRivals(_ context.Context, _, _ string, _ int) ([]domain.PairStats, error) {
	return f.rivals, nil
}

func (f *fakeRepo) Rebuild(_ context.Context) (RebuildResult, error) {
	return RebuildResult{}, nil
}

type fixedPlan struct {
	plan domain.PlanCode
}

func (p fixedPlan) EffectivePlan(_ context.Context, _ string) (domain.PlanCode, error) {
	return p.plan, nil
}

func TestRenderForm(t *testing.T) {
	// bit i set means a win at recency position i
	form := renderForm(0b101, 3)
	assert.Equal(t, []string{"W", "L", "W"}, form)

	// rendering caps at the newest 10 entries
	form = renderForm(^uint64(0), 50)
	assert.Len(t, form, 10)

	assert.Empty(t, renderForm(0, 0))
}

func TestMyStatesRendersForm(t *testing.T) {
	repo := &fakeRepo{states: []domain.AnalyticsState{{
		UserID:         "u1",
		LadderCode:     "HM",
		Wins:           2,
		Losses:         1,
		RecentFormBits: 0b011,
		RecentFormSize: 3,
	}}}
	svc := NewService(repo, fixedPlan{domain.PlanFree})

	states, err := svc.MyStates(context.Background(), "u1", "")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, []string{"W", "W", "L"}, states[0].RecentForm)
}

func TestMyStatesRejectsBadLadder(t *testing.T) {
	svc := NewService(&fakeRepo{}, fixedPlan{domain.PlanFree})
	_, err := svc.MyStates(context.Background(), "u1", "ZZ")
	assert.ErrorIs(t, err, ErrInvalidLadder)
}

func TestUserStatesVisibility(t *testing.T) {
	t.Run("self bypasses visibility", func(t *testing.T) {
		repo := &fakeRepo{exists: false, public: false}
		svc := NewService(repo, fixedPlan{domain.PlanFree})
		_, err := svc.UserStates(context.Background(), "u1", "u1", "")
		assert.NoError(t, err)
	})
	t.Run("private profile hidden", func(t *testing.T) {
		repo := &fakeRepo{exists: true, public: false}
		svc := NewService(repo, fixedPlan{domain.PlanFree})
		_, err := svc.UserStates(context.Background(), "viewer", "u1", "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("unknown user hidden the same way", func(t *testing.T) {
		repo := &fakeRepo{exists: false}
		svc := NewService(repo, fixedPlan{domain.PlanFree})
		_, err := svc.UserStates(context.Background(), "viewer", "ghost", "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("public profile visible", func(t *testing.T) {
		repo := &fakeRepo{exists: true, public: true}
		svc := NewService(repo, fixedPlan{domain.PlanFree})
		_, err := svc.UserStates(context.Background(), "viewer", "u1", "")
		assert.NoError(t, err)
	})
}

func TestUserDashboardFreePlan(t *testing.T) {
	repo := &fakeRepo{
		volume:   []VolumePoint{{Matches: 3}},
		partners: []domain.PairStats{{OtherUserID: "u2"}},
	}
	svc := NewService(repo, fixedPlan{domain.PlanFree})

	dash, err := svc.UserDashboard(context.Background(), "u1", "HM")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, dash.Plan)
	assert.Equal(t, trendLimitFree, repo.trendLimit)
	assert.Empty(t, dash.VolumeWeek)
	assert.Empty(t, dash.TopPartners)
}

func TestUserDashboardPlusPlan(t *testing.T) {
	repo := &fakeRepo{
		volume:   []VolumePoint{{Matches: 3}},
		partners: []domain.PairStats{{OtherUserID: "u2"}},
		rivals:   []domain.PairStats{{OtherUserID: "u3"}},
	}
	svc := NewService(repo, fixedPlan{domain.PlanPlus})

	dash, err := svc.UserDashboard(context.Background(), "u1", "HM")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPlus, dash.Plan)
	assert.Equal(t, trendLimitPlus, repo.trendLimit)
	assert.Len(t, dash.VolumeWeek, 1)
	assert.Len(t, dash.TopPartners, 1)
	assert.Len(t, dash.TopRivals, 1)
}

func TestExportPremiumOnly(t *testing.T) {
	svc := NewService(&fakeRepo{}, fixedPlan{domain.PlanFree})
	_, err := svc.Export(context.Background(), "u1", "HM")
	assert.ErrorIs(t, err, ErrPlanRequired)
}

func TestExportCSV(t *testing.T) {
	after := 1016
	delta := 16
	r10 := 80.0
	st := domain.StreakWin
	sl := 3
	repo := &fakeRepo{trend: []TrendPoint{{
		MatchID:          "m1",
		PlayedAt:         time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		IsWin:            true,
		RatingAfter:      &after,
		RatingDelta:      &delta,
		Rolling10WinRate: &r10,
		StreakTypeAfter:  &st,
		StreakLenAfter:   &sl,
	}}}
	svc := NewService(repo, fixedPlan{domain.PlanPlus})

	out, err := svc.Export(context.Background(), "u1", "HM")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "match_id,played_at,result,rating_after,rating_delta,rolling_10,rolling_20,rolling_50,streak", lines[0])
	assert.Equal(t, "m1,2026-03-01T18:00:00Z,W,1016,16,80.00,,,W3", lines[1])
}

func TestWinRateFromBits(t *testing.T) {
	// 3 wins in the newest 5
	assert.Equal(t, 60.0, WinRateFromBits(0b10101, 5, 5))
	// window wider than history uses what exists
	assert.Equal(t, 100.0, WinRateFromBits(0b11, 2, 10))
	assert.Equal(t, 0.0, WinRateFromBits(0, 0, 10))
	// only the newest `window` bits count
	assert.Equal(t, 0.0, WinRateFromBits(0b100, 3, 2))
}
