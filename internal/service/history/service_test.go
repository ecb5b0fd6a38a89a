package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	public       bool
	publicErr    error
	rows         []TimelineItem
	gotQ         TimelineQuery
	participants []Participant
	gotMask      bool
	score        *Score
}

func (f *fakeRepo) ProfileVisibility(_ context.Context, _ string) (bool, error) {
	return f.public, f.publicErr
}

func (f *fakeRepo) Timeline(_ context.Context, q TimelineQuery) ([]TimelineItem, error) {
	f.gotQ = q
	return f.rows, nil
}

func (f *fakeRepo) Participants(_ context.Context, _ string, maskPrivate bool) ([]Participant, error) {
	f.gotMask = maskPrivate
	return f.participants, nil
}

func (f *fakeRepo) CanonicalScore(_ context.Context, _ string) (*Score, error) {
	return f.score, nil
}

func TestUserTimelineSelfSeesAnyScope(t *testing.T) {
	repo := &fakeRepo{public: false}
	svc := NewService(repo)

	tl, err := svc.UserTimeline(context.Background(), "u1", "u1", TimelineQuery{Scope: ScopeAll})
	require.NoError(t, err)
	assert.Equal(t, "u1", tl.TargetUserID)
	assert.Equal(t, ScopeAll, repo.gotQ.Scope)
	assert.False(t, repo.gotQ.MaskPrivate)
	assert.Equal(t, "self_participant", repo.gotQ.VisibilityReason)
	assert.NotNil(t, tl.Rows)
}

func TestUserTimelineHidesPrivateProfiles(t *testing.T) {
	repo := &fakeRepo{public: false}
	svc := NewService(repo)

	_, err := svc.UserTimeline(context.Background(), "viewer", "u1", TimelineQuery{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserTimelinePublicViewerGetsVerifiedOnly(t *testing.T) {
	repo := &fakeRepo{public: true}
	svc := NewService(repo)

	_, err := svc.UserTimeline(context.Background(), "viewer", "u1", TimelineQuery{})
	require.NoError(t, err)
	assert.Equal(t, ScopeVerified, repo.gotQ.Scope)
	assert.True(t, repo.gotQ.MaskPrivate)
	assert.Equal(t, "public_verified_history", repo.gotQ.VisibilityReason)

	_, err = svc.UserTimeline(context.Background(), "viewer", "u1", TimelineQuery{Scope: ScopePending})
	assert.ErrorIs(t, err, ErrForbiddenScope)
}

func TestUserTimelineValidatesFilters(t *testing.T) {
	repo := &fakeRepo{public: true}
	svc := NewService(repo)

	_, err := svc.UserTimeline(context.Background(), "u1", "u1", TimelineQuery{Ladder: "zz"})
	assert.ErrorIs(t, err, ErrInvalidLadder)

	from := time.Now()
	to := from.Add(-24 * time.Hour)
	_, err = svc.UserTimeline(context.Background(), "u1", "u1", TimelineQuery{DateFrom: &from, DateTo: &to})
	assert.ErrorIs(t, err, ErrInvalidRange)

	// lowercase ladder codes are accepted
	_, err = svc.UserTimeline(context.Background(), "u1", "u1", TimelineQuery{Ladder: "hm"})
	require.NoError(t, err)
	assert.Equal(t, "HM", repo.gotQ.Ladder)
}

func TestUserTimelinePagination(t *testing.T) {
	repo := &fakeRepo{public: true}
	for i := 0; i < 20; i++ {
		repo.rows = append(repo.rows, TimelineItem{MatchID: "m"})
	}
	svc := NewService(repo)

	tl, err := svc.UserTimeline(context.Background(), "u1", "u1", TimelineQuery{Limit: 500, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, 20, tl.Limit)
	assert.Equal(t, 0, tl.Offset)
	require.NotNil(t, tl.NextOffset)
	assert.Equal(t, 20, *tl.NextOffset)
}

func TestDetailSplitsTeams(t *testing.T) {
	repo := &fakeRepo{
		public: true,
		rows:   []TimelineItem{{MatchID: "m1", FocusTeamNo: 1, Status: "verified"}},
		participants: []Participant{
			{UserID: "u1", Alias: "me", TeamNo: 1},
			{UserID: "u2", Alias: "mate", TeamNo: 1},
			{UserID: "u3", Alias: "rival-a", TeamNo: 2},
			{UserID: "u4", Alias: "rival-b", TeamNo: 2},
		},
		score: &Score{WinnerTeamNo: 1},
	}
	svc := NewService(repo)

	d, err := svc.Detail(context.Background(), "u1", "u1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "u1", d.FocusUserID)
	assert.Equal(t, []string{"mate"}, d.TeammateAliases)
	assert.Equal(t, []string{"rival-a", "rival-b"}, d.RivalAliases)
	assert.False(t, repo.gotMask)
	require.NotNil(t, d.Score)
	assert.Equal(t, 1, d.Score.WinnerTeamNo)
}

func TestDetailMasksForOutsideViewer(t *testing.T) {
	repo := &fakeRepo{
		public: true,
		rows:   []TimelineItem{{MatchID: "m1", FocusTeamNo: 1}},
	}
	svc := NewService(repo)

	_, err := svc.Detail(context.Background(), "viewer", "u1", "m1")
	require.NoError(t, err)
	assert.True(t, repo.gotMask)
	assert.Equal(t, ScopeVerified, repo.gotQ.Scope)
}

func TestDetailUnknownMatch(t *testing.T) {
	repo := &fakeRepo{public: true}
	svc := NewService(repo)

	_, err := svc.Detail(context.Background(), "u1", "u1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
