package match

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/score"
)

type fakeRepo struct {
	participants map[string]bool // "matchID:userID"
	pendingCount int
	expiredCount int
	clubActive   bool
	profiles     map[string]ParticipantProfile
	sortOrders   map[string]int
	categories   []domain.Category

	created   *CreateSeed
	match     *domain.Match
	detail    *DetailView
	confirmed *ConfirmInput
	disputed  bool
	expired   []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		participants: map[string]bool{},
		clubActive:   true,
		profiles:     map[string]ParticipantProfile{},
		sortOrders:   map[string]int{},
	}
}

func (f *fakeRepo) IsParticipant(_ context.Context, matchID, userID string) (bool, error) {
	return f.participants[matchID+":"+userID], nil
}

func (f *fakeRepo) CountPendingCreated(_ context.Context, _ string) (int, error) {
	return f.pendingCount, nil
}

func (f *fakeRepo) CountRecentExpired(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.expiredCount, nil
}

func (f *fakeRepo) ClubActive(_ context.Context, _ string) (bool, error) {
	return f.clubActive, nil
}

func (f *fakeRepo) ParticipantProfiles(_ context.Context, userIDs []string) ([]ParticipantProfile, error) {
	out := make([]ParticipantProfile, 0, len(userIDs))
	for _, id := range userIDs {
		if p, ok := f.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) LadderSortOrders(_ context.Context, _ string, userIDs []string) (map[string]int, error) {
	out := map[string]int{}
	for _, id := range userIDs {
		if v, ok := f.sortOrders[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (f *fakeRepo) CategoriesForLadder(_ context.Context, _ string) ([]domain.Category, error) {
	return f.categories, nil
}

func (f *fakeRepo) CreateMatch(_ context.Context, seed CreateSeed) error {
	f.created = &seed
	f.match = &domain.Match{
		ID:                   seed.MatchID,
		LadderCode:           seed.LadderCode,
		CategoryID:           seed.CategoryID,
		ClubID:               seed.ClubID,
		PlayedAt:             seed.PlayedAt,
		CreatedBy:            seed.CreatedBy,
		Status:               domain.MatchPendingConfirm,
		ConfirmationDeadline: seed.Deadline,
		ConfirmedCount:       1,
	}
	return nil
}

func (f *fakeRepo) GetMatch(_ context.Context, matchID string) (*domain.Match, error) {
	if f.match == nil || f.match.ID != matchID {
		return nil, ErrNotFound
	}
	m := *f.match
	return &m, nil
}

func (f *fakeRepo) MarkExpired(_ context.Context, matchID string) error {
	f.expired = append(f.expired, matchID)
	return nil
}

func (f *fakeRepo) Confirmations(_ context.Context, matchID string) (*ConfirmationsView, error) {
	return &ConfirmationsView{MatchID: matchID, Status: "pending_confirm"}, nil
}

func (f *fakeRepo) Detail(_ context.Context, matchID string) (*DetailView, error) {
	if f.detail == nil {
		return nil, ErrNotFound
	}
	d := *f.detail
	d.ID = matchID
	return &d, nil
}

func (f *fakeRepo) Confirm(_ context.Context, in ConfirmInput) (*ConfirmResult, error) {
	f.confirmed = &in
	return &ConfirmResult{OK: true, ConfirmedCount: 2, Status: "pending_confirm"}, nil
}

func (f *fakeRepo) Dispute(_ context.Context, _, _ string, _ *string) error {
	f.disputed = true
	return nil
}

func testConfig() Config {
	return Config{
		ConfirmWindow:   48 * time.Hour,
		MaxProposals:    2,
		MaxOpenPending:  2,
		ExpiredLookback: 30 * 24 * time.Hour,
	}
}

func seedEligible(repo *fakeRepo, genders map[string]string) {
	for id, g := range genders {
		repo.profiles[id] = ParticipantProfile{UserID: id, Alias: "a-" + id, Gender: g, HasVerified: true}
		repo.sortOrders[id] = 3
	}
	repo.categories = []domain.Category{
		{ID: "c1", Code: "1ra", SortOrder: 1},
		{ID: "c3", Code: "3ra", SortOrder: 3},
		{ID: "c5", Code: "5ta", SortOrder: 5},
	}
}

func fourMen() map[string]string {
	return map[string]string{"u1": "M", "u2": "M", "u3": "M", "u4": "M"}
}

func validScore() json.RawMessage {
	return json.RawMessage(`{"sets":[{"t1":6,"t2":3},{"t1":6,"t2":4}]}`)
}

func createInput() CreateInput {
	return CreateInput{
		PlayedAt: time.Now().UTC().Add(-time.Hour),
		Participants: []ParticipantInput{
			{UserID: "u1", TeamNo: 1},
			{UserID: "u2", TeamNo: 1},
			{UserID: "u3", TeamNo: 2},
			{UserID: "u4", TeamNo: 2},
		},
		ScoreJSON: validScore(),
	}
}

func TestCreateHappyPath(t *testing.T) {
	repo := newFakeRepo()
	seedEligible(repo, fourMen())
	svc := NewService(repo, testConfig())

	m, err := svc.Create(context.Background(), "u1", createInput())
	require.NoError(t, err)

	assert.Equal(t, domain.LadderMen, m.LadderCode)
	assert.Equal(t, domain.MatchPendingConfirm, m.Status)
	require.NotNil(t, repo.created)
	assert.Equal(t, 1, repo.created.WinnerTeamNo)
	assert.Len(t, repo.created.Participants, 4)
	assert.WithinDuration(t, time.Now().UTC().Add(48*time.Hour), repo.created.Deadline, time.Minute)
}

func TestCreateRejectsBadParticipants(t *testing.T) {
	repo := newFakeRepo()
	seedEligible(repo, fourMen())
	svc := NewService(repo, testConfig())

	cases := map[string]func(*CreateInput){
		"three players": func(in *CreateInput) {
			in.Participants = in.Participants[:3]
		},
		"duplicate user": func(in *CreateInput) {
			in.Participants[1].UserID = "u1"
		},
		"bad team split": func(in *CreateInput) {
			in.Participants[2].TeamNo = 1
		},
		"bad team number": func(in *CreateInput) {
			in.Participants[0].TeamNo = 3
		},
		"creator absent": func(in *CreateInput) {
			in.Participants[0].UserID = "u9"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := createInput()
			mutate(&in)
			_, err := svc.Create(context.Background(), "u1", in)
			assert.ErrorIs(t, err, ErrBadParticipants)
		})
	}
}

func TestCreateRejectsInactiveClub(t *testing.T) {
	repo := newFakeRepo()
	seedEligible(repo, fourMen())
	repo.clubActive = false
	svc := NewService(repo, testConfig())

	in := createInput()
	club := "club-1"
	in.ClubID = &club
	_, err := svc.Create(context.Background(), "u1", in)
	assert.ErrorIs(t, err, ErrClubNotFound)
}

func TestCreateRejectsIneligibleProfiles(t *testing.T) {
	svc := func(repo *fakeRepo) *Service { return NewService(repo, testConfig()) }

	t.Run("missing profile", func(t *testing.T) {
		repo := newFakeRepo()
		seedEligible(repo, fourMen())
		delete(repo.profiles, "u3")
		_, err := svc(repo).Create(context.Background(), "u1", createInput())
		assert.ErrorIs(t, err, ErrNotEligible)
	})
	t.Run("no alias", func(t *testing.T) {
		repo := newFakeRepo()
		seedEligible(repo, fourMen())
		p := repo.profiles["u2"]
		p.Alias = ""
		repo.profiles["u2"] = p
		_, err := svc(repo).Create(context.Background(), "u1", createInput())
		assert.ErrorIs(t, err, ErrNotEligible)
	})
	t.Run("unverified identity", func(t *testing.T) {
		repo := newFakeRepo()
		seedEligible(repo, fourMen())
		p := repo.profiles["u4"]
		p.HasVerified = false
		repo.profiles["u4"] = p
		_, err := svc(repo).Create(context.Background(), "u1", createInput())
		assert.ErrorIs(t, err, ErrNotEligible)
	})
	t.Run("gender unset", func(t *testing.T) {
		repo := newFakeRepo()
		seedEligible(repo, fourMen())
		p := repo.profiles["u2"]
		p.Gender = domain.GenderUnknown
		repo.profiles["u2"] = p
		_, err := svc(repo).Create(context.Background(), "u1", createInput())
		assert.ErrorIs(t, err, ErrNotEligible)
	})
}

func TestCreateDerivesLadderFromGenders(t *testing.T) {
	cases := []struct {
		name    string
		genders map[string]string
		want    string
		wantErr error
	}{
		{"four men", map[string]string{"u1": "M", "u2": "M", "u3": "M", "u4": "M"}, domain.LadderMen, nil},
		{"four women", map[string]string{"u1": "F", "u2": "F", "u3": "F", "u4": "F"}, domain.LadderWomen, nil},
		{"two and two", map[string]string{"u1": "M", "u2": "F", "u3": "M", "u4": "F"}, domain.LadderMixed, nil},
		{"three one", map[string]string{"u1": "M", "u2": "M", "u3": "M", "u4": "F"}, "", ErrInvalidGenderMix},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeRepo()
			seedEligible(repo, tc.genders)
			svc := NewService(repo, testConfig())

			m, err := svc.Create(context.Background(), "u1", createInput())
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, m.LadderCode)
		})
	}
}

func TestCreateBlockRules(t *testing.T) {
	t.Run("too many open pending", func(t *testing.T) {
		repo := newFakeRepo()
		seedEligible(repo, fourMen())
		repo.pendingCount = 2
		svc := NewService(repo, testConfig())
		_, err := svc.Create(context.Background(), "u1", createInput())
		assert.ErrorIs(t, err, ErrCreatorBlocked)
	})
	t.Run("recent expired match", func(t *testing.T) {
		repo := newFakeRepo()
		seedEligible(repo, fourMen())
		repo.expiredCount = 1
		svc := NewService(repo, testConfig())
		_, err := svc.Create(context.Background(), "u1", createInput())
		assert.ErrorIs(t, err, ErrCreatorBlocked)
	})
}

func TestCreateRejectsWinnerMismatch(t *testing.T) {
	repo := newFakeRepo()
	seedEligible(repo, fourMen())
	svc := NewService(repo, testConfig())

	in := createInput()
	two := 2
	in.WinnerTeamNo = &two
	_, err := svc.Create(context.Background(), "u1", in)
	assert.ErrorIs(t, err, ErrWinnerMismatch)
}

func TestCreateRejectsInvalidScore(t *testing.T) {
	repo := newFakeRepo()
	seedEligible(repo, fourMen())
	svc := NewService(repo, testConfig())

	in := createInput()
	in.ScoreJSON = json.RawMessage(`{"sets":[{"t1":6,"t2":6},{"t1":6,"t2":4}]}`)
	_, err := svc.Create(context.Background(), "u1", in)
	assert.ErrorIs(t, err, score.ErrInvalid)
}

func TestCreateRequiresLadderStates(t *testing.T) {
	repo := newFakeRepo()
	seedEligible(repo, fourMen())
	delete(repo.sortOrders, "u2")
	svc := NewService(repo, testConfig())

	_, err := svc.Create(context.Background(), "u1", createInput())
	assert.ErrorIs(t, err, ErrMissingLadderState)
}

func TestDeriveCategoryMedianCeiling(t *testing.T) {
	cases := []struct {
		name   string
		orders map[string]int
		want   string
	}{
		// middle two are 3 and 3: target 3, exact hit
		{"exact", map[string]int{"u1": 1, "u2": 3, "u3": 3, "u4": 5}, "c3"},
		// middle two are 3 and 5: ceil(4) = 4, c3 and c5 tie, smaller sort wins
		{"tie toward stronger", map[string]int{"u1": 1, "u2": 3, "u3": 5, "u4": 5}, "c3"},
		// middle two are 5 and 5: target 5
		{"high pair", map[string]int{"u1": 1, "u2": 5, "u3": 5, "u4": 5}, "c5"},
		// middle two are 1 and 3: target 2, nearest of 1/3 ties, smaller wins
		{"low tie", map[string]int{"u1": 1, "u2": 1, "u3": 3, "u4": 5}, "c1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeRepo()
			seedEligible(repo, fourMen())
			for id, v := range tc.orders {
				repo.sortOrders[id] = v
			}
			svc := NewService(repo, testConfig())

			_, err := svc.Create(context.Background(), "u1", createInput())
			require.NoError(t, err)
			assert.Equal(t, tc.want, repo.created.CategoryID)
		})
	}
}

func TestGetRequiresParticipant(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, testConfig())

	_, err := svc.Get(context.Background(), "m1", "stranger")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestGetAppliesLazyExpiration(t *testing.T) {
	repo := newFakeRepo()
	repo.participants["m1:u1"] = true
	repo.match = &domain.Match{
		ID:                   "m1",
		Status:               domain.MatchPendingConfirm,
		ConfirmationDeadline: time.Now().UTC().Add(-time.Hour),
	}
	svc := NewService(repo, testConfig())

	m, err := svc.Get(context.Background(), "m1", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchExpired, m.Status)
}

func TestDetailMaterializesExpiration(t *testing.T) {
	repo := newFakeRepo()
	repo.participants["m1:u1"] = true
	repo.detail = &DetailView{
		Status:               string(domain.MatchPendingConfirm),
		ConfirmationDeadline: time.Now().UTC().Add(-time.Minute),
	}
	svc := NewService(repo, testConfig())

	d, err := svc.Detail(context.Background(), "m1", "u1")
	require.NoError(t, err)
	assert.Equal(t, string(domain.MatchExpired), d.Status)
	assert.Equal(t, []string{"m1"}, repo.expired)
}

func TestDetailLeavesLiveMatchAlone(t *testing.T) {
	repo := newFakeRepo()
	repo.participants["m1:u1"] = true
	repo.detail = &DetailView{
		Status:               string(domain.MatchPendingConfirm),
		ConfirmationDeadline: time.Now().UTC().Add(time.Hour),
	}
	svc := NewService(repo, testConfig())

	d, err := svc.Detail(context.Background(), "m1", "u1")
	require.NoError(t, err)
	assert.Equal(t, string(domain.MatchPendingConfirm), d.Status)
	assert.Empty(t, repo.expired)
}

func TestConfirmRoutesDispute(t *testing.T) {
	repo := newFakeRepo()
	repo.participants["m1:u1"] = true
	svc := NewService(repo, testConfig())

	note := "wrong score"
	res, err := svc.Confirm(context.Background(), "m1", "u1", ConfirmRequest{
		Status: string(domain.ConfirmationDisputed),
		Note:   &note,
	})
	require.NoError(t, err)
	assert.True(t, repo.disputed)
	assert.True(t, res.OK)
	assert.Equal(t, string(domain.MatchDisputed), res.Status)
}

func TestConfirmPlain(t *testing.T) {
	repo := newFakeRepo()
	repo.participants["m1:u1"] = true
	svc := NewService(repo, testConfig())

	res, err := svc.Confirm(context.Background(), "m1", "u1", ConfirmRequest{
		Status: string(domain.ConfirmationConfirmed),
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	require.NotNil(t, repo.confirmed)
	assert.Nil(t, repo.confirmed.Proposed)
	assert.Equal(t, 2, repo.confirmed.MaxProposals)
}

func TestConfirmWithProposal(t *testing.T) {
	repo := newFakeRepo()
	repo.participants["m1:u1"] = true
	svc := NewService(repo, testConfig())

	_, err := svc.Confirm(context.Background(), "m1", "u1", ConfirmRequest{
		Status:    string(domain.ConfirmationConfirmed),
		ScoreJSON: json.RawMessage(`{"sets":[{"t1":3,"t2":6},{"t1":4,"t2":6}]}`),
	})
	require.NoError(t, err)
	require.NotNil(t, repo.confirmed.Proposed)
	assert.Equal(t, 2, score.Winner(*repo.confirmed.Proposed))
}

func TestConfirmRejectsBadStatusAndScore(t *testing.T) {
	repo := newFakeRepo()
	repo.participants["m1:u1"] = true
	svc := NewService(repo, testConfig())

	_, err := svc.Confirm(context.Background(), "m1", "u1", ConfirmRequest{Status: "maybe"})
	assert.ErrorIs(t, err, score.ErrInvalid)

	_, err = svc.Confirm(context.Background(), "m1", "u1", ConfirmRequest{
		Status:    string(domain.ConfirmationConfirmed),
		ScoreJSON: json.RawMessage(`{"sets":[]}`),
	})
	assert.ErrorIs(t, err, score.ErrInvalid)

	_, err = svc.Confirm(context.Background(), "m1", "stranger", ConfirmRequest{
		Status: string(domain.ConfirmationConfirmed),
	})
	assert.True(t, errors.Is(err, ErrNotParticipant))
}
