package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivio/ranking-server/internal/domain"
)

type fakeRepo struct {
	user        *domain.User
	profile     *domain.UserProfile
	aliasTaken  bool
	matchCount  int
	verified    bool
	states      []LadderStateView
	categories  map[string]*domain.Category // "ladder:code"
	mxCodes     map[string]string           // "gender:code"
	presets     map[string]*domain.AvatarPreset
	applied     *FieldUpdate
	appliedLads []LadderUpsert
	avatarMode  *domain.AvatarMode
	avatarURL   *string
	matchFilter MatchFilter
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		user:       &domain.User{ID: "u1", Status: domain.UserActive},
		profile:    &domain.UserProfile{UserID: "u1", Alias: "ace", Gender: domain.GenderUnknown, AvatarMode: domain.AvatarModePreset},
		categories: map[string]*domain.Category{},
		mxCodes:    map[string]string{},
		presets:    map[string]*domain.AvatarPreset{},
	}
}

func (f *fakeRepo) UserByID(_ context.Context, id string) (*domain.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, ErrNotFound
	}
	return f.user, nil
}

func (f *fakeRepo) ProfileByUserID(_ context.Context, _ string) (*domain.UserProfile, error) {
	if f.profile == nil {
		return nil, ErrNotFound
	}
	p := *f.profile
	return &p, nil
}

func (f *fakeRepo) AliasInUse(_ context.Context, _, _ string) (bool, error) {
	return f.aliasTaken, nil
}

func (f *fakeRepo) CountUserMatches(_ context.Context, _, _ string) (int, error) {
	return f.matchCount, nil
}

func (f *fakeRepo) ApplyProfileUpdate(_ context.Context, _ string, u FieldUpdate, ladders []LadderUpsert) error {
	f.applied = &u
	f.appliedLads = ladders
	if u.Alias != nil {
		f.profile.Alias = *u.Alias
	}
	if u.Gender != nil {
		f.profile.Gender = *u.Gender
	}
	return nil
}

func (f *fakeRepo) CategoryByCode(_ context.Context, ladderCode, code string) (*domain.Category, error) {
	if c, ok := f.categories[ladderCode+":"+code]; ok {
		return c, nil
	}
	return nil, ErrInvalidCategory
}

func (f *fakeRepo) MxCode(_ context.Context, gender, primaryCode string) (string, error) {
	if c, ok := f.mxCodes[gender+":"+primaryCode]; ok {
		return c, nil
	}
	return "", ErrInvalidCategory
}

func (f *fakeRepo) LadderStates(_ context.Context, _ string) ([]LadderStateView, error) {
	return f.states, nil
}

func (f *fakeRepo) HasVerifiedIdentity(_ context.Context, _ string) (bool, error) {
	return f.verified, nil
}

func (f *fakeRepo) MyMatches(_ context.Context, _ string, filter MatchFilter) ([]MyMatchRow, error) {
	f.matchFilter = filter
	return nil, nil
}

func (f *fakeRepo) SetAvatar(_ context.Context, _ string, mode domain.AvatarMode, _, url *string) error {
	f.avatarMode = &mode
	f.avatarURL = url
	return nil
}

func (f *fakeRepo) AvatarPresetByKey(_ context.Context, key string) (*domain.AvatarPreset, error) {
	if p, ok := f.presets[key]; ok {
		return p, nil
	}
	return nil, ErrInvalidPreset
}

type fakeAvatars struct {
	key     string
	removed []string
}

func (f *fakeAvatars) Process(_ context.Context, _ string, _ []byte) (string, error) {
	return f.key, nil
}

func (f *fakeAvatars) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

func strPtr(s string) *string { return &s }

func TestMe(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, "")

	me, err := svc.Me(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", me.User.ID)
	assert.Equal(t, "ace", me.Profile.Alias)
}

func TestUpdateAlias(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, "")

	me, err := svc.Update(context.Background(), "u1", UpdateInput{
		FieldUpdate: FieldUpdate{Alias: strPtr("  newAce ")},
	})
	require.NoError(t, err)
	assert.Equal(t, "newAce", me.Profile.Alias)
	assert.Equal(t, "newAce", *repo.applied.Alias)
}

func TestUpdateAliasTaken(t *testing.T) {
	repo := newFakeRepo()
	repo.aliasTaken = true
	svc := NewService(repo, nil, "")

	_, err := svc.Update(context.Background(), "u1", UpdateInput{
		FieldUpdate: FieldUpdate{Alias: strPtr("taken")},
	})
	assert.ErrorIs(t, err, ErrAliasTaken)
}

func TestUpdateGenderOneShot(t *testing.T) {
	t.Run("first set succeeds", func(t *testing.T) {
		repo := newFakeRepo()
		svc := NewService(repo, nil, "")
		_, err := svc.Update(context.Background(), "u1", UpdateInput{
			FieldUpdate: FieldUpdate{Gender: strPtr(domain.GenderMale)},
		})
		assert.NoError(t, err)
	})
	t.Run("rejects invalid code", func(t *testing.T) {
		repo := newFakeRepo()
		svc := NewService(repo, nil, "")
		_, err := svc.Update(context.Background(), "u1", UpdateInput{
			FieldUpdate: FieldUpdate{Gender: strPtr("X")},
		})
		assert.ErrorIs(t, err, ErrInvalidGender)
	})
	t.Run("locked once set", func(t *testing.T) {
		repo := newFakeRepo()
		repo.profile.Gender = domain.GenderMale
		svc := NewService(repo, nil, "")
		_, err := svc.Update(context.Background(), "u1", UpdateInput{
			FieldUpdate: FieldUpdate{Gender: strPtr(domain.GenderFemale)},
		})
		assert.ErrorIs(t, err, ErrGenderLocked)
	})
	t.Run("locked after matches", func(t *testing.T) {
		repo := newFakeRepo()
		repo.matchCount = 3
		svc := NewService(repo, nil, "")
		_, err := svc.Update(context.Background(), "u1", UpdateInput{
			FieldUpdate: FieldUpdate{Gender: strPtr(domain.GenderFemale)},
		})
		assert.ErrorIs(t, err, ErrGenderLocked)
	})
	t.Run("same value is a no-op", func(t *testing.T) {
		repo := newFakeRepo()
		repo.profile.Gender = domain.GenderMale
		repo.matchCount = 3
		svc := NewService(repo, nil, "")
		_, err := svc.Update(context.Background(), "u1", UpdateInput{
			FieldUpdate: FieldUpdate{Gender: strPtr(domain.GenderMale)},
		})
		assert.NoError(t, err)
	})
}

func TestUpdateCountryNormalized(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, "")

	_, err := svc.Update(context.Background(), "u1", UpdateInput{
		FieldUpdate: FieldUpdate{Country: strPtr(" co ")},
	})
	require.NoError(t, err)
	assert.Equal(t, "CO", *repo.applied.Country)

	_, err = svc.Update(context.Background(), "u1", UpdateInput{
		FieldUpdate: FieldUpdate{Country: strPtr("COL")},
	})
	assert.ErrorIs(t, err, ErrInvalidCountry)
}

func TestUpdatePrimaryCategoryCreatesLadderStates(t *testing.T) {
	repo := newFakeRepo()
	repo.profile.Gender = domain.GenderFemale
	repo.categories["WM:B"] = &domain.Category{ID: "cat-wm-b", LadderCode: "WM", Code: "B"}
	repo.categories["MX:B"] = &domain.Category{ID: "cat-mx-b", LadderCode: "MX", Code: "B"}
	repo.mxCodes["F:B"] = "B"
	svc := NewService(repo, nil, "")

	_, err := svc.Update(context.Background(), "u1", UpdateInput{
		PrimaryCategoryCode: strPtr("B"),
	})
	require.NoError(t, err)
	require.Len(t, repo.appliedLads, 2)
	assert.Equal(t, LadderUpsert{LadderCode: domain.LadderWomen, CategoryID: "cat-wm-b"}, repo.appliedLads[0])
	assert.Equal(t, LadderUpsert{LadderCode: domain.LadderMixed, CategoryID: "cat-mx-b"}, repo.appliedLads[1])
}

func TestUpdatePrimaryCategoryNeedsGender(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, "")

	_, err := svc.Update(context.Background(), "u1", UpdateInput{
		PrimaryCategoryCode: strPtr("B"),
	})
	assert.ErrorIs(t, err, ErrGenderRequired)
}

func TestPlayEligibility(t *testing.T) {
	t.Run("missing profile", func(t *testing.T) {
		repo := newFakeRepo()
		repo.profile = nil
		svc := NewService(repo, nil, "")
		e, err := svc.PlayEligibility(context.Background(), "u1")
		require.NoError(t, err)
		assert.False(t, e.CanPlay)
		assert.Equal(t, []string{"profile"}, e.Missing)
	})
	t.Run("accumulates missing requirements", func(t *testing.T) {
		repo := newFakeRepo()
		repo.profile.Alias = ""
		svc := NewService(repo, nil, "")
		e, err := svc.PlayEligibility(context.Background(), "u1")
		require.NoError(t, err)
		assert.False(t, e.CanPlay)
		assert.Equal(t, []string{"verified_contact", "alias", "gender"}, e.Missing)
		assert.NotNil(t, e.Message)
	})
	t.Run("missing ladder state", func(t *testing.T) {
		repo := newFakeRepo()
		repo.verified = true
		repo.profile.Gender = domain.GenderMale
		svc := NewService(repo, nil, "")
		e, err := svc.PlayEligibility(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"category"}, e.Missing)
	})
	t.Run("fully eligible", func(t *testing.T) {
		repo := newFakeRepo()
		repo.verified = true
		repo.profile.Gender = domain.GenderMale
		repo.states = []LadderStateView{{LadderCode: domain.LadderMen}}
		svc := NewService(repo, nil, "")
		e, err := svc.PlayEligibility(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, e.CanPlay)
		assert.True(t, e.CanCreateMatch)
		assert.Empty(t, e.Missing)
		assert.Nil(t, e.Message)
	})
}

func TestMyMatchesClampsPaging(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, "")

	_, err := svc.MyMatches(context.Background(), "u1", MatchFilter{Limit: 500, Offset: -1})
	require.NoError(t, err)
	assert.Equal(t, 20, repo.matchFilter.Limit)
	assert.Equal(t, 0, repo.matchFilter.Offset)
}

func TestSetAvatarPresetRemovesOldUpload(t *testing.T) {
	repo := newFakeRepo()
	repo.presets["default_2"] = &domain.AvatarPreset{Key: "default_2", IsActive: true}
	repo.profile.AvatarMode = domain.AvatarModeUpload
	repo.profile.AvatarURL = strPtr("https://cdn.rivio.app/avatars/u1/old.webp")
	avatars := &fakeAvatars{}
	svc := NewService(repo, avatars, "https://cdn.rivio.app/")

	require.NoError(t, svc.SetAvatarPreset(context.Background(), "u1", "default_2"))
	require.NotNil(t, repo.avatarMode)
	assert.Equal(t, domain.AvatarModePreset, *repo.avatarMode)
	assert.Equal(t, []string{"avatars/u1/old.webp"}, avatars.removed)
}

func TestSetAvatarPresetUnknownKey(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, "")
	err := svc.SetAvatarPreset(context.Background(), "u1", "nope")
	assert.ErrorIs(t, err, ErrInvalidPreset)
}

func TestUploadAvatar(t *testing.T) {
	repo := newFakeRepo()
	avatars := &fakeAvatars{key: "avatars/u1/new.webp"}
	svc := NewService(repo, avatars, "https://cdn.rivio.app")

	url, err := svc.UploadAvatar(context.Background(), "u1", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.rivio.app/avatars/u1/new.webp", url)
	require.NotNil(t, repo.avatarMode)
	assert.Equal(t, domain.AvatarModeUpload, *repo.avatarMode)
	assert.Equal(t, url, *repo.avatarURL)
	assert.Empty(t, avatars.removed)
}
