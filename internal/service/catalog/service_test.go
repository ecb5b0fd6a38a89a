package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivio/ranking-server/internal/domain"
)

type fakeRepo struct {
	gotLadder string
}

func (f *fakeRepo) ActiveClubs(_ context.Context) ([]domain.Club, error) {
	return []domain.Club{{ID: "c1", Name: "Club Padel Neiva"}}, nil
}

func (f *fakeRepo) ActiveLadders(_ context.Context) ([]domain.Ladder, error) {
	return []domain.Ladder{{Code: "HM"}, {Code: "MX"}, {Code: "WM"}}, nil
}

func (f *fakeRepo) CategoriesByLadder(_ context.Context, ladderCode string) ([]domain.Category, error) {
	f.gotLadder = ladderCode
	return []domain.Category{{Code: "1ra", SortOrder: 1}}, nil
}

func (f *fakeRepo) ActivePresets(_ context.Context) ([]domain.AvatarPreset, error) {
	return []domain.AvatarPreset{{Key: "default_1"}}, nil
}

func TestCatalogReads(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	clubs, err := svc.Clubs(ctx)
	require.NoError(t, err)
	assert.Len(t, clubs, 1)

	ladders, err := svc.Ladders(ctx)
	require.NoError(t, err)
	assert.Len(t, ladders, 3)

	presets, err := svc.AvatarPresets(ctx)
	require.NoError(t, err)
	assert.Len(t, presets, 1)
}

func TestCategoriesValidatesLadder(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)

	cats, err := svc.Categories(context.Background(), "HM")
	require.NoError(t, err)
	assert.Len(t, cats, 1)
	assert.Equal(t, "HM", repo.gotLadder)

	_, err = svc.Categories(context.Background(), "XX")
	assert.ErrorIs(t, err, ErrInvalidLadder)
}
