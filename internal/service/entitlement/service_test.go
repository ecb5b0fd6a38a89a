package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivio/ranking-server/internal/domain"
)

type fakeRepo struct {
	rows    map[string]*domain.Entitlement
	setCall int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[string]*domain.Entitlement{}}
}

func (f *fakeRepo) Ensure(_ context.Context, userID string) (*domain.Entitlement, error) {
	if e, ok := f.rows[userID]; ok {
		return e, nil
	}
	e := &domain.Entitlement{UserID: userID, PlanCode: domain.PlanFree, AdsEnabled: true}
	f.rows[userID] = e
	return e, nil
}

func (f *fakeRepo) Set(_ context.Context, userID string, plan domain.PlanCode, expiresAt *time.Time, _ string) (*domain.Entitlement, error) {
	f.setCall++
	e := &domain.Entitlement{
		UserID:     userID,
		PlanCode:   plan,
		AdsEnabled: plan != domain.PlanPlus,
		ExpiresAt:  expiresAt,
	}
	f.rows[userID] = e
	return e, nil
}

func TestEffectivePlanDefaultsToFree(t *testing.T) {
	svc := NewService(newFakeRepo(), Config{})

	plan, err := svc.EffectivePlan(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, plan)
}

func TestEffectivePlanDegradesExpiredPlus(t *testing.T) {
	repo := newFakeRepo()
	past := time.Now().Add(-time.Hour)
	repo.rows["u1"] = &domain.Entitlement{UserID: "u1", PlanCode: domain.PlanPlus, ExpiresAt: &past}

	svc := NewService(repo, Config{})
	plan, err := svc.EffectivePlan(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, plan)
}

func TestEffectivePlanKeepsLivePlusAndOpenEnded(t *testing.T) {
	repo := newFakeRepo()
	future := time.Now().Add(time.Hour)
	repo.rows["u1"] = &domain.Entitlement{UserID: "u1", PlanCode: domain.PlanPlus, ExpiresAt: &future}
	repo.rows["u2"] = &domain.Entitlement{UserID: "u2", PlanCode: domain.PlanPlus}

	svc := NewService(repo, Config{})
	for _, id := range []string{"u1", "u2"} {
		plan, err := svc.EffectivePlan(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.PlanPlus, plan)
	}
}

func TestUserContract(t *testing.T) {
	repo := newFakeRepo()
	past := time.Now().Add(-time.Minute)
	repo.rows["u1"] = &domain.Entitlement{UserID: "u1", PlanCode: domain.PlanPlus, ExpiresAt: &past}

	svc := NewService(repo, Config{})
	c, err := svc.UserContract(context.Background(), "u1")
	require.NoError(t, err)

	// stored row still says PLUS, effective set is degraded
	assert.Equal(t, domain.PlanPlus, c.Current.PlanCode)
	assert.Equal(t, domain.PlanFree, c.Effective.PlanCode)
	assert.False(t, c.Effective.ExportEnabled)
	assert.True(t, c.Effective.AdsEnabled)
	assert.True(t, c.Plus.ExportEnabled)
}

func TestSimulateRequiresDevMode(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, Config{DevMode: false})

	_, err := svc.Simulate(context.Background(), "u1", domain.PlanPlus, nil)
	assert.ErrorIs(t, err, ErrSimulateDisabled)
	assert.Zero(t, repo.setCall)
}

func TestSimulateRejectsUnknownPlan(t *testing.T) {
	svc := NewService(newFakeRepo(), Config{DevMode: true})

	_, err := svc.Simulate(context.Background(), "u1", domain.PlanCode("GOLD"), nil)
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestSimulateSetsPlan(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, Config{DevMode: true})

	ent, err := svc.Simulate(context.Background(), "u1", domain.PlanPlus, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPlus, ent.PlanCode)
	assert.False(t, ent.AdsEnabled)

	plan, err := svc.EffectivePlan(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPlus, plan)
}

func TestCatalogListsBothPlans(t *testing.T) {
	svc := NewService(newFakeRepo(), Config{})
	plans := svc.Catalog()
	require.Len(t, plans, 2)
	assert.Equal(t, domain.PlanFree, plans[0].PlanCode)
	assert.Equal(t, domain.PlanPlus, plans[1].PlanCode)
}
