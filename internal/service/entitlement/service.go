package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/rivio/ranking-server/internal/domain"
)

// FeatureSet describes what a plan unlocks. KPIs and series name the
// analytics widgets a client may render.
type FeatureSet struct {
	PlanCode      domain.PlanCode `json:"plan_code"`
	DisplayName   string          `json:"display_name"`
	AnalyticsKPIs []string        `json:"analytics_kpis"`
	Series        []string        `json:"series"`
	ExportEnabled bool            `json:"export_enabled"`
	AdsEnabled    bool            `json:"ads_enabled"`
}

func freeFeatures() FeatureSet {
	return FeatureSet{
		PlanCode:    domain.PlanFree,
		DisplayName: "Rivio",
		AnalyticsKPIs: []string{
			"total_verified_matches",
			"wins_losses",
			"win_rate",
			"current_streak",
			"current_rating",
			"peak_rating",
			"recent_10_summary",
		},
		Series: []string{
			"rating_trend_last_20",
			"recent_win_rate_last_10",
		},
		ExportEnabled: false,
		AdsEnabled:    true,
	}
}

func plusFeatures() FeatureSet {
	return FeatureSet{
		PlanCode:    domain.PlanPlus,
		DisplayName: "Rivio+",
		AnalyticsKPIs: []string{
			"total_verified_matches",
			"wins_losses",
			"win_rate",
			"current_streak",
			"best_streaks",
			"current_rating",
			"peak_rating",
			"recent_10_summary",
			"rolling_win_rate_5_20_50",
			"activity_7_30_90",
			"close_matches_rate",
			"performance_vs_stronger_similar_weaker",
		},
		Series: []string{
			"rating_trend",
			"rolling_win_rate_timeline_10_20_50",
			"volume_week_month",
			"streak_timeline",
			"top_partners",
			"top_rivals",
		},
		ExportEnabled: true,
		AdsEnabled:    false,
	}
}

// Features returns the feature set for a plan.
func Features(plan domain.PlanCode) FeatureSet {
	if plan == domain.PlanPlus {
		return plusFeatures()
	}
	return freeFeatures()
}

// Contract is the full client-facing entitlement view: the stored row,
// both plan definitions, and the already-degraded effective set.
type Contract struct {
	Current   *domain.Entitlement `json:"current"`
	Basic     FeatureSet          `json:"basic"`
	Plus      FeatureSet          `json:"plus"`
	Effective FeatureSet          `json:"effective"`
}

// Config carries the environment switches for the entitlement service.
type Config struct {
	// DevMode unlocks plan simulation.
	DevMode bool
}

// Service reads and (in dev) writes entitlement state.
type Service struct {
	repo Repository
	cfg  Config
	now  func() time.Time
}

// NewService creates an entitlement service.
func NewService(repo Repository, cfg Config) *Service {
	return &Service{repo: repo, cfg: cfg, now: time.Now}
}

// EffectivePlan resolves the plan the user is entitled to right now,
// creating the FREE row on first contact and degrading expired premium.
func (s *Service) EffectivePlan(ctx context.Context, userID string) (domain.PlanCode, error) {
	ent, err := s.repo.Ensure(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("ensure entitlement: %w", err)
	}
	return ent.EffectivePlan(s.now().UTC()), nil
}

// UserContract returns the caller's entitlement contract.
func (s *Service) UserContract(ctx context.Context, userID string) (*Contract, error) {
	ent, err := s.repo.Ensure(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ensure entitlement: %w", err)
	}
	return &Contract{
		Current:   ent,
		Basic:     freeFeatures(),
		Plus:      plusFeatures(),
		Effective: Features(ent.EffectivePlan(s.now().UTC())),
	}, nil
}

// Catalog lists every plan definition. Public, no auth required.
func (s *Service) Catalog() []FeatureSet {
	return []FeatureSet{freeFeatures(), plusFeatures()}
}

// Simulate overwrites the caller's entitlement without a provider event.
// Development environments only; hidden elsewhere.
func (s *Service) Simulate(ctx context.Context, userID string, plan domain.PlanCode, expiresAt *time.Time) (*domain.Entitlement, error) {
	if !s.cfg.DevMode {
		return nil, ErrSimulateDisabled
	}
	if !plan.Valid() {
		return nil, ErrInvalidPlan
	}
	ent, err := s.repo.Set(ctx, userID, plan, expiresAt, "plan_simulated")
	if err != nil {
		return nil, fmt.Errorf("simulate entitlement: %w", err)
	}
	return ent, nil
}
