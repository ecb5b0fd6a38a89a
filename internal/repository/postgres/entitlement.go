package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rivio/ranking-server/internal/audit"
	"github.com/rivio/ranking-server/internal/domain"
)

// EntitlementRepo implements entitlement.Repository against PostgreSQL.
type EntitlementRepo struct{ db *sql.DB }

// NewEntitlementRepo creates a Postgres-backed entitlement repository.
func NewEntitlementRepo(db *sql.DB) *EntitlementRepo { return &EntitlementRepo{db: db} }

const entitlementColumns = `
	user_id, plan_code, ads_enabled, activated_at, expires_at, created_at, updated_at`

func scanEntitlement(row interface{ Scan(...interface{}) error }) (*domain.Entitlement, error) {
	var e domain.Entitlement
	err := row.Scan(&e.UserID, &e.PlanCode, &e.AdsEnabled, &e.ActivatedAt, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Ensure lazily creates the FREE row so every user has an entitlement.
func (r *EntitlementRepo) Ensure(ctx context.Context, userID string) (*domain.Entitlement, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO user_entitlements (user_id, plan_code, ads_enabled)
		VALUES ($1, 'FREE', true)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return nil, fmt.Errorf("ensure entitlement: %w", err)
	}
	e, err := scanEntitlement(r.db.QueryRowContext(ctx,
		`SELECT `+entitlementColumns+` FROM user_entitlements WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("load entitlement: %w", err)
	}
	return e, nil
}

func (r *EntitlementRepo) Set(ctx context.Context, userID string, plan domain.PlanCode, expiresAt *time.Time, reason string) (*domain.Entitlement, error) {
	var e *domain.Entitlement
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		e, err = scanEntitlement(tx.QueryRowContext(ctx, `
			INSERT INTO user_entitlements (user_id, plan_code, ads_enabled, activated_at, expires_at)
			VALUES ($1, $2, $3, now(), $4)
			ON CONFLICT (user_id) DO UPDATE
			SET plan_code = EXCLUDED.plan_code,
			    ads_enabled = EXCLUDED.ads_enabled,
			    activated_at = CASE
			        WHEN user_entitlements.plan_code <> EXCLUDED.plan_code THEN now()
			        ELSE user_entitlements.activated_at
			    END,
			    expires_at = EXCLUDED.expires_at,
			    updated_at = now()
			RETURNING `+entitlementColumns,
			userID, plan, plan != domain.PlanPlus, expiresAt))
		if err != nil {
			return fmt.Errorf("set entitlement: %w", err)
		}
		return audit.Append(ctx, tx, userID, "entitlements", userID, reason, map[string]interface{}{
			"plan": string(plan),
		})
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}
