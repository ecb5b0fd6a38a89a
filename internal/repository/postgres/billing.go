package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rivio/ranking-server/internal/audit"
	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/service/billing"
)

// BillingRepo implements billing.Repository against PostgreSQL.
type BillingRepo struct{ db *sql.DB }

// NewBillingRepo creates a Postgres-backed billing repository.
func NewBillingRepo(db *sql.DB) *BillingRepo { return &BillingRepo{db: db} }

func (r *BillingRepo) Overview(ctx context.Context, userID string) (*billing.Overview, error) {
	out := billing.Overview{EntitlementPlanCode: domain.PlanFree}

	err := r.db.QueryRowContext(ctx, `
		SELECT provider_customer_id FROM billing_customers WHERE user_id = $1
	`, userID).Scan(&out.ProviderCustomerID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("load billing customer: %w", err)
	}

	var plan domain.PlanCode
	err = r.db.QueryRowContext(ctx, `
		SELECT plan_code FROM user_entitlements WHERE user_id = $1
	`, userID).Scan(&plan)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("load entitlement: %w", err)
	}
	if err == nil {
		out.EntitlementPlanCode = plan
	}

	var sub domain.BillingSubscription
	err = r.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, provider_subscription_id, plan_code, status,
		       cancel_at_period_end, current_period_start, current_period_end,
		       started_at, canceled_at, created_at, updated_at
		FROM billing_subscriptions
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, userID).Scan(
		&sub.ID, &sub.UserID, &sub.Provider, &sub.ProviderSubscriptionID, &sub.PlanCode, &sub.Status,
		&sub.CancelAtPeriodEnd, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.StartedAt, &sub.CanceledAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if err == nil {
		out.Subscription = &sub
	}
	return &out, nil
}

func (r *BillingRepo) CreateCheckout(ctx context.Context, seed billing.CheckoutSeed) (*domain.BillingCheckoutSession, error) {
	var s domain.BillingCheckoutSession
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO billing_checkout_sessions (
			id, user_id, provider, plan_code, status,
			provider_checkout_id, checkout_url, success_url, cancel_url, expires_at
		)
		VALUES ($1, $2, $3, $4, 'created', $5, $6, $7, $8, $9)
		RETURNING id, user_id, provider, plan_code, status,
		          provider_checkout_id, checkout_url, success_url, cancel_url,
		          expires_at, completed_at, created_at, updated_at
	`, uuid.NewString(), seed.UserID, seed.Provider, seed.PlanCode,
		seed.ProviderCheckoutID, seed.CheckoutURL, seed.SuccessURL, seed.CancelURL, seed.ExpiresAt,
	).Scan(
		&s.ID, &s.UserID, &s.Provider, &s.PlanCode, &s.Status,
		&s.ProviderCheckoutID, &s.CheckoutURL, &s.SuccessURL, &s.CancelURL,
		&s.ExpiresAt, &s.CompletedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert checkout session: %w", err)
	}
	return &s, nil
}

func (r *BillingRepo) InsertEvent(ctx context.Context, seed billing.EventSeed) (string, bool, domain.WebhookEventStatus, error) {
	id := uuid.NewString()
	var inserted string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO billing_webhook_events (id, provider, event_id, event_type, user_id, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'received')
		ON CONFLICT (provider, event_id) DO NOTHING
		RETURNING id
	`, id, seed.Provider, seed.EventID, seed.EventType, seed.UserID, seed.Payload).Scan(&inserted)
	if err == nil {
		return inserted, true, domain.WebhookReceived, nil
	}
	if err != sql.ErrNoRows {
		return "", false, "", fmt.Errorf("insert webhook event: %w", err)
	}

	var prior domain.WebhookEventStatus
	err = r.db.QueryRowContext(ctx, `
		SELECT status FROM billing_webhook_events WHERE provider = $1 AND event_id = $2
	`, seed.Provider, seed.EventID).Scan(&prior)
	if err != nil {
		return "", false, "", fmt.Errorf("load prior event status: %w", err)
	}
	return "", false, prior, nil
}

func (r *BillingRepo) FinishEvent(ctx context.Context, id string, status domain.WebhookEventStatus, errMsg *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE billing_webhook_events
		SET status = $2, error_message = $3, processed_at = now()
		WHERE id = $1
	`, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("finish webhook event: %w", err)
	}
	return nil
}

func (r *BillingRepo) ResolveUser(ctx context.Context, provider domain.BillingProvider, subscriptionID, purchaseToken string) (string, error) {
	if subscriptionID != "" {
		var userID string
		err := r.db.QueryRowContext(ctx, `
			SELECT user_id FROM billing_subscriptions
			WHERE provider = $1 AND provider_subscription_id = $2
		`, provider, subscriptionID).Scan(&userID)
		if err == nil {
			return userID, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("resolve user by subscription: %w", err)
		}
	}
	if purchaseToken != "" {
		var userID string
		err := r.db.QueryRowContext(ctx, `
			SELECT user_id FROM billing_subscriptions
			WHERE provider = $1 AND raw_payload->>'purchase_token' = $2
			ORDER BY updated_at DESC
			LIMIT 1
		`, provider, purchaseToken).Scan(&userID)
		if err == nil {
			return userID, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("resolve user by purchase token: %w", err)
		}
	}
	return "", nil
}

func (r *BillingRepo) ApplySubscription(ctx context.Context, in billing.ApplyInput) (domain.PlanCode, error) {
	plan := domain.PlanFree
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO billing_customers (id, user_id, provider, provider_customer_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE
			SET provider = EXCLUDED.provider,
			    provider_customer_id = COALESCE(EXCLUDED.provider_customer_id, billing_customers.provider_customer_id),
			    updated_at = now()
		`, uuid.NewString(), in.UserID, in.Provider, in.ProviderCustomerID); err != nil {
			return fmt.Errorf("upsert billing customer: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO billing_subscriptions (
				id, user_id, provider, provider_subscription_id, plan_code, status,
				cancel_at_period_end, current_period_start, current_period_end,
				started_at, canceled_at, raw_payload
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(),
			        CASE WHEN $6 = 'canceled' THEN now() END, $10)
			ON CONFLICT (provider, provider_subscription_id) DO UPDATE
			SET user_id = EXCLUDED.user_id,
			    plan_code = EXCLUDED.plan_code,
			    status = EXCLUDED.status,
			    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			    current_period_start = COALESCE(EXCLUDED.current_period_start, billing_subscriptions.current_period_start),
			    current_period_end = COALESCE(EXCLUDED.current_period_end, billing_subscriptions.current_period_end),
			    canceled_at = CASE
			        WHEN EXCLUDED.status = 'canceled' AND billing_subscriptions.canceled_at IS NULL THEN now()
			        WHEN EXCLUDED.status <> 'canceled' THEN NULL
			        ELSE billing_subscriptions.canceled_at
			    END,
			    raw_payload = COALESCE(EXCLUDED.raw_payload, billing_subscriptions.raw_payload),
			    updated_at = now()
		`, uuid.NewString(), in.UserID, in.Provider, in.ProviderSubscriptionID, in.PlanCode, in.Status,
			in.CancelAtPeriodEnd, in.CurrentPeriodStart, in.CurrentPeriodEnd, in.Payload,
		); err != nil {
			return fmt.Errorf("upsert billing subscription: %w", err)
		}

		var (
			projected = domain.PlanFree
			ads       = true
			expiresAt *time.Time
		)
		if in.PlanCode == domain.PlanPlus && in.Status.EntitlesPlus() {
			projected = domain.PlanPlus
			ads = false
			expiresAt = in.CurrentPeriodEnd
		}

		if _, err := tx.ExecContext(ctx, `
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
		`, in.UserID, projected, ads, expiresAt); err != nil {
			return fmt.Errorf("project entitlement: %w", err)
		}
		plan = projected

		return audit.Append(ctx, tx, "", "entitlements", in.UserID, "subscription_applied", map[string]interface{}{
			"provider": string(in.Provider),
			"status":   string(in.Status),
			"plan":     string(projected),
		})
	})
	if err != nil {
		return "", err
	}
	return plan, nil
}

func (r *BillingRepo) StoreSubscriptionsDue(ctx context.Context, limit int) ([]billing.ReconcileRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, provider, provider_subscription_id, raw_payload
		FROM billing_subscriptions
		WHERE provider IN ('app_store', 'google_play')
		  AND status IN ('trialing', 'active', 'past_due')
		ORDER BY updated_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list store subscriptions: %w", err)
	}
	defer rows.Close()

	var out []billing.ReconcileRow
	for rows.Next() {
		var row billing.ReconcileRow
		if err := rows.Scan(&row.UserID, &row.Provider, &row.SubscriptionID, &row.RawPayload); err != nil {
			return nil, fmt.Errorf("scan reconcile row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
