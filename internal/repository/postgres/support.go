package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rivio/ranking-server/internal/audit"
	"github.com/rivio/ranking-server/internal/domain"
)

// SupportRepo implements support.Repository against PostgreSQL.
type SupportRepo struct{ db *sql.DB }

// NewSupportRepo creates a Postgres-backed support repository.
func NewSupportRepo(db *sql.DB) *SupportRepo { return &SupportRepo{db: db} }

func (r *SupportRepo) CountTicketsSince(ctx context.Context, userID string, t time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM support_tickets WHERE user_id = $1 AND created_at >= $2
	`, userID, t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return n, nil
}

func (r *SupportRepo) LastTicketAt(ctx context.Context, userID string) (*time.Time, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT created_at FROM support_tickets
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, userID).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last ticket: %w", err)
	}
	return &t, nil
}

func (r *SupportRepo) CreateTicket(ctx context.Context, userID string, category domain.TicketCategory, subject, message string) (*domain.SupportTicket, error) {
	var t domain.SupportTicket
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO support_tickets (id, user_id, category, subject, message, status)
			VALUES ($1, $2, $3, $4, $5, 'open')
			RETURNING id, user_id, category, subject, message, status, created_at, updated_at
		`, uuid.NewString(), userID, category, subject, message).Scan(
			&t.ID, &t.UserID, &t.Category, &t.Subject, &t.Message, &t.Status, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		return audit.Append(ctx, tx, userID, "support_ticket", t.ID, "created", map[string]interface{}{
			"category": string(category),
		})
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *SupportRepo) TicketsByUser(ctx context.Context, userID string, limit, offset int) ([]domain.SupportTicket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, category, subject, message, status, created_at, updated_at
		FROM support_tickets
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var out []domain.SupportTicket
	for rows.Next() {
		var t domain.SupportTicket
		if err := rows.Scan(&t.ID, &t.UserID, &t.Category, &t.Subject, &t.Message, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SupportRepo) EntitlementPlan(ctx context.Context, userID string) (domain.PlanCode, error) {
	var plan domain.PlanCode
	err := r.db.QueryRowContext(ctx, `
		SELECT plan_code FROM user_entitlements WHERE user_id = $1
	`, userID).Scan(&plan)
	if err == sql.ErrNoRows {
		return domain.PlanFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("load entitlement plan: %w", err)
	}
	return plan, nil
}
