package entitlement

import (
	"context"
	"time"

	"github.com/rivio/ranking-server/internal/domain"
)

// Repository persists entitlement rows.
type Repository interface {
	// Ensure inserts the FREE row if the user has none, then returns the
	// current row. Safe under concurrent first reads.
	Ensure(ctx context.Context, userID string) (*domain.Entitlement, error)

	// Set overwrites the user's entitlement. Used by the billing
	// projection and by dev-only simulation; writes an audit entry.
	Set(ctx context.Context, userID string, plan domain.PlanCode, expiresAt *time.Time, reason string) (*domain.Entitlement, error)
}
