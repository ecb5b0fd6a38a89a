package billing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rivio/ranking-server/internal/domain"
)

// Overview is the authenticated billing snapshot for one user.
type Overview struct {
	Provider            domain.BillingProvider      `json:"provider"`
	ProviderCustomerID  *string                     `json:"provider_customer_id,omitempty"`
	EntitlementPlanCode domain.PlanCode             `json:"entitlement_plan_code"`
	CheckoutSupported   bool                        `json:"checkout_supported"`
	WebhookConfigured   bool                        `json:"webhook_configured"`
	Subscription        *domain.BillingSubscription `json:"subscription,omitempty"`
}

// ApplyInput carries one subscription state change through the
// customer/subscription/entitlement projection.
type ApplyInput struct {
	UserID                 string
	Provider               domain.BillingProvider
	ProviderCustomerID     *string
	ProviderSubscriptionID string
	PlanCode               domain.PlanCode
	Status                 domain.SubscriptionStatus
	CancelAtPeriodEnd      bool
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	Payload                json.RawMessage
}

// EventSeed is the dedup record for one webhook delivery.
type EventSeed struct {
	Provider  domain.BillingProvider
	EventID   string
	EventType string
	UserID    *string
	Payload   json.RawMessage
}

// ReconcileRow is one store-managed subscription due for re-validation.
type ReconcileRow struct {
	UserID         string
	Provider       domain.BillingProvider
	SubscriptionID string
	RawPayload     json.RawMessage
}

// CheckoutSeed creates a checkout session row.
type CheckoutSeed struct {
	UserID             string
	Provider           domain.BillingProvider
	PlanCode           domain.PlanCode
	ProviderCheckoutID *string
	CheckoutURL        *string
	SuccessURL         string
	CancelURL          string
	ExpiresAt          *time.Time
}

// Repository persists billing state.
type Repository interface {
	// Overview loads the user's customer link, latest subscription, and
	// projected plan. Missing rows degrade to FREE with nil subscription.
	Overview(ctx context.Context, userID string) (*Overview, error)

	// CreateCheckout inserts a checkout session row with status 'created'.
	CreateCheckout(ctx context.Context, seed CheckoutSeed) (*domain.BillingCheckoutSession, error)

	// InsertEvent records a webhook delivery with status 'received'.
	// When the (provider, event_id) key already exists it returns
	// inserted=false with the prior row's status and no new row.
	InsertEvent(ctx context.Context, seed EventSeed) (id string, inserted bool, prior domain.WebhookEventStatus, err error)

	// FinishEvent stamps the processing outcome on an event row.
	FinishEvent(ctx context.Context, id string, status domain.WebhookEventStatus, errMsg *string) error

	// ResolveUser finds the owner of a subscription by provider key or,
	// failing that, by the purchase token stored in raw payloads.
	// Returns "" when no owner is known.
	ResolveUser(ctx context.Context, provider domain.BillingProvider, subscriptionID, purchaseToken string) (string, error)

	// ApplySubscription upserts customer and subscription rows and
	// projects the entitlement, all in one transaction. Returns the
	// projected plan.
	ApplySubscription(ctx context.Context, in ApplyInput) (domain.PlanCode, error)

	// StoreSubscriptionsDue lists app-store and google-play subscriptions
	// in an entitling status, oldest update first.
	StoreSubscriptionsDue(ctx context.Context, limit int) ([]ReconcileRow, error)
}
