package domain

import (
	"encoding/json"
	"time"
)

// PlanCode is a subscription tier.
type PlanCode string

const (
	PlanFree PlanCode = "FREE"
	PlanPlus PlanCode = "RIVIO_PLUS"
)

// Valid reports whether p is a known plan.
func (p PlanCode) Valid() bool {
	return p == PlanFree || p == PlanPlus
}

// BillingProvider identifies where subscription state originates.
type BillingProvider string

const (
	ProviderNone       BillingProvider = "none"
	ProviderStripe     BillingProvider = "stripe"
	ProviderAppStore   BillingProvider = "app_store"
	ProviderGooglePlay BillingProvider = "google_play"
	ProviderManual     BillingProvider = "manual"
)

// Valid reports whether p is a known provider code.
func (p BillingProvider) Valid() bool {
	switch p {
	case ProviderNone, ProviderStripe, ProviderAppStore, ProviderGooglePlay, ProviderManual:
		return true
	}
	return false
}

// SubscriptionStatus mirrors provider-side subscription lifecycles.
type SubscriptionStatus string

const (
	SubTrialing           SubscriptionStatus = "trialing"
	SubActive             SubscriptionStatus = "active"
	SubPastDue            SubscriptionStatus = "past_due"
	SubCanceled           SubscriptionStatus = "canceled"
	SubIncomplete         SubscriptionStatus = "incomplete"
	SubIncompleteExpired  SubscriptionStatus = "incomplete_expired"
	SubUnpaid             SubscriptionStatus = "unpaid"
)

// Valid reports whether s is a known subscription status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubTrialing, SubActive, SubPastDue, SubCanceled, SubIncomplete, SubIncompleteExpired, SubUnpaid:
		return true
	}
	return false
}

// EntitlesPlus reports whether this status grants the premium plan.
func (s SubscriptionStatus) EntitlesPlus() bool {
	return s == SubTrialing || s == SubActive || s == SubPastDue
}

// BillingCustomer links a user to a provider-side customer record.
type BillingCustomer struct {
	ID                 string          `json:"id" db:"id"`
	UserID             string          `json:"user_id" db:"user_id"`
	Provider           BillingProvider `json:"provider" db:"provider"`
	ProviderCustomerID *string         `json:"provider_customer_id,omitempty" db:"provider_customer_id"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// BillingSubscription is the provider-agnostic subscription snapshot.
// Unique on (provider, provider_subscription_id).
type BillingSubscription struct {
	ID                     string             `json:"id" db:"id"`
	UserID                 string             `json:"user_id" db:"user_id"`
	Provider               BillingProvider    `json:"provider" db:"provider"`
	ProviderSubscriptionID string             `json:"provider_subscription_id" db:"provider_subscription_id"`
	PlanCode               PlanCode           `json:"plan_code" db:"plan_code"`
	Status                 SubscriptionStatus `json:"status" db:"status"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	CurrentPeriodStart     *time.Time         `json:"current_period_start,omitempty" db:"current_period_start"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty" db:"current_period_end"`
	StartedAt              time.Time          `json:"started_at" db:"started_at"`
	CanceledAt             *time.Time         `json:"canceled_at,omitempty" db:"canceled_at"`
	RawPayload             json.RawMessage    `json:"-" db:"raw_payload"`
	CreatedAt              time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at" db:"updated_at"`
}

// WebhookEventStatus tracks processing outcome for an ingested event.
type WebhookEventStatus string

const (
	WebhookReceived  WebhookEventStatus = "received"
	WebhookProcessed WebhookEventStatus = "processed"
	WebhookIgnored   WebhookEventStatus = "ignored"
	WebhookError     WebhookEventStatus = "error"
)

// BillingWebhookEvent is the at-most-once ingestion record; the
// (provider, event_id) unique key deduplicates concurrent deliveries.
type BillingWebhookEvent struct {
	ID           string             `json:"id" db:"id"`
	Provider     BillingProvider    `json:"provider" db:"provider"`
	EventID      string             `json:"event_id" db:"event_id"`
	EventType    string             `json:"event_type" db:"event_type"`
	UserID       *string            `json:"user_id,omitempty" db:"user_id"`
	Payload      json.RawMessage    `json:"-" db:"payload"`
	Status       WebhookEventStatus `json:"status" db:"status"`
	ErrorMessage *string            `json:"error_message,omitempty" db:"error_message"`
	ReceivedAt   time.Time          `json:"received_at" db:"received_at"`
	ProcessedAt  *time.Time         `json:"processed_at,omitempty" db:"processed_at"`
}

// BillingCheckoutSession tracks a checkout attempt until the provider
// reports its outcome.
type BillingCheckoutSession struct {
	ID                 string          `json:"id" db:"id"`
	UserID             string          `json:"user_id" db:"user_id"`
	Provider           BillingProvider `json:"provider" db:"provider"`
	PlanCode           PlanCode        `json:"plan_code" db:"plan_code"`
	Status             string          `json:"status" db:"status"`
	ProviderCheckoutID *string         `json:"provider_checkout_id,omitempty" db:"provider_checkout_id"`
	CheckoutURL        *string         `json:"checkout_url,omitempty" db:"checkout_url"`
	SuccessURL         *string         `json:"success_url,omitempty" db:"success_url"`
	CancelURL          *string         `json:"cancel_url,omitempty" db:"cancel_url"`
	ExpiresAt          *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// Entitlement is the projected capability snapshot consulted by feature
// gates. PlanPlus forces AdsEnabled=false; PlanFree forces it true.
type Entitlement struct {
	UserID      string     `json:"user_id" db:"user_id"`
	PlanCode    PlanCode   `json:"plan_code" db:"plan_code"`
	AdsEnabled  bool       `json:"ads_enabled" db:"ads_enabled"`
	ActivatedAt time.Time  `json:"activated_at" db:"activated_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// EffectivePlan degrades an expired premium entitlement to FREE at read
// time without waiting for the projection to catch up.
func (e Entitlement) EffectivePlan(now time.Time) PlanCode {
	if e.PlanCode == PlanPlus && e.ExpiresAt != nil && now.After(*e.ExpiresAt) {
		return PlanFree
	}
	return e.PlanCode
}
