package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rivio/ranking-server/internal/domain"
)

const (
	checkoutStubTTL   = 30 * time.Minute
	eventErrorMaxLen  = 1000
	reconcileMaxBatch = 2000
)

// Config carries the provider selection and webhook verification knobs.
type Config struct {
	Provider           string
	WebhookSecret      string
	RequireSignature   bool
	WebhookMaxAge      time.Duration
	ProductPlans       map[string]string
	CheckoutSuccessURL string
	CheckoutCancelURL  string
	DevMode            bool
}

// Service owns webhook ingestion, receipt validation, checkout, and the
// entitlement projection around them.
type Service struct {
	repo       Repository
	cfg        Config
	appStore   *AppStoreClient
	googlePlay *GooglePlayClient
	now        func() time.Time
}

// NewService creates a billing service. Store clients may be nil when
// their credentials are not configured.
func NewService(repo Repository, cfg Config, appStore *AppStoreClient, googlePlay *GooglePlayClient) *Service {
	return &Service{
		repo:       repo,
		cfg:        cfg,
		appStore:   appStore,
		googlePlay: googlePlay,
		now:        time.Now,
	}
}

// Provider returns the configured provider, degraded to none when the
// configured code is unknown.
func (s *Service) Provider() domain.BillingProvider {
	p := domain.BillingProvider(strings.ToLower(strings.TrimSpace(s.cfg.Provider)))
	if !p.Valid() {
		return domain.ProviderNone
	}
	return p
}

// Me returns the caller's billing snapshot.
func (s *Service) Me(ctx context.Context, userID string) (*Overview, error) {
	out, err := s.repo.Overview(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load billing overview: %w", err)
	}
	out.Provider = s.Provider()
	out.CheckoutSupported = out.Provider != domain.ProviderNone
	out.WebhookConfigured = s.cfg.WebhookSecret != ""
	return out, nil
}

// CheckoutResult describes a created checkout session. Store-managed and
// unconfigured providers produce stub sessions with no hosted URL.
type CheckoutResult struct {
	SessionID   string     `json:"session_id"`
	Provider    string     `json:"provider"`
	PlanCode    string     `json:"plan_code"`
	Status      string     `json:"status"`
	CheckoutURL *string    `json:"checkout_url"`
	IsStub      bool       `json:"is_stub"`
	Detail      string     `json:"detail"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// CreateCheckout opens a checkout session for the caller. Hosted
// checkout is not wired for any provider yet; store purchases go through
// receipt validation instead.
func (s *Service) CreateCheckout(ctx context.Context, userID, planCode, successURL, cancelURL string) (*CheckoutResult, error) {
	plan := domain.PlanCode(strings.ToUpper(strings.TrimSpace(planCode)))
	if !plan.Valid() {
		return nil, ErrInvalidPlan
	}
	if successURL == "" {
		successURL = s.cfg.CheckoutSuccessURL
	}
	if cancelURL == "" {
		cancelURL = s.cfg.CheckoutCancelURL
	}

	provider := s.Provider()
	switch provider {
	case domain.ProviderNone, domain.ProviderAppStore, domain.ProviderGooglePlay:
	default:
		return nil, ErrCheckoutUnsupported
	}

	detail := "Billing provider not configured; checkout runs in stub mode."
	if provider == domain.ProviderAppStore || provider == domain.ProviderGooglePlay {
		detail = "Store-managed purchase: use server-side App Store / Google Play validation."
	}

	expiresAt := s.now().UTC().Add(checkoutStubTTL)
	checkoutID := "stub_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	row, err := s.repo.CreateCheckout(ctx, CheckoutSeed{
		UserID:             userID,
		Provider:           provider,
		PlanCode:           plan,
		ProviderCheckoutID: &checkoutID,
		SuccessURL:         successURL,
		CancelURL:          cancelURL,
		ExpiresAt:          &expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutResult{
		SessionID: row.ID,
		Provider:  string(provider),
		PlanCode:  string(plan),
		Status:    row.Status,
		IsStub:    true,
		Detail:    detail,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

// IngestResult is the webhook endpoint's response.
type IngestResult struct {
	Provider  string `json:"provider"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
	Processed bool   `json:"processed"`
	Status    string `json:"status"`
}

// Ingest verifies, records, and dispatches one webhook delivery. The
// unique (provider, event_id) key makes concurrent redeliveries collapse
// into a duplicate response with no extra side effects.
func (s *Service) Ingest(ctx context.Context, providerCode string, header http.Header, body []byte) (*IngestResult, error) {
	provider := domain.BillingProvider(strings.ToLower(strings.TrimSpace(providerCode)))
	if !provider.Valid() {
		return nil, ErrInvalidProvider
	}

	if s.cfg.RequireSignature {
		if err := verifySignature(provider, header, body, s.cfg.WebhookSecret, s.cfg.WebhookMaxAge, s.now()); err != nil {
			return nil, err
		}
	}

	ev, err := normalizeEvent(provider, body)
	if err != nil {
		return nil, err
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, ErrInvalidEvent
	}

	userID := ev.Data.UserID
	if userID == "" {
		if userID, err = s.repo.ResolveUser(ctx, provider, ev.Data.ProviderSubscriptionID, ev.Data.PurchaseToken); err != nil {
			return nil, fmt.Errorf("resolve event user: %w", err)
		}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal normalized event: %w", err)
	}
	seed := EventSeed{Provider: provider, EventID: ev.ID, EventType: ev.Type, Payload: payload}
	if userID != "" {
		seed.UserID = &userID
	}

	rowID, inserted, prior, err := s.repo.InsertEvent(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	if !inserted {
		return &IngestResult{
			Provider:  string(provider),
			EventID:   ev.ID,
			Duplicate: true,
			Processed: prior == domain.WebhookProcessed || prior == domain.WebhookIgnored,
			Status:    string(prior),
		}, nil
	}

	status := domain.WebhookIgnored
	var errMsg *string
	if derr := s.dispatch(ctx, provider, userID, ev); derr != nil {
		if errors.Is(derr, errEventIgnored) {
			status = domain.WebhookIgnored
		} else {
			status = domain.WebhookError
			msg := derr.Error()
			if len(msg) > eventErrorMaxLen {
				msg = msg[:eventErrorMaxLen]
			}
			errMsg = &msg
		}
	} else {
		status = domain.WebhookProcessed
	}

	if err := s.repo.FinishEvent(ctx, rowID, status, errMsg); err != nil {
		return nil, fmt.Errorf("finish webhook event: %w", err)
	}
	return &IngestResult{
		Provider:  string(provider),
		EventID:   ev.ID,
		Duplicate: false,
		Processed: status == domain.WebhookProcessed,
		Status:    string(status),
	}, nil
}

// errEventIgnored marks deliveries that are recorded but not actionable.
var errEventIgnored = errors.New("event ignored")

func (s *Service) dispatch(ctx context.Context, provider domain.BillingProvider, userID string, ev Event) error {
	if userID == "" || ev.Data.ProviderSubscriptionID == "" {
		return errEventIgnored
	}

	switch ev.Type {
	case eventSubCreated, eventSubUpdated, eventSubRenewed, eventInvoicePaid:
		plan, err := s.planForEvent(ev.Data)
		if err != nil {
			return err
		}
		return s.apply(ctx, provider, userID, ev, plan, normalizeStatus(ev.Data.Status), ev.Data.CancelAtPeriodEnd)
	case eventSubDeleted, eventSubCanceled, eventInvoiceFailed:
		plan, err := s.planForEvent(ev.Data)
		if err != nil {
			return err
		}
		return s.apply(ctx, provider, userID, ev, plan, domain.SubCanceled, true)
	default:
		return errEventIgnored
	}
}

func (s *Service) apply(ctx context.Context, provider domain.BillingProvider, userID string, ev Event, plan domain.PlanCode, status domain.SubscriptionStatus, cancelAtPeriodEnd bool) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	in := ApplyInput{
		UserID:                 userID,
		Provider:               provider,
		ProviderSubscriptionID: ev.Data.ProviderSubscriptionID,
		PlanCode:               plan,
		Status:                 status,
		CancelAtPeriodEnd:      cancelAtPeriodEnd,
		CurrentPeriodStart:     ev.Data.CurrentPeriodStart,
		CurrentPeriodEnd:       ev.Data.CurrentPeriodEnd,
		Payload:                payload,
	}
	if ev.Data.ProviderCustomerID != "" {
		in.ProviderCustomerID = &ev.Data.ProviderCustomerID
	}
	if _, err := s.repo.ApplySubscription(ctx, in); err != nil {
		return fmt.Errorf("apply subscription state: %w", err)
	}
	return nil
}

func (s *Service) planForEvent(data EventData) (domain.PlanCode, error) {
	if data.ProductID != "" {
		mapped, ok := s.cfg.ProductPlans[data.ProductID]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnmappedProduct, data.ProductID)
		}
		plan := domain.PlanCode(strings.ToUpper(mapped))
		if !plan.Valid() {
			return "", ErrInvalidPlan
		}
		return plan, nil
	}
	plan := domain.PlanCode(strings.ToUpper(strings.TrimSpace(data.PlanCode)))
	if plan == "" {
		plan = domain.PlanFree
	}
	if !plan.Valid() {
		return "", ErrInvalidPlan
	}
	return plan, nil
}

func normalizeStatus(raw string) domain.SubscriptionStatus {
	st := domain.SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !st.Valid() {
		return domain.SubIncomplete
	}
	return st
}

// StoreValidationResult is returned by the receipt validation endpoints.
type StoreValidationResult struct {
	Provider               string     `json:"provider"`
	ProviderSubscriptionID string     `json:"provider_subscription_id"`
	ProductID              string     `json:"product_id"`
	Status                 string     `json:"status"`
	CurrentPeriodStart     *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	EntitlementPlanCode    string     `json:"entitlement_plan_code"`
}

// ValidateAppStore verifies an App Store receipt and syncs the resulting
// subscription state onto the caller.
func (s *Service) ValidateAppStore(ctx context.Context, userID, receiptData, environment string) (*StoreValidationResult, error) {
	if s.appStore == nil {
		return nil, ErrStoreUnavailable
	}
	val, err := s.appStore.Validate(ctx, receiptData, environment)
	if err != nil {
		return nil, err
	}
	return s.syncStoreValidation(ctx, userID, val)
}

// ValidateGooglePlay verifies a Play purchase token and syncs the
// resulting subscription state onto the caller.
func (s *Service) ValidateGooglePlay(ctx context.Context, userID, purchaseToken, packageName string) (*StoreValidationResult, error) {
	if s.googlePlay == nil {
		return nil, ErrStoreUnavailable
	}
	val, err := s.googlePlay.Validate(ctx, purchaseToken, packageName)
	if err != nil {
		return nil, err
	}
	return s.syncStoreValidation(ctx, userID, val)
}

func (s *Service) syncStoreValidation(ctx context.Context, userID string, val *StoreValidation) (*StoreValidationResult, error) {
	mapped, ok := s.cfg.ProductPlans[val.ProductID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnmappedProduct, val.ProductID)
	}
	plan := domain.PlanCode(strings.ToUpper(mapped))
	if !plan.Valid() {
		return nil, ErrInvalidPlan
	}

	payload, err := json.Marshal(val.RawPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal store payload: %w", err)
	}
	in := ApplyInput{
		UserID:                 userID,
		Provider:               val.Provider,
		ProviderSubscriptionID: val.ProviderSubscriptionID,
		PlanCode:               plan,
		Status:                 val.Status,
		CancelAtPeriodEnd:      val.CancelAtPeriodEnd,
		CurrentPeriodStart:     val.CurrentPeriodStart,
		CurrentPeriodEnd:       val.CurrentPeriodEnd,
		Payload:                payload,
	}
	if val.ProviderCustomerID != "" {
		in.ProviderCustomerID = &val.ProviderCustomerID
	}
	entPlan, err := s.repo.ApplySubscription(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("sync store validation: %w", err)
	}
	return &StoreValidationResult{
		Provider:               string(val.Provider),
		ProviderSubscriptionID: val.ProviderSubscriptionID,
		ProductID:              val.ProductID,
		Status:                 string(val.Status),
		CurrentPeriodStart:     val.CurrentPeriodStart,
		CurrentPeriodEnd:       val.CurrentPeriodEnd,
		EntitlementPlanCode:    string(entPlan),
	}, nil
}

// SimulateInput drives a synthetic subscription state change in dev.
type SimulateInput struct {
	Provider               string `json:"provider"`
	ProviderCustomerID     string `json:"provider_customer_id"`
	ProviderSubscriptionID string `json:"provider_subscription_id"`
	PlanCode               string `json:"plan_code"`
	Status                 string `json:"status"`
	PeriodDays             int    `json:"period_days"`
	CancelAtPeriodEnd      bool   `json:"cancel_at_period_end"`
}

// Simulate applies a subscription state without a provider event.
// Development environments only.
func (s *Service) Simulate(ctx context.Context, actorUserID string, in SimulateInput) (domain.PlanCode, error) {
	if !s.cfg.DevMode {
		return "", ErrSimulateDisabled
	}
	provider := domain.BillingProvider(strings.ToLower(strings.TrimSpace(in.Provider)))
	if !provider.Valid() {
		return "", ErrInvalidProvider
	}
	plan := domain.PlanCode(strings.ToUpper(strings.TrimSpace(in.PlanCode)))
	if !plan.Valid() {
		return "", ErrInvalidPlan
	}
	st := domain.SubscriptionStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	if in.PeriodDays <= 0 {
		in.PeriodDays = 30
	}

	now := s.now().UTC()
	end := now.AddDate(0, 0, in.PeriodDays)
	payload, _ := json.Marshal(map[string]string{"source": "simulate", "at": now.Format(time.RFC3339)})
	apply := ApplyInput{
		UserID:                 actorUserID,
		Provider:               provider,
		ProviderSubscriptionID: in.ProviderSubscriptionID,
		PlanCode:               plan,
		Status:                 st,
		CancelAtPeriodEnd:      in.CancelAtPeriodEnd,
		CurrentPeriodStart:     &now,
		CurrentPeriodEnd:       &end,
		Payload:                payload,
	}
	if in.ProviderCustomerID != "" {
		apply.ProviderCustomerID = &in.ProviderCustomerID
	}
	entPlan, err := s.repo.ApplySubscription(ctx, apply)
	if err != nil {
		return "", fmt.Errorf("simulate subscription: %w", err)
	}
	return entPlan, nil
}

// ReconcileStats summarizes one reconciliation sweep.
type ReconcileStats struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Reconcile re-validates store-managed subscriptions in entitling
// statuses against the stores, syncing any drift.
func (s *Service) Reconcile(ctx context.Context, limit int) (*ReconcileStats, error) {
	if limit <= 0 || limit > reconcileMaxBatch {
		limit = 200
	}
	rows, err := s.repo.StoreSubscriptionsDue(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list store subscriptions: %w", err)
	}

	stats := &ReconcileStats{}
	for _, row := range rows {
		stats.Processed++

		var payload struct {
			LatestReceipt string `json:"latest_receipt"`
			PurchaseToken string `json:"purchase_token"`
			PackageName   string `json:"package_name"`
		}
		if len(row.RawPayload) > 0 {
			_ = json.Unmarshal(row.RawPayload, &payload)
		}

		switch row.Provider {
		case domain.ProviderAppStore:
			if payload.LatestReceipt == "" || s.appStore == nil {
				stats.Skipped++
				continue
			}
			if _, err := s.ValidateAppStore(ctx, row.UserID, payload.LatestReceipt, "auto"); err != nil {
				log.Printf("[billing.Service] reconcile app_store sub %s: %v", row.SubscriptionID, err)
				stats.Errors++
				continue
			}
			stats.Updated++
		case domain.ProviderGooglePlay:
			if payload.PurchaseToken == "" || s.googlePlay == nil {
				stats.Skipped++
				continue
			}
			if _, err := s.ValidateGooglePlay(ctx, row.UserID, payload.PurchaseToken, payload.PackageName); err != nil {
				log.Printf("[billing.Service] reconcile google_play sub %s: %v", row.SubscriptionID, err)
				stats.Errors++
				continue
			}
			stats.Updated++
		default:
			stats.Skipped++
		}
	}
	return stats, nil
}
