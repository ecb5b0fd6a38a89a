package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivio/ranking-server/internal/domain"
)

type fakeRepo struct {
	overview     *Overview
	checkout     *CheckoutSeed
	insertedID   string
	duplicate    bool
	priorStatus  domain.WebhookEventStatus
	events       []EventSeed
	finished     []domain.WebhookEventStatus
	finishedErrs []*string
	resolved     string
	applied      []ApplyInput
	applyPlan    domain.PlanCode
	due          []ReconcileRow
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		overview:   &Overview{EntitlementPlanCode: domain.PlanFree},
		insertedID: "row-1",
		applyPlan:  domain.PlanPlus,
	}
}

func (f *fakeRepo) Overview(_ context.Context, _ string) (*Overview, error) {
	o := *f.overview
	return &o, nil
}

func (f *fakeRepo) CreateCheckout(_ context.Context, seed CheckoutSeed) (*domain.BillingCheckoutSession, error) {
	f.checkout = &seed
	return &domain.BillingCheckoutSession{
		ID:        "cs-1",
		UserID:    seed.UserID,
		Status:    "created",
		ExpiresAt: seed.ExpiresAt,
	}, nil
}

func (f *fakeRepo) InsertEvent(_ context.Context, seed EventSeed) (string, bool, domain.WebhookEventStatus, error) {
	if f.duplicate {
		return "", false, f.priorStatus, nil
	}
	f.events = append(f.events, seed)
	return f.insertedID, true, "", nil
}

func (f *fakeRepo) FinishEvent(_ context.Context, _ string, status domain.WebhookEventStatus, errMsg *string) error {
	f.finished = append(f.finished, status)
	f.finishedErrs = append(f.finishedErrs, errMsg)
	return nil
}

func (f *fakeRepo) ResolveUser(_ context.Context, _ domain.BillingProvider, _, _ string) (string, error) {
	return f.resolved, nil
}

func (f *fakeRepo) ApplySubscription(_ context.Context, in ApplyInput) (domain.PlanCode, error) {
	f.applied = append(f.applied, in)
	return f.applyPlan, nil
}

func (f *fakeRepo) StoreSubscriptionsDue(_ context.Context, _ int) ([]ReconcileRow, error) {
	return f.due, nil
}

func testConfig() Config {
	return Config{
		Provider:      "none",
		WebhookSecret: "whsec_test",
		WebhookMaxAge: 5 * time.Minute,
		ProductPlans:  map[string]string{"rivio.plus.monthly": "RIVIO_PLUS"},
	}
}

func manualEvent(t *testing.T, id, typ string, data EventData) []byte {
	t.Helper()
	body, err := json.Marshal(Event{ID: id, Type: typ, Data: data})
	require.NoError(t, err)
	return body
}

func TestProviderDegradesUnknownCode(t *testing.T) {
	cfg := testConfig()
	cfg.Provider = "paypal"
	svc := NewService(newFakeRepo(), cfg, nil, nil)
	assert.Equal(t, domain.ProviderNone, svc.Provider())

	cfg.Provider = " Stripe "
	svc = NewService(newFakeRepo(), cfg, nil, nil)
	assert.Equal(t, domain.ProviderStripe, svc.Provider())
}

func TestMe(t *testing.T) {
	cfg := testConfig()
	cfg.Provider = "app_store"
	svc := NewService(newFakeRepo(), cfg, nil, nil)

	o, err := svc.Me(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderAppStore, o.Provider)
	assert.True(t, o.CheckoutSupported)
	assert.True(t, o.WebhookConfigured)
}

func TestCreateCheckoutStub(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, testConfig(), nil, nil)

	res, err := svc.CreateCheckout(context.Background(), "u1", "rivio_plus", "", "")
	require.NoError(t, err)
	assert.Equal(t, "cs-1", res.SessionID)
	assert.True(t, res.IsStub)
	assert.Equal(t, "RIVIO_PLUS", res.PlanCode)
	require.NotNil(t, repo.checkout)
	assert.Equal(t, domain.PlanPlus, repo.checkout.PlanCode)
}

func TestCreateCheckoutRejectsUnknownPlan(t *testing.T) {
	svc := NewService(newFakeRepo(), testConfig(), nil, nil)
	_, err := svc.CreateCheckout(context.Background(), "u1", "GOLD", "", "")
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestIngestProcessesManualEvent(t *testing.T) {
	repo := newFakeRepo()
	cfg := testConfig()
	cfg.RequireSignature = false
	svc := NewService(repo, cfg, nil, nil)

	body := manualEvent(t, "evt-1", eventSubCreated, EventData{
		UserID:                 "u1",
		ProviderSubscriptionID: "sub-1",
		PlanCode:               "RIVIO_PLUS",
		Status:                 "active",
	})
	res, err := svc.Ingest(context.Background(), "manual", http.Header{}, body)
	require.NoError(t, err)
	assert.True(t, res.Processed)
	assert.False(t, res.Duplicate)
	assert.Equal(t, string(domain.WebhookProcessed), res.Status)

	require.Len(t, repo.applied, 1)
	assert.Equal(t, domain.PlanPlus, repo.applied[0].PlanCode)
	assert.Equal(t, domain.SubActive, repo.applied[0].Status)
	require.Len(t, repo.finished, 1)
	assert.Equal(t, domain.WebhookProcessed, repo.finished[0])
}

func TestIngestVerifiesSignature(t *testing.T) {
	cfg := testConfig()
	cfg.RequireSignature = true
	svc := NewService(newFakeRepo(), cfg, nil, nil)

	body := manualEvent(t, "evt-1", eventSubCreated, EventData{UserID: "u1"})
	_, err := svc.Ingest(context.Background(), "manual", http.Header{}, body)
	assert.ErrorIs(t, err, ErrBadSignature)

	header := http.Header{}
	header.Set("X-Billing-Signature", SignPayload(cfg.WebhookSecret, time.Now(), body))
	_, err = svc.Ingest(context.Background(), "manual", header, body)
	assert.NoError(t, err)
}

func TestIngestDuplicateCollapses(t *testing.T) {
	repo := newFakeRepo()
	repo.duplicate = true
	repo.priorStatus = domain.WebhookProcessed
	cfg := testConfig()
	svc := NewService(repo, cfg, nil, nil)

	body := manualEvent(t, "evt-1", eventSubCreated, EventData{UserID: "u1", ProviderSubscriptionID: "sub-1"})
	res, err := svc.Ingest(context.Background(), "manual", http.Header{}, body)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.True(t, res.Processed)
	assert.Empty(t, repo.applied)
	assert.Empty(t, repo.finished)
}

func TestIngestIgnoresUnactionableEvent(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, testConfig(), nil, nil)

	// no subscription id: recorded but not dispatched
	body := manualEvent(t, "evt-2", eventSubCreated, EventData{UserID: "u1"})
	res, err := svc.Ingest(context.Background(), "manual", http.Header{}, body)
	require.NoError(t, err)
	assert.False(t, res.Processed)
	assert.Equal(t, string(domain.WebhookIgnored), res.Status)
	assert.Empty(t, repo.applied)
}

func TestIngestRecordsDispatchErrors(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, testConfig(), nil, nil)

	body := manualEvent(t, "evt-3", eventSubCreated, EventData{
		UserID:                 "u1",
		ProviderSubscriptionID: "sub-1",
		ProductID:              "unknown.product",
	})
	res, err := svc.Ingest(context.Background(), "manual", http.Header{}, body)
	require.NoError(t, err)
	assert.False(t, res.Processed)
	assert.Equal(t, string(domain.WebhookError), res.Status)
	require.Len(t, repo.finishedErrs, 1)
	require.NotNil(t, repo.finishedErrs[0])
	assert.Contains(t, *repo.finishedErrs[0], "unknown.product")
}

func TestIngestResolvesUserFromSubscription(t *testing.T) {
	repo := newFakeRepo()
	repo.resolved = "u9"
	svc := NewService(repo, testConfig(), nil, nil)

	body := manualEvent(t, "evt-4", eventSubRenewed, EventData{
		ProviderSubscriptionID: "sub-1",
		PlanCode:               "RIVIO_PLUS",
		Status:                 "active",
	})
	res, err := svc.Ingest(context.Background(), "manual", http.Header{}, body)
	require.NoError(t, err)
	assert.True(t, res.Processed)
	require.Len(t, repo.applied, 1)
	assert.Equal(t, "u9", repo.applied[0].UserID)
}

func TestIngestCancellationForcesCanceled(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, testConfig(), nil, nil)

	body := manualEvent(t, "evt-5", eventSubCanceled, EventData{
		UserID:                 "u1",
		ProviderSubscriptionID: "sub-1",
		PlanCode:               "RIVIO_PLUS",
		Status:                 "active",
	})
	_, err := svc.Ingest(context.Background(), "manual", http.Header{}, body)
	require.NoError(t, err)
	require.Len(t, repo.applied, 1)
	assert.Equal(t, domain.SubCanceled, repo.applied[0].Status)
	assert.True(t, repo.applied[0].CancelAtPeriodEnd)
}

func TestIngestRejectsUnknownProvider(t *testing.T) {
	svc := NewService(newFakeRepo(), testConfig(), nil, nil)
	_, err := svc.Ingest(context.Background(), "paypal", http.Header{}, []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidProvider)
}

func TestSimulate(t *testing.T) {
	repo := newFakeRepo()
	cfg := testConfig()
	cfg.DevMode = true
	svc := NewService(repo, cfg, nil, nil)

	plan, err := svc.Simulate(context.Background(), "u1", SimulateInput{
		Provider:               "manual",
		ProviderSubscriptionID: "sim-1",
		PlanCode:               "rivio_plus",
		Status:                 "active",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPlus, plan)
	require.Len(t, repo.applied, 1)
	assert.Equal(t, domain.ProviderManual, repo.applied[0].Provider)
	require.NotNil(t, repo.applied[0].CurrentPeriodEnd)
}

func TestSimulateRequiresDevMode(t *testing.T) {
	svc := NewService(newFakeRepo(), testConfig(), nil, nil)
	_, err := svc.Simulate(context.Background(), "u1", SimulateInput{Provider: "manual", PlanCode: "FREE", Status: "active"})
	assert.ErrorIs(t, err, ErrSimulateDisabled)
}

func TestValidateStoreUnavailable(t *testing.T) {
	svc := NewService(newFakeRepo(), testConfig(), nil, nil)
	_, err := svc.ValidateAppStore(context.Background(), "u1", "receipt", "production")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = svc.ValidateGooglePlay(context.Background(), "u1", "token", "app.rivio.android")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestReconcileSkipsWithoutClients(t *testing.T) {
	repo := newFakeRepo()
	repo.due = []ReconcileRow{
		{UserID: "u1", Provider: domain.ProviderAppStore, SubscriptionID: "s1", RawPayload: json.RawMessage(`{"latest_receipt":"abc"}`)},
		{UserID: "u2", Provider: domain.ProviderGooglePlay, SubscriptionID: "s2", RawPayload: json.RawMessage(`{"purchase_token":"tok"}`)},
	}
	svc := NewService(repo, testConfig(), nil, nil)

	stats, err := svc.Reconcile(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.Skipped)
	assert.Zero(t, stats.Updated)
	assert.Zero(t, stats.Errors)
}
