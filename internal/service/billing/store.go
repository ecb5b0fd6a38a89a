package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/pkg/httpretry"
)

// StoreValidation is the normalized outcome of a server-side receipt or
// purchase-token check. RawPayload keeps what the reconciler needs to
// re-validate later (latest receipt or purchase token).
type StoreValidation struct {
	Provider               domain.BillingProvider
	ProviderCustomerID     string
	ProviderSubscriptionID string
	ProductID              string
	Status                 domain.SubscriptionStatus
	CancelAtPeriodEnd      bool
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	RawPayload             map[string]interface{}
}

const (
	appStoreProductionURL = "https://buy.itunes.apple.com/verifyReceipt"
	appStoreSandboxURL    = "https://sandbox.itunes.apple.com/verifyReceipt"

	// verifyReceipt status for "sandbox receipt sent to production".
	appStoreStatusSandboxReceipt = 21007
)

// AppStoreClient validates receipts against Apple's verifyReceipt
// endpoint using the app's shared secret.
type AppStoreClient struct {
	sharedSecret string
	httpClient   httpretry.HTTPDoer
	now          func() time.Time
}

// NewAppStoreClient creates a verifyReceipt client. Returns nil when no
// shared secret is configured.
func NewAppStoreClient(sharedSecret string) *AppStoreClient {
	if sharedSecret == "" {
		return nil
	}
	return &AppStoreClient{
		sharedSecret: sharedSecret,
		httpClient:   httpretry.NewRetryClient(&http.Client{Timeout: 30 * time.Second}, 3),
		now:          time.Now,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *AppStoreClient) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

type verifyReceiptResponse struct {
	Status            int    `json:"status"`
	LatestReceipt     string `json:"latest_receipt"`
	LatestReceiptInfo []struct {
		OriginalTransactionID string `json:"original_transaction_id"`
		ProductID             string `json:"product_id"`
		ExpiresDateMS         string `json:"expires_date_ms"`
		PurchaseDateMS        string `json:"purchase_date_ms"`
	} `json:"latest_receipt_info"`
}

// Validate verifies receiptData, retrying against the sandbox endpoint
// when production reports a sandbox receipt. environment is "auto",
// "production", or "sandbox".
func (c *AppStoreClient) Validate(ctx context.Context, receiptData, environment string) (*StoreValidation, error) {
	url := appStoreProductionURL
	if environment == "sandbox" {
		url = appStoreSandboxURL
	}
	resp, err := c.verify(ctx, url, receiptData)
	if err != nil {
		return nil, err
	}
	if resp.Status == appStoreStatusSandboxReceipt && environment != "production" {
		if resp, err = c.verify(ctx, appStoreSandboxURL, receiptData); err != nil {
			return nil, err
		}
	}
	if resp.Status != 0 {
		return nil, fmt.Errorf("%w: verifyReceipt status %d", ErrInvalidReceipt, resp.Status)
	}
	if len(resp.LatestReceiptInfo) == 0 {
		return nil, fmt.Errorf("%w: no transactions in receipt", ErrInvalidReceipt)
	}

	// latest transaction wins
	txns := resp.LatestReceiptInfo
	sort.Slice(txns, func(i, j int) bool {
		return parseMS(txns[i].ExpiresDateMS) < parseMS(txns[j].ExpiresDateMS)
	})
	latest := txns[len(txns)-1]

	out := &StoreValidation{
		Provider:               domain.ProviderAppStore,
		ProviderSubscriptionID: latest.OriginalTransactionID,
		ProductID:              latest.ProductID,
		Status:                 domain.SubCanceled,
		RawPayload: map[string]interface{}{
			"latest_receipt": resp.LatestReceipt,
		},
	}
	if ms := parseMS(latest.PurchaseDateMS); ms > 0 {
		t := time.UnixMilli(ms).UTC()
		out.CurrentPeriodStart = &t
	}
	if ms := parseMS(latest.ExpiresDateMS); ms > 0 {
		t := time.UnixMilli(ms).UTC()
		out.CurrentPeriodEnd = &t
		if t.After(c.now()) {
			out.Status = domain.SubActive
		}
	}
	return out, nil
}

func (c *AppStoreClient) verify(ctx context.Context, url, receiptData string) (*verifyReceiptResponse, error) {
	body, err := json.Marshal(map[string]interface{}{
		"receipt-data":             receiptData,
		"password":                 c.sharedSecret,
		"exclude-old-transactions": true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal verifyReceipt request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create verifyReceipt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read verifyReceipt response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: verifyReceipt HTTP %d", ErrStoreUnavailable, resp.StatusCode)
	}

	var out verifyReceiptResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode verifyReceipt response: %w", err)
	}
	return &out, nil
}

const androidPublisherScope = "https://www.googleapis.com/auth/androidpublisher"

// GooglePlayClient checks purchase tokens against the subscriptionsv2
// endpoint, authenticating with a service-account JWT exchange.
type GooglePlayClient struct {
	packageName string
	httpClient  httpretry.HTTPDoer
	now         func() time.Time
}

// NewGooglePlayClient builds a client from service-account credentials
// JSON. Returns nil when credentials or package name are missing.
func NewGooglePlayClient(ctx context.Context, credentialsJSON, packageName string) (*GooglePlayClient, error) {
	if credentialsJSON == "" || packageName == "" {
		return nil, nil
	}
	jwtCfg, err := google.JWTConfigFromJSON([]byte(credentialsJSON), androidPublisherScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	return &GooglePlayClient{
		packageName: packageName,
		httpClient:  httpretry.NewRetryClient(jwtCfg.Client(ctx), 3),
		now:         time.Now,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *GooglePlayClient) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

var googleSubscriptionStates = map[string]domain.SubscriptionStatus{
	"SUBSCRIPTION_STATE_ACTIVE":          domain.SubActive,
	"SUBSCRIPTION_STATE_CANCELED":        domain.SubActive, // still in paid period
	"SUBSCRIPTION_STATE_IN_GRACE_PERIOD": domain.SubPastDue,
	"SUBSCRIPTION_STATE_ON_HOLD":         domain.SubUnpaid,
	"SUBSCRIPTION_STATE_PAUSED":          domain.SubCanceled,
	"SUBSCRIPTION_STATE_EXPIRED":         domain.SubCanceled,
	"SUBSCRIPTION_STATE_PENDING":         domain.SubIncomplete,
}

// Validate resolves the current state of a purchase token. packageName
// overrides the configured app package when non-empty.
func (c *GooglePlayClient) Validate(ctx context.Context, purchaseToken, packageName string) (*StoreValidation, error) {
	pkg := c.packageName
	if packageName != "" {
		pkg = packageName
	}
	url := fmt.Sprintf(
		"https://androidpublisher.googleapis.com/androidpublisher/v3/applications/%s/purchases/subscriptionsv2/tokens/%s",
		pkg, purchaseToken,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create subscriptionsv2 request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read subscriptionsv2 response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: subscriptionsv2 HTTP %d", ErrInvalidReceipt, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: subscriptionsv2 HTTP %d", ErrStoreUnavailable, resp.StatusCode)
	}

	var out struct {
		SubscriptionState string `json:"subscriptionState"`
		StartTime         string `json:"startTime"`
		LineItems         []struct {
			ProductID  string `json:"productId"`
			ExpiryTime string `json:"expiryTime"`
		} `json:"lineItems"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode subscriptionsv2 response: %w", err)
	}
	if len(out.LineItems) == 0 {
		return nil, fmt.Errorf("%w: no line items for token", ErrInvalidReceipt)
	}

	status, ok := googleSubscriptionStates[out.SubscriptionState]
	if !ok {
		status = domain.SubCanceled
	}
	item := out.LineItems[0]

	val := &StoreValidation{
		Provider:               domain.ProviderGooglePlay,
		ProviderSubscriptionID: purchaseToken,
		ProductID:              item.ProductID,
		Status:                 status,
		CancelAtPeriodEnd:      out.SubscriptionState == "SUBSCRIPTION_STATE_CANCELED",
		RawPayload: map[string]interface{}{
			"purchase_token": purchaseToken,
			"package_name":   pkg,
		},
	}
	if t, err := time.Parse(time.RFC3339, out.StartTime); err == nil {
		t = t.UTC()
		val.CurrentPeriodStart = &t
	}
	if t, err := time.Parse(time.RFC3339, item.ExpiryTime); err == nil {
		t = t.UTC()
		val.CurrentPeriodEnd = &t
	}
	return val, nil
}

func parseMS(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
