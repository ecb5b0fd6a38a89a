package billing

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rivio/ranking-server/internal/domain"
)

// Internal event types every provider payload is normalized into. The
// dispatcher only acts on these; anything else is recorded and ignored.
const (
	eventSubCreated    = "subscription.created"
	eventSubUpdated    = "subscription.updated"
	eventSubRenewed    = "subscription.renewed"
	eventSubDeleted    = "subscription.deleted"
	eventSubCanceled   = "subscription.canceled"
	eventInvoicePaid   = "invoice.paid"
	eventInvoiceFailed = "invoice.payment_failed"
)

// EventData is the provider-agnostic view of a subscription event.
type EventData struct {
	UserID                 string     `json:"user_id,omitempty"`
	ProviderCustomerID     string     `json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID string     `json:"provider_subscription_id,omitempty"`
	ProductID              string     `json:"product_id,omitempty"`
	PlanCode               string     `json:"plan_code,omitempty"`
	Status                 string     `json:"status,omitempty"`
	CancelAtPeriodEnd      bool       `json:"cancel_at_period_end,omitempty"`
	CurrentPeriodStart     *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	PurchaseToken          string     `json:"purchase_token,omitempty"`
	PackageName            string     `json:"package_name,omitempty"`
}

// Event is a normalized webhook delivery.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// normalizeEvent maps one provider's raw webhook body into an Event.
func normalizeEvent(provider domain.BillingProvider, body []byte) (Event, error) {
	switch provider {
	case domain.ProviderStripe:
		return normalizeStripe(body)
	case domain.ProviderAppStore:
		return normalizeAppStore(body)
	case domain.ProviderGooglePlay:
		return normalizeGooglePlay(body)
	default:
		// manual and test traffic already speak the internal shape
		var ev Event
		if err := json.Unmarshal(body, &ev); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return ev, nil
	}
}

var stripeEventTypes = map[string]string{
	"customer.subscription.created": eventSubCreated,
	"customer.subscription.updated": eventSubUpdated,
	"customer.subscription.deleted": eventSubDeleted,
	"invoice.paid":                  eventInvoicePaid,
	"invoice.payment_failed":        eventInvoiceFailed,
}

func normalizeStripe(body []byte) (Event, error) {
	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID                 string `json:"id"`
				Customer           string `json:"customer"`
				Subscription       string `json:"subscription"`
				Status             string `json:"status"`
				CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
				CurrentPeriodStart int64  `json:"current_period_start"`
				CurrentPeriodEnd   int64  `json:"current_period_end"`
				Metadata           struct {
					UserID string `json:"user_id"`
				} `json:"metadata"`
				Items struct {
					Data []struct {
						Price struct {
							ID string `json:"id"`
						} `json:"price"`
					} `json:"data"`
				} `json:"items"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	obj := raw.Data.Object
	subID := obj.ID
	if strings.HasPrefix(raw.Type, "invoice.") && obj.Subscription != "" {
		subID = obj.Subscription
	}
	ev := Event{
		ID:   raw.ID,
		Type: raw.Type,
		Data: EventData{
			UserID:                 obj.Metadata.UserID,
			ProviderCustomerID:     obj.Customer,
			ProviderSubscriptionID: subID,
			Status:                 obj.Status,
			CancelAtPeriodEnd:      obj.CancelAtPeriodEnd,
			CurrentPeriodStart:     unixPtr(obj.CurrentPeriodStart),
			CurrentPeriodEnd:       unixPtr(obj.CurrentPeriodEnd),
		},
	}
	if mapped, ok := stripeEventTypes[raw.Type]; ok {
		ev.Type = mapped
	}
	if len(obj.Items.Data) > 0 {
		ev.Data.ProductID = obj.Items.Data[0].Price.ID
	}
	return ev, nil
}

var appStoreEventTypes = map[string]string{
	"SUBSCRIBED":                eventSubCreated,
	"DID_RENEW":                 eventSubRenewed,
	"DID_CHANGE_RENEWAL_STATUS": eventSubUpdated,
	"DID_CHANGE_RENEWAL_PREF":   eventSubUpdated,
	"DID_FAIL_TO_RENEW":         eventInvoiceFailed,
	"EXPIRED":                   eventSubCanceled,
	"REVOKE":                    eventSubCanceled,
	"REFUND":                    eventSubCanceled,
}

// normalizeAppStore extracts claims from the App Store Server
// Notification JWS segments without verifying them; the HMAC envelope
// already authenticated the delivery.
func normalizeAppStore(body []byte) (Event, error) {
	var outer struct {
		SignedPayload string `json:"signedPayload"`
	}
	if err := json.Unmarshal(body, &outer); err != nil || outer.SignedPayload == "" {
		return Event{}, fmt.Errorf("%w: missing signedPayload", ErrInvalidEvent)
	}

	var note struct {
		NotificationUUID string `json:"notificationUUID"`
		NotificationType string `json:"notificationType"`
		Subtype          string `json:"subtype"`
		Data             struct {
			SignedTransactionInfo string `json:"signedTransactionInfo"`
		} `json:"data"`
	}
	if err := decodeJWSClaims(outer.SignedPayload, &note); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	ev := Event{ID: note.NotificationUUID, Type: note.NotificationType}
	if mapped, ok := appStoreEventTypes[note.NotificationType]; ok {
		ev.Type = mapped
	}

	if note.Data.SignedTransactionInfo != "" {
		var txn struct {
			OriginalTransactionID string `json:"originalTransactionId"`
			ProductID             string `json:"productId"`
			ExpiresDate           int64  `json:"expiresDate"`
			AppAccountToken       string `json:"appAccountToken"`
		}
		if err := decodeJWSClaims(note.Data.SignedTransactionInfo, &txn); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		ev.Data.UserID = txn.AppAccountToken
		ev.Data.ProviderSubscriptionID = txn.OriginalTransactionID
		ev.Data.ProductID = txn.ProductID
		if txn.ExpiresDate > 0 {
			end := time.UnixMilli(txn.ExpiresDate).UTC()
			ev.Data.CurrentPeriodEnd = &end
			if end.After(time.Now()) {
				ev.Data.Status = string(domain.SubActive)
			} else {
				ev.Data.Status = string(domain.SubCanceled)
			}
		}
	}
	return ev, nil
}

var googlePlayEventTypes = map[int]string{
	1:  eventSubRenewed, // recovered
	2:  eventSubRenewed,
	3:  eventSubCanceled,
	4:  eventSubCreated,
	5:  eventInvoiceFailed, // on hold
	6:  eventSubUpdated,    // grace period
	7:  eventSubRenewed,    // restarted
	12: eventSubCanceled,   // revoked
	13: eventSubCanceled,   // expired
}

// normalizeGooglePlay unwraps a Real-time Developer Notification pushed
// through Pub/Sub: the interesting part is base64 inside message.data.
func normalizeGooglePlay(body []byte) (Event, error) {
	var outer struct {
		Message struct {
			MessageID string `json:"messageId"`
			Data      string `json:"data"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &outer); err != nil || outer.Message.Data == "" {
		return Event{}, fmt.Errorf("%w: missing message.data", ErrInvalidEvent)
	}

	decoded, err := base64.StdEncoding.DecodeString(outer.Message.Data)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	var inner struct {
		PackageName              string `json:"packageName"`
		SubscriptionNotification struct {
			NotificationType int    `json:"notificationType"`
			PurchaseToken    string `json:"purchaseToken"`
			SubscriptionID   string `json:"subscriptionId"`
		} `json:"subscriptionNotification"`
	}
	if err := json.Unmarshal(decoded, &inner); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	sub := inner.SubscriptionNotification
	ev := Event{
		ID:   outer.Message.MessageID,
		Type: "google.notification." + strconv.Itoa(sub.NotificationType),
		Data: EventData{
			ProviderSubscriptionID: sub.SubscriptionID,
			ProductID:              sub.SubscriptionID,
			PurchaseToken:          sub.PurchaseToken,
			PackageName:            inner.PackageName,
		},
	}
	if mapped, ok := googlePlayEventTypes[sub.NotificationType]; ok {
		ev.Type = mapped
	}
	switch ev.Type {
	case eventSubCreated, eventSubRenewed, eventSubUpdated:
		ev.Data.Status = string(domain.SubActive)
	case eventSubCanceled:
		ev.Data.Status = string(domain.SubCanceled)
	case eventInvoiceFailed:
		ev.Data.Status = string(domain.SubPastDue)
	}
	return ev, nil
}

// decodeJWSClaims unpacks the payload segment of a compact JWS into out.
func decodeJWSClaims(token string, out interface{}) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return fmt.Errorf("malformed JWS")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("decode JWS payload: %w", err)
	}
	return json.Unmarshal(payload, out)
}

func unixPtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
