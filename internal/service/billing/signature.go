package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rivio/ranking-server/internal/domain"
)

// Webhook signature scheme: "t=<unix>,v1=<hex hmac-sha256 of t.body>".
// Stripe sends it in Stripe-Signature; everyone else in X-Billing-Signature.
const (
	stripeSignatureHeader  = "Stripe-Signature"
	genericSignatureHeader = "X-Billing-Signature"
)

func signatureHeaderFor(provider domain.BillingProvider) string {
	if provider == domain.ProviderStripe {
		return stripeSignatureHeader
	}
	return genericSignatureHeader
}

// SignPayload produces a signature header value for body at ts. Used by
// the simulator and by tests.
func SignPayload(secret string, ts time.Time, body []byte) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(t))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", t, hex.EncodeToString(mac.Sum(nil)))
}

// verifySignature checks the provider's signature header against body.
// A valid header carries a timestamp within maxAge of now and at least
// one v1 digest matching HMAC-SHA256(secret, "<t>.<body>").
func verifySignature(provider domain.BillingProvider, header http.Header, body []byte, secret string, maxAge time.Duration, now time.Time) error {
	raw := header.Get(signatureHeaderFor(provider))
	if raw == "" || secret == "" {
		return ErrBadSignature
	}

	var ts int64
	var digests []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "t="):
			v, err := strconv.ParseInt(part[2:], 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			ts = v
		case strings.HasPrefix(part, "v1="):
			digests = append(digests, part[3:])
		}
	}
	if ts == 0 || len(digests) == 0 {
		return ErrBadSignature
	}

	age := now.Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > maxAge {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	for _, got := range digests {
		if hmac.Equal([]byte(want), []byte(got)) {
			return nil
		}
	}
	return ErrBadSignature
}
