package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rivio/ranking-server/internal/service/billing"
)

// webhook bodies are bounded; providers send small JSON envelopes
const maxWebhookBody = 1 << 20

func (h *Handlers) billingWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "unreadable webhook body")
		return
	}
	res, err := h.Billing.Ingest(r.Context(), chi.URLParam(r, "provider"), r.Header, body)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) billingMe(w http.ResponseWriter, r *http.Request) {
	o, err := h.Billing.Me(r.Context(), userID(r.Context()))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type checkoutBody struct {
	PlanCode   string `json:"plan_code"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

func (h *Handlers) billingCheckout(w http.ResponseWriter, r *http.Request) {
	var body checkoutBody
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := h.Billing.CreateCheckout(r.Context(), userID(r.Context()),
		body.PlanCode, body.SuccessURL, body.CancelURL)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type appStoreValidateBody struct {
	ReceiptData string `json:"receipt_data"`
	Environment string `json:"environment"`
}

func (h *Handlers) validateAppStore(w http.ResponseWriter, r *http.Request) {
	var body appStoreValidateBody
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := h.Billing.ValidateAppStore(r.Context(), userID(r.Context()),
		body.ReceiptData, body.Environment)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type googlePlayValidateBody struct {
	PurchaseToken string `json:"purchase_token"`
	PackageName   string `json:"package_name"`
}

func (h *Handlers) validateGooglePlay(w http.ResponseWriter, r *http.Request) {
	var body googlePlayValidateBody
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := h.Billing.ValidateGooglePlay(r.Context(), userID(r.Context()),
		body.PurchaseToken, body.PackageName)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) billingSimulate(w http.ResponseWriter, r *http.Request) {
	var in billing.SimulateInput
	if !decodeBody(w, r, &in) {
		return
	}
	plan, err := h.Billing.Simulate(r.Context(), userID(r.Context()), in)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"entitlement_plan_code": string(plan)})
}

func (h *Handlers) billingReconcile(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	stats, err := h.Billing.Reconcile(r.Context(), limit)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
