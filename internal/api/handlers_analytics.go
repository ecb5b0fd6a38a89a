package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handlers) myAnalytics(w http.ResponseWriter, r *http.Request) {
	states, err := h.Analytics.MyStates(r.Context(), userID(r.Context()), r.URL.Query().Get("ladder"))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"states": states})
}

func (h *Handlers) userAnalytics(w http.ResponseWriter, r *http.Request) {
	states, err := h.Analytics.UserStates(r.Context(), userID(r.Context()),
		chi.URLParam(r, "userID"), r.URL.Query().Get("ladder"))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"states": states})
}

func (h *Handlers) analyticsDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Analytics.UserDashboard(r.Context(), userID(r.Context()), r.URL.Query().Get("ladder"))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) analyticsExport(w http.ResponseWriter, r *http.Request) {
	csvData, err := h.Analytics.Export(r.Context(), userID(r.Context()), r.URL.Query().Get("ladder"))
	if err != nil {
		respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="match-history.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(csvData)
}

func (h *Handlers) myEntitlements(w http.ResponseWriter, r *http.Request) {
	c, err := h.Entitlement.UserContract(r.Context(), userID(r.Context()))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
