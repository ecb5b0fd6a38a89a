package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rivio/ranking-server/internal/service/match"
)

func (h *Handlers) createMatch(w http.ResponseWriter, r *http.Request) {
	var in match.CreateInput
	if !decodeBody(w, r, &in) {
		return
	}
	m, err := h.Match.Create(r.Context(), userID(r.Context()), in)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handlers) getMatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.Match.Get(r.Context(), chi.URLParam(r, "matchID"), userID(r.Context()))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) matchDetail(w http.ResponseWriter, r *http.Request) {
	d, err := h.Match.Detail(r.Context(), chi.URLParam(r, "matchID"), userID(r.Context()))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) matchConfirmations(w http.ResponseWriter, r *http.Request) {
	v, err := h.Match.Confirmations(r.Context(), chi.URLParam(r, "matchID"), userID(r.Context()))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handlers) confirmMatch(w http.ResponseWriter, r *http.Request) {
	var req match.ConfirmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.Match.Confirm(r.Context(), chi.URLParam(r, "matchID"), userID(r.Context()), req)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
