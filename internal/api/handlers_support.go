package api

import (
	"net/http"
	"strconv"

	"github.com/rivio/ranking-server/internal/service/support"
)

func (h *Handlers) supportContact(w http.ResponseWriter, r *http.Request) {
	link, err := h.Support.Contact(r.Context(), userID(r.Context()))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (h *Handlers) createTicket(w http.ResponseWriter, r *http.Request) {
	var in support.CreateInput
	if !decodeBody(w, r, &in) {
		return
	}
	t, err := h.Support.CreateTicket(r.Context(), userID(r.Context()), in)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) myTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	list, err := h.Support.MyTickets(r.Context(), userID(r.Context()), limit, offset)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
