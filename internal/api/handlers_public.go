package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rivio/ranking-server/internal/service/history"
	"github.com/rivio/ranking-server/internal/service/ranking"
)

func (h *Handlers) rankings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lb, err := h.Ranking.Leaderboard(r.Context(), ranking.Query{
		LadderCode: chi.URLParam(r, "ladderCode"),
		CategoryID: chi.URLParam(r, "categoryID"),
		Country:    q.Get("country"),
		City:       q.Get("city"),
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *Handlers) clubs(w http.ResponseWriter, r *http.Request) {
	clubs, err := h.Catalog.Clubs(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"clubs": clubs})
}

func (h *Handlers) ladders(w http.ResponseWriter, r *http.Request) {
	ladders, err := h.Catalog.Ladders(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ladders": ladders})
}

func (h *Handlers) categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Catalog.Categories(r.Context(), r.URL.Query().Get("ladder_code"))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": cats})
}

func (h *Handlers) avatarPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := h.Catalog.AvatarPresets(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"presets": presets})
}

func (h *Handlers) planCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"plans": h.Entitlement.Catalog()})
}

func timelineQueryFromRequest(r *http.Request) history.TimelineQuery {
	q := r.URL.Query()
	tq := history.TimelineQuery{
		Scope:    history.Scope(q.Get("scope")),
		Ladder:   q.Get("ladder"),
		ClubID:   q.Get("club_id"),
		ClubCity: q.Get("club_city"),
	}
	if v := q.Get("date_from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			tq.DateFrom = &t
		}
	}
	if v := q.Get("date_to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			end := t.Add(24*time.Hour - time.Nanosecond)
			tq.DateTo = &end
		}
	}
	tq.Limit, _ = strconv.Atoi(q.Get("limit"))
	tq.Offset, _ = strconv.Atoi(q.Get("offset"))
	return tq
}

func (h *Handlers) myHistory(w http.ResponseWriter, r *http.Request) {
	uid := userID(r.Context())
	t, err := h.History.UserTimeline(r.Context(), uid, uid, timelineQueryFromRequest(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) userHistory(w http.ResponseWriter, r *http.Request) {
	t, err := h.History.UserTimeline(r.Context(), userID(r.Context()),
		chi.URLParam(r, "userID"), timelineQueryFromRequest(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) userHistoryDetail(w http.ResponseWriter, r *http.Request) {
	d, err := h.History.Detail(r.Context(), userID(r.Context()),
		chi.URLParam(r, "userID"), chi.URLParam(r, "matchID"))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
