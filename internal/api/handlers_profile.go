package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rivio/ranking-server/internal/service/profile"
)

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	me, err := h.Profile.Me(r.Context(), userID(r.Context()))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

type updateProfileBody struct {
	Alias               *string `json:"alias,omitempty"`
	Gender              *string `json:"gender,omitempty"`
	IsPublic            *bool   `json:"is_public,omitempty"`
	Country             *string `json:"country,omitempty"`
	City                *string `json:"city,omitempty"`
	Handedness          *string `json:"handedness,omitempty"`
	PreferredSide       *string `json:"preferred_side,omitempty"`
	Birthdate           *string `json:"birthdate,omitempty"` // YYYY-MM-DD
	FirstName           *string `json:"first_name,omitempty"`
	LastName            *string `json:"last_name,omitempty"`
	PrimaryCategoryCode *string `json:"primary_category_code,omitempty"`
}

func (h *Handlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	var body updateProfileBody
	if !decodeBody(w, r, &body) {
		return
	}

	in := profile.UpdateInput{
		FieldUpdate: profile.FieldUpdate{
			Alias:         body.Alias,
			Gender:        body.Gender,
			IsPublic:      body.IsPublic,
			Country:       body.Country,
			City:          body.City,
			Handedness:    body.Handedness,
			PreferredSide: body.PreferredSide,
			FirstName:     body.FirstName,
			LastName:      body.LastName,
		},
		PrimaryCategoryCode: body.PrimaryCategoryCode,
	}
	if body.Birthdate != nil {
		bd, err := time.Parse("2006-01-02", *body.Birthdate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "birthdate must be YYYY-MM-DD")
			return
		}
		in.Birthdate = &bd
	}

	me, err := h.Profile.Update(r.Context(), userID(r.Context()), in)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

func (h *Handlers) myLadders(w http.ResponseWriter, r *http.Request) {
	states, err := h.Profile.LadderStates(r.Context(), userID(r.Context()))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ladders": states})
}

func (h *Handlers) playEligibility(w http.ResponseWriter, r *http.Request) {
	el, err := h.Profile.PlayEligibility(r.Context(), userID(r.Context()))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, el)
}

func (h *Handlers) myMatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := profile.MatchFilter{
		Ladder: q.Get("ladder"),
		Status: q.Get("status"),
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	rows, err := h.Profile.MyMatches(r.Context(), userID(r.Context()), f)
	if err != nil {
		respondErr(w, err)
		return
	}
	if rows == nil {
		rows = []profile.MyMatchRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"matches": rows})
}

type avatarPresetBody struct {
	Key string `json:"key"`
}

func (h *Handlers) setAvatarPreset(w http.ResponseWriter, r *http.Request) {
	var body avatarPresetBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.Profile.SetAvatarPreset(r.Context(), userID(r.Context()), body.Key); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

const maxAvatarUpload = 8 << 20

func (h *Handlers) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxAvatarUpload+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "unreadable upload body")
		return
	}
	if len(data) > maxAvatarUpload {
		writeError(w, http.StatusBadRequest, "validation_error", "avatar too large")
		return
	}
	url, err := h.Profile.UploadAvatar(r.Context(), userID(r.Context()), data)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatar_url": url})
}
