package api

import (
	"net/http"

	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/service/identity"
)

type otpRequestBody struct {
	Kind    string `json:"kind"`
	Value   string `json:"value"`
	Purpose string `json:"purpose"`
}

// requestOTP issues a one-time code. Dev environments echo the code in
// the response so clients can test without a delivery channel.
func (h *Handlers) requestOTP(dev bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body otpRequestBody
		if !decodeBody(w, r, &body) {
			return
		}
		code, err := h.Identity.RequestOTP(r.Context(),
			domain.ContactKind(body.Kind), body.Value, domain.OTPPurpose(body.Purpose))
		if err != nil {
			respondErr(w, err)
			return
		}
		resp := map[string]interface{}{"sent": true}
		if dev {
			resp["dev_code"] = code
		}
		writeJSON(w, http.StatusAccepted, resp)
	}
}

type registerBody struct {
	Kind     string `json:"kind"`
	Value    string `json:"value"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if !decodeBody(w, r, &body) {
		return
	}
	pair, err := h.Identity.Register(r.Context(), identity.RegisterInput{
		Kind:     domain.ContactKind(body.Kind),
		Value:    body.Value,
		Code:     body.Code,
		Password: body.Password,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

type loginBody struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !decodeBody(w, r, &body) {
		return
	}
	pair, err := h.Identity.Login(r.Context(), body.Identifier, body.Password)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if !decodeBody(w, r, &body) {
		return
	}
	pair, err := h.Identity.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.Identity.Logout(r.Context(), body.RefreshToken); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// requestPasswordReset is the anti-enumeration entry point: it always
// answers as if a code was sent, whether or not the contact exists.
func (h *Handlers) requestPasswordReset(dev bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body otpRequestBody
		if !decodeBody(w, r, &body) {
			return
		}
		code, err := h.Identity.RequestOTP(r.Context(),
			domain.ContactKind(body.Kind), body.Value, domain.PurposePasswordReset)
		if err != nil {
			respondErr(w, err)
			return
		}
		resp := map[string]interface{}{"sent": true}
		if dev && code != "" {
			resp["dev_code"] = code
		}
		writeJSON(w, http.StatusAccepted, resp)
	}
}

type resetPasswordBody struct {
	Kind        string `json:"kind"`
	Value       string `json:"value"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (h *Handlers) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordBody
	if !decodeBody(w, r, &body) {
		return
	}
	err := h.Identity.ConfirmPasswordReset(r.Context(),
		domain.ContactKind(body.Kind), body.Value, body.Code, body.NewPassword)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type contactChangeBody struct {
	Kind     string `json:"kind"`
	NewValue string `json:"new_value"`
	Code     string `json:"code"`
}

func (h *Handlers) requestContactChange(dev bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body contactChangeBody
		if !decodeBody(w, r, &body) {
			return
		}
		code, err := h.Identity.RequestContactChange(r.Context(), userID(r.Context()),
			domain.ContactKind(body.Kind), body.NewValue)
		if err != nil {
			respondErr(w, err)
			return
		}
		resp := map[string]interface{}{"sent": true}
		if dev {
			resp["dev_code"] = code
		}
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func (h *Handlers) confirmContactChange(w http.ResponseWriter, r *http.Request) {
	var body contactChangeBody
	if !decodeBody(w, r, &body) {
		return
	}
	value, err := h.Identity.ConfirmContactChange(r.Context(), userID(r.Context()),
		domain.ContactKind(body.Kind), body.Code)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"kind": body.Kind, "value": value})
}

type deletionBody struct {
	Reason *string `json:"reason,omitempty"`
}

func (h *Handlers) requestDeletion(w http.ResponseWriter, r *http.Request) {
	var body deletionBody
	if r.ContentLength > 0 && !decodeBody(w, r, &body) {
		return
	}
	req, err := h.Identity.RequestDeletion(r.Context(), userID(r.Context()), body.Reason)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

func (h *Handlers) cancelDeletion(w http.ResponseWriter, r *http.Request) {
	if err := h.Identity.CancelDeletion(r.Context(), userID(r.Context())); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) deletionStatus(w http.ResponseWriter, r *http.Request) {
	req, err := h.Identity.DeletionStatus(r.Context(), userID(r.Context()))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
