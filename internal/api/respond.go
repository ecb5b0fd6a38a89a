package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/rivio/ranking-server/internal/pkg/httputil"
	"github.com/rivio/ranking-server/internal/score"
	"github.com/rivio/ranking-server/internal/service/analytics"
	"github.com/rivio/ranking-server/internal/service/billing"
	"github.com/rivio/ranking-server/internal/service/entitlement"
	"github.com/rivio/ranking-server/internal/service/history"
	"github.com/rivio/ranking-server/internal/service/identity"
	"github.com/rivio/ranking-server/internal/service/match"
	"github.com/rivio/ranking-server/internal/service/profile"
	"github.com/rivio/ranking-server/internal/service/ranking"
	"github.com/rivio/ranking-server/internal/service/support"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	httputil.JSON(w, status, v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	httputil.Error(w, status, code, message)
}

// statusFor maps service sentinel errors onto the HTTP error taxonomy.
// Visibility failures answer 404 so private and nonexistent are
// indistinguishable.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, identity.ErrInvalidContact),
		errors.Is(err, identity.ErrInvalidPurpose),
		errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, identity.ErrOTPNotFound),
		errors.Is(err, identity.ErrOTPAlreadyUsed),
		errors.Is(err, identity.ErrOTPExpired),
		errors.Is(err, identity.ErrOTPInvalidCode),
		errors.Is(err, score.ErrInvalid),
		errors.Is(err, match.ErrBadParticipants),
		errors.Is(err, match.ErrInvalidGenderMix),
		errors.Is(err, match.ErrWinnerMismatch),
		errors.Is(err, profile.ErrInvalidGender),
		errors.Is(err, profile.ErrGenderRequired),
		errors.Is(err, profile.ErrInvalidCountry),
		errors.Is(err, profile.ErrInvalidCategory),
		errors.Is(err, profile.ErrInvalidPreset),
		errors.Is(err, ranking.ErrInvalidLadder),
		errors.Is(err, ranking.ErrInvalidCountry),
		errors.Is(err, ranking.ErrCityNeedsCountry),
		errors.Is(err, history.ErrInvalidLadder),
		errors.Is(err, history.ErrInvalidRange),
		errors.Is(err, analytics.ErrInvalidLadder),
		errors.Is(err, entitlement.ErrInvalidPlan),
		errors.Is(err, billing.ErrInvalidProvider),
		errors.Is(err, billing.ErrInvalidPlan),
		errors.Is(err, billing.ErrInvalidStatus),
		errors.Is(err, billing.ErrInvalidEvent),
		errors.Is(err, billing.ErrBadSignature),
		errors.Is(err, billing.ErrUnmappedProduct),
		errors.Is(err, billing.ErrInvalidReceipt),
		errors.Is(err, billing.ErrCheckoutUnsupported),
		errors.Is(err, support.ErrInvalidTicket):
		return http.StatusBadRequest, "validation_error"

	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrSessionInvalid),
		errors.Is(err, identity.ErrSessionRevoked):
		return http.StatusUnauthorized, "unauthenticated"

	case errors.Is(err, identity.ErrAccountBlocked),
		errors.Is(err, match.ErrCreatorBlocked),
		errors.Is(err, match.ErrNotEligible),
		errors.Is(err, history.ErrForbiddenScope),
		errors.Is(err, analytics.ErrPlanRequired):
		return http.StatusForbidden, "forbidden"

	case errors.Is(err, identity.ErrNotFound),
		errors.Is(err, identity.ErrNoDeletionRequest),
		errors.Is(err, profile.ErrNotFound),
		errors.Is(err, match.ErrNotFound),
		errors.Is(err, match.ErrNotParticipant),
		errors.Is(err, match.ErrClubNotFound),
		errors.Is(err, history.ErrNotFound),
		errors.Is(err, analytics.ErrNotFound),
		errors.Is(err, entitlement.ErrNotFound),
		errors.Is(err, entitlement.ErrSimulateDisabled),
		errors.Is(err, billing.ErrSimulateDisabled):
		return http.StatusNotFound, "not_found"

	case errors.Is(err, identity.ErrAlreadyRegistered),
		errors.Is(err, identity.ErrContactInUse),
		errors.Is(err, profile.ErrAliasTaken),
		errors.Is(err, profile.ErrGenderLocked),
		errors.Is(err, profile.ErrCategoryLocked),
		errors.Is(err, match.ErrExpired),
		errors.Is(err, match.ErrNotConfirmable),
		errors.Is(err, match.ErrProposalLimit),
		errors.Is(err, match.ErrMissingLadderState):
		return http.StatusConflict, "conflict"

	case errors.Is(err, identity.ErrOTPCooldown),
		errors.Is(err, identity.ErrOTPTooManyAttempts),
		errors.Is(err, identity.ErrLoginThrottled),
		errors.Is(err, support.ErrDailyLimit),
		errors.Is(err, support.ErrTooSoon):
		return http.StatusTooManyRequests, "rate_limited"

	case errors.Is(err, support.ErrDisabled),
		errors.Is(err, billing.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func respondErr(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("[api] internal error: %v", err)
		msg = "internal server error"
	}
	writeError(w, status, code, msg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return httputil.Decode(w, r, v)
}
