package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"investledger/internal/catalog"
	"investledger/internal/money"
	"investledger/internal/projection"
	"investledger/internal/services"
	"investledger/internal/store"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{services.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{money.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{money.ErrTooManyDecimals, http.StatusBadRequest, "invalid_amount"},
	{services.ErrInvalidWithdrawalKind, http.StatusBadRequest, "invalid_withdrawal_kind"},
	{services.ErrInvalidOutcome, http.StatusBadRequest, "invalid_outcome"},
	{services.ErrInvalidEventKind, http.StatusBadRequest, "invalid_event_kind"},
	{services.ErrMissingPaymentReference, http.StatusBadRequest, "missing_payment_reference"},
	{services.ErrSelfReferral, http.StatusBadRequest, "self_referral"},
	{services.ErrInvalidPlan, http.StatusBadRequest, "invalid_plan"},
	{store.ErrInvalidCursor, http.StatusBadRequest, "invalid_cursor"},
	{projection.ErrInvalidHorizon, http.StatusBadRequest, "invalid_horizon"},
	{projection.ErrInvalidGranularity, http.StatusBadRequest, "invalid_granularity"},
	{projection.ErrInvalidPoints, http.StatusBadRequest, "invalid_points"},
	{services.ErrInvestmentNotFound, http.StatusNotFound, "investment_not_found"},
	{services.ErrWithdrawalNotFound, http.StatusNotFound, "withdrawal_not_found"},
	{services.ErrPaymentReferenceMismatch, http.StatusUnprocessableEntity, "payment_reference_mismatch"},
	{services.ErrDuplicatePaymentReference, http.StatusConflict, "duplicate_payment_reference"},
	{services.ErrIdempotencyKeyReused, http.StatusConflict, "idempotency_key_reused"},
	{services.ErrReferralCycle, http.StatusConflict, "referral_cycle"},
}

// respondServiceError maps domain errors onto status codes. Structured
// errors carry their fields into the body.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var below *services.BelowMinimumWithdrawalError
	var details *services.InvalidPaymentDetailsError
	var insufficient *services.InsufficientBalanceError
	var transition *services.InvalidStateTransitionError
	var contention *services.ConcurrencyConflictError
	var invalidPlan *services.InvalidPlanError
	var planErr error
	switch {
	case errors.As(err, &below):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     "below_minimum_withdrawal",
			"kind":      below.Kind,
			"minimum":   below.Minimum,
			"requested": below.Requested,
		})
		return
	case errors.As(err, &details):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "invalid_payment_details",
			"reason": details.Reason.Error(),
		})
		return
	case errors.As(err, &insufficient):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     "insufficient_balance",
			"kind":      insufficient.Kind,
			"available": insufficient.Available,
			"requested": insufficient.Requested,
		})
		return
	case errors.As(err, &transition):
		respondJSON(w, http.StatusConflict, map[string]any{
			"error": "invalid_state_transition",
			"from":  transition.From,
			"to":    transition.To,
		})
		return
	case errors.As(err, &invalidPlan):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "invalid_plan",
			"plan_id": invalidPlan.PlanID,
			"reason":  invalidPlan.Reason.Error(),
		})
		return
	case errors.As(err, &contention):
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusConflict, "concurrency_conflict")
		return
	case isCatalogError(err, &planErr):
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid_plan",
			"reason": planErr.Error(),
		})
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			respondError(w, m.status, m.code)
			return
		}
	}
	log.WithFields(log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"error":  err,
	}).Error("Request failed")
	respondError(w, http.StatusInternalServerError, "internal_error")
}

func isCatalogError(err error, target *error) bool {
	for _, candidate := range []error{catalog.ErrMissingID, catalog.ErrMissingName, catalog.ErrInvalidRate, catalog.ErrInvalidCycle, catalog.ErrInvalidBounds} {
		if errors.Is(err, candidate) {
			*target = candidate
			return true
		}
	}
	return false
}
