package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"investledger/internal/auth"
	"investledger/internal/middleware"
	"investledger/internal/models"
	"investledger/internal/projection"
	"investledger/internal/services"
	"investledger/internal/websocket"
)

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.ListPlans(r.Context(), r.URL.Query().Get("all") != "true")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, plans)
}

type createInvestmentRequest struct {
	PlanID           string  `json:"plan_id"`
	Amount           string  `json:"amount"`
	PaymentReference *string `json:"payment_reference"`
}

func (h *Handler) CreateInvestment(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createInvestmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.PlanID) == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseInvestmentAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	inv, err := h.investments.CreateInvestment(r.Context(), services.CreateInvestmentRequest{
		OwnerID:          ownerID,
		PlanID:           strings.TrimSpace(req.PlanID),
		Amount:           amount,
		PaymentReference: optionalString(req.PaymentReference),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

func (h *Handler) ListInvestments(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	investments, err := h.investments.ListInvestments(r.Context(), ownerID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, investments)
}

func (h *Handler) GetInvestment(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	inv, err := h.investments.GetInvestment(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

// GetBalance reconciles now, or at as_of when given. as_of only moves the
// accrual horizon: withdrawals are counted whenever they were made, and the
// available figures of a historical balance are floored at zero.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.writeBalance(w, r, ownerID)
}

func (h *Handler) writeBalance(w http.ResponseWriter, r *http.Request, ownerID string) {
	var (
		balance models.Balance
		err     error
	)
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, ok := parseTime(raw)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid_as_of")
			return
		}
		balance, err = h.balances.GetBalanceAsOf(r.Context(), ownerID, asOf)
	} else {
		balance, err = h.balances.GetBalance(r.Context(), ownerID)
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	page, err := h.balances.ListEvents(r.Context(), services.EventQuery{
		OwnerID: ownerID,
		Kind:    models.EventKind(query.Get("kind")),
		Cursor:  query.Get("cursor"),
		Limit:   parseInt(query.Get("limit"), services.DefaultEventPageSize),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

type withdrawalRequest struct {
	Amount          string                `json:"amount"`
	Kind            models.WithdrawalKind `json:"kind"`
	PaymentDetails  models.PaymentDetails `json:"payment_details"`
	ClientRequestID *string               `json:"client_request_id"`
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseWithdrawalAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	receipt, err := h.withdrawals.RequestWithdrawal(r.Context(), services.WithdrawalRequest{
		OwnerID:         ownerID,
		Amount:          amount,
		Kind:            req.Kind,
		Details:         req.PaymentDetails,
		ClientRequestID: optionalString(req.ClientRequestID),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, status, receipt)
}

func (h *Handler) ProjectReturns(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	points, err := h.reporting.ProjectReturns(r.Context(), ownerID, parseInt(r.URL.Query().Get("months"), 12))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, points)
}

func (h *Handler) AccrualSeries(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	granularity := projection.Granularity(query.Get("granularity"))
	if granularity == "" {
		granularity = projection.Daily
	}
	points, err := h.reporting.AccrualSeries(r.Context(), ownerID, granularity, parseInt(query.Get("points"), 30))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, points)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	summary, err := h.reporting.Summary(r.Context(), ownerID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// WSBalances accepts the token as a query parameter because browsers cannot
// set headers on websocket upgrades.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, h.upgrader, claims.UserID)
}
