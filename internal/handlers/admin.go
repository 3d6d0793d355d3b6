package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"investledger/internal/catalog"
	"investledger/internal/middleware"
	"investledger/internal/models"
	"investledger/internal/services"
	"investledger/internal/store"
)

type paymentVerifiedRequest struct {
	InvestmentID  string `json:"investment_id"`
	TransactionID string `json:"transaction_id"`
}

func (h *Handler) PaymentVerified(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.OwnerIDFromContext(r.Context())
	var req paymentVerifiedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InvestmentID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := h.investments.PaymentVerified(r.Context(), services.PaymentVerification{
		InvestmentID:  req.InvestmentID,
		TransactionID: req.TransactionID,
		ActorID:       actorID,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) CancelInvestment(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.OwnerIDFromContext(r.Context())
	inv, err := h.investments.CancelInvestment(r.Context(), chi.URLParam(r, "id"), actorID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func (h *Handler) AdminListWithdrawals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), services.DefaultWithdrawalPageSize)
	page := parseInt(query.Get("page"), 1)
	withdrawals, err := h.withdrawals.ListWithdrawals(r.Context(), models.WithdrawalStatus(query.Get("status")), limit, (page-1)*limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, withdrawals)
}

type resolveRequest struct {
	Outcome models.WithdrawalStatus `json:"outcome"`
	Note    string                  `json:"note"`
}

func (h *Handler) ResolveWithdrawal(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.OwnerIDFromContext(r.Context())
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := h.withdrawals.ResolveWithdrawal(r.Context(), services.ResolveRequest{
		RequestID: chi.URLParam(r, "id"),
		Outcome:   req.Outcome,
		ActorID:   actorID,
		Note:      strings.TrimSpace(req.Note),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type creditReferralRequest struct {
	OwnerID             string  `json:"owner_id"`
	Amount              string  `json:"amount"`
	RelatedInvestmentID *string `json:"related_investment_id"`
	Note                string  `json:"note"`
	ClientRequestID     *string `json:"client_request_id"`
}

func (h *Handler) CreditReferral(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.OwnerIDFromContext(r.Context())
	var req creditReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.OwnerID) == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseInvestmentAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	ev, err := h.referrals.CreditReferral(r.Context(), services.ReferralCredit{
		OwnerID:             strings.TrimSpace(req.OwnerID),
		Amount:              amount,
		RelatedInvestmentID: optionalString(req.RelatedInvestmentID),
		Note:                strings.TrimSpace(req.Note),
		ActorID:             actorID,
		ClientRequestID:     optionalString(req.ClientRequestID),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, ev)
}

type linkReferralRequest struct {
	ReferredID string `json:"referred_id"`
	ReferrerID string `json:"referrer_id"`
}

func (h *Handler) LinkReferral(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.OwnerIDFromContext(r.Context())
	var req linkReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReferredID == "" || req.ReferrerID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	linked, err := h.referrals.LinkReferral(r.Context(), req.ReferredID, req.ReferrerID, actorID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if linked {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]bool{"linked": linked})
}

func (h *Handler) UpsertPlan(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.OwnerIDFromContext(r.Context())
	var spec catalog.PlanSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	plan, err := spec.Plan()
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_plan", "reason": err.Error()})
		return
	}
	if err := h.plans.UpsertPlan(r.Context(), plan, actorID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	entries, err := h.audit.List(r.Context(), store.AuditFilter{
		EntityType: query.Get("entity_type"),
		EntityID:   query.Get("entity_id"),
		Limit:      limit,
		Offset:     (page - 1) * limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) AdminGetBalance(w http.ResponseWriter, r *http.Request) {
	h.writeBalance(w, r, chi.URLParam(r, "ownerID"))
}

type promoteRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	target := strings.TrimSpace(req.UserID)
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.CreateAdmin(r.Context(), tx, target, false, userID); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, userID, "admin.promote", "admin", target, nil)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to promote admin")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted"})
}

type grantRoleRequest struct {
	AdminUserID string `json:"admin_user_id"`
	Role        string `json:"role"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req grantRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AdminUserID == "" || req.Role == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !middleware.ValidRole(req.Role) {
		respondError(w, http.StatusBadRequest, "unknown role")
		return
	}
	isAdmin, isSuper, err := h.admin.IsAdmin(r.Context(), req.AdminUserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify target admin")
		return
	}
	if !isAdmin {
		respondError(w, http.StatusBadRequest, "target is not an admin")
		return
	}
	if isSuper {
		respondError(w, http.StatusBadRequest, "cannot assign roles to super admin")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.GrantRole(r.Context(), tx, req.AdminUserID, req.Role, userID); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, userID, "admin.grant_role", "admin_role", req.AdminUserID, map[string]string{"role": req.Role})
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to grant role")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}
