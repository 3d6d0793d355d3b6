package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gorillaws "github.com/gorilla/websocket"

	"investledger/internal/config"
	"investledger/internal/db"
	"investledger/internal/middleware"
	"investledger/internal/websocket"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Plans       PlanService
	Investments InvestmentService
	Balances    BalanceService
	Withdrawals WithdrawalService
	Referrals   ReferralService
	Reporting   ReportingService
	Admin       AdminStore
	Audit       AuditStore
	DB          Pinger
}

type Handler struct {
	cfg         config.Config
	txRunner    db.TxRunner
	plans       PlanService
	investments InvestmentService
	balances    BalanceService
	withdrawals WithdrawalService
	referrals   ReferralService
	reporting   ReportingService
	admin       AdminStore
	audit       AuditStore
	db          Pinger
	hub         *websocket.Hub
	upgrader    gorillaws.Upgrader
}

func New(cfg config.Config, txRunner db.TxRunner, deps Deps, hub *websocket.Hub) *Handler {
	return &Handler{
		cfg:         cfg,
		txRunner:    txRunner,
		plans:       deps.Plans,
		investments: deps.Investments,
		balances:    deps.Balances,
		withdrawals: deps.Withdrawals,
		referrals:   deps.Referrals,
		reporting:   deps.Reporting,
		admin:       deps.Admin,
		audit:       deps.Audit,
		db:          deps.DB,
		hub:         hub,
		upgrader:    websocket.Upgrader(cfg.AllowedOrigins),
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(h.cfg.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", h.Health)
	router.Get("/plans", h.ListPlans)
	router.Get("/ws/balances", h.WSBalances)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/investments", h.CreateInvestment)
		r.Get("/investments", h.ListInvestments)
		r.Get("/investments/{id}", h.GetInvestment)
		r.Get("/balance", h.GetBalance)
		r.Get("/events", h.ListEvents)
		r.Post("/withdrawals", h.RequestWithdrawal)
		r.Get("/projections", h.ProjectReturns)
		r.Get("/analytics/accruals", h.AccrualSeries)
		r.Get("/analytics/summary", h.Summary)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleVerifyPayments)).Post("/payments/verified", h.PaymentVerified)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleVerifyPayments)).Post("/investments/{id}/cancel", h.CancelInvestment)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleResolveWithdrawals)).Get("/withdrawals", h.AdminListWithdrawals)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleResolveWithdrawals)).Post("/withdrawals/{id}/resolve", h.ResolveWithdrawal)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleResolveWithdrawals)).Post("/referrals/credit", h.CreditReferral)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleResolveWithdrawals)).Post("/referrals/link", h.LinkReferral)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleManagePlans)).Put("/plans", h.UpsertPlan)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleViewAudit)).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleViewAudit)).Get("/balances/{ownerID}", h.AdminGetBalance)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/promote", h.PromoteAdmin)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/roles/grant", h.GrantRole)
	})
	return router
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
