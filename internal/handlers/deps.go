package handlers

import (
	"context"
	"time"

	"investledger/internal/models"
	"investledger/internal/projection"
	"investledger/internal/services"
	"investledger/internal/store"
)

type PlanService interface {
	ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	UpsertPlan(ctx context.Context, plan models.Plan, actorID string) error
}

type InvestmentService interface {
	CreateInvestment(ctx context.Context, req services.CreateInvestmentRequest) (models.Investment, error)
	PaymentVerified(ctx context.Context, req services.PaymentVerification) (services.VerificationResult, error)
	CancelInvestment(ctx context.Context, investmentID, actorID string) (models.Investment, error)
	ListInvestments(ctx context.Context, ownerID string) ([]models.Investment, error)
	GetInvestment(ctx context.Context, ownerID, investmentID string) (models.Investment, error)
}

type BalanceService interface {
	GetBalance(ctx context.Context, ownerID string) (models.Balance, error)
	GetBalanceAsOf(ctx context.Context, ownerID string, asOf time.Time) (models.Balance, error)
	ListEvents(ctx context.Context, q services.EventQuery) (services.EventPage, error)
}

type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, req services.WithdrawalRequest) (services.WithdrawalReceipt, error)
	ResolveWithdrawal(ctx context.Context, req services.ResolveRequest) (services.ResolveResult, error)
	ListWithdrawals(ctx context.Context, status models.WithdrawalStatus, limit, offset int) ([]models.Withdrawal, error)
}

type ReferralService interface {
	CreditReferral(ctx context.Context, req services.ReferralCredit) (models.LedgerEvent, error)
	LinkReferral(ctx context.Context, referredID, referrerID, actorID string) (bool, error)
}

type ReportingService interface {
	ProjectReturns(ctx context.Context, ownerID string, horizonMonths int) ([]projection.Point, error)
	AccrualSeries(ctx context.Context, ownerID string, granularity projection.Granularity, points int) ([]projection.Point, error)
	Summary(ctx context.Context, ownerID string) (projection.Summary, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role, grantedBy string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data any) error
	List(ctx context.Context, filter store.AuditFilter) ([]models.AuditEntry, error)
}
