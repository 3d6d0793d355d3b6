package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"investledger/internal/auth"
	"investledger/internal/config"
	"investledger/internal/models"
	"investledger/internal/projection"
	"investledger/internal/services"
	"investledger/internal/store"
	"investledger/internal/websocket"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubPlanService struct {
	listFn   func(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	upsertFn func(ctx context.Context, plan models.Plan, actorID string) error
}

func (s stubPlanService) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	if s.listFn == nil {
		return []models.Plan{}, nil
	}
	return s.listFn(ctx, activeOnly)
}

func (s stubPlanService) UpsertPlan(ctx context.Context, plan models.Plan, actorID string) error {
	if s.upsertFn == nil {
		return nil
	}
	return s.upsertFn(ctx, plan, actorID)
}

type stubInvestmentService struct {
	createFn func(ctx context.Context, req services.CreateInvestmentRequest) (models.Investment, error)
	verifyFn func(ctx context.Context, req services.PaymentVerification) (services.VerificationResult, error)
	cancelFn func(ctx context.Context, investmentID, actorID string) (models.Investment, error)
	listFn   func(ctx context.Context, ownerID string) ([]models.Investment, error)
	getFn    func(ctx context.Context, ownerID, investmentID string) (models.Investment, error)
}

func (s stubInvestmentService) CreateInvestment(ctx context.Context, req services.CreateInvestmentRequest) (models.Investment, error) {
	if s.createFn == nil {
		return models.Investment{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubInvestmentService) PaymentVerified(ctx context.Context, req services.PaymentVerification) (services.VerificationResult, error) {
	if s.verifyFn == nil {
		return services.VerificationResult{}, nil
	}
	return s.verifyFn(ctx, req)
}

func (s stubInvestmentService) CancelInvestment(ctx context.Context, investmentID, actorID string) (models.Investment, error) {
	if s.cancelFn == nil {
		return models.Investment{}, nil
	}
	return s.cancelFn(ctx, investmentID, actorID)
}

func (s stubInvestmentService) ListInvestments(ctx context.Context, ownerID string) ([]models.Investment, error) {
	if s.listFn == nil {
		return []models.Investment{}, nil
	}
	return s.listFn(ctx, ownerID)
}

func (s stubInvestmentService) GetInvestment(ctx context.Context, ownerID, investmentID string) (models.Investment, error) {
	if s.getFn == nil {
		return models.Investment{}, nil
	}
	return s.getFn(ctx, ownerID, investmentID)
}

type stubBalanceService struct {
	getFn     func(ctx context.Context, ownerID string) (models.Balance, error)
	getAsOfFn func(ctx context.Context, ownerID string, asOf time.Time) (models.Balance, error)
	eventsFn  func(ctx context.Context, q services.EventQuery) (services.EventPage, error)
}

func (s stubBalanceService) GetBalance(ctx context.Context, ownerID string) (models.Balance, error) {
	if s.getFn == nil {
		return models.Balance{OwnerID: ownerID}, nil
	}
	return s.getFn(ctx, ownerID)
}

func (s stubBalanceService) GetBalanceAsOf(ctx context.Context, ownerID string, asOf time.Time) (models.Balance, error) {
	if s.getAsOfFn == nil {
		return models.Balance{OwnerID: ownerID, AsOf: asOf}, nil
	}
	return s.getAsOfFn(ctx, ownerID, asOf)
}

func (s stubBalanceService) ListEvents(ctx context.Context, q services.EventQuery) (services.EventPage, error) {
	if s.eventsFn == nil {
		return services.EventPage{Events: []models.LedgerEvent{}}, nil
	}
	return s.eventsFn(ctx, q)
}

type stubWithdrawalService struct {
	requestFn func(ctx context.Context, req services.WithdrawalRequest) (services.WithdrawalReceipt, error)
	resolveFn func(ctx context.Context, req services.ResolveRequest) (services.ResolveResult, error)
	listFn    func(ctx context.Context, status models.WithdrawalStatus, limit, offset int) ([]models.Withdrawal, error)
}

func (s stubWithdrawalService) RequestWithdrawal(ctx context.Context, req services.WithdrawalRequest) (services.WithdrawalReceipt, error) {
	if s.requestFn == nil {
		return services.WithdrawalReceipt{}, nil
	}
	return s.requestFn(ctx, req)
}

func (s stubWithdrawalService) ResolveWithdrawal(ctx context.Context, req services.ResolveRequest) (services.ResolveResult, error) {
	if s.resolveFn == nil {
		return services.ResolveResult{}, nil
	}
	return s.resolveFn(ctx, req)
}

func (s stubWithdrawalService) ListWithdrawals(ctx context.Context, status models.WithdrawalStatus, limit, offset int) ([]models.Withdrawal, error) {
	if s.listFn == nil {
		return []models.Withdrawal{}, nil
	}
	return s.listFn(ctx, status, limit, offset)
}

type stubReferralService struct {
	creditFn func(ctx context.Context, req services.ReferralCredit) (models.LedgerEvent, error)
	linkFn   func(ctx context.Context, referredID, referrerID, actorID string) (bool, error)
}

func (s stubReferralService) CreditReferral(ctx context.Context, req services.ReferralCredit) (models.LedgerEvent, error) {
	if s.creditFn == nil {
		return models.LedgerEvent{}, nil
	}
	return s.creditFn(ctx, req)
}

func (s stubReferralService) LinkReferral(ctx context.Context, referredID, referrerID, actorID string) (bool, error) {
	if s.linkFn == nil {
		return true, nil
	}
	return s.linkFn(ctx, referredID, referrerID, actorID)
}

type stubReportingService struct {
	projectFn func(ctx context.Context, ownerID string, months int) ([]projection.Point, error)
	seriesFn  func(ctx context.Context, ownerID string, g projection.Granularity, points int) ([]projection.Point, error)
	summaryFn func(ctx context.Context, ownerID string) (projection.Summary, error)
}

func (s stubReportingService) ProjectReturns(ctx context.Context, ownerID string, months int) ([]projection.Point, error) {
	if s.projectFn == nil {
		return []projection.Point{}, nil
	}
	return s.projectFn(ctx, ownerID, months)
}

func (s stubReportingService) AccrualSeries(ctx context.Context, ownerID string, g projection.Granularity, points int) ([]projection.Point, error) {
	if s.seriesFn == nil {
		return []projection.Point{}, nil
	}
	return s.seriesFn(ctx, ownerID, g, points)
}

func (s stubReportingService) Summary(ctx context.Context, ownerID string) (projection.Summary, error) {
	if s.summaryFn == nil {
		return projection.Summary{}, nil
	}
	return s.summaryFn(ctx, ownerID)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn     func(ctx context.Context, userID, role string) (bool, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy string) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, adminUserID, role, grantedBy string) error
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminUserID, role, grantedBy string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminUserID, role, grantedBy)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data any) error
	listFn func(ctx context.Context, filter store.AuditFilter) ([]models.AuditEntry, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data any) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, filter store.AuditFilter) ([]models.AuditEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, filter)
}

// superAdmin lets every admin route through.
var superAdmin = stubAdminStore{
	isAdminFn: func(context.Context, string) (bool, bool, error) { return true, true, nil },
}

func newTestHandler(deps Deps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
	}
	if deps.Plans == nil {
		deps.Plans = stubPlanService{}
	}
	if deps.Investments == nil {
		deps.Investments = stubInvestmentService{}
	}
	if deps.Balances == nil {
		deps.Balances = stubBalanceService{}
	}
	if deps.Withdrawals == nil {
		deps.Withdrawals = stubWithdrawalService{}
	}
	if deps.Referrals == nil {
		deps.Referrals = stubReferralService{}
	}
	if deps.Reporting == nil {
		deps.Reporting = stubReportingService{}
	}
	if deps.Admin == nil {
		deps.Admin = stubAdminStore{}
	}
	if deps.Audit == nil {
		deps.Audit = stubAuditStore{}
	}
	return New(cfg, fakeTxRunner{}, deps, websocket.NewHub())
}

// serve routes a request through the full router, authenticated as userID
// unless it is empty.
func serve(t *testing.T, handler *Handler, method, path, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		token, err := auth.GenerateToken("secret", userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

func stringPtr(value string) *string {
	return &value
}
