package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"investledger/internal/models"
	"investledger/internal/projection"
	"investledger/internal/services"
	"investledger/internal/store"
)

func TestHealth(t *testing.T) {
	handler := newTestHandler(Deps{})
	rr := serve(t, handler, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestListPlansIsPublic(t *testing.T) {
	var activeOnly bool
	handler := newTestHandler(Deps{Plans: stubPlanService{
		listFn: func(_ context.Context, active bool) ([]models.Plan, error) {
			activeOnly = active
			return []models.Plan{{ID: "gold", Name: "Gold", Active: true}}, nil
		},
	}})
	rr := serve(t, handler, http.MethodGet, "/plans", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !activeOnly {
		t.Fatalf("expected only active plans by default")
	}
}

func TestOwnerRoutesRequireToken(t *testing.T) {
	handler := newTestHandler(Deps{})
	for _, path := range []string{"/balance", "/events", "/investments", "/projections"} {
		rr := serve(t, handler, http.MethodGet, path, "", "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestCreateInvestment(t *testing.T) {
	var got services.CreateInvestmentRequest
	handler := newTestHandler(Deps{Investments: stubInvestmentService{
		createFn: func(_ context.Context, req services.CreateInvestmentRequest) (models.Investment, error) {
			got = req
			return models.Investment{ID: "inv-1", OwnerID: req.OwnerID, Status: models.InvestmentPending}, nil
		},
	}})
	rr := serve(t, handler, http.MethodPost, "/investments", `{"plan_id":"gold","amount":"5000","payment_reference":" MP-1 "}`, "owner-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.OwnerID != "owner-1" || got.Amount != 5000 || got.PaymentReference == nil || *got.PaymentReference != "MP-1" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestCreateInvestmentRejectsFractionalAmount(t *testing.T) {
	handler := newTestHandler(Deps{Investments: stubInvestmentService{
		createFn: func(context.Context, services.CreateInvestmentRequest) (models.Investment, error) {
			t.Fatalf("service should not be called")
			return models.Investment{}, nil
		},
	}})
	rr := serve(t, handler, http.MethodPost, "/investments", `{"plan_id":"gold","amount":"5000.50"}`, "owner-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateInvestmentMapsPlanErrors(t *testing.T) {
	reasons := map[error]string{
		services.ErrPlanNotFound:     "plan not found",
		services.ErrPlanInactive:     "plan is not accepting investments",
		services.ErrAmountOutOfRange: "amount outside plan bounds",
	}
	for reason, message := range reasons {
		handler := newTestHandler(Deps{Investments: stubInvestmentService{
			createFn: func(_ context.Context, req services.CreateInvestmentRequest) (models.Investment, error) {
				return models.Investment{}, &services.InvalidPlanError{PlanID: req.PlanID, Reason: reason}
			},
		}})
		rr := serve(t, handler, http.MethodPost, "/investments", `{"plan_id":"gold","amount":"999"}`, "owner-1")
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%v: expected 422, got %d", reason, rr.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["error"] != "invalid_plan" || body["plan_id"] != "gold" || body["reason"] != message {
			t.Fatalf("%v: unexpected body %v", reason, body)
		}
	}
}

func TestGetBalanceAsOf(t *testing.T) {
	var asOf time.Time
	handler := newTestHandler(Deps{Balances: stubBalanceService{
		getAsOfFn: func(_ context.Context, ownerID string, at time.Time) (models.Balance, error) {
			asOf = at
			return models.Balance{OwnerID: ownerID, AvailableBalance: 2000}, nil
		},
	}})
	rr := serve(t, handler, http.MethodGet, "/balance?as_of=2026-05-01T00:00:00Z", "", "owner-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !asOf.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected as_of %v", asOf)
	}
	var balance models.Balance
	if err := json.Unmarshal(rr.Body.Bytes(), &balance); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if balance.AvailableBalance != 2000 {
		t.Fatalf("expected 2000, got %d", balance.AvailableBalance)
	}

	rr = serve(t, handler, http.MethodGet, "/balance?as_of=yesterday", "", "owner-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListEventsPassesQuery(t *testing.T) {
	var got services.EventQuery
	handler := newTestHandler(Deps{Balances: stubBalanceService{
		eventsFn: func(_ context.Context, q services.EventQuery) (services.EventPage, error) {
			got = q
			if q.Cursor == "bad" {
				return services.EventPage{}, store.ErrInvalidCursor
			}
			return services.EventPage{Events: []models.LedgerEvent{}}, nil
		},
	}})
	rr := serve(t, handler, http.MethodGet, "/events?kind=referral_credit&limit=5&cursor=abc", "", "owner-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.OwnerID != "owner-1" || got.Kind != models.EventReferralCredit || got.Limit != 5 || got.Cursor != "abc" {
		t.Fatalf("unexpected query %+v", got)
	}

	rr = serve(t, handler, http.MethodGet, "/events?cursor=bad", "", "owner-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRequestWithdrawalFloorsAmount(t *testing.T) {
	var got services.WithdrawalRequest
	handler := newTestHandler(Deps{Withdrawals: stubWithdrawalService{
		requestFn: func(_ context.Context, req services.WithdrawalRequest) (services.WithdrawalReceipt, error) {
			got = req
			return services.WithdrawalReceipt{RequestID: "wd-1"}, nil
		},
	}})
	body := `{"amount":"1500.75","kind":"commission","client_request_id":"k1","payment_details":{"category":"crypto","method":"usdt","full_name":"A","email":"a@b.co","wallet_address":"T123"}}`
	rr := serve(t, handler, http.MethodPost, "/withdrawals", body, "owner-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Amount != 1500 || got.Kind != models.WithdrawalCommission || got.Details.WalletAddress != "T123" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.ClientRequestID == nil || *got.ClientRequestID != "k1" {
		t.Fatalf("expected client request id")
	}
}

func TestRequestWithdrawalReplayReturnsOK(t *testing.T) {
	handler := newTestHandler(Deps{Withdrawals: stubWithdrawalService{
		requestFn: func(context.Context, services.WithdrawalRequest) (services.WithdrawalReceipt, error) {
			return services.WithdrawalReceipt{RequestID: "wd-1", Replayed: true}, nil
		},
	}})
	rr := serve(t, handler, http.MethodPost, "/withdrawals", `{"amount":"1500"}`, "owner-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequestWithdrawalErrorBodies(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"insufficient", &services.InsufficientBalanceError{Kind: models.WithdrawalStandard, Available: 2000, Requested: 3000}, http.StatusUnprocessableEntity, "insufficient_balance"},
		{"minimum", &services.BelowMinimumWithdrawalError{Kind: models.WithdrawalStandard, Minimum: 1000, Requested: 10}, http.StatusUnprocessableEntity, "below_minimum_withdrawal"},
		{"details", &services.InvalidPaymentDetailsError{Reason: errors.New("invalid phone number")}, http.StatusUnprocessableEntity, "invalid_payment_details"},
		{"conflict", &services.ConcurrencyConflictError{OwnerID: "owner-1", Err: errors.New("busy")}, http.StatusConflict, "concurrency_conflict"},
		{"reused key", services.ErrIdempotencyKeyReused, http.StatusConflict, "idempotency_key_reused"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(Deps{Withdrawals: stubWithdrawalService{
				requestFn: func(context.Context, services.WithdrawalRequest) (services.WithdrawalReceipt, error) {
					return services.WithdrawalReceipt{}, tc.err
				},
			}})
			rr := serve(t, handler, http.MethodPost, "/withdrawals", `{"amount":"3000"}`, "owner-1")
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestInsufficientBalanceBodyCarriesAmounts(t *testing.T) {
	handler := newTestHandler(Deps{Withdrawals: stubWithdrawalService{
		requestFn: func(context.Context, services.WithdrawalRequest) (services.WithdrawalReceipt, error) {
			return services.WithdrawalReceipt{}, &services.InsufficientBalanceError{Available: 2000, Requested: 3000}
		},
	}})
	rr := serve(t, handler, http.MethodPost, "/withdrawals", `{"amount":"3000"}`, "owner-1")
	var body struct {
		Available int64 `json:"available"`
		Requested int64 `json:"requested"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Available != 2000 || body.Requested != 3000 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRequestWithdrawalRejectsBadAmount(t *testing.T) {
	handler := newTestHandler(Deps{})
	for _, body := range []string{`{"amount":"0.5"}`, `{"amount":"-10"}`, `{"amount":"lots"}`, `not json`} {
		rr := serve(t, handler, http.MethodPost, "/withdrawals", body, "owner-1")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestProjectionsDefaultsAndErrors(t *testing.T) {
	var months int
	handler := newTestHandler(Deps{Reporting: stubReportingService{
		projectFn: func(_ context.Context, _ string, m int) ([]projection.Point, error) {
			months = m
			if m > projection.MaxHorizonMonths {
				return nil, projection.ErrInvalidHorizon
			}
			return []projection.Point{}, nil
		},
	}})
	rr := serve(t, handler, http.MethodGet, "/projections", "", "owner-1")
	if rr.Code != http.StatusOK || months != 12 {
		t.Fatalf("expected default horizon of 12, got %d (status %d)", months, rr.Code)
	}
	rr = serve(t, handler, http.MethodGet, "/projections?months=999", "", "owner-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAccrualSeriesDefaultsToDaily(t *testing.T) {
	var granularity projection.Granularity
	var points int
	handler := newTestHandler(Deps{Reporting: stubReportingService{
		seriesFn: func(_ context.Context, _ string, g projection.Granularity, n int) ([]projection.Point, error) {
			granularity, points = g, n
			return []projection.Point{}, nil
		},
	}})
	rr := serve(t, handler, http.MethodGet, "/analytics/accruals", "", "owner-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if granularity != projection.Daily || points != 30 {
		t.Fatalf("unexpected defaults %s/%d", granularity, points)
	}
}

func TestWSBalancesRequiresToken(t *testing.T) {
	handler := newTestHandler(Deps{})
	rr := serve(t, handler, http.MethodGet, "/ws/balances", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	rr = serve(t, handler, http.MethodGet, "/ws/balances?token=garbage", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
