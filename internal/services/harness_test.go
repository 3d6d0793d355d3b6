package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"investledger/internal/lock"
	"investledger/internal/models"
	"investledger/internal/validator"
)

var epoch = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	now time.Time

	tx          *fakeTxRunner
	gate        *lock.OwnerGate
	plans       *memPlans
	investments *memInvestments
	events      *memEvents
	partitions  *memPartitions
	referrals   *memReferrals
	audit       *memAudit
	notifier    *recordingNotifier

	balances    *BalanceService
	withdrawals *WithdrawalService
	investSvc   *InvestmentService
	referralSvc *ReferralService
	planSvc     *PlanService
	reporting   *ReportingService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		now:         epoch,
		tx:          &fakeTxRunner{},
		gate:        lock.NewOwnerGate(),
		plans:       newMemPlans(testPlan("gold", true)),
		investments: newMemInvestments(),
		events:      &memEvents{},
		partitions:  newMemPartitions(),
		referrals:   newMemReferrals(nil),
		audit:       &memAudit{},
		notifier:    &recordingNotifier{},
	}
	clock := Clock(func() time.Time { return h.now })

	payments, err := validator.NewPaymentValidator(`^\+?[0-9]{8,15}$`)
	require.NoError(t, err)

	guard := NewLedgerGuard(h.gate, h.partitions, time.Second)
	h.balances = NewBalanceService(h.tx, h.investments, h.events)
	h.balances.SetClock(clock)
	h.withdrawals = NewWithdrawalService(h.tx, nil, h.balances, h.events, guard, h.audit, h.notifier, payments, WithdrawalPolicy{
		MinStandard:   1000,
		MinCommission: 500,
	})
	h.withdrawals.SetClock(clock)
	h.referralSvc = NewReferralService(h.tx, nil, h.referrals, h.events, guard, h.audit, h.balances, h.notifier)
	h.referralSvc.SetClock(clock)
	h.investSvc = NewInvestmentService(h.tx, nil, h.plans, h.investments, h.referralSvc, h.audit, h.balances, h.notifier)
	h.investSvc.SetClock(clock)
	h.planSvc = NewPlanService(h.tx, h.plans, h.audit)
	h.reporting = NewReportingService(nil, h.investments)
	h.reporting.SetClock(clock)
	return h
}

func testPlan(id string, active bool) models.Plan {
	return models.Plan{
		ID:              id,
		Name:            id,
		DailyReturnRate: decimal.RequireFromString("2"),
		CycleLengthDays: 90,
		MinAmount:       1000,
		MaxAmount:       1000000,
		MinWithdrawal:   1000,
		Active:          active,
	}
}

// fund gives ownerID an investment activated daysAgo days before now.
func (h *harness) fund(ownerID string, principal int64, daysAgo int) models.Investment {
	at := h.now.Add(-time.Duration(daysAgo) * 24 * time.Hour)
	inv := models.Investment{
		ID:              fmt.Sprintf("%s-inv-%d", ownerID, len(h.investments.investments)+1),
		OwnerID:         ownerID,
		PlanID:          "gold",
		PrincipalAmount: principal,
		DailyReturnRate: decimal.RequireFromString("2"),
		CycleLengthDays: 90,
		Status:          models.InvestmentActive,
		CreatedAt:       at,
		ActivatedAt:     &at,
	}
	h.investments.investments[inv.ID] = inv
	return inv
}

func (h *harness) credit(ownerID string, amount int64) {
	h.events.events = append(h.events.events, models.LedgerEvent{
		ID:        fmt.Sprintf("%s-credit-%d", ownerID, len(h.events.events)+1),
		OwnerID:   ownerID,
		Kind:      models.EventReferralCredit,
		Amount:    amount,
		CreatedAt: h.now.Add(-time.Hour),
	})
}

func mobileMoney() models.PaymentDetails {
	return models.PaymentDetails{
		Category: models.PaymentElectronic,
		Method:   "mpesa",
		FullName: "Amina Otieno",
		Email:    "amina@example.com",
		Phone:    "+254 712-345678",
	}
}

func strPtr(v string) *string { return &v }
