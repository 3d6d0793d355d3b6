package accrual

import (
	"time"

	"github.com/shopspring/decimal"

	"investledger/internal/models"
	"investledger/internal/money"
)

// Reconcile folds an owner's investments and ledger events into a balance.
// asOf only drives accrual; every committed event counts regardless of its
// timestamp so that admission never sees less than what is reserved.
//
// Withdrawals draw from two pools: standard ones from accrued returns,
// commission ones from referral credits. A request is pending until an
// event resolves it; rejected requests release their reservation.
func Reconcile(ownerID string, asOf time.Time, investments []models.Investment, events []models.LedgerEvent) models.Balance {
	accrued := decimal.Zero
	var activePrincipal int64
	for _, inv := range investments {
		accrued = accrued.Add(AccruedReturn(inv, asOf))
		if EffectiveStatus(inv, asOf) == models.InvestmentActive {
			activePrincipal += inv.PrincipalAmount
		}
	}

	resolved := make(map[string]struct{})
	for _, ev := range events {
		if ev.IsResolution() && ev.RelatedRequestID != nil {
			resolved[*ev.RelatedRequestID] = struct{}{}
		}
	}

	var referral, settledStd, settledComm, pendingStd, pendingComm int64
	for _, ev := range events {
		switch ev.Kind {
		case models.EventReferralCredit:
			referral += ev.Amount
		case models.EventWithdrawalSettled:
			if ev.WithdrawalKind == models.WithdrawalCommission {
				settledComm += ev.Amount
			} else {
				settledStd += ev.Amount
			}
		case models.EventWithdrawalRequest:
			if _, ok := resolved[ev.ID]; ok {
				continue
			}
			if ev.WithdrawalKind == models.WithdrawalCommission {
				pendingComm += ev.Amount
			} else {
				pendingStd += ev.Amount
			}
		}
	}

	totalAccrued := money.Floor(accrued)
	investmentPool := totalAccrued - settledStd - pendingStd
	commissionPool := referral - settledComm - pendingComm

	return models.Balance{
		OwnerID:              ownerID,
		TotalAccrued:         totalAccrued,
		TotalReferralCredits: referral,
		TotalWithdrawn:       settledStd + settledComm,
		AvailableBalance:     investmentPool + commissionPool,
		AvailableInvestment:  investmentPool,
		AvailableCommission:  commissionPool,
		PendingStandard:      pendingStd,
		PendingCommission:    pendingComm,
		SettledStandard:      settledStd,
		SettledCommission:    settledComm,
		ActivePrincipal:      activePrincipal,
		AsOf:                 asOf,
	}
}
