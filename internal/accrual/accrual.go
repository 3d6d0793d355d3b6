// Package accrual computes simple-interest returns on investments and
// reconciles an owner's event log into a balance. Everything here is pure.
package accrual

import (
	"time"

	"github.com/shopspring/decimal"

	"investledger/internal/models"
	"investledger/internal/money"
)

const day = 24 * time.Hour

// ElapsedDays counts whole days since activation, clamped to [0, cycle].
func ElapsedDays(inv models.Investment, asOf time.Time) int {
	if inv.ActivatedAt == nil {
		return 0
	}
	elapsed := asOf.Sub(*inv.ActivatedAt)
	if elapsed <= 0 {
		return 0
	}
	days := int(elapsed / day)
	if days > inv.CycleLengthDays {
		return inv.CycleLengthDays
	}
	return days
}

// DailyReturn is principal * rate / 100.
func DailyReturn(inv models.Investment) decimal.Decimal {
	return money.Percent(inv.PrincipalAmount, inv.DailyReturnRate)
}

// MaxReturn is the return after a full cycle.
func MaxReturn(inv models.Investment) decimal.Decimal {
	return DailyReturn(inv).Mul(decimal.NewFromInt(int64(inv.CycleLengthDays)))
}

// AccruedReturn is the exact return earned as of asOf. Pending and
// cancelled investments never accrue.
func AccruedReturn(inv models.Investment, asOf time.Time) decimal.Decimal {
	switch inv.Status {
	case models.InvestmentActive, models.InvestmentCompleted:
	default:
		return decimal.Zero
	}
	days := ElapsedDays(inv, asOf)
	if days == 0 {
		return decimal.Zero
	}
	return DailyReturn(inv).Mul(decimal.NewFromInt(int64(days)))
}

// MaturesAt is the instant the investment stops accruing.
func MaturesAt(inv models.Investment) (time.Time, bool) {
	if inv.ActivatedAt == nil {
		return time.Time{}, false
	}
	return inv.ActivatedAt.Add(time.Duration(inv.CycleLengthDays) * day), true
}

func IsMatured(inv models.Investment, asOf time.Time) bool {
	maturity, ok := MaturesAt(inv)
	return ok && !asOf.Before(maturity)
}

// EffectiveStatus reports an active investment past its cycle as completed
// even before the sweeper has persisted the transition.
func EffectiveStatus(inv models.Investment, asOf time.Time) models.InvestmentStatus {
	if inv.Status == models.InvestmentActive && IsMatured(inv, asOf) {
		return models.InvestmentCompleted
	}
	return inv.Status
}
