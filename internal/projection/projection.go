package projection

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"investledger/internal/accrual"
	"investledger/internal/models"
	"investledger/internal/money"
)

const (
	day   = 24 * time.Hour
	month = 30 * day

	MaxHorizonMonths = 60
	MaxSeriesPoints  = 366
)

var (
	ErrInvalidHorizon     = errors.New("horizon must be between 1 and 60 months")
	ErrInvalidGranularity = errors.New("granularity must be day, week or month")
	ErrInvalidPoints      = errors.New("points must be between 1 and 366")
)

type Granularity string

const (
	Daily   Granularity = "day"
	Weekly  Granularity = "week"
	Monthly Granularity = "month"
)

func (g Granularity) step() (time.Duration, bool) {
	switch g {
	case Daily:
		return day, true
	case Weekly:
		return 7 * day, true
	case Monthly:
		return month, true
	}
	return 0, false
}

type Point struct {
	Period string    `json:"period"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Amount int64     `json:"amount"`
}

// ProjectReturns splits the remaining cycle of each active investment into
// consecutive 30-day windows starting at now.
func ProjectReturns(investments []models.Investment, now time.Time, horizonMonths int) ([]Point, error) {
	if horizonMonths < 1 || horizonMonths > MaxHorizonMonths {
		return nil, ErrInvalidHorizon
	}
	running := make([]models.Investment, 0, len(investments))
	for _, inv := range investments {
		if accrual.EffectiveStatus(inv, now) == models.InvestmentActive {
			running = append(running, inv)
		}
	}

	points := make([]Point, 0, horizonMonths)
	start := now
	for i := 0; i < horizonMonths; i++ {
		end := start.Add(month)
		points = append(points, Point{
			Period: start.Format("2006-01-02"),
			Start:  start,
			End:    end,
			Amount: money.Floor(earned(running, start, end)),
		})
		start = end
	}
	return points, nil
}

// AccrualSeries reports what was earned in each of the last n periods
// ending at now, oldest first.
func AccrualSeries(investments []models.Investment, now time.Time, granularity Granularity, n int) ([]Point, error) {
	step, ok := granularity.step()
	if !ok {
		return nil, ErrInvalidGranularity
	}
	if n < 1 || n > MaxSeriesPoints {
		return nil, ErrInvalidPoints
	}
	points := make([]Point, 0, n)
	start := now.Add(-time.Duration(n) * step)
	for i := 0; i < n; i++ {
		end := start.Add(step)
		points = append(points, Point{
			Period: start.Format("2006-01-02"),
			Start:  start,
			End:    end,
			Amount: money.Floor(earned(investments, start, end)),
		})
		start = end
	}
	return points, nil
}

func earned(investments []models.Investment, start, end time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range investments {
		total = total.Add(accrual.AccruedReturn(inv, end).Sub(accrual.AccruedReturn(inv, start)))
	}
	return total
}

type Summary struct {
	Pending         int   `json:"pending"`
	Active          int   `json:"active"`
	Completed       int   `json:"completed"`
	Cancelled       int   `json:"cancelled"`
	ActivePrincipal int64 `json:"active_principal"`
	TotalPrincipal  int64 `json:"total_principal"`
	ExpectedReturn  int64 `json:"expected_return"`
}

// Summarize counts investments by effective status. Cancelled principal is
// excluded from the totals.
func Summarize(investments []models.Investment, now time.Time) Summary {
	var s Summary
	expected := decimal.Zero
	for _, inv := range investments {
		switch accrual.EffectiveStatus(inv, now) {
		case models.InvestmentPending:
			s.Pending++
		case models.InvestmentActive:
			s.Active++
			s.ActivePrincipal += inv.PrincipalAmount
		case models.InvestmentCompleted:
			s.Completed++
		case models.InvestmentCancelled:
			s.Cancelled++
			continue
		}
		s.TotalPrincipal += inv.PrincipalAmount
		if inv.Status != models.InvestmentPending {
			expected = expected.Add(accrual.MaxReturn(inv))
		}
	}
	s.ExpectedReturn = money.Floor(expected)
	return s
}
