package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"investledger/internal/money"
)

var errInvalidAmount = errors.New("invalid amount")

// parseInvestmentAmount requires a whole number of units.
func parseInvestmentAmount(raw string) (int64, error) {
	amount, err := money.ParseUnits(raw)
	if err != nil || amount <= 0 {
		return 0, errInvalidAmount
	}
	return amount, nil
}

// parseWithdrawalAmount floors fractional input before any other check.
func parseWithdrawalAmount(raw string) (int64, error) {
	amount, err := money.FloorUnits(raw)
	if err != nil || amount <= 0 {
		return 0, errInvalidAmount
	}
	return amount, nil
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

func parseTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func optionalString(raw *string) *string {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
