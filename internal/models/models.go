package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvestmentStatus string

const (
	InvestmentPending   InvestmentStatus = "pending"
	InvestmentActive    InvestmentStatus = "active"
	InvestmentCompleted InvestmentStatus = "completed"
	InvestmentCancelled InvestmentStatus = "cancelled"
)

type EventKind string

const (
	EventReferralCredit     EventKind = "referral_credit"
	EventWithdrawalRequest  EventKind = "withdrawal_request"
	EventWithdrawalSettled  EventKind = "withdrawal_settled"
	EventWithdrawalRejected EventKind = "withdrawal_rejected"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventReferralCredit, EventWithdrawalRequest, EventWithdrawalSettled, EventWithdrawalRejected:
		return true
	}
	return false
}

// WithdrawalKind selects the pool a withdrawal draws from.
type WithdrawalKind string

const (
	WithdrawalStandard   WithdrawalKind = "standard"
	WithdrawalCommission WithdrawalKind = "commission"
)

func (k WithdrawalKind) Valid() bool {
	return k == WithdrawalStandard || k == WithdrawalCommission
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalSettled  WithdrawalStatus = "settled"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

// ResolutionKind maps a terminal status to the event that records it.
func (s WithdrawalStatus) ResolutionKind() (EventKind, bool) {
	switch s {
	case WithdrawalSettled:
		return EventWithdrawalSettled, true
	case WithdrawalRejected:
		return EventWithdrawalRejected, true
	}
	return "", false
}

type Plan struct {
	ID              string          `db:"id" json:"id" yaml:"id"`
	Name            string          `db:"name" json:"name" yaml:"name"`
	DailyReturnRate decimal.Decimal `db:"daily_return_rate" json:"daily_return_rate" yaml:"-"`
	CycleLengthDays int             `db:"cycle_length_days" json:"cycle_length_days" yaml:"cycle_length_days"`
	MinAmount       int64           `db:"min_amount" json:"min_amount" yaml:"min_amount"`
	MaxAmount       int64           `db:"max_amount" json:"max_amount" yaml:"max_amount"`
	MinWithdrawal   int64           `db:"min_withdrawal" json:"min_withdrawal" yaml:"min_withdrawal"`
	Active          bool            `db:"active" json:"active" yaml:"active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at" yaml:"-"`
}

// Investment carries a snapshot of the plan terms taken at creation.
type Investment struct {
	ID               string           `db:"id" json:"id"`
	OwnerID          string           `db:"owner_id" json:"owner_id"`
	PlanID           string           `db:"plan_id" json:"plan_id"`
	PrincipalAmount  int64            `db:"principal_amount" json:"principal_amount"`
	DailyReturnRate  decimal.Decimal  `db:"daily_return_rate" json:"daily_return_rate"`
	CycleLengthDays  int              `db:"cycle_length_days" json:"cycle_length_days"`
	Status           InvestmentStatus `db:"status" json:"status"`
	PaymentReference *string          `db:"payment_reference" json:"payment_reference,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	ActivatedAt      *time.Time       `db:"activated_at" json:"activated_at,omitempty"`
	CompletedAt      *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt      *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

type LedgerEvent struct {
	ID                  string         `db:"id" json:"id"`
	OwnerID             string         `db:"owner_id" json:"owner_id"`
	Kind                EventKind      `db:"kind" json:"kind"`
	Amount              int64          `db:"amount" json:"amount"`
	WithdrawalKind      WithdrawalKind `db:"withdrawal_kind" json:"withdrawal_kind,omitempty"`
	RelatedInvestmentID *string        `db:"related_investment_id" json:"related_investment_id,omitempty"`
	RelatedRequestID    *string        `db:"related_request_id" json:"related_request_id,omitempty"`
	ClientRequestID     *string        `db:"client_request_id" json:"client_request_id,omitempty"`
	PaymentDetails      string         `db:"payment_details" json:"payment_details,omitempty"`
	Note                string         `db:"note" json:"note,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
}

// IsResolution reports whether the event settles or rejects a withdrawal request.
func (e LedgerEvent) IsResolution() bool {
	return e.Kind == EventWithdrawalSettled || e.Kind == EventWithdrawalRejected
}

// PaymentDetails describes where a withdrawal is paid. Category is either
// "electronic" (mobile money, phone required) or "crypto" (address required).
type PaymentDetails struct {
	Category      string `json:"category"`
	Method        string `json:"method"`
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
	Network       string `json:"network,omitempty"`
}

const (
	PaymentElectronic = "electronic"
	PaymentCrypto     = "crypto"
)

// Withdrawal is a request joined with its resolution, if any.
type Withdrawal struct {
	ID              string           `db:"id" json:"id"`
	OwnerID         string           `db:"owner_id" json:"owner_id"`
	Amount          int64            `db:"amount" json:"amount"`
	Kind            WithdrawalKind   `db:"withdrawal_kind" json:"kind"`
	PaymentDetails  string           `db:"payment_details" json:"payment_details"`
	ClientRequestID *string          `db:"client_request_id" json:"client_request_id,omitempty"`
	Status          WithdrawalStatus `db:"status" json:"status"`
	RequestedAt     time.Time        `db:"created_at" json:"requested_at"`
	ResolvedAt      *time.Time       `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Balance is the reconciled view of one owner's funds. All figures are
// floored to whole units.
type Balance struct {
	OwnerID              string    `json:"owner_id"`
	TotalAccrued         int64     `json:"total_accrued"`
	TotalReferralCredits int64     `json:"total_referral_credits"`
	TotalWithdrawn       int64     `json:"total_withdrawn"`
	AvailableBalance     int64     `json:"available_balance"`
	AvailableInvestment  int64     `json:"available_investment"`
	AvailableCommission  int64     `json:"available_commission"`
	PendingStandard      int64     `json:"pending_standard"`
	PendingCommission    int64     `json:"pending_commission"`
	SettledStandard      int64     `json:"settled_standard"`
	SettledCommission    int64     `json:"settled_commission"`
	ActivePrincipal      int64     `json:"active_principal"`
	AsOf                 time.Time `json:"as_of"`
}

// Available returns the spendable amount for a withdrawal kind.
func (b Balance) Available(kind WithdrawalKind) int64 {
	if kind == WithdrawalCommission {
		return b.AvailableCommission
	}
	return b.AvailableInvestment
}

type AuditEntry struct {
	ID          string    `db:"id" json:"id"`
	ActorUserID *string   `db:"actor_user_id" json:"actor_user_id,omitempty"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    *string   `db:"entity_id" json:"entity_id,omitempty"`
	Data        string    `db:"data" json:"data"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
