package services

import (
	"errors"
	"fmt"

	"investledger/internal/models"
)

var (
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInvalidWithdrawalKind     = errors.New("invalid withdrawal kind")
	ErrInvalidOutcome            = errors.New("outcome must be settled or rejected")
	ErrBelowMinimumWithdrawal    = errors.New("amount below minimum withdrawal")
	ErrInvalidPaymentDetails     = errors.New("invalid payment details")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrInvalidStateTransition    = errors.New("invalid state transition")
	ErrConcurrencyConflict       = errors.New("concurrent update, retry the request")
	ErrIdempotencyKeyReused      = errors.New("client request id reused with different parameters")
	ErrPlanNotFound              = errors.New("plan not found")
	ErrPlanInactive              = errors.New("plan is not accepting investments")
	ErrAmountOutOfRange          = errors.New("amount outside plan bounds")
	ErrInvestmentNotFound        = errors.New("investment not found")
	ErrWithdrawalNotFound        = errors.New("withdrawal request not found")
	ErrMissingPaymentReference   = errors.New("payment reference is required")
	ErrPaymentReferenceMismatch  = errors.New("payment reference does not match investment")
	ErrDuplicatePaymentReference = errors.New("payment reference already used")
	ErrSelfReferral              = errors.New("an owner cannot refer themselves")
	ErrReferralCycle             = errors.New("referral link would create a cycle")
	ErrInvalidPlan               = errors.New("invalid plan")
)

type BelowMinimumWithdrawalError struct {
	Kind      models.WithdrawalKind
	Minimum   int64
	Requested int64
}

func (e *BelowMinimumWithdrawalError) Error() string {
	return fmt.Sprintf("%s withdrawal of %d is below the minimum of %d", e.Kind, e.Requested, e.Minimum)
}

func (e *BelowMinimumWithdrawalError) Unwrap() error { return ErrBelowMinimumWithdrawal }

type InvalidPaymentDetailsError struct {
	Reason error
}

func (e *InvalidPaymentDetailsError) Error() string {
	return fmt.Sprintf("invalid payment details: %v", e.Reason)
}

func (e *InvalidPaymentDetailsError) Unwrap() []error {
	return []error{ErrInvalidPaymentDetails, e.Reason}
}

// InvalidPlanError rejects an investment against a plan. Reason is one of
// ErrPlanNotFound, ErrPlanInactive or ErrAmountOutOfRange.
type InvalidPlanError struct {
	PlanID string
	Reason error
}

func (e *InvalidPlanError) Error() string {
	return fmt.Sprintf("invalid plan %s: %v", e.PlanID, e.Reason)
}

func (e *InvalidPlanError) Unwrap() []error {
	return []error{ErrInvalidPlan, e.Reason}
}

type InsufficientBalanceError struct {
	OwnerID   string
	Kind      models.WithdrawalKind
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: requested %d, available %d", e.Kind, e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

type InvalidStateTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// ConcurrencyConflictError means the owner's ledger stayed contended past
// the lock timeout and retry limit. Callers may retry.
type ConcurrencyConflictError struct {
	OwnerID string
	Err     error
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("ledger for %s is busy: %v", e.OwnerID, e.Err)
}

func (e *ConcurrencyConflictError) Unwrap() []error {
	return []error{ErrConcurrencyConflict, e.Err}
}
