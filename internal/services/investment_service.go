package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"investledger/internal/accrual"
	"investledger/internal/db"
	"investledger/internal/models"
	"investledger/internal/notify"
	"investledger/internal/store"
)

const paymentReferenceIndex = "idx_investments_payment_reference"

type InvestmentService struct {
	txRunner    db.TxRunner
	reader      store.Querier
	plans       PlanStore
	investments InvestmentStore
	referrals   *ReferralService
	audit       AuditStore
	balances    *BalanceService
	notifier    notify.Notifier
	clock       Clock
}

func NewInvestmentService(txRunner db.TxRunner, reader store.Querier, plans PlanStore, investments InvestmentStore, referrals *ReferralService, audit AuditStore, balances *BalanceService, notifier notify.Notifier) *InvestmentService {
	return &InvestmentService{
		txRunner:    txRunner,
		reader:      reader,
		plans:       plans,
		investments: investments,
		referrals:   referrals,
		audit:       audit,
		balances:    balances,
		notifier:    notifier,
	}
}

func (s *InvestmentService) SetClock(clock Clock) {
	s.clock = clock
}

type CreateInvestmentRequest struct {
	OwnerID          string
	PlanID           string
	Amount           int64
	PaymentReference *string
}

// CreateInvestment records a pending investment with a snapshot of the
// plan's terms. It accrues nothing until payment is verified.
func (s *InvestmentService) CreateInvestment(ctx context.Context, req CreateInvestmentRequest) (models.Investment, error) {
	if req.Amount <= 0 {
		return models.Investment{}, ErrInvalidAmount
	}
	if req.PaymentReference != nil {
		trimmed := strings.TrimSpace(*req.PaymentReference)
		if trimmed == "" {
			req.PaymentReference = nil
		} else {
			req.PaymentReference = &trimmed
		}
	}
	var inv models.Investment
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		plan, err := s.plans.GetByID(ctx, tx, req.PlanID)
		if errors.Is(err, sql.ErrNoRows) {
			return &InvalidPlanError{PlanID: req.PlanID, Reason: ErrPlanNotFound}
		}
		if err != nil {
			return err
		}
		if !plan.Active {
			return &InvalidPlanError{PlanID: plan.ID, Reason: ErrPlanInactive}
		}
		if req.Amount < plan.MinAmount || (plan.MaxAmount > 0 && req.Amount > plan.MaxAmount) {
			return &InvalidPlanError{PlanID: plan.ID, Reason: ErrAmountOutOfRange}
		}
		inv = models.Investment{
			ID:               uuid.NewString(),
			OwnerID:          req.OwnerID,
			PlanID:           plan.ID,
			PrincipalAmount:  req.Amount,
			DailyReturnRate:  plan.DailyReturnRate,
			CycleLengthDays:  plan.CycleLengthDays,
			Status:           models.InvestmentPending,
			PaymentReference: req.PaymentReference,
			CreatedAt:        s.clock.now(),
		}
		if err := s.investments.Create(ctx, tx, inv); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, req.OwnerID, "investment.create", "investment", inv.ID, map[string]any{
			"plan_id": plan.ID,
			"amount":  req.Amount,
		})
	})
	if db.IsUniqueViolation(err, paymentReferenceIndex) {
		return models.Investment{}, ErrDuplicatePaymentReference
	}
	if err != nil {
		return models.Investment{}, err
	}
	log.WithFields(log.Fields{
		"owner_id":      inv.OwnerID,
		"investment_id": inv.ID,
		"plan_id":       inv.PlanID,
		"amount":        inv.PrincipalAmount,
	}).Info("Investment created")
	return inv, nil
}

type PaymentVerification struct {
	InvestmentID  string
	TransactionID string
	ActorID       string
}

type VerificationResult struct {
	Investment  models.Investment    `json:"investment"`
	Changed     bool                 `json:"changed"`
	Commissions []models.LedgerEvent `json:"commissions"`
}

// PaymentVerified activates a pending investment. Accrual starts now, not
// at creation. Redelivering the same verification is a no-op.
func (s *InvestmentService) PaymentVerified(ctx context.Context, req PaymentVerification) (VerificationResult, error) {
	reference := strings.TrimSpace(req.TransactionID)
	if reference == "" {
		return VerificationResult{}, ErrMissingPaymentReference
	}
	var result VerificationResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = VerificationResult{}
		inv, err := s.lockInvestment(ctx, tx, req.InvestmentID)
		if err != nil {
			return err
		}
		switch inv.Status {
		case models.InvestmentPending:
		case models.InvestmentActive, models.InvestmentCompleted:
			if inv.PaymentReference != nil && *inv.PaymentReference == reference {
				result.Investment = inv
				return nil
			}
			return &InvalidStateTransitionError{Entity: "investment", ID: inv.ID, From: string(inv.Status), To: string(models.InvestmentActive)}
		default:
			return &InvalidStateTransitionError{Entity: "investment", ID: inv.ID, From: string(inv.Status), To: string(models.InvestmentActive)}
		}
		if inv.PaymentReference != nil && *inv.PaymentReference != reference {
			return ErrPaymentReferenceMismatch
		}

		now := s.clock.now()
		ok, err := s.investments.Activate(ctx, tx, inv.ID, reference, now)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidStateTransitionError{Entity: "investment", ID: inv.ID, From: string(inv.Status), To: string(models.InvestmentActive)}
		}
		inv.Status = models.InvestmentActive
		inv.PaymentReference = &reference
		inv.ActivatedAt = &now

		credits, err := s.referrals.creditChain(ctx, tx, inv, now)
		if err != nil {
			return err
		}
		if err := s.audit.Log(ctx, tx, req.ActorID, "investment.activate", "investment", inv.ID, map[string]any{
			"payment_reference": reference,
			"commissions":       len(credits),
		}); err != nil {
			return err
		}
		result = VerificationResult{Investment: inv, Changed: true, Commissions: credits}
		return nil
	})
	if db.IsUniqueViolation(err, paymentReferenceIndex) {
		return VerificationResult{}, ErrDuplicatePaymentReference
	}
	if err != nil {
		return VerificationResult{}, err
	}
	if result.Commissions == nil {
		result.Commissions = []models.LedgerEvent{}
	}
	if !result.Changed {
		return result, nil
	}

	log.WithFields(log.Fields{
		"owner_id":      result.Investment.OwnerID,
		"investment_id": result.Investment.ID,
		"actor_id":      req.ActorID,
	}).Info("Investment activated")
	s.referrals.announce(ctx, result.Commissions)
	s.balances.publish(ctx, s.notifier, result.Investment.OwnerID)
	return result, nil
}

// CancelInvestment abandons an unpaid investment.
func (s *InvestmentService) CancelInvestment(ctx context.Context, investmentID, actorID string) (models.Investment, error) {
	var inv models.Investment
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		inv, err = s.lockInvestment(ctx, tx, investmentID)
		if err != nil {
			return err
		}
		switch inv.Status {
		case models.InvestmentCancelled:
			return nil
		case models.InvestmentPending:
		default:
			return &InvalidStateTransitionError{Entity: "investment", ID: inv.ID, From: string(inv.Status), To: string(models.InvestmentCancelled)}
		}
		now := s.clock.now()
		if _, err := s.investments.Cancel(ctx, tx, inv.ID, now); err != nil {
			return err
		}
		inv.Status = models.InvestmentCancelled
		inv.CancelledAt = &now
		return s.audit.Log(ctx, tx, actorID, "investment.cancel", "investment", inv.ID, nil)
	})
	if err != nil {
		return models.Investment{}, err
	}
	return inv, nil
}

// CompleteMatured persists the completed status for investments whose
// cycle has ended. It appends no ledger events, so it may run alongside
// withdrawal admission.
func (s *InvestmentService) CompleteMatured(ctx context.Context) (int64, error) {
	var completed int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		n, err := s.investments.CompleteMatured(ctx, tx, s.clock.now())
		if err != nil {
			return err
		}
		completed = n
		if n == 0 {
			return nil
		}
		return s.audit.Log(ctx, tx, "", "investment.complete", "investment", "", map[string]int64{"count": n})
	})
	if err != nil {
		return 0, err
	}
	if completed > 0 {
		log.WithField("count", completed).Info("Marked matured investments completed")
	}
	return completed, nil
}

// ListInvestments reports each investment with its effective status.
func (s *InvestmentService) ListInvestments(ctx context.Context, ownerID string) ([]models.Investment, error) {
	investments, err := s.investments.ListByOwner(ctx, s.reader, ownerID)
	if err != nil {
		return nil, err
	}
	now := s.clock.now()
	for i := range investments {
		investments[i].Status = accrual.EffectiveStatus(investments[i], now)
	}
	if investments == nil {
		investments = []models.Investment{}
	}
	return investments, nil
}

func (s *InvestmentService) GetInvestment(ctx context.Context, ownerID, investmentID string) (models.Investment, error) {
	inv, err := s.investments.GetByID(ctx, s.reader, investmentID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && inv.OwnerID != ownerID) {
		return models.Investment{}, ErrInvestmentNotFound
	}
	if err != nil {
		return models.Investment{}, err
	}
	inv.Status = accrual.EffectiveStatus(inv, s.clock.now())
	return inv, nil
}

func (s *InvestmentService) lockInvestment(ctx context.Context, tx *sqlx.Tx, id string) (models.Investment, error) {
	inv, err := s.investments.GetForUpdate(ctx, tx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Investment{}, ErrInvestmentNotFound
	}
	return inv, err
}
