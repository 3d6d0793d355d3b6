package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"investledger/internal/db"
	"investledger/internal/models"
	"investledger/internal/notify"
	"investledger/internal/store"
)

const (
	DefaultWithdrawalPageSize = 50
	MaxWithdrawalPageSize     = 200
)

type WithdrawalPolicy struct {
	MinStandard   int64
	MinCommission int64
}

func (p WithdrawalPolicy) minimum(kind models.WithdrawalKind) int64 {
	if kind == models.WithdrawalCommission {
		return p.MinCommission
	}
	return p.MinStandard
}

type WithdrawalService struct {
	txRunner  db.TxRunner
	reader    store.Querier
	balances  *BalanceService
	events    EventStore
	guard     *LedgerGuard
	audit     AuditStore
	notifier  notify.Notifier
	validator PaymentValidator
	policy    WithdrawalPolicy
	clock     Clock
}

func NewWithdrawalService(txRunner db.TxRunner, reader store.Querier, balances *BalanceService, events EventStore, guard *LedgerGuard, audit AuditStore, notifier notify.Notifier, validator PaymentValidator, policy WithdrawalPolicy) *WithdrawalService {
	return &WithdrawalService{
		txRunner:  txRunner,
		reader:    reader,
		balances:  balances,
		events:    events,
		guard:     guard,
		audit:     audit,
		notifier:  notifier,
		validator: validator,
		policy:    policy,
	}
}

func (s *WithdrawalService) SetClock(clock Clock) {
	s.clock = clock
}

type WithdrawalRequest struct {
	OwnerID         string
	Amount          int64
	Kind            models.WithdrawalKind
	Details         models.PaymentDetails
	ClientRequestID *string
}

type WithdrawalReceipt struct {
	RequestID string         `json:"request_id"`
	Replayed  bool           `json:"replayed"`
	Balance   models.Balance `json:"balance"`
}

// RequestWithdrawal admits a withdrawal into the pending state. Admission
// re-reads the balance while holding the owner's partition lock, so two
// concurrent requests can never both spend the same funds.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (WithdrawalReceipt, error) {
	if req.Kind == "" {
		req.Kind = models.WithdrawalStandard
	}
	if !req.Kind.Valid() {
		return WithdrawalReceipt{}, ErrInvalidWithdrawalKind
	}
	if req.Amount <= 0 {
		return WithdrawalReceipt{}, ErrInvalidAmount
	}
	if minimum := s.policy.minimum(req.Kind); req.Amount < minimum {
		return WithdrawalReceipt{}, &BelowMinimumWithdrawalError{Kind: req.Kind, Minimum: minimum, Requested: req.Amount}
	}
	if err := s.validator.Validate(req.Details); err != nil {
		return WithdrawalReceipt{}, &InvalidPaymentDetailsError{Reason: err}
	}
	details, err := json.Marshal(req.Details)
	if err != nil {
		return WithdrawalReceipt{}, err
	}

	release, err := s.guard.Enter(ctx, req.OwnerID)
	if err != nil {
		return WithdrawalReceipt{}, err
	}
	defer release()

	var receipt WithdrawalReceipt
	var appended models.LedgerEvent
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		receipt = WithdrawalReceipt{}
		version, err := s.guard.Lock(ctx, tx, req.OwnerID)
		if err != nil {
			return err
		}
		if req.ClientRequestID != nil {
			existing, err := s.events.FindByClientRequestID(ctx, tx, req.OwnerID, *req.ClientRequestID)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.Kind != models.EventWithdrawalRequest || existing.Amount != req.Amount || existing.WithdrawalKind != req.Kind {
					return ErrIdempotencyKeyReused
				}
				receipt.RequestID = existing.ID
				receipt.Replayed = true
				receipt.Balance, err = s.balances.Compute(ctx, tx, req.OwnerID, s.clock.now())
				return err
			}
		}

		now := s.clock.now()
		balance, err := s.balances.Compute(ctx, tx, req.OwnerID, now)
		if err != nil {
			return err
		}
		if available := balance.Available(req.Kind); req.Amount > available {
			return &InsufficientBalanceError{OwnerID: req.OwnerID, Kind: req.Kind, Available: available, Requested: req.Amount}
		}

		appended = models.LedgerEvent{
			ID:              uuid.NewString(),
			OwnerID:         req.OwnerID,
			Kind:            models.EventWithdrawalRequest,
			Amount:          req.Amount,
			WithdrawalKind:  req.Kind,
			ClientRequestID: req.ClientRequestID,
			PaymentDetails:  string(details),
			CreatedAt:       now,
		}
		if err := s.events.Append(ctx, tx, appended); err != nil {
			return err
		}
		if err := s.guard.Advance(ctx, tx, req.OwnerID, version); err != nil {
			return err
		}
		if err := s.audit.Log(ctx, tx, req.OwnerID, "withdrawal.request", "withdrawal", appended.ID, map[string]any{
			"amount": req.Amount,
			"kind":   req.Kind,
		}); err != nil {
			return err
		}
		receipt.RequestID = appended.ID
		receipt.Balance, err = s.balances.Compute(ctx, tx, req.OwnerID, now)
		return err
	})
	if err != nil {
		err = conflict(req.OwnerID, err)
		log.WithFields(log.Fields{
			"owner_id": req.OwnerID,
			"amount":   req.Amount,
			"kind":     req.Kind,
			"error":    err,
		}).Info("Withdrawal request refused")
		return WithdrawalReceipt{}, err
	}
	if receipt.Replayed {
		return receipt, nil
	}

	log.WithFields(log.Fields{
		"owner_id":   req.OwnerID,
		"request_id": receipt.RequestID,
		"amount":     req.Amount,
		"kind":       req.Kind,
	}).Info("Withdrawal request admitted")
	s.notifier.EventAppended(ctx, appended)
	s.notifier.BalanceChanged(ctx, receipt.Balance)
	return receipt, nil
}

type ResolveRequest struct {
	RequestID string
	Outcome   models.WithdrawalStatus
	ActorID   string
	Note      string
}

type ResolveResult struct {
	Request    models.LedgerEvent  `json:"request"`
	Resolution *models.LedgerEvent `json:"resolution"`
	Changed    bool                `json:"changed"`
}

// ResolveWithdrawal settles or rejects a pending request. Repeating the
// same outcome is a no-op; asking for the other outcome afterwards fails.
func (s *WithdrawalService) ResolveWithdrawal(ctx context.Context, req ResolveRequest) (ResolveResult, error) {
	target, ok := req.Outcome.ResolutionKind()
	if !ok {
		return ResolveResult{}, ErrInvalidOutcome
	}
	request, err := s.loadRequest(ctx, s.reader, req.RequestID)
	if err != nil {
		return ResolveResult{}, err
	}

	release, err := s.guard.Enter(ctx, request.OwnerID)
	if err != nil {
		return ResolveResult{}, err
	}
	defer release()

	var result ResolveResult
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = ResolveResult{Request: request}
		version, err := s.guard.Lock(ctx, tx, request.OwnerID)
		if err != nil {
			return err
		}
		existing, err := s.events.FindResolution(ctx, tx, request.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Kind == target {
				result.Resolution = existing
				return nil
			}
			return &InvalidStateTransitionError{
				Entity: "withdrawal",
				ID:     request.ID,
				From:   string(statusOf(existing.Kind)),
				To:     string(req.Outcome),
			}
		}

		resolution := models.LedgerEvent{
			ID:               uuid.NewString(),
			OwnerID:          request.OwnerID,
			Kind:             target,
			Amount:           request.Amount,
			WithdrawalKind:   request.WithdrawalKind,
			RelatedRequestID: &request.ID,
			Note:             req.Note,
			CreatedAt:        s.clock.now(),
		}
		if err := s.events.Append(ctx, tx, resolution); err != nil {
			return err
		}
		if err := s.guard.Advance(ctx, tx, request.OwnerID, version); err != nil {
			return err
		}
		if err := s.audit.Log(ctx, tx, req.ActorID, "withdrawal.resolve", "withdrawal", request.ID, map[string]any{
			"outcome": req.Outcome,
			"amount":  request.Amount,
			"note":    req.Note,
		}); err != nil {
			return err
		}
		result.Resolution = &resolution
		result.Changed = true
		return nil
	})
	if err != nil {
		return ResolveResult{}, conflict(request.OwnerID, err)
	}
	if !result.Changed {
		return result, nil
	}

	log.WithFields(log.Fields{
		"owner_id":   request.OwnerID,
		"request_id": request.ID,
		"outcome":    req.Outcome,
		"actor_id":   req.ActorID,
	}).Info("Withdrawal resolved")
	s.notifier.EventAppended(ctx, *result.Resolution)
	s.balances.publish(ctx, s.notifier, request.OwnerID)
	return result, nil
}

func (s *WithdrawalService) ListWithdrawals(ctx context.Context, status models.WithdrawalStatus, limit, offset int) ([]models.Withdrawal, error) {
	switch status {
	case "", models.WithdrawalPending, models.WithdrawalSettled, models.WithdrawalRejected:
	default:
		return nil, ErrInvalidOutcome
	}
	if limit <= 0 {
		limit = DefaultWithdrawalPageSize
	}
	if limit > MaxWithdrawalPageSize {
		limit = MaxWithdrawalPageSize
	}
	if offset < 0 {
		offset = 0
	}
	withdrawals, err := s.events.ListWithdrawals(ctx, store.WithdrawalFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	if withdrawals == nil {
		withdrawals = []models.Withdrawal{}
	}
	return withdrawals, nil
}

func (s *WithdrawalService) loadRequest(ctx context.Context, q store.Getter, id string) (models.LedgerEvent, error) {
	ev, err := s.events.GetByID(ctx, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerEvent{}, ErrWithdrawalNotFound
	}
	if err != nil {
		return models.LedgerEvent{}, err
	}
	if ev.Kind != models.EventWithdrawalRequest {
		return models.LedgerEvent{}, ErrWithdrawalNotFound
	}
	return ev, nil
}

func statusOf(kind models.EventKind) models.WithdrawalStatus {
	switch kind {
	case models.EventWithdrawalSettled:
		return models.WithdrawalSettled
	case models.EventWithdrawalRejected:
		return models.WithdrawalRejected
	}
	return models.WithdrawalPending
}
