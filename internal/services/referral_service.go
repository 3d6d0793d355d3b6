package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"investledger/internal/db"
	"investledger/internal/models"
	"investledger/internal/money"
	"investledger/internal/notify"
	"investledger/internal/store"
)

// DefaultCommissionRates are the percentages of principal credited to the
// first, second and third referrer above an investor.
var DefaultCommissionRates = []decimal.Decimal{
	decimal.NewFromInt(5),
	decimal.NewFromInt(2),
	decimal.NewFromInt(1),
}

type ReferralService struct {
	txRunner  db.TxRunner
	reader    store.Querier
	referrals ReferralStore
	events    EventStore
	guard     *LedgerGuard
	audit     AuditStore
	balances  *BalanceService
	notifier  notify.Notifier
	rates     []decimal.Decimal
	clock     Clock
}

func NewReferralService(txRunner db.TxRunner, reader store.Querier, referrals ReferralStore, events EventStore, guard *LedgerGuard, audit AuditStore, balances *BalanceService, notifier notify.Notifier) *ReferralService {
	return &ReferralService{
		txRunner:  txRunner,
		reader:    reader,
		referrals: referrals,
		events:    events,
		guard:     guard,
		audit:     audit,
		balances:  balances,
		notifier:  notifier,
		rates:     DefaultCommissionRates,
	}
}

func (s *ReferralService) SetClock(clock Clock) {
	s.clock = clock
}

func (s *ReferralService) SetRates(rates []decimal.Decimal) {
	s.rates = rates
}

type ReferralCredit struct {
	OwnerID             string
	Amount              int64
	RelatedInvestmentID *string
	Note                string
	ActorID             string
	ClientRequestID     *string
}

// CreditReferral appends a commission credit. Credits only ever raise the
// commission pool, so no balance check applies.
func (s *ReferralService) CreditReferral(ctx context.Context, req ReferralCredit) (models.LedgerEvent, error) {
	if req.Amount <= 0 {
		return models.LedgerEvent{}, ErrInvalidAmount
	}
	release, err := s.guard.Enter(ctx, req.OwnerID)
	if err != nil {
		return models.LedgerEvent{}, err
	}
	defer release()

	var credited models.LedgerEvent
	var replayed bool
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		replayed = false
		if req.ClientRequestID != nil {
			existing, err := s.events.FindByClientRequestID(ctx, tx, req.OwnerID, *req.ClientRequestID)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.Kind != models.EventReferralCredit || existing.Amount != req.Amount {
					return ErrIdempotencyKeyReused
				}
				credited = *existing
				replayed = true
				return nil
			}
		}
		credited = models.LedgerEvent{
			ID:                  uuid.NewString(),
			OwnerID:             req.OwnerID,
			Kind:                models.EventReferralCredit,
			Amount:              req.Amount,
			RelatedInvestmentID: req.RelatedInvestmentID,
			ClientRequestID:     req.ClientRequestID,
			Note:                req.Note,
			CreatedAt:           s.clock.now(),
		}
		if err := s.append(ctx, tx, credited); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, req.ActorID, "referral.credit", "ledger_event", credited.ID, map[string]any{
			"owner_id": req.OwnerID,
			"amount":   req.Amount,
		})
	})
	if err != nil {
		return models.LedgerEvent{}, conflict(req.OwnerID, err)
	}
	if !replayed {
		s.notifier.EventAppended(ctx, credited)
		s.balances.publish(ctx, s.notifier, req.OwnerID)
	}
	return credited, nil
}

// LinkReferral records that referrerID brought referredID in. An existing
// link is kept.
func (s *ReferralService) LinkReferral(ctx context.Context, referredID, referrerID, actorID string) (bool, error) {
	if referredID == "" || referrerID == "" {
		return false, ErrInvalidAmount
	}
	if referredID == referrerID {
		return false, ErrSelfReferral
	}
	var linked bool
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		current := referrerID
		for depth := 0; depth < 64 && current != ""; depth++ {
			if current == referredID {
				return ErrReferralCycle
			}
			next, err := s.referrals.ReferrerOf(ctx, tx, current)
			if err != nil {
				return err
			}
			current = next
		}
		ok, err := s.referrals.Link(ctx, tx, referredID, referrerID)
		if err != nil {
			return err
		}
		linked = ok
		if !ok {
			return nil
		}
		return s.audit.Log(ctx, tx, actorID, "referral.link", "referral", referredID, map[string]string{"referrer_id": referrerID})
	})
	return linked, err
}

// creditChain pays commissions on an activated investment to up to
// len(rates) referrers. Keys derived from the investment and level make
// a replay append nothing.
func (s *ReferralService) creditChain(ctx context.Context, tx *sqlx.Tx, inv models.Investment, at time.Time) ([]models.LedgerEvent, error) {
	var credits []models.LedgerEvent
	seen := map[string]struct{}{inv.OwnerID: {}}
	current := inv.OwnerID
	for i, rate := range s.rates {
		level := i + 1
		referrer, err := s.referrals.ReferrerOf(ctx, tx, current)
		if err != nil {
			return nil, err
		}
		if referrer == "" {
			break
		}
		if _, loop := seen[referrer]; loop {
			break
		}
		seen[referrer] = struct{}{}
		current = referrer

		amount := money.Floor(money.Percent(inv.PrincipalAmount, rate))
		if amount <= 0 {
			continue
		}
		key := fmt.Sprintf("referral:%s:%d", inv.ID, level)
		existing, err := s.events.FindByClientRequestID(ctx, tx, referrer, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		investmentID := inv.ID
		credit := models.LedgerEvent{
			ID:                  uuid.NewString(),
			OwnerID:             referrer,
			Kind:                models.EventReferralCredit,
			Amount:              amount,
			RelatedInvestmentID: &investmentID,
			ClientRequestID:     &key,
			Note:                fmt.Sprintf("level %d commission on %s", level, inv.ID),
			CreatedAt:           at,
		}
		if err := s.append(ctx, tx, credit); err != nil {
			return nil, err
		}
		credits = append(credits, credit)
	}
	return credits, nil
}

func (s *ReferralService) append(ctx context.Context, tx *sqlx.Tx, ev models.LedgerEvent) error {
	version, err := s.guard.Lock(ctx, tx, ev.OwnerID)
	if err != nil {
		return err
	}
	if err := s.events.Append(ctx, tx, ev); err != nil {
		return err
	}
	return s.guard.Advance(ctx, tx, ev.OwnerID, version)
}

func (s *ReferralService) announce(ctx context.Context, credits []models.LedgerEvent) {
	owners := make([]string, 0, len(credits))
	for _, credit := range credits {
		s.notifier.EventAppended(ctx, credit)
		owners = append(owners, credit.OwnerID)
		log.WithFields(log.Fields{
			"owner_id":      credit.OwnerID,
			"amount":        credit.Amount,
			"investment_id": *credit.RelatedInvestmentID,
		}).Info("Referral commission credited")
	}
	s.balances.publish(ctx, s.notifier, owners...)
}
