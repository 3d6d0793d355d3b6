package services

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"investledger/internal/accrual"
	"investledger/internal/db"
	"investledger/internal/models"
	"investledger/internal/notify"
	"investledger/internal/store"
)

const (
	DefaultEventPageSize = 50
	MaxEventPageSize     = 200
)

var ErrInvalidEventKind = errors.New("invalid event kind")

// BalanceService derives balances from the investment set and the event
// log. It never writes.
type BalanceService struct {
	snapshots   db.SnapshotRunner
	investments InvestmentLister
	events      EventReader
	clock       Clock
}

func NewBalanceService(snapshots db.SnapshotRunner, investments InvestmentLister, events EventReader) *BalanceService {
	return &BalanceService{snapshots: snapshots, investments: investments, events: events}
}

func (s *BalanceService) SetClock(clock Clock) {
	s.clock = clock
}

// Compute reconciles ownerID through q, which is either the pool or the
// transaction holding the owner's partition lock.
func (s *BalanceService) Compute(ctx context.Context, q store.Querier, ownerID string, asOf time.Time) (models.Balance, error) {
	investments, err := s.investments.ListByOwner(ctx, q, ownerID)
	if err != nil {
		return models.Balance{}, err
	}
	events, err := s.events.ListByOwner(ctx, q, ownerID)
	if err != nil {
		return models.Balance{}, err
	}
	return accrual.Reconcile(ownerID, asOf, investments, events), nil
}

func (s *BalanceService) GetBalance(ctx context.Context, ownerID string) (models.Balance, error) {
	return s.computeSnapshot(ctx, ownerID, s.clock.now())
}

// GetBalanceAsOf moves accrual to asOf while still counting every committed
// withdrawal. A date before a withdrawal can leave a pool short, so the
// available figures are floored at zero. The totals are left as computed.
func (s *BalanceService) GetBalanceAsOf(ctx context.Context, ownerID string, asOf time.Time) (models.Balance, error) {
	balance, err := s.computeSnapshot(ctx, ownerID, asOf.UTC())
	if err != nil {
		return models.Balance{}, err
	}
	return floorAvailable(balance), nil
}

// computeSnapshot reads investments and events in one read-only snapshot.
// Outside the partition lock that is what keeps two reads with no
// intervening commit identical.
func (s *BalanceService) computeSnapshot(ctx context.Context, ownerID string, asOf time.Time) (models.Balance, error) {
	var balance models.Balance
	err := s.snapshots.ReadSnapshot(ctx, func(tx *sqlx.Tx) error {
		var err error
		balance, err = s.Compute(ctx, tx, ownerID, asOf)
		return err
	})
	return balance, err
}

func floorAvailable(b models.Balance) models.Balance {
	if b.AvailableInvestment < 0 {
		b.AvailableInvestment = 0
	}
	if b.AvailableCommission < 0 {
		b.AvailableCommission = 0
	}
	b.AvailableBalance = b.AvailableInvestment + b.AvailableCommission
	return b
}

type EventQuery struct {
	OwnerID string
	Kind    models.EventKind
	Cursor  string
	Limit   int
}

type EventPage struct {
	Events     []models.LedgerEvent `json:"events"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// ListEvents pages through an owner's log newest first.
func (s *BalanceService) ListEvents(ctx context.Context, q EventQuery) (EventPage, error) {
	if q.Kind != "" && !q.Kind.Valid() {
		return EventPage{}, ErrInvalidEventKind
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultEventPageSize
	}
	if limit > MaxEventPageSize {
		limit = MaxEventPageSize
	}
	cursor, err := store.DecodeCursor(q.Cursor)
	if err != nil {
		return EventPage{}, err
	}
	events, err := s.events.Page(ctx, store.EventFilter{
		OwnerID: q.OwnerID,
		Kind:    q.Kind,
		Cursor:  cursor,
		Limit:   limit + 1,
	})
	if err != nil {
		return EventPage{}, err
	}
	page := EventPage{Events: events}
	if len(events) > limit {
		page.Events = events[:limit]
		page.NextCursor = store.CursorFor(page.Events[limit-1]).Encode()
	}
	if page.Events == nil {
		page.Events = []models.LedgerEvent{}
	}
	return page, nil
}

// publish pushes fresh balances for owners whose ledger just changed.
// Failures are logged; the change itself is already committed.
func (s *BalanceService) publish(ctx context.Context, notifier notify.Notifier, ownerIDs ...string) {
	if notifier == nil {
		return
	}
	for _, ownerID := range ownerIDs {
		balance, err := s.GetBalance(ctx, ownerID)
		if err != nil {
			log.WithFields(log.Fields{
				"owner_id": ownerID,
				"error":    err,
			}).Warn("Failed to compute balance for notification")
			continue
		}
		notifier.BalanceChanged(ctx, balance)
	}
}
