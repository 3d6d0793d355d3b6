package services

import (
	"context"
	"time"

	"investledger/internal/models"
	"investledger/internal/store"
)

type PlanStore interface {
	List(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	GetByID(ctx context.Context, q store.Getter, id string) (models.Plan, error)
	Upsert(ctx context.Context, tx store.Execer, plan models.Plan) error
}

type InvestmentLister interface {
	ListByOwner(ctx context.Context, q store.Selecter, ownerID string) ([]models.Investment, error)
}

type InvestmentStore interface {
	InvestmentLister
	Create(ctx context.Context, tx store.Execer, inv models.Investment) error
	GetByID(ctx context.Context, q store.Getter, id string) (models.Investment, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id string) (models.Investment, error)
	Activate(ctx context.Context, tx store.Execer, id, paymentReference string, at time.Time) (bool, error)
	Cancel(ctx context.Context, tx store.Execer, id string, at time.Time) (bool, error)
	CompleteMatured(ctx context.Context, tx store.Execer, asOf time.Time) (int64, error)
}

type EventReader interface {
	ListByOwner(ctx context.Context, q store.Selecter, ownerID string) ([]models.LedgerEvent, error)
	Page(ctx context.Context, filter store.EventFilter) ([]models.LedgerEvent, error)
}

type EventStore interface {
	EventReader
	Append(ctx context.Context, tx store.Execer, ev models.LedgerEvent) error
	GetByID(ctx context.Context, q store.Getter, id string) (models.LedgerEvent, error)
	FindByClientRequestID(ctx context.Context, q store.Getter, ownerID, clientRequestID string) (*models.LedgerEvent, error)
	FindResolution(ctx context.Context, q store.Getter, requestID string) (*models.LedgerEvent, error)
	ListWithdrawals(ctx context.Context, filter store.WithdrawalFilter) ([]models.Withdrawal, error)
}

type PartitionStore interface {
	Lock(ctx context.Context, tx store.Tx, ownerID string, timeout time.Duration) (int64, error)
	Bump(ctx context.Context, tx store.Execer, ownerID string, version int64) error
}

type ReferralStore interface {
	ReferrerOf(ctx context.Context, q store.Getter, ownerID string) (string, error)
	Link(ctx context.Context, tx store.Execer, referredID, referrerID string) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data any) error
}

type PaymentValidator interface {
	Validate(details models.PaymentDetails) error
}

// Clock returns the current time. Nil means time.Now.
type Clock func() time.Time

// now is truncated to the storage precision so that timestamps read back
// from Postgres compare equal to the ones written.
func (c Clock) now() time.Time {
	t := time.Now()
	if c != nil {
		t = c()
	}
	return t.UTC().Truncate(time.Microsecond)
}
