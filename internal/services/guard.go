package services

import (
	"context"
	"errors"
	"time"

	"investledger/internal/db"
	"investledger/internal/lock"
	"investledger/internal/store"
)

// LedgerGuard serializes writers of one owner's ledger. The in-process gate
// keeps goroutines of this instance from queueing on the database; the
// partition row lock covers every other instance.
type LedgerGuard struct {
	gate       *lock.OwnerGate
	partitions PartitionStore
	timeout    time.Duration
}

func NewLedgerGuard(gate *lock.OwnerGate, partitions PartitionStore, timeout time.Duration) *LedgerGuard {
	return &LedgerGuard{gate: gate, partitions: partitions, timeout: timeout}
}

// Enter waits for the in-process slot of ownerID.
func (g *LedgerGuard) Enter(ctx context.Context, ownerID string) (func(), error) {
	release, err := g.gate.Acquire(ctx, ownerID, g.timeout)
	if errors.Is(err, lock.ErrTimeout) {
		return nil, &ConcurrencyConflictError{OwnerID: ownerID, Err: err}
	}
	return release, err
}

// Lock takes the partition row for the rest of tx and returns its version.
func (g *LedgerGuard) Lock(ctx context.Context, tx store.Tx, ownerID string) (int64, error) {
	return g.partitions.Lock(ctx, tx, ownerID, g.timeout)
}

// Advance records that tx appended to the partition.
func (g *LedgerGuard) Advance(ctx context.Context, tx store.Execer, ownerID string, version int64) error {
	return g.partitions.Bump(ctx, tx, ownerID, version)
}

// conflict turns lock contention into a ConcurrencyConflictError and
// leaves every other error alone.
func conflict(ownerID string, err error) error {
	if err == nil {
		return nil
	}
	var cce *ConcurrencyConflictError
	if errors.As(err, &cce) {
		return err
	}
	if db.IsContention(err) || errors.Is(err, store.ErrVersionConflict) {
		return &ConcurrencyConflictError{OwnerID: ownerID, Err: err}
	}
	return err
}
