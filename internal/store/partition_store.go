package store

import (
	"context"
	"errors"
	"time"
)

var ErrVersionConflict = errors.New("ledger partition version changed")

// PartitionStore guards each owner's slice of the ledger with a row lock
// and a version counter bumped on every append.
type PartitionStore struct {
	db DB
}

func NewPartitionStore(db DB) *PartitionStore {
	return &PartitionStore{db: db}
}

// Lock takes the owner's partition row FOR UPDATE, waiting at most timeout
// before Postgres aborts with lock_not_available. It must run inside a
// transaction so that the lock and the timeout are released at commit.
func (s *PartitionStore) Lock(ctx context.Context, tx Tx, ownerID string, timeout time.Duration) (int64, error) {
	if timeout > 0 {
		if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, itoa(int(timeout.Milliseconds()))+"ms"); err != nil {
			return 0, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_partitions (owner_id)
		VALUES ($1)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID); err != nil {
		return 0, err
	}
	var version int64
	err := tx.GetContext(ctx, &version, `
		SELECT version
		FROM ledger_partitions
		WHERE owner_id = $1
		FOR UPDATE
	`, ownerID)
	return version, err
}

// Bump advances the version observed by Lock.
func (s *PartitionStore) Bump(ctx context.Context, tx Execer, ownerID string, version int64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE ledger_partitions
		SET version = version + 1, updated_at = NOW()
		WHERE owner_id = $1 AND version = $2
	`, ownerID, version)
	ok, err := affectedOne(result, err)
	if err != nil {
		return err
	}
	if !ok {
		return ErrVersionConflict
	}
	return nil
}

func (s *PartitionStore) Version(ctx context.Context, ownerID string) (int64, error) {
	var version int64
	err := s.db.GetContext(ctx, &version, `
		SELECT COALESCE((SELECT version FROM ledger_partitions WHERE owner_id = $1), 0)
	`, ownerID)
	return version, err
}
