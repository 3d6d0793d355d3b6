package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const DefaultMaxAttempts = 5

// ErrRetryLimitExceeded wraps the last retryable error once every attempt has failed.
var ErrRetryLimitExceeded = errors.New("transaction retry limit exceeded")

type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// SnapshotRunner gives read paths one consistent view across several queries.
type SnapshotRunner interface {
	ReadSnapshot(ctx context.Context, fn func(*sqlx.Tx) error) error
}

type SQLXTxRunner struct {
	db          *sqlx.DB
	maxAttempts int
}

func NewTxRunner(db *sqlx.DB, maxAttempts int) SQLXTxRunner {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return SQLXTxRunner{db: db, maxAttempts: maxAttempts}
}

func (r SQLXTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return WithTxAttempts(ctx, r.db, r.maxAttempts, fn)
}

func (r SQLXTxRunner) ReadSnapshot(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return ReadSnapshot(ctx, r.db, fn)
}

func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func WithTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	return WithTxAttempts(ctx, db, DefaultMaxAttempts, fn)
}

// WithTxAttempts runs fn in a SERIALIZABLE transaction and replays it on
// serialization failures, deadlocks and lock timeouts.
func WithTxAttempts(ctx context.Context, db *sqlx.DB, maxAttempts int, fn func(*sqlx.Tx) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), uint64(maxAttempts-1)), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := runOnce(ctx, db, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		log.WithFields(log.Fields{
			"attempt": attempts,
			"code":    pgCode(err),
		}).Debug("Retrying transaction")
		return err
	}, policy)

	if err != nil && IsRetryable(err) {
		return fmt.Errorf("%w after %d attempts: %w", ErrRetryLimitExceeded, attempts, err)
	}
	return err
}

func runOnce(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ReadSnapshot runs fn in a read-only REPEATABLE READ transaction, so every
// query inside it sees the same committed state. It always rolls back.
func ReadSnapshot(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to open read snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return b
}

// IsRetryable reports serialization failures (40001), deadlocks (40P01)
// and lock_timeout expiry (55P03).
func IsRetryable(err error) bool {
	switch pgCode(err) {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}

// IsContention reports whether err came from lock contention, either a
// timed-out row lock or exhausted retries.
func IsContention(err error) bool {
	return errors.Is(err, ErrRetryLimitExceeded) || pgCode(err) == "55P03"
}

// IsUniqueViolation reports a 23505 error, optionally restricted to a constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func pgCode(err error) string {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return ""
	}
	return string(pqErr.Code)
}
