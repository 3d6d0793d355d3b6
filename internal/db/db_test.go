package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type txState struct {
	commits     int64
	rollbacks   int64
	failCommits int64
	failCode    string
}

type fakeDriver struct {
	state *txState
}

func (d *fakeDriver) Open(string) (driver.Conn, error) {
	return &fakeConn{state: d.state}, nil
}

type fakeConn struct {
	state *txState
}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) { return fakeStmt{}, nil }
func (c *fakeConn) Close() error                        { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)           { return &fakeTx{state: c.state}, nil }

func (c *fakeConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return &fakeTx{state: c.state}, nil
}

type fakeTx struct {
	state *txState
}

func (t *fakeTx) Commit() error {
	call := atomic.AddInt64(&t.state.commits, 1)
	if call <= t.state.failCommits {
		return &pq.Error{Code: pq.ErrorCode(t.state.failCode)}
	}
	return nil
}

func (t *fakeTx) Rollback() error {
	atomic.AddInt64(&t.state.rollbacks, 1)
	return nil
}

type fakeStmt struct{}

func (fakeStmt) Close() error                               { return nil }
func (fakeStmt) NumInput() int                              { return -1 }
func (fakeStmt) Exec([]driver.Value) (driver.Result, error) { return nil, nil }
func (fakeStmt) Query([]driver.Value) (driver.Rows, error)  { return nil, nil }

var driverCounter uint64

func openFake(t *testing.T, state *txState) *sqlx.DB {
	t.Helper()
	name := fmt.Sprintf("fake-%d", atomic.AddUint64(&driverCounter, 1))
	sql.Register(name, &fakeDriver{state: state})
	sqlDB, err := sql.Open(name, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlx.NewDb(sqlDB, name)
}

func TestWithTxCommits(t *testing.T) {
	state := &txState{}
	xdb := openFake(t, state)

	err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, int64(1), state.commits)
	assert.Equal(t, int64(0), state.rollbacks)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	state := &txState{}
	xdb := openFake(t, state)
	boom := errors.New("boom")

	err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), state.rollbacks)
	assert.Equal(t, int64(0), state.commits)
}

func TestWithTxRetriesRetryableCodes(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		t.Run(code, func(t *testing.T) {
			state := &txState{failCommits: 1, failCode: code}
			xdb := openFake(t, state)

			err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return nil })

			require.NoError(t, err)
			assert.Equal(t, int64(2), state.commits)
		})
	}
}

func TestWithTxDoesNotRetryOtherCodes(t *testing.T) {
	state := &txState{failCommits: 1, failCode: "23505"}
	xdb := openFake(t, state)

	err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return nil })

	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err, ""))
	assert.Equal(t, int64(1), state.commits)
}

func TestWithTxRetryCapExceeded(t *testing.T) {
	state := &txState{failCommits: 10, failCode: "40P01"}
	xdb := openFake(t, state)

	err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return nil })

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryLimitExceeded)
	assert.True(t, IsContention(err))
	assert.Equal(t, int64(DefaultMaxAttempts), state.commits)
}

func TestTxRunnerHonoursAttemptLimit(t *testing.T) {
	state := &txState{failCommits: 10, failCode: "40001"}
	runner := NewTxRunner(openFake(t, state), 2)

	err := runner.WithTx(context.Background(), func(*sqlx.Tx) error { return nil })

	assert.ErrorIs(t, err, ErrRetryLimitExceeded)
	assert.Equal(t, int64(2), state.commits)
}

func TestWithTxStopsWhenContextCancelled(t *testing.T) {
	state := &txState{}
	xdb := openFake(t, state)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := WithTx(ctx, xdb, func(*sqlx.Tx) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestReadSnapshotNeverCommits(t *testing.T) {
	state := &txState{}
	xdb := openFake(t, state)

	calls := 0
	err := ReadSnapshot(context.Background(), xdb, func(tx *sqlx.Tx) error {
		calls++
		assert.NotNil(t, tx)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(0), state.commits)
	assert.Equal(t, int64(1), state.rollbacks)
}

func TestReadSnapshotReturnsCallbackError(t *testing.T) {
	state := &txState{}
	runner := NewTxRunner(openFake(t, state), 3)
	boom := errors.New("boom")

	err := runner.ReadSnapshot(context.Background(), func(*sqlx.Tx) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), state.rollbacks)
}

func TestIsContention(t *testing.T) {
	assert.True(t, IsContention(&pq.Error{Code: "55P03"}))
	assert.True(t, IsContention(fmt.Errorf("%w: x", ErrRetryLimitExceeded)))
	assert.False(t, IsContention(&pq.Error{Code: "40001"}))
	assert.False(t, IsContention(errors.New("other")))
}

func TestIsUniqueViolationMatchesConstraint(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "idx_investments_payment_reference"})

	assert.True(t, IsUniqueViolation(err, "idx_investments_payment_reference"))
	assert.False(t, IsUniqueViolation(err, "other"))
}
