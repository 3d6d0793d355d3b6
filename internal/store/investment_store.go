package store

import (
	"context"
	"time"

	"investledger/internal/models"
)

const investmentColumns = `id, owner_id, plan_id, principal_amount, daily_return_rate, cycle_length_days, status,
	payment_reference, created_at, activated_at, completed_at, cancelled_at`

type InvestmentStore struct {
	db DB
}

func NewInvestmentStore(db DB) *InvestmentStore {
	return &InvestmentStore{db: db}
}

func (s *InvestmentStore) Create(ctx context.Context, tx Execer, inv models.Investment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO investments (id, owner_id, plan_id, principal_amount, daily_return_rate, cycle_length_days, status, payment_reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, inv.ID, inv.OwnerID, inv.PlanID, inv.PrincipalAmount, inv.DailyReturnRate, inv.CycleLengthDays, inv.Status, inv.PaymentReference, inv.CreatedAt)
	return err
}

func (s *InvestmentStore) GetByID(ctx context.Context, q Getter, id string) (models.Investment, error) {
	var inv models.Investment
	err := q.GetContext(ctx, &inv, `SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id)
	return inv, err
}

func (s *InvestmentStore) GetForUpdate(ctx context.Context, tx Getter, id string) (models.Investment, error) {
	var inv models.Investment
	err := tx.GetContext(ctx, &inv, `SELECT `+investmentColumns+` FROM investments WHERE id = $1 FOR UPDATE`, id)
	return inv, err
}

func (s *InvestmentStore) ListByOwner(ctx context.Context, q Selecter, ownerID string) ([]models.Investment, error) {
	var investments []models.Investment
	err := q.SelectContext(ctx, &investments, `
		SELECT `+investmentColumns+`
		FROM investments
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return investments, nil
}

// Activate moves a pending investment to active. It reports false when the
// row was no longer pending.
func (s *InvestmentStore) Activate(ctx context.Context, tx Execer, id, paymentReference string, at time.Time) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE investments
		SET status = 'active', payment_reference = $2, activated_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, paymentReference, at)
	return affectedOne(result, err)
}

func (s *InvestmentStore) Cancel(ctx context.Context, tx Execer, id string, at time.Time) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE investments
		SET status = 'cancelled', cancelled_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, at)
	return affectedOne(result, err)
}

// CompleteMatured persists the completed status for every active
// investment whose cycle ended at or before asOf.
func (s *InvestmentStore) CompleteMatured(ctx context.Context, tx Execer, asOf time.Time) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE investments
		SET status = 'completed',
			completed_at = activated_at + make_interval(days => cycle_length_days)
		WHERE status = 'active'
			AND activated_at + make_interval(days => cycle_length_days) <= $1
	`, asOf)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
