package store

import (
	"context"

	"investledger/internal/models"
)

const planColumns = `id, name, daily_return_rate, cycle_length_days, min_amount, max_amount, min_withdrawal, active, created_at, updated_at`

type PlanStore struct {
	db DB
}

func NewPlanStore(db DB) *PlanStore {
	return &PlanStore{db: db}
}

func (s *PlanStore) List(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM investment_plans`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY min_amount ASC, id ASC`
	var plans []models.Plan
	if err := s.db.SelectContext(ctx, &plans, query); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *PlanStore) GetByID(ctx context.Context, q Getter, id string) (models.Plan, error) {
	var plan models.Plan
	err := q.GetContext(ctx, &plan, `SELECT `+planColumns+` FROM investment_plans WHERE id = $1`, id)
	return plan, err
}

// Upsert creates or replaces a plan definition. Investments keep the terms
// they snapshotted at creation, so edits only reach new investments.
func (s *PlanStore) Upsert(ctx context.Context, tx Execer, plan models.Plan) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO investment_plans (id, name, daily_return_rate, cycle_length_days, min_amount, max_amount, min_withdrawal, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			daily_return_rate = EXCLUDED.daily_return_rate,
			cycle_length_days = EXCLUDED.cycle_length_days,
			min_amount = EXCLUDED.min_amount,
			max_amount = EXCLUDED.max_amount,
			min_withdrawal = EXCLUDED.min_withdrawal,
			active = EXCLUDED.active,
			updated_at = NOW()
	`, plan.ID, plan.Name, plan.DailyReturnRate, plan.CycleLengthDays, plan.MinAmount, plan.MaxAmount, plan.MinWithdrawal, plan.Active)
	return err
}
