package services

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"investledger/internal/catalog"
	"investledger/internal/db"
	"investledger/internal/models"
)

type PlanService struct {
	txRunner db.TxRunner
	plans    PlanStore
	audit    AuditStore
}

func NewPlanService(txRunner db.TxRunner, plans PlanStore, audit AuditStore) *PlanService {
	return &PlanService{txRunner: txRunner, plans: plans, audit: audit}
}

func (s *PlanService) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	plans, err := s.plans.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	if plans == nil {
		plans = []models.Plan{}
	}
	return plans, nil
}

func (s *PlanService) UpsertPlan(ctx context.Context, plan models.Plan, actorID string) error {
	_, err := s.ImportPlans(ctx, []models.Plan{plan}, actorID)
	return err
}

// ImportPlans validates every plan first and then writes them in one
// transaction.
func (s *PlanService) ImportPlans(ctx context.Context, plans []models.Plan, actorID string) (int, error) {
	for _, plan := range plans {
		if err := catalog.Validate(plan); err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidPlan, plan.ID, err)
		}
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, plan := range plans {
			if err := s.plans.Upsert(ctx, tx, plan); err != nil {
				return err
			}
			if err := s.audit.Log(ctx, tx, actorID, "plan.upsert", "plan", plan.ID, map[string]any{
				"daily_return_rate": plan.DailyReturnRate.String(),
				"cycle_length_days": plan.CycleLengthDays,
				"active":            plan.Active,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{
		"count":    len(plans),
		"actor_id": actorID,
	}).Info("Plans upserted")
	return len(plans), nil
}
