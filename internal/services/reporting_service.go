package services

import (
	"context"

	"investledger/internal/models"
	"investledger/internal/projection"
	"investledger/internal/store"
)

type ReportingService struct {
	reader      store.Querier
	investments InvestmentLister
	clock       Clock
}

func NewReportingService(reader store.Querier, investments InvestmentLister) *ReportingService {
	return &ReportingService{reader: reader, investments: investments}
}

func (s *ReportingService) SetClock(clock Clock) {
	s.clock = clock
}

func (s *ReportingService) ProjectReturns(ctx context.Context, ownerID string, horizonMonths int) ([]projection.Point, error) {
	if horizonMonths < 1 || horizonMonths > projection.MaxHorizonMonths {
		return nil, projection.ErrInvalidHorizon
	}
	investments, err := s.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return projection.ProjectReturns(investments, s.clock.now(), horizonMonths)
}

func (s *ReportingService) AccrualSeries(ctx context.Context, ownerID string, granularity projection.Granularity, points int) ([]projection.Point, error) {
	investments, err := s.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return projection.AccrualSeries(investments, s.clock.now(), granularity, points)
}

func (s *ReportingService) Summary(ctx context.Context, ownerID string) (projection.Summary, error) {
	investments, err := s.load(ctx, ownerID)
	if err != nil {
		return projection.Summary{}, err
	}
	return projection.Summarize(investments, s.clock.now()), nil
}

func (s *ReportingService) load(ctx context.Context, ownerID string) ([]models.Investment, error) {
	return s.investments.ListByOwner(ctx, s.reader, ownerID)
}
