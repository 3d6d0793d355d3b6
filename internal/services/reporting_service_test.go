package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investledger/internal/projection"
)

func TestReportingProjectReturns(t *testing.T) {
	h := newHarness(t)
	h.fund("owner-1", 10000, 80)

	points, err := h.reporting.ProjectReturns(context.Background(), "owner-1", 2)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, int64(2000), points[0].Amount)
	assert.Equal(t, int64(0), points[1].Amount)

	_, err = h.reporting.ProjectReturns(context.Background(), "owner-1", 0)
	assert.ErrorIs(t, err, projection.ErrInvalidHorizon)
}

func TestReportingSummary(t *testing.T) {
	h := newHarness(t)
	h.fund("owner-1", 10000, 5)
	h.fund("owner-1", 20000, 95)

	summary, err := h.reporting.Summary(context.Background(), "owner-1")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Active)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, int64(10000), summary.ActivePrincipal)
	assert.Equal(t, int64(30000), summary.TotalPrincipal)
	assert.Equal(t, int64(54000), summary.ExpectedReturn)
}
