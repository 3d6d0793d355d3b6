package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"investledger/internal/accrual"
	"investledger/internal/models"
	"investledger/internal/store"
)

type fakeTxRunner struct {
	calls     int
	snapshots int
	err       error
}

func (r *fakeTxRunner) WithTx(_ context.Context, fn func(*sqlx.Tx) error) error {
	r.calls++
	if r.err != nil {
		return r.err
	}
	return fn(nil)
}

func (r *fakeTxRunner) ReadSnapshot(_ context.Context, fn func(*sqlx.Tx) error) error {
	r.snapshots++
	return fn(nil)
}

type memPlans struct {
	mu    sync.Mutex
	plans map[string]models.Plan
}

func newMemPlans(plans ...models.Plan) *memPlans {
	m := &memPlans{plans: map[string]models.Plan{}}
	for _, p := range plans {
		m.plans[p.ID] = p
	}
	return m
}

func (m *memPlans) List(_ context.Context, activeOnly bool) ([]models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Plan
	for _, p := range m.plans {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPlans) GetByID(_ context.Context, _ store.Getter, id string) (models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return models.Plan{}, sql.ErrNoRows
	}
	return p, nil
}

func (m *memPlans) Upsert(_ context.Context, _ store.Execer, plan models.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = plan
	return nil
}

type memInvestments struct {
	mu          sync.Mutex
	investments map[string]models.Investment
}

func newMemInvestments(invs ...models.Investment) *memInvestments {
	m := &memInvestments{investments: map[string]models.Investment{}}
	for _, inv := range invs {
		m.investments[inv.ID] = inv
	}
	return m
}

func (m *memInvestments) referenceTaken(id, ref string) bool {
	for _, inv := range m.investments {
		if inv.ID != id && inv.PaymentReference != nil && *inv.PaymentReference == ref {
			return true
		}
	}
	return false
}

func (m *memInvestments) Create(_ context.Context, _ store.Execer, inv models.Investment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv.PaymentReference != nil && m.referenceTaken(inv.ID, *inv.PaymentReference) {
		return &pq.Error{Code: "23505", Constraint: paymentReferenceIndex}
	}
	m.investments[inv.ID] = inv
	return nil
}

func (m *memInvestments) GetByID(_ context.Context, _ store.Getter, id string) (models.Investment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.investments[id]
	if !ok {
		return models.Investment{}, sql.ErrNoRows
	}
	return inv, nil
}

func (m *memInvestments) GetForUpdate(ctx context.Context, q store.Getter, id string) (models.Investment, error) {
	return m.GetByID(ctx, q, id)
}

func (m *memInvestments) ListByOwner(_ context.Context, _ store.Selecter, ownerID string) ([]models.Investment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Investment
	for _, inv := range m.investments {
		if inv.OwnerID == ownerID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memInvestments) Activate(_ context.Context, _ store.Execer, id, ref string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.investments[id]
	if !ok || inv.Status != models.InvestmentPending {
		return false, nil
	}
	if m.referenceTaken(id, ref) {
		return false, &pq.Error{Code: "23505", Constraint: paymentReferenceIndex}
	}
	inv.Status = models.InvestmentActive
	inv.PaymentReference = &ref
	inv.ActivatedAt = &at
	m.investments[id] = inv
	return true, nil
}

func (m *memInvestments) Cancel(_ context.Context, _ store.Execer, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.investments[id]
	if !ok || inv.Status != models.InvestmentPending {
		return false, nil
	}
	inv.Status = models.InvestmentCancelled
	inv.CancelledAt = &at
	m.investments[id] = inv
	return true, nil
}

func (m *memInvestments) CompleteMatured(_ context.Context, _ store.Execer, asOf time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, inv := range m.investments {
		if inv.Status == models.InvestmentActive && accrual.IsMatured(inv, asOf) {
			at := asOf
			inv.Status = models.InvestmentCompleted
			inv.CompletedAt = &at
			m.investments[id] = inv
			n++
		}
	}
	return n, nil
}

type memEvents struct {
	mu     sync.Mutex
	events []models.LedgerEvent
}

func (m *memEvents) Append(_ context.Context, _ store.Execer, ev models.LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.events {
		if ev.ClientRequestID != nil && existing.ClientRequestID != nil &&
			existing.OwnerID == ev.OwnerID && *existing.ClientRequestID == *ev.ClientRequestID {
			return &pq.Error{Code: "23505", Constraint: "idx_ledger_events_client_request"}
		}
		if ev.IsResolution() && existing.IsResolution() && *existing.RelatedRequestID == *ev.RelatedRequestID {
			return &pq.Error{Code: "23505", Constraint: "idx_ledger_events_single_resolution"}
		}
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memEvents) GetByID(_ context.Context, _ store.Getter, id string) (models.LedgerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return models.LedgerEvent{}, sql.ErrNoRows
}

func (m *memEvents) ListByOwner(_ context.Context, _ store.Selecter, ownerID string) ([]models.LedgerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerEvent
	for _, ev := range m.events {
		if ev.OwnerID == ownerID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memEvents) FindByClientRequestID(_ context.Context, _ store.Getter, ownerID, key string) (*models.LedgerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.OwnerID == ownerID && ev.ClientRequestID != nil && *ev.ClientRequestID == key {
			found := ev
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memEvents) FindResolution(_ context.Context, _ store.Getter, requestID string) (*models.LedgerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.IsResolution() && ev.RelatedRequestID != nil && *ev.RelatedRequestID == requestID {
			found := ev
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memEvents) Page(_ context.Context, filter store.EventFilter) ([]models.LedgerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerEvent
	for _, ev := range m.events {
		if ev.OwnerID != filter.OwnerID || (filter.Kind != "" && ev.Kind != filter.Kind) {
			continue
		}
		if c := filter.Cursor; c != nil {
			if ev.CreatedAt.After(c.CreatedAt) || (ev.CreatedAt.Equal(c.CreatedAt) && ev.ID >= c.ID) {
				continue
			}
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memEvents) ListWithdrawals(_ context.Context, filter store.WithdrawalFilter) ([]models.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Withdrawal
	for _, ev := range m.events {
		if ev.Kind != models.EventWithdrawalRequest {
			continue
		}
		w := models.Withdrawal{
			ID:              ev.ID,
			OwnerID:         ev.OwnerID,
			Amount:          ev.Amount,
			Kind:            ev.WithdrawalKind,
			PaymentDetails:  ev.PaymentDetails,
			ClientRequestID: ev.ClientRequestID,
			Status:          models.WithdrawalPending,
			RequestedAt:     ev.CreatedAt,
		}
		for _, res := range m.events {
			if res.IsResolution() && *res.RelatedRequestID == ev.ID {
				w.Status = statusOf(res.Kind)
				at := res.CreatedAt
				w.ResolvedAt = &at
			}
		}
		if filter.Status != "" && w.Status != filter.Status {
			continue
		}
		out = append(out, w)
	}
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memEvents) count(kind models.EventKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type memPartitions struct {
	mu       sync.Mutex
	versions map[string]int64
	lockErr  error
	// skew, when set, changes the stored version between Lock and Bump.
	skew bool
}

func newMemPartitions() *memPartitions {
	return &memPartitions{versions: map[string]int64{}}
}

func (m *memPartitions) Lock(_ context.Context, _ store.Tx, ownerID string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return 0, m.lockErr
	}
	v := m.versions[ownerID]
	if m.skew {
		m.versions[ownerID] = v + 1
	}
	return v, nil
}

func (m *memPartitions) Bump(_ context.Context, _ store.Execer, ownerID string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[ownerID] != version {
		return store.ErrVersionConflict
	}
	m.versions[ownerID] = version + 1
	return nil
}

type memReferrals struct {
	mu        sync.Mutex
	referrers map[string]string
}

func newMemReferrals(links map[string]string) *memReferrals {
	m := &memReferrals{referrers: map[string]string{}}
	for k, v := range links {
		m.referrers[k] = v
	}
	return m
}

func (m *memReferrals) ReferrerOf(_ context.Context, _ store.Getter, ownerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.referrers[ownerID], nil
}

func (m *memReferrals) Link(_ context.Context, _ store.Execer, referredID, referrerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.referrers[referredID]; ok {
		return false, nil
	}
	m.referrers[referredID] = referrerID
	return true, nil
}

type auditRecord struct {
	ActorID  string
	Action   string
	EntityID string
}

type memAudit struct {
	mu      sync.Mutex
	records []auditRecord
}

func (m *memAudit) Log(_ context.Context, _ store.Execer, actorID, action, _ string, entityID string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, auditRecord{ActorID: actorID, Action: action, EntityID: entityID})
	return nil
}

func (m *memAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Action)
	}
	return out
}

type recordingNotifier struct {
	mu       sync.Mutex
	balances []models.Balance
	events   []models.LedgerEvent
}

func (n *recordingNotifier) BalanceChanged(_ context.Context, b models.Balance) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances = append(n.balances, b)
}

func (n *recordingNotifier) EventAppended(_ context.Context, ev models.LedgerEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) balanceOwners() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.balances))
	for _, b := range n.balances {
		out = append(out, b.OwnerID)
	}
	return out
}
