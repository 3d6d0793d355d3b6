// Package notify fans committed ledger changes out to connected clients
// and to the message bus.
package notify

import (
	"context"

	"investledger/internal/models"
	"investledger/internal/websocket"
)

// Notifier receives changes after their transaction has committed.
// Implementations must not block the caller for long.
type Notifier interface {
	BalanceChanged(ctx context.Context, balance models.Balance)
	EventAppended(ctx context.Context, event models.LedgerEvent)
}

// Fanout forwards every notification to each of its targets.
type Fanout []Notifier

func (f Fanout) BalanceChanged(ctx context.Context, balance models.Balance) {
	for _, n := range f {
		n.BalanceChanged(ctx, balance)
	}
}

func (f Fanout) EventAppended(ctx context.Context, event models.LedgerEvent) {
	for _, n := range f {
		n.EventAppended(ctx, event)
	}
}

// Nop discards notifications.
type Nop struct{}

func (Nop) BalanceChanged(context.Context, models.Balance)     {}
func (Nop) EventAppended(context.Context, models.LedgerEvent) {}

type HubNotifier struct {
	hub *websocket.Hub
}

func NewHubNotifier(hub *websocket.Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) BalanceChanged(_ context.Context, balance models.Balance) {
	n.hub.BroadcastBalance(balance.OwnerID, ToUpdate(balance))
}

func (n *HubNotifier) EventAppended(_ context.Context, event models.LedgerEvent) {
	n.hub.BroadcastEvent(event.OwnerID, websocket.EventNotice{
		ID:             event.ID,
		Kind:           string(event.Kind),
		Amount:         event.Amount,
		WithdrawalKind: string(event.WithdrawalKind),
		CreatedAt:      event.CreatedAt,
	})
}

func ToUpdate(balance models.Balance) websocket.BalanceUpdate {
	return websocket.BalanceUpdate{
		OwnerID:              balance.OwnerID,
		AvailableBalance:     balance.AvailableBalance,
		AvailableInvestment:  balance.AvailableInvestment,
		AvailableCommission:  balance.AvailableCommission,
		TotalAccrued:         balance.TotalAccrued,
		TotalReferralCredits: balance.TotalReferralCredits,
		TotalWithdrawn:       balance.TotalWithdrawn,
		PendingWithdrawals:   balance.PendingStandard + balance.PendingCommission,
		AsOf:                 balance.AsOf,
	}
}
