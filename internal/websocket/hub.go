package websocket

import (
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// BalanceUpdate is pushed to an owner's sockets after every committed
// change to their ledger.
type BalanceUpdate struct {
	OwnerID              string    `json:"owner_id"`
	AvailableBalance     int64     `json:"available_balance"`
	AvailableInvestment  int64     `json:"available_investment"`
	AvailableCommission  int64     `json:"available_commission"`
	TotalAccrued         int64     `json:"total_accrued"`
	TotalReferralCredits int64     `json:"total_referral_credits"`
	TotalWithdrawn       int64     `json:"total_withdrawn"`
	PendingWithdrawals   int64     `json:"pending_withdrawals"`
	AsOf                 time.Time `json:"as_of"`
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(ownerID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[ownerID] == nil {
		h.clients[ownerID] = make(map[*Client]struct{})
	}
	h.clients[ownerID][client] = struct{}{}
}

func (h *Hub) Unregister(ownerID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[ownerID] == nil {
		return
	}
	delete(h.clients[ownerID], client)
	if len(h.clients[ownerID]) == 0 {
		delete(h.clients, ownerID)
	}
}

// Connections reports how many sockets an owner has open.
func (h *Hub) Connections(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ownerID])
}

func (h *Hub) BroadcastBalance(ownerID string, update BalanceUpdate) {
	h.broadcast(ownerID, envelope{Type: "balance", Data: update})
}

// broadcast never blocks; slow clients miss updates and catch up on the next one.
func (h *Hub) broadcast(ownerID string, msg envelope) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).WithField("owner_id", ownerID).Error("Failed to encode websocket message")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[ownerID] {
		select {
		case client.send <- payload:
		default:
			log.WithField("owner_id", ownerID).Debug("Dropping websocket message for slow client")
		}
	}
}

// EventNotice tells an owner's sockets that a ledger event was recorded.
type EventNotice struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Amount         int64     `json:"amount"`
	WithdrawalKind string    `json:"withdrawal_kind,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (h *Hub) BroadcastEvent(ownerID string, notice EventNotice) {
	h.broadcast(ownerID, envelope{Type: "event", Data: notice})
}
