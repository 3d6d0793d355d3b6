package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"investledger/internal/models"
)

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ConnectNATS dials the bus with reconnect logging.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
				return
			}
			log.Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.WithField("url", url).Info("Connected to NATS")
	return nc, nil
}

// NATSNotifier publishes balances on <prefix>.balance.<owner> and events on
// <prefix>.events.<kind>.
type NATSNotifier struct {
	pub    Publisher
	prefix string
}

func NewNATSNotifier(pub Publisher, prefix string) *NATSNotifier {
	return &NATSNotifier{pub: pub, prefix: prefix}
}

func (n *NATSNotifier) BalanceSubject(ownerID string) string {
	return n.prefix + ".balance." + ownerID
}

func (n *NATSNotifier) EventSubject(kind models.EventKind) string {
	return n.prefix + ".events." + string(kind)
}

func (n *NATSNotifier) BalanceChanged(_ context.Context, balance models.Balance) {
	n.publish(n.BalanceSubject(balance.OwnerID), ToUpdate(balance))
}

func (n *NATSNotifier) EventAppended(_ context.Context, event models.LedgerEvent) {
	n.publish(n.EventSubject(event.Kind), event)
}

func (n *NATSNotifier) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).WithField("subject", subject).Error("Failed to encode notification")
		return
	}
	if err := n.pub.Publish(subject, data); err != nil {
		log.WithFields(log.Fields{
			"subject": subject,
			"error":   err,
		}).Error("Failed to publish notification")
	}
}
