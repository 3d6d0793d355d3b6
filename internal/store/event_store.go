package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"investledger/internal/models"
)

const eventColumns = `id, owner_id, kind, amount, withdrawal_kind, related_investment_id, related_request_id,
	client_request_id, payment_details, note, created_at`

var ErrInvalidCursor = errors.New("invalid cursor")

// EventStore is the append-only ledger. It never updates or deletes rows.
type EventStore struct {
	db DB
}

func NewEventStore(db DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Append(ctx context.Context, tx Execer, ev models.LedgerEvent) error {
	details := ev.PaymentDetails
	if details == "" {
		details = "{}"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_events (id, owner_id, kind, amount, withdrawal_kind, related_investment_id,
			related_request_id, client_request_id, payment_details, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, ev.ID, ev.OwnerID, ev.Kind, ev.Amount, ev.WithdrawalKind, ev.RelatedInvestmentID,
		ev.RelatedRequestID, ev.ClientRequestID, details, ev.Note, ev.CreatedAt)
	return err
}

func (s *EventStore) GetByID(ctx context.Context, q Getter, id string) (models.LedgerEvent, error) {
	var ev models.LedgerEvent
	err := q.GetContext(ctx, &ev, `SELECT `+eventColumns+` FROM ledger_events WHERE id = $1`, id)
	return ev, err
}

// ListByOwner returns every event of an owner in append order.
func (s *EventStore) ListByOwner(ctx context.Context, q Selecter, ownerID string) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	err := q.SelectContext(ctx, &events, `
		SELECT `+eventColumns+`
		FROM ledger_events
		WHERE owner_id = $1
		ORDER BY created_at ASC, id ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// FindByClientRequestID returns nil when no event carries the key.
func (s *EventStore) FindByClientRequestID(ctx context.Context, q Getter, ownerID, clientRequestID string) (*models.LedgerEvent, error) {
	var ev models.LedgerEvent
	err := q.GetContext(ctx, &ev, `
		SELECT `+eventColumns+`
		FROM ledger_events
		WHERE owner_id = $1 AND client_request_id = $2
	`, ownerID, clientRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// FindResolution returns the settle or reject event for a request, or nil.
func (s *EventStore) FindResolution(ctx context.Context, q Getter, requestID string) (*models.LedgerEvent, error) {
	var ev models.LedgerEvent
	err := q.GetContext(ctx, &ev, `
		SELECT `+eventColumns+`
		FROM ledger_events
		WHERE related_request_id = $1 AND kind IN ('withdrawal_settled', 'withdrawal_rejected')
	`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

type EventFilter struct {
	OwnerID string
	Kind    models.EventKind
	Cursor  *EventCursor
	Limit   int
}

// Page lists events newest first using a keyset cursor on (created_at, id).
func (s *EventStore) Page(ctx context.Context, filter EventFilter) ([]models.LedgerEvent, error) {
	clauses := []string{"owner_id = $1"}
	args := []any{filter.OwnerID}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		clauses = append(clauses, "kind = $"+itoa(len(args)))
	}
	if filter.Cursor != nil {
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
		clauses = append(clauses, "(created_at, id) < ($"+itoa(len(args)-1)+", $"+itoa(len(args))+")")
	}
	args = append(args, filter.Limit)

	var events []models.LedgerEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT `+eventColumns+`
		FROM ledger_events
		WHERE `+strings.Join(clauses, " AND ")+`
		ORDER BY created_at DESC, id DESC
		LIMIT $`+itoa(len(args)), args...)
	if err != nil {
		return nil, err
	}
	return events, nil
}

type WithdrawalFilter struct {
	Status models.WithdrawalStatus
	Limit  int
	Offset int
}

// ListWithdrawals joins each request with its resolution for the admin queue.
func (s *EventStore) ListWithdrawals(ctx context.Context, filter WithdrawalFilter) ([]models.Withdrawal, error) {
	query := `
		SELECT r.id, r.owner_id, r.amount, r.withdrawal_kind, r.payment_details, r.client_request_id, r.created_at,
			CASE res.kind
				WHEN 'withdrawal_settled' THEN 'settled'
				WHEN 'withdrawal_rejected' THEN 'rejected'
				ELSE 'pending'
			END AS status,
			res.created_at AS resolved_at
		FROM ledger_events r
		LEFT JOIN ledger_events res
			ON res.related_request_id = r.id AND res.kind IN ('withdrawal_settled', 'withdrawal_rejected')
		WHERE r.kind = 'withdrawal_request'`
	switch filter.Status {
	case models.WithdrawalPending:
		query += ` AND res.id IS NULL`
	case models.WithdrawalSettled:
		query += ` AND res.kind = 'withdrawal_settled'`
	case models.WithdrawalRejected:
		query += ` AND res.kind = 'withdrawal_rejected'`
	}
	query += `
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $1 OFFSET $2`

	var withdrawals []models.Withdrawal
	if err := s.db.SelectContext(ctx, &withdrawals, query, filter.Limit, filter.Offset); err != nil {
		return nil, err
	}
	return withdrawals, nil
}

type EventCursor struct {
	CreatedAt time.Time
	ID        string
}

func CursorFor(ev models.LedgerEvent) EventCursor {
	return EventCursor{CreatedAt: ev.CreatedAt, ID: ev.ID}
}

func (c EventCursor) Encode() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(value string) (*EventCursor, error) {
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	stamp, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	createdAt, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &EventCursor{CreatedAt: createdAt, ID: id}, nil
}
