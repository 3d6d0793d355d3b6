package store

import (
	"context"
	"encoding/json"

	"investledger/internal/models"
)

type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

// Log records an administrative or lifecycle action. data is marshalled to JSON.
func (s *AuditStore) Log(ctx context.Context, tx Execer, actorID, action, entityType, entityID string, data any) error {
	payload := []byte("{}")
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		payload = encoded
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_user_id, action, entity_type, entity_id, data)
		VALUES (NULLIF($1, ''), $2, $3, NULLIF($4, ''), $5)
	`, actorID, action, entityType, entityID, string(payload))
	return err
}

type AuditFilter struct {
	EntityType string
	EntityID   string
	Limit      int
	Offset     int
}

func (s *AuditStore) List(ctx context.Context, filter AuditFilter) ([]models.AuditEntry, error) {
	query := `
		SELECT id, actor_user_id, action, entity_type, entity_id, data, created_at
		FROM audit_logs
		WHERE ($1 = '' OR entity_type = $1) AND ($2 = '' OR entity_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
	var entries []models.AuditEntry
	if err := s.db.SelectContext(ctx, &entries, query, filter.EntityType, filter.EntityID, filter.Limit, filter.Offset); err != nil {
		return nil, err
	}
	return entries, nil
}
