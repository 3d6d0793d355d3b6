package store

import (
	"context"
	"database/sql"
	"errors"
)

type ReferralStore struct {
	db DB
}

func NewReferralStore(db DB) *ReferralStore {
	return &ReferralStore{db: db}
}

// ReferrerOf returns the direct referrer of ownerID, or "" when none.
func (s *ReferralStore) ReferrerOf(ctx context.Context, q Getter, ownerID string) (string, error) {
	var referrer string
	err := q.GetContext(ctx, &referrer, `SELECT referrer_id FROM referrals WHERE referred_id = $1`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return referrer, err
}

func (s *ReferralStore) Link(ctx context.Context, tx Execer, referredID, referrerID string) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO referrals (referred_id, referrer_id)
		VALUES ($1, $2)
		ON CONFLICT (referred_id) DO NOTHING
	`, referredID, referrerID)
	return affectedOne(result, err)
}
