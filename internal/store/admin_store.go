package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AdminStore holds back-office operators and the roles they were granted.
// Owners never appear here; their identity comes from the token alone.
type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

type adminRow struct {
	UserID  string `db:"user_id"`
	IsSuper bool   `db:"is_super"`
}

// IsAdmin reports (isAdmin, isSuper).
func (s *AdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	var row adminRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, is_super
		FROM admins
		WHERE user_id = $1
	`, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, false, nil
	case err != nil:
		return false, false, fmt.Errorf("failed to load admin %s: %w", userID, err)
	}
	return true, row.IsSuper, nil
}

func (s *AdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var granted bool
	err := s.db.GetContext(ctx, &granted, `
		SELECT EXISTS (
			SELECT 1
			FROM admin_roles r
			JOIN admins a ON a.user_id = r.admin_user_id
			WHERE r.admin_user_id = $1 AND r.role = $2
		)
	`, userID, role)
	return granted, err
}

// Roles lists the roles held by userID in grant order.
func (s *AdminStore) Roles(ctx context.Context, userID string) ([]string, error) {
	roles := []string{}
	err := s.db.SelectContext(ctx, &roles, `
		SELECT role
		FROM admin_roles
		WHERE admin_user_id = $1
		ORDER BY created_at, role
	`, userID)
	return roles, err
}

// CreateAdmin registers userID. Re-registering never demotes a super admin.
func (s *AdminStore) CreateAdmin(ctx context.Context, tx Execer, userID string, isSuper bool, createdBy string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admins (user_id, is_super, created_by)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (user_id) DO UPDATE SET is_super = admins.is_super OR EXCLUDED.is_super
	`, userID, isSuper, createdBy)
	return err
}

func (s *AdminStore) GrantRole(ctx context.Context, tx Execer, adminUserID, role, grantedBy string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_roles (admin_user_id, role, granted_by)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (admin_user_id, role) DO NOTHING
	`, adminUserID, role, grantedBy)
	return err
}
