package middleware

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"
)

const (
	RoleResolveWithdrawals = "CanResolveWithdrawals"
	RoleVerifyPayments     = "CanVerifyPayments"
	RoleManagePlans        = "CanManagePlans"
	RoleViewAudit          = "CanViewAudit"
)

// Roles lists every grantable role.
var Roles = []string{RoleResolveWithdrawals, RoleVerifyPayments, RoleManagePlans, RoleViewAudit}

func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// RequireAdmin lets super admins through unconditionally. Other admins
// need role, unless role is empty.
func RequireAdmin(adminStore AdminStore, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := OwnerIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			isAdmin, isSuper, err := adminStore.IsAdmin(r.Context(), userID)
			if err != nil {
				log.WithError(err).WithField("user_id", userID).Error("Failed to verify admin")
				writeError(w, http.StatusInternalServerError, "unable to verify admin")
				return
			}
			if !isAdmin {
				writeError(w, http.StatusForbidden, "admin privileges required")
				return
			}
			if isSuper || role == "" {
				next.ServeHTTP(w, r)
				return
			}
			hasRole, err := adminStore.HasRole(r.Context(), userID, role)
			if err != nil {
				log.WithError(err).WithField("user_id", userID).Error("Failed to verify role")
				writeError(w, http.StatusInternalServerError, "unable to verify role")
				return
			}
			if !hasRole {
				writeError(w, http.StatusForbidden, "missing required role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
