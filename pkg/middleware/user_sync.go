package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/auth"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
)

// UserSyncer stores the identity of an authenticated caller.
type UserSyncer interface {
	Sync(ctx context.Context, principal models.Principal, name string) error
}

// SyncUser records the caller's email, name and role from the token so
// history entries can be resolved to people. It must run after auth and
// after a database scope is in the context. A failed sync is logged and the
// request continues.
func SyncUser(users UserSyncer, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.GetClaims(r.Context())
			if ok && claims != nil {
				principal, err := claims.Principal()
				if err == nil {
					err = users.Sync(r.Context(), principal, claims.Name)
				}
				if err != nil {
					logger.Warn("Failed to sync user from token",
						zap.String("subject", claims.Subject),
						zap.Error(err))
				}
			}
			next(w, r)
		}
	}
}
