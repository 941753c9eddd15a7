package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Middleware rejects requests without a valid token before they reach the
// API handlers.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger.Named("auth"),
	}
}

// RequireAuth lets a request through only when its token validates and names
// a user UUID with a known role. Handlers read the caller back with
// PrincipalFromContext; GetToken returns the raw JWT.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		if err != nil {
			// A missing token is routine; a bad one is worth a trace.
			if !errors.Is(err, ErrMissingAuthorization) {
				m.logger.Debug("Token validation failed",
					zap.String("path", r.URL.Path),
					zap.Error(err))
			}
			m.unauthorized(w, "invalid_token", "Authentication required")
			return
		}

		if _, err := claims.Principal(); err != nil {
			m.logger.Warn("Token rejected",
				zap.String("subject", claims.Subject),
				zap.String("role", claims.Role),
				zap.Error(err))
			m.unauthorized(w, "invalid_token", "Token does not identify a user with a valid role")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = context.WithValue(ctx, TokenKey, token)
		next(w, r.WithContext(ctx))
	}
}

func (m *Middleware) unauthorized(w http.ResponseWriter, bearerError, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+bearerError+`"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
