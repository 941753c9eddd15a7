package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/estimate-engine/pkg/apperrors"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
)

// GetUserIDFromContext extracts the user ID from JWT claims in the context.
// Returns empty string if not authenticated or claims are missing.
func GetUserIDFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	return claims.Subject
}

// GetUserUUIDFromContext extracts the user ID from JWT claims and parses it as UUID.
func GetUserUUIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userIDStr := GetUserIDFromContext(ctx)
	if userIDStr == "" {
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, false
	}

	return userID, true
}

// PrincipalFromContext builds the caller principal from the claims that
// RequireAuth stored in the context.
func PrincipalFromContext(ctx context.Context) (models.Principal, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return models.Principal{}, fmt.Errorf("no claims in context: %w", apperrors.ErrUnauthorized)
	}
	return claims.Principal()
}

// WithPrincipal stores claims equivalent to p in ctx. Used by background
// callers and tests that have no request to authenticate.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	claims := &Claims{Email: p.Email, Role: string(p.Role)}
	claims.Subject = p.ID.String()
	return context.WithValue(ctx, ClaimsKey, claims)
}
