// Package auth validates the JWTs that identify callers of the estimate API
// and turns them into the principal the services authorize against.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ekaya-inc/estimate-engine/pkg/apperrors"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Claims is the token payload. The subject is the user UUID; role is the
// global role (ADMIN, MANAGER or WORKER).
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Principal converts the claims into the caller identity used by services.
func (c *Claims) Principal() (models.Principal, error) {
	if c.Subject == "" {
		return models.Principal{}, fmt.Errorf("missing subject in JWT claims: %w", apperrors.ErrUnauthorized)
	}
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return models.Principal{}, fmt.Errorf("invalid subject format: %w", apperrors.ErrUnauthorized)
	}
	if !models.IsValidRole(c.Role) {
		return models.Principal{}, fmt.Errorf("invalid role %q in JWT claims: %w", c.Role, apperrors.ErrUnauthorized)
	}
	return models.Principal{
		ID:    userID,
		Email: c.Email,
		Role:  models.Role(c.Role),
	}, nil
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}
