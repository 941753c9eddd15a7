package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/models"
	"github.com/ekaya-inc/estimate-engine/pkg/repositories"
)

// UserService records the identities behind authenticated requests and
// resolves them for history and creator fields.
type UserService interface {
	// Sync stores the principal's current email, display name and role.
	Sync(ctx context.Context, principal models.Principal, name string) error
	// Identities returns the public identity of every known user among ids.
	Identities(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.UserIdentity, error)
}

type userService struct {
	userRepo repositories.UserRepository
	logger   *zap.Logger
}

// NewUserService creates a new user service with dependencies.
func NewUserService(userRepo repositories.UserRepository, logger *zap.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		logger:   logger,
	}
}

func (s *userService) Sync(ctx context.Context, principal models.Principal, name string) error {
	if !models.IsValidRole(string(principal.Role)) {
		return fmt.Errorf("invalid role: %s", principal.Role)
	}
	return s.userRepo.Upsert(ctx, &models.User{
		ID:    principal.ID,
		Email: principal.Email,
		Name:  name,
		Role:  principal.Role,
	})
}

func (s *userService) Identities(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.UserIdentity, error) {
	users, err := s.userRepo.GetByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	result := make(map[uuid.UUID]*models.UserIdentity, len(users))
	for id, u := range users {
		result[id] = u.Identity()
	}
	return result, nil
}

var _ UserService = (*userService)(nil)

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
