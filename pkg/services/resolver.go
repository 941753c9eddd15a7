package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/estimate-engine/pkg/cache"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
	"github.com/ekaya-inc/estimate-engine/pkg/repositories"
)

// permissionResolver turns (column, role) into an effective permission,
// reading explicit records through the permission cache.
type permissionResolver struct {
	permissionRepo repositories.PermissionRepository
	cache          cache.PermissionCache
}

func newPermissionResolver(permissionRepo repositories.PermissionRepository, permCache cache.PermissionCache) *permissionResolver {
	return &permissionResolver{permissionRepo: permissionRepo, cache: permCache}
}

// record returns the explicit record for (column, role), or nil.
func (r *permissionResolver) record(ctx context.Context, columnID uuid.UUID, role models.Role) (*models.ColumnRolePermission, error) {
	lookup := r.cache.Get(ctx, columnID, role)
	if lookup.Found {
		return lookup.Perm, nil
	}
	perm, err := r.permissionRepo.FindByColumnAndRole(ctx, columnID, role)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, columnID, role, lookup, perm)
	return perm, nil
}

func (r *permissionResolver) resolve(ctx context.Context, columnID uuid.UUID, role models.Role) (models.EffectivePermission, error) {
	if role == models.RoleAdmin {
		return models.ResolveEffectivePermission(role, nil), nil
	}
	perm, err := r.record(ctx, columnID, role)
	if err != nil {
		return models.EffectivePermission{}, err
	}
	return models.ResolveEffectivePermission(role, perm), nil
}

// resolveUncached reads the record straight from the repository. Writes use
// it inside their transaction so a revoke that already committed is honored.
func (r *permissionResolver) resolveUncached(ctx context.Context, columnID uuid.UUID, role models.Role) (models.EffectivePermission, error) {
	if role == models.RoleAdmin {
		return models.ResolveEffectivePermission(role, nil), nil
	}
	perm, err := r.permissionRepo.FindByColumnAndRole(ctx, columnID, role)
	if err != nil {
		return models.EffectivePermission{}, err
	}
	return models.ResolveEffectivePermission(role, perm), nil
}
