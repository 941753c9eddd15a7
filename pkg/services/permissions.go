package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/apperrors"
	"github.com/ekaya-inc/estimate-engine/pkg/audit"
	"github.com/ekaya-inc/estimate-engine/pkg/cache"
	"github.com/ekaya-inc/estimate-engine/pkg/database"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
	"github.com/ekaya-inc/estimate-engine/pkg/repositories"
)

// CreatePermissionInput holds a new (column, role) permission record.
type CreatePermissionInput struct {
	Role      string `json:"role"`
	CanView   bool   `json:"canView"`
	CanEdit   bool   `json:"canEdit"`
	CanCreate bool   `json:"canCreate"`
}

// UpdatePermissionInput holds a partial permission update.
type UpdatePermissionInput struct {
	CanView   *bool `json:"canView"`
	CanEdit   *bool `json:"canEdit"`
	CanCreate *bool `json:"canCreate"`
}

// PermissionService manages per-role column permission records.
type PermissionService interface {
	Create(ctx context.Context, principal models.Principal, columnID uuid.UUID, input CreatePermissionInput) (*models.ColumnRolePermission, error)
	Update(ctx context.Context, principal models.Principal, permissionID uuid.UUID, input UpdatePermissionInput) (*models.ColumnRolePermission, error)
	Delete(ctx context.Context, principal models.Principal, permissionID uuid.UUID) error
	// GetEffectivePermission resolves what role may do on the column,
	// applying role defaults when no record exists.
	GetEffectivePermission(ctx context.Context, principal models.Principal, columnID uuid.UUID, role models.Role) (models.EffectivePermission, error)
}

type permissionService struct {
	guard          AccessGuard
	tx             database.TxRunner
	columnRepo     repositories.ColumnRepository
	permissionRepo repositories.PermissionRepository
	historyRepo    repositories.HistoryRepository
	resolver       *permissionResolver
	permCache      cache.PermissionCache
	auditor        *audit.SecurityAuditor
	logger         *zap.Logger
}

// NewPermissionService creates a new permission service with dependencies.
func NewPermissionService(
	guard AccessGuard,
	tx database.TxRunner,
	columnRepo repositories.ColumnRepository,
	permissionRepo repositories.PermissionRepository,
	historyRepo repositories.HistoryRepository,
	permCache cache.PermissionCache,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) PermissionService {
	return &permissionService{
		guard:          guard,
		tx:             tx,
		columnRepo:     columnRepo,
		permissionRepo: permissionRepo,
		historyRepo:    historyRepo,
		resolver:       newPermissionResolver(permissionRepo, permCache),
		permCache:      permCache,
		auditor:        auditor,
		logger:         logger.Named("permissions"),
	}
}

func (s *permissionService) Create(ctx context.Context, principal models.Principal, columnID uuid.UUID, input CreatePermissionInput) (*models.ColumnRolePermission, error) {
	if err := denyWorker(s.auditor, principal, "column", columnID, "manage permissions"); err != nil {
		return nil, err
	}
	if !models.IsValidRole(input.Role) {
		return nil, fmt.Errorf("%w: invalid role %q", apperrors.ErrBadRequest, input.Role)
	}
	if err := s.authorizeColumn(ctx, principal, columnID); err != nil {
		return nil, err
	}

	role := models.Role(input.Role)
	existing, err := s.permissionRepo.FindByColumnAndRole(ctx, columnID, role)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: permission for role %s already exists on this column", apperrors.ErrConflict, role)
	}

	perm := &models.ColumnRolePermission{
		ColumnID:  columnID,
		Role:      role,
		CanView:   input.CanView,
		CanEdit:   input.CanEdit,
		CanCreate: input.CanCreate,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.permissionRepo.Create(ctx, perm); err != nil {
			return err
		}
		return s.historyRepo.AppendColumnHistory(ctx, &models.ColumnHistory{
			ColumnID: columnID,
			UserID:   principal.ID,
			Action:   models.ColumnActionPermissionChanged,
			NewValue: models.EncodeJSON(perm.Snapshot()),
			Metadata: permissionMetadata(perm),
		})
	})
	if err != nil {
		return nil, err
	}
	s.permCache.Invalidate(ctx, columnID, role)

	s.logger.Info("Permission created",
		zap.String("column_id", columnID.String()),
		zap.String("role", string(role)),
		zap.String("user_id", principal.ID.String()))

	return perm, nil
}

func (s *permissionService) Update(ctx context.Context, principal models.Principal, permissionID uuid.UUID, input UpdatePermissionInput) (*models.ColumnRolePermission, error) {
	if err := denyWorker(s.auditor, principal, "permission", permissionID, "manage permissions"); err != nil {
		return nil, err
	}

	perm, err := s.permissionRepo.GetByID(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeColumn(ctx, principal, perm.ColumnID); err != nil {
		return nil, err
	}

	updated := *perm
	if input.CanView != nil {
		updated.CanView = *input.CanView
	}
	if input.CanEdit != nil {
		updated.CanEdit = *input.CanEdit
	}
	if input.CanCreate != nil {
		updated.CanCreate = *input.CanCreate
	}

	changes := permissionChanges(perm, &updated, principal.ID)
	if len(changes) == 0 {
		return perm, nil
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.permissionRepo.Update(ctx, &updated); err != nil {
			return err
		}
		return s.historyRepo.AppendColumnHistory(ctx, changes...)
	})
	if err != nil {
		return nil, err
	}
	s.permCache.Invalidate(ctx, perm.ColumnID, perm.Role)

	s.logger.Info("Permission updated",
		zap.String("permission_id", permissionID.String()),
		zap.Int("changed_fields", len(changes)),
		zap.String("user_id", principal.ID.String()))

	return &updated, nil
}

func (s *permissionService) Delete(ctx context.Context, principal models.Principal, permissionID uuid.UUID) error {
	if err := denyWorker(s.auditor, principal, "permission", permissionID, "manage permissions"); err != nil {
		return err
	}

	perm, err := s.permissionRepo.GetByID(ctx, permissionID)
	if err != nil {
		return err
	}
	if err := s.authorizeColumn(ctx, principal, perm.ColumnID); err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.permissionRepo.Delete(ctx, permissionID); err != nil {
			return err
		}
		return s.historyRepo.AppendColumnHistory(ctx, &models.ColumnHistory{
			ColumnID: perm.ColumnID,
			UserID:   principal.ID,
			Action:   models.ColumnActionPermissionChanged,
			OldValue: models.EncodeJSON(perm.Snapshot()),
			Metadata: permissionMetadata(perm),
		})
	})
	if err != nil {
		return err
	}
	s.permCache.Invalidate(ctx, perm.ColumnID, perm.Role)

	s.logger.Info("Permission deleted",
		zap.String("permission_id", permissionID.String()),
		zap.String("role", string(perm.Role)),
		zap.String("user_id", principal.ID.String()))
	return nil
}

func (s *permissionService) GetEffectivePermission(ctx context.Context, principal models.Principal, columnID uuid.UUID, role models.Role) (models.EffectivePermission, error) {
	if !models.IsValidRole(string(role)) {
		return models.EffectivePermission{}, fmt.Errorf("%w: invalid role %q", apperrors.ErrBadRequest, role)
	}
	if err := s.authorizeColumn(ctx, principal, columnID); err != nil {
		return models.EffectivePermission{}, err
	}
	return s.resolver.resolve(ctx, columnID, role)
}

var _ PermissionService = (*permissionService)(nil)

func (s *permissionService) authorizeColumn(ctx context.Context, principal models.Principal, columnID uuid.UUID) error {
	column, err := s.columnRepo.GetByID(ctx, columnID)
	if err != nil {
		return err
	}
	return s.guard.AuthorizeEstimate(ctx, column.EstimateID, principal)
}

func permissionMetadata(perm *models.ColumnRolePermission) *string {
	return models.EncodeJSON(models.PermissionMetadata{PermissionID: perm.ID, Role: perm.Role})
}

// permissionChanges builds one PERMISSION_CHANGED entry per flipped flag,
// named permission.<ROLE>.<flag>.
func permissionChanges(before, after *models.ColumnRolePermission, userID uuid.UUID) []*models.ColumnHistory {
	var changes []*models.ColumnHistory
	add := func(flag string, oldValue, newValue bool) {
		if oldValue == newValue {
			return
		}
		changes = append(changes, &models.ColumnHistory{
			ColumnID: before.ColumnID,
			UserID:   userID,
			Action:   models.ColumnActionPermissionChanged,
			Field:    models.StringPtr(fmt.Sprintf("permission.%s.%s", before.Role, flag)),
			OldValue: models.StringPtr(strconv.FormatBool(oldValue)),
			NewValue: models.StringPtr(strconv.FormatBool(newValue)),
			Metadata: permissionMetadata(before),
		})
	}
	add("canView", before.CanView, after.CanView)
	add("canEdit", before.CanEdit, after.CanEdit)
	add("canCreate", before.CanCreate, after.CanCreate)
	return changes
}
