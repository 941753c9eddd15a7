package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/apperrors"
	"github.com/ekaya-inc/estimate-engine/pkg/audit"
	"github.com/ekaya-inc/estimate-engine/pkg/cache"
	"github.com/ekaya-inc/estimate-engine/pkg/database"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
	"github.com/ekaya-inc/estimate-engine/pkg/repositories"
)

// CreateColumnInput holds the definition of a new column.
type CreateColumnInput struct {
	Name          string   `json:"name"`
	DataType      string   `json:"dataType"`
	Order         int      `json:"order"`
	Required      bool     `json:"required"`
	AllowedValues []string `json:"allowedValues"`
}

// UpdateColumnInput holds a partial column update. Nil fields are left
// unchanged. AllowedValues is only applied to ENUM columns; an empty list
// clears it.
type UpdateColumnInput struct {
	Name          *string   `json:"name"`
	DataType      *string   `json:"dataType"`
	Order         *int      `json:"order"`
	Required      *bool     `json:"required"`
	AllowedValues *[]string `json:"allowedValues"`
}

// ColumnService manages the column schema of estimates and its history.
type ColumnService interface {
	Create(ctx context.Context, principal models.Principal, estimateID uuid.UUID, input CreateColumnInput) (*models.EstimateColumn, error)
	Update(ctx context.Context, principal models.Principal, columnID uuid.UUID, input UpdateColumnInput) (*models.EstimateColumn, error)
	// Delete removes the column with its cells, permissions and history.
	Delete(ctx context.Context, principal models.Principal, columnID uuid.UUID) error
	// GetFull returns the column with its creator and every permission record.
	GetFull(ctx context.Context, principal models.Principal, columnID uuid.UUID) (*models.ColumnFull, error)
	// GetHistory returns the column's history newest first.
	GetHistory(ctx context.Context, principal models.Principal, columnID uuid.UUID) ([]*models.ColumnHistoryEntry, error)
}

type columnService struct {
	guard          AccessGuard
	tx             database.TxRunner
	columnRepo     repositories.ColumnRepository
	permissionRepo repositories.PermissionRepository
	cellRepo       repositories.CellRepository
	historyRepo    repositories.HistoryRepository
	users          UserService
	permCache      cache.PermissionCache
	auditor        *audit.SecurityAuditor
	logger         *zap.Logger
}

// NewColumnService creates a new column service with dependencies.
func NewColumnService(
	guard AccessGuard,
	tx database.TxRunner,
	columnRepo repositories.ColumnRepository,
	permissionRepo repositories.PermissionRepository,
	cellRepo repositories.CellRepository,
	historyRepo repositories.HistoryRepository,
	users UserService,
	permCache cache.PermissionCache,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) ColumnService {
	return &columnService{
		guard:          guard,
		tx:             tx,
		columnRepo:     columnRepo,
		permissionRepo: permissionRepo,
		cellRepo:       cellRepo,
		historyRepo:    historyRepo,
		users:          users,
		permCache:      permCache,
		auditor:        auditor,
		logger:         logger,
	}
}

func (s *columnService) Create(ctx context.Context, principal models.Principal, estimateID uuid.UUID, input CreateColumnInput) (*models.EstimateColumn, error) {
	if err := denyWorker(s.auditor, principal, "estimate", estimateID, "create columns"); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: column name is required", apperrors.ErrBadRequest)
	}
	if !models.IsValidDataType(input.DataType) {
		return nil, fmt.Errorf("%w: invalid data type %q", apperrors.ErrBadRequest, input.DataType)
	}
	if input.Order < 0 {
		return nil, fmt.Errorf("%w: column order must not be negative", apperrors.ErrBadRequest)
	}

	_, err := s.guard.AuthorizeActiveEstimate(ctx, estimateID, principal)
	if err != nil {
		return nil, err
	}

	if err := s.checkOrderFree(ctx, estimateID, input.Order, uuid.Nil); err != nil {
		return nil, err
	}

	column := &models.EstimateColumn{
		EstimateID:  estimateID,
		CreatedByID: principal.ID,
		Name:        name,
		DataType:    models.DataType(input.DataType),
		Order:       input.Order,
		Required:    input.Required,
	}
	if column.DataType == models.DataTypeEnum {
		column.AllowedValues = models.EncodeAllowedValues(input.AllowedValues)
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.columnRepo.Create(ctx, column); err != nil {
			return err
		}
		backfilled, err := s.cellRepo.CreateForColumn(ctx, column.ID, estimateID)
		if err != nil {
			return err
		}
		s.logger.Debug("Backfilled cells for new column",
			zap.String("column_id", column.ID.String()),
			zap.Int64("cells", backfilled))

		return s.historyRepo.AppendColumnHistory(ctx, &models.ColumnHistory{
			ColumnID: column.ID,
			UserID:   principal.ID,
			Action:   models.ColumnActionCreated,
			NewValue: models.EncodeJSON(column.Snapshot()),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Column created",
		zap.String("column_id", column.ID.String()),
		zap.String("estimate_id", estimateID.String()),
		zap.String("user_id", principal.ID.String()))

	return column, nil
}

func (s *columnService) Update(ctx context.Context, principal models.Principal, columnID uuid.UUID, input UpdateColumnInput) (*models.EstimateColumn, error) {
	if err := denyWorker(s.auditor, principal, "column", columnID, "update columns"); err != nil {
		return nil, err
	}

	column, err := s.authorizedColumn(ctx, principal, columnID)
	if err != nil {
		return nil, err
	}

	updated := *column
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: column name cannot be empty", apperrors.ErrBadRequest)
		}
		updated.Name = name
	}
	if input.DataType != nil {
		if !models.IsValidDataType(*input.DataType) {
			return nil, fmt.Errorf("%w: invalid data type %q", apperrors.ErrBadRequest, *input.DataType)
		}
		updated.DataType = models.DataType(*input.DataType)
	}
	if input.Order != nil {
		if *input.Order < 0 {
			return nil, fmt.Errorf("%w: column order must not be negative", apperrors.ErrBadRequest)
		}
		updated.Order = *input.Order
	}
	if input.Required != nil {
		updated.Required = *input.Required
	}

	switch {
	case updated.DataType != models.DataTypeEnum:
		updated.AllowedValues = nil
	case input.AllowedValues != nil:
		updated.AllowedValues = models.EncodeAllowedValues(*input.AllowedValues)
	}

	if updated.Order != column.Order {
		if err := s.checkOrderFree(ctx, column.EstimateID, updated.Order, column.ID); err != nil {
			return nil, err
		}
	}

	changes := columnChanges(column, &updated, principal.ID)
	if len(changes) == 0 {
		return column, nil
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.columnRepo.Update(ctx, &updated); err != nil {
			return err
		}
		return s.historyRepo.AppendColumnHistory(ctx, changes...)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Column updated",
		zap.String("column_id", columnID.String()),
		zap.Int("changed_fields", len(changes)),
		zap.String("user_id", principal.ID.String()))

	return &updated, nil
}

func (s *columnService) Delete(ctx context.Context, principal models.Principal, columnID uuid.UUID) error {
	if err := denyWorker(s.auditor, principal, "column", columnID, "delete columns"); err != nil {
		return err
	}

	if _, err := s.authorizedColumn(ctx, principal, columnID); err != nil {
		return err
	}

	if err := s.columnRepo.Delete(ctx, columnID); err != nil {
		return err
	}
	s.permCache.Invalidate(ctx, columnID)

	s.logger.Info("Column deleted",
		zap.String("column_id", columnID.String()),
		zap.String("user_id", principal.ID.String()))
	return nil
}

func (s *columnService) GetFull(ctx context.Context, principal models.Principal, columnID uuid.UUID) (*models.ColumnFull, error) {
	column, err := s.authorizedColumn(ctx, principal, columnID)
	if err != nil {
		return nil, err
	}

	perms, err := s.permissionRepo.ListByColumn(ctx, columnID)
	if err != nil {
		return nil, err
	}
	identities, err := s.users.Identities(ctx, []uuid.UUID{column.CreatedByID})
	if err != nil {
		return nil, err
	}

	return &models.ColumnFull{
		EstimateColumn: *column,
		CreatedBy:      identities[column.CreatedByID],
		Permissions:    perms,
	}, nil
}

func (s *columnService) GetHistory(ctx context.Context, principal models.Principal, columnID uuid.UUID) ([]*models.ColumnHistoryEntry, error) {
	if _, err := s.authorizedColumn(ctx, principal, columnID); err != nil {
		return nil, err
	}

	history, err := s.historyRepo.ListColumnHistory(ctx, columnID)
	if err != nil {
		return nil, err
	}

	userIDs := make([]uuid.UUID, 0, len(history))
	for _, h := range history {
		userIDs = append(userIDs, h.UserID)
	}
	identities, err := s.users.Identities(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.ColumnHistoryEntry, 0, len(history))
	for _, h := range history {
		entries = append(entries, &models.ColumnHistoryEntry{
			ColumnHistory: *h,
			User:          identities[h.UserID],
		})
	}
	return entries, nil
}

var _ ColumnService = (*columnService)(nil)

// authorizedColumn loads the column and authorizes the principal on the
// workspace owning its estimate.
func (s *columnService) authorizedColumn(ctx context.Context, principal models.Principal, columnID uuid.UUID) (*models.EstimateColumn, error) {
	column, err := s.columnRepo.GetByID(ctx, columnID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.AuthorizeEstimate(ctx, column.EstimateID, principal); err != nil {
		return nil, err
	}
	return column, nil
}

func (s *columnService) checkOrderFree(ctx context.Context, estimateID uuid.UUID, order int, excludeID uuid.UUID) error {
	taken, err := s.columnRepo.OrderTaken(ctx, estimateID, order, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: column order %d is already used in this estimate", apperrors.ErrConflict, order)
	}
	return nil
}

// columnChanges builds one UPDATED history entry per field whose value differs.
func columnChanges(before, after *models.EstimateColumn, userID uuid.UUID) []*models.ColumnHistory {
	var changes []*models.ColumnHistory
	add := func(field string, oldValue, newValue *string) {
		changes = append(changes, &models.ColumnHistory{
			ColumnID: before.ID,
			UserID:   userID,
			Action:   models.ColumnActionUpdated,
			Field:    models.StringPtr(field),
			OldValue: oldValue,
			NewValue: newValue,
		})
	}

	if before.Name != after.Name {
		add("name", models.StringPtr(before.Name), models.StringPtr(after.Name))
	}
	if before.DataType != after.DataType {
		add("dataType", models.StringPtr(string(before.DataType)), models.StringPtr(string(after.DataType)))
	}
	if before.Order != after.Order {
		add("order", models.StringPtr(strconv.Itoa(before.Order)), models.StringPtr(strconv.Itoa(after.Order)))
	}
	if before.Required != after.Required {
		add("required", models.StringPtr(strconv.FormatBool(before.Required)), models.StringPtr(strconv.FormatBool(after.Required)))
	}
	if !models.EqualStringPtr(before.AllowedValues, after.AllowedValues) {
		add("allowedValues", before.AllowedValues, after.AllowedValues)
	}
	return changes
}
