package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/apperrors"
	"github.com/ekaya-inc/estimate-engine/pkg/audit"
	"github.com/ekaya-inc/estimate-engine/pkg/cache"
	"github.com/ekaya-inc/estimate-engine/pkg/database"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
	"github.com/ekaya-inc/estimate-engine/pkg/repositories"
)

// CreateRowInput holds an optional explicit row order.
type CreateRowInput struct {
	Order *int `json:"order"`
}

// UpdateCellInput holds a new cell value. A nil Value clears the cell.
type UpdateCellInput struct {
	Value  *string `json:"value"`
	Reason *string `json:"reason"`
}

// RowService manages rows and cell values of an estimate table.
type RowService interface {
	// CreateRow appends a row with one empty cell per existing column.
	CreateRow(ctx context.Context, principal models.Principal, estimateID uuid.UUID, input CreateRowInput) (*models.RowWithCells, error)
	DeleteRow(ctx context.Context, principal models.Principal, rowID uuid.UUID) error
	// UpdateCell writes the value and records a history entry, even when the
	// value is unchanged.
	UpdateCell(ctx context.Context, principal models.Principal, cellID uuid.UUID, input UpdateCellInput) (*models.Cell, error)
	// GetCellHistory returns the cell's history newest first.
	GetCellHistory(ctx context.Context, principal models.Principal, cellID uuid.UUID) ([]*models.CellHistoryEntry, error)
}

type rowService struct {
	guard       AccessGuard
	tx          database.TxRunner
	columnRepo  repositories.ColumnRepository
	rowRepo     repositories.RowRepository
	cellRepo    repositories.CellRepository
	historyRepo repositories.HistoryRepository
	resolver    *permissionResolver
	users       UserService
	auditor     *audit.SecurityAuditor
	logger      *zap.Logger
}

// NewRowService creates a new row service with dependencies.
func NewRowService(
	guard AccessGuard,
	tx database.TxRunner,
	columnRepo repositories.ColumnRepository,
	rowRepo repositories.RowRepository,
	cellRepo repositories.CellRepository,
	permissionRepo repositories.PermissionRepository,
	historyRepo repositories.HistoryRepository,
	users UserService,
	permCache cache.PermissionCache,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) RowService {
	return &rowService{
		guard:       guard,
		tx:          tx,
		columnRepo:  columnRepo,
		rowRepo:     rowRepo,
		cellRepo:    cellRepo,
		historyRepo: historyRepo,
		resolver:    newPermissionResolver(permissionRepo, permCache),
		users:       users,
		auditor:     auditor,
		logger:      logger,
	}
}

func (s *rowService) CreateRow(ctx context.Context, principal models.Principal, estimateID uuid.UUID, input CreateRowInput) (*models.RowWithCells, error) {
	if _, err := s.guard.AuthorizeActiveEstimate(ctx, estimateID, principal); err != nil {
		return nil, err
	}

	row := &models.EstimateRow{EstimateID: estimateID}
	if input.Order != nil {
		if *input.Order < 0 {
			return nil, fmt.Errorf("%w: row order must not be negative", apperrors.ErrBadRequest)
		}
		row.Order = *input.Order
	}

	var cells []*models.Cell
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if input.Order == nil {
			next, err := s.rowRepo.NextOrder(ctx, estimateID)
			if err != nil {
				return err
			}
			row.Order = next
		}
		if err := s.rowRepo.Create(ctx, row); err != nil {
			return err
		}
		var err error
		cells, err = s.cellRepo.CreateForRow(ctx, row.ID, estimateID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Row created",
		zap.String("row_id", row.ID.String()),
		zap.String("estimate_id", estimateID.String()),
		zap.Int("order", row.Order),
		zap.Int("cells", len(cells)))

	return &models.RowWithCells{EstimateRow: *row, Cells: cells}, nil
}

func (s *rowService) DeleteRow(ctx context.Context, principal models.Principal, rowID uuid.UUID) error {
	row, err := s.rowRepo.GetByID(ctx, rowID)
	if err != nil {
		return err
	}
	if _, err := s.guard.AuthorizeActiveEstimate(ctx, row.EstimateID, principal); err != nil {
		return err
	}
	if err := s.rowRepo.Delete(ctx, rowID); err != nil {
		return err
	}

	s.logger.Info("Row deleted",
		zap.String("row_id", rowID.String()),
		zap.String("user_id", principal.ID.String()))
	return nil
}

func (s *rowService) UpdateCell(ctx context.Context, principal models.Principal, cellID uuid.UUID, input UpdateCellInput) (*models.Cell, error) {
	cell, column, err := s.authorizedCell(ctx, principal, cellID)
	if err != nil {
		return nil, err
	}

	perm, err := s.resolver.resolve(ctx, column.ID, principal.Role)
	if err != nil {
		return nil, err
	}
	if !perm.CanEdit {
		s.auditor.LogAccessDenied(principal, "cell", cellID, "edit cell")
		return nil, fmt.Errorf("%w: role %s may not edit column %q", apperrors.ErrForbidden, principal.Role, column.Name)
	}

	s.auditor.InspectCellInput(principal, cellID, map[string]*string{
		"value":  input.Value,
		"reason": input.Reason,
	})

	var updated *models.Cell
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		// The cached answer may predate a revoke; decide on committed state.
		perm, err := s.resolver.resolveUncached(ctx, column.ID, principal.Role)
		if err != nil {
			return err
		}
		if !perm.CanEdit {
			s.auditor.LogAccessDenied(principal, "cell", cellID, "edit cell")
			return fmt.Errorf("%w: role %s may not edit column %q", apperrors.ErrForbidden, principal.Role, column.Name)
		}

		// Locking the row serializes concurrent edits so each history entry
		// links to the value the previous one wrote.
		current, err := s.cellRepo.GetByIDForUpdate(ctx, cell.ID)
		if err != nil {
			return err
		}
		updated, err = s.cellRepo.UpdateValue(ctx, cell.ID, input.Value)
		if err != nil {
			return err
		}
		return s.historyRepo.AppendCellHistory(ctx, &models.CellHistory{
			CellID:   cell.ID,
			UserID:   principal.ID,
			OldValue: current.Value,
			NewValue: input.Value,
			Reason:   input.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Cell updated",
		zap.String("cell_id", cellID.String()),
		zap.String("column_id", column.ID.String()),
		zap.String("user_id", principal.ID.String()))

	return updated, nil
}

func (s *rowService) GetCellHistory(ctx context.Context, principal models.Principal, cellID uuid.UUID) ([]*models.CellHistoryEntry, error) {
	_, column, err := s.authorizedCell(ctx, principal, cellID)
	if err != nil {
		return nil, err
	}

	perm, err := s.resolver.resolve(ctx, column.ID, principal.Role)
	if err != nil {
		return nil, err
	}
	if !perm.CanView {
		s.auditor.LogAccessDenied(principal, "cell", cellID, "view cell history")
		return nil, fmt.Errorf("%w: role %s may not view column %q", apperrors.ErrForbidden, principal.Role, column.Name)
	}

	history, err := s.historyRepo.ListCellHistory(ctx, cellID)
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

	entries := make([]*models.CellHistoryEntry, 0, len(history))
	for _, h := range history {
		entries = append(entries, &models.CellHistoryEntry{
			CellHistory: *h,
			User:        identities[h.UserID],
		})
	}
	return entries, nil
}

var _ RowService = (*rowService)(nil)

// authorizedCell loads the cell and its column, then authorizes the
// principal on the column's estimate.
func (s *rowService) authorizedCell(ctx context.Context, principal models.Principal, cellID uuid.UUID) (*models.Cell, *models.EstimateColumn, error) {
	cell, err := s.cellRepo.GetByID(ctx, cellID)
	if err != nil {
		return nil, nil, err
	}
	column, err := s.columnRepo.GetByID(ctx, cell.ColumnID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.guard.AuthorizeEstimate(ctx, column.EstimateID, principal); err != nil {
		return nil, nil, err
	}
	return cell, column, nil
}
