package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/export"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
	"github.com/ekaya-inc/estimate-engine/pkg/repositories"
)

// TableExport is a rendered spreadsheet of an estimate table.
type TableExport struct {
	FileName    string
	ContentType string
	Data        []byte
}

// TableService builds the role-filtered view of an estimate's table.
type TableService interface {
	// GetTableData returns the columns the principal may view, ordered by
	// column order, and every row with the cells of those columns only.
	GetTableData(ctx context.Context, principal models.Principal, estimateID uuid.UUID) (*models.TableData, error)
	// ExportXLSX renders the same projection as a workbook.
	ExportXLSX(ctx context.Context, principal models.Principal, estimateID uuid.UUID) (*TableExport, error)
}

type tableService struct {
	guard          AccessGuard
	columnRepo     repositories.ColumnRepository
	permissionRepo repositories.PermissionRepository
	rowRepo        repositories.RowRepository
	cellRepo       repositories.CellRepository
	sheetName      string
	logger         *zap.Logger
}

// NewTableService creates a new table projection service with dependencies.
func NewTableService(
	guard AccessGuard,
	columnRepo repositories.ColumnRepository,
	permissionRepo repositories.PermissionRepository,
	rowRepo repositories.RowRepository,
	cellRepo repositories.CellRepository,
	sheetName string,
	logger *zap.Logger,
) TableService {
	return &tableService{
		guard:          guard,
		columnRepo:     columnRepo,
		permissionRepo: permissionRepo,
		rowRepo:        rowRepo,
		cellRepo:       cellRepo,
		sheetName:      sheetName,
		logger:         logger,
	}
}

func (s *tableService) GetTableData(ctx context.Context, principal models.Principal, estimateID uuid.UUID) (*models.TableData, error) {
	if _, err := s.authorizedEstimate(ctx, principal, estimateID); err != nil {
		return nil, err
	}
	return s.buildTable(ctx, principal, estimateID)
}

func (s *tableService) ExportXLSX(ctx context.Context, principal models.Principal, estimateID uuid.UUID) (*TableExport, error) {
	estimate, err := s.authorizedEstimate(ctx, principal, estimateID)
	if err != nil {
		return nil, err
	}
	table, err := s.buildTable(ctx, principal, estimateID)
	if err != nil {
		return nil, err
	}

	data, err := export.RenderTable(table, s.sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to render estimate %s: %w", estimateID, err)
	}

	s.logger.Info("Estimate exported",
		zap.String("estimate_id", estimateID.String()),
		zap.String("user_id", principal.ID.String()),
		zap.Int("columns", len(table.Columns)),
		zap.Int("rows", len(table.Rows)))

	return &TableExport{
		FileName:    exportFileName(estimate.Name),
		ContentType: export.ContentType,
		Data:        data,
	}, nil
}

var _ TableService = (*tableService)(nil)

func (s *tableService) authorizedEstimate(ctx context.Context, principal models.Principal, estimateID uuid.UUID) (*models.Estimate, error) {
	return s.guard.AuthorizeActiveEstimate(ctx, estimateID, principal)
}

func (s *tableService) buildTable(ctx context.Context, principal models.Principal, estimateID uuid.UUID) (*models.TableData, error) {
	columns, err := s.columnRepo.ListByEstimate(ctx, estimateID)
	if err != nil {
		return nil, err
	}

	records := make(map[uuid.UUID]*models.ColumnRolePermission)
	if !principal.IsAdmin() && len(columns) > 0 {
		columnIDs := make([]uuid.UUID, 0, len(columns))
		for _, c := range columns {
			columnIDs = append(columnIDs, c.ID)
		}
		perms, err := s.permissionRepo.ListByColumnsAndRole(ctx, columnIDs, principal.Role)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			records[p.ColumnID] = p
		}
	}

	tableColumns := make([]*models.TableColumn, 0, len(columns))
	visibleIDs := make([]uuid.UUID, 0, len(columns))
	visible := make(map[uuid.UUID]bool, len(columns))
	for _, c := range columns {
		perm := models.ResolveEffectivePermission(principal.Role, records[c.ID])
		if !perm.CanView {
			continue
		}
		tc := &models.TableColumn{
			ID:       c.ID,
			Name:     c.Name,
			DataType: c.DataType,
			Order:    c.Order,
			Required: c.Required,
			CanEdit:  perm.CanEdit,
		}
		if c.DataType == models.DataTypeEnum {
			tc.AllowedValues = models.DecodeAllowedValues(c.AllowedValues)
		}
		tableColumns = append(tableColumns, tc)
		visibleIDs = append(visibleIDs, c.ID)
		visible[c.ID] = true
	}

	rows, err := s.rowRepo.ListByEstimate(ctx, estimateID)
	if err != nil {
		return nil, err
	}

	cellsByRow := make(map[uuid.UUID][]*models.Cell, len(rows))
	if len(rows) > 0 && len(visibleIDs) > 0 {
		rowIDs := make([]uuid.UUID, 0, len(rows))
		for _, r := range rows {
			rowIDs = append(rowIDs, r.ID)
		}
		cells, err := s.cellRepo.ListByRowsAndColumns(ctx, rowIDs, visibleIDs)
		if err != nil {
			return nil, err
		}
		for _, c := range cells {
			if !visible[c.ColumnID] {
				continue
			}
			cellsByRow[c.RowID] = append(cellsByRow[c.RowID], c)
		}
	}

	tableRows := make([]*models.TableRow, 0, len(rows))
	for _, r := range rows {
		cells := cellsByRow[r.ID]
		if cells == nil {
			cells = []*models.Cell{}
		}
		tableRows = append(tableRows, &models.TableRow{
			ID:        r.ID,
			Order:     r.Order,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
			Cells:     cells,
		})
	}

	s.logger.Debug("Built table projection",
		zap.String("estimate_id", estimateID.String()),
		zap.String("role", string(principal.Role)),
		zap.Int("visible_columns", len(tableColumns)),
		zap.Int("hidden_columns", len(columns)-len(tableColumns)),
		zap.Int("rows", len(tableRows)))

	return &models.TableData{Columns: tableColumns, Rows: tableRows}, nil
}

// exportFileName derives a download name from the estimate name. Spaces
// become underscores; other punctuation is dropped.
func exportFileName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == ' ':
			b.WriteRune('_')
		case r == '-' || r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "estimate.xlsx"
	}
	return b.String() + ".xlsx"
}
