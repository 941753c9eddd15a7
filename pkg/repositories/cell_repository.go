package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/estimate-engine/pkg/apperrors"
	"github.com/ekaya-inc/estimate-engine/pkg/database"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
)

// CellRepository defines data access for cells. Cells are created in bulk when
// rows or columns are added; their only mutation is the value.
type CellRepository interface {
	// CreateForRow creates an empty cell in the row for every column of the
	// estimate, returned in column order.
	CreateForRow(ctx context.Context, rowID, estimateID uuid.UUID) ([]*models.Cell, error)
	// CreateForColumn creates an empty cell in the column for every row of the
	// estimate and returns how many were created.
	CreateForColumn(ctx context.Context, columnID, estimateID uuid.UUID) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Cell, error)
	// GetByIDForUpdate reads the cell and locks it until the surrounding
	// transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Cell, error)
	// UpdateValue stores value and returns the updated cell.
	UpdateValue(ctx context.Context, id uuid.UUID, value *string) (*models.Cell, error)
	// ListByRowsAndColumns fetches the cells at the intersection in one query,
	// ordered by row then column order.
	ListByRowsAndColumns(ctx context.Context, rowIDs, columnIDs []uuid.UUID) ([]*models.Cell, error)
}

type cellRepository struct{}

// NewCellRepository creates a new cell repository.
func NewCellRepository() CellRepository {
	return &cellRepository{}
}

const cellSelect = `id, row_id, column_id, value, created_at, updated_at`

func scanCell(row pgx.Row) (*models.Cell, error) {
	var c models.Cell
	if err := row.Scan(&c.ID, &c.RowID, &c.ColumnID, &c.Value, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cellRepository) CreateForRow(ctx context.Context, rowID, estimateID uuid.UUID) ([]*models.Cell, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		WITH inserted AS (
			INSERT INTO cells (row_id, column_id)
			SELECT $1::uuid, c.id FROM estimate_columns c WHERE c.estimate_id = $2
			RETURNING ` + cellSelect + `
		)
		SELECT i.id, i.row_id, i.column_id, i.value, i.created_at, i.updated_at
		FROM inserted i
		JOIN estimate_columns c ON c.id = i.column_id
		ORDER BY c.sort_order`

	rows, err := scope.Conn.Query(ctx, query, rowID, estimateID)
	if err != nil {
		return nil, fmt.Errorf("failed to create row cells: %w", err)
	}
	defer rows.Close()

	cells := make([]*models.Cell, 0)
	for rows.Next() {
		c, err := scanCell(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to create row cells: %w", err)
	}
	return cells, nil
}

func (r *cellRepository) CreateForColumn(ctx context.Context, columnID, estimateID uuid.UUID) (int64, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		INSERT INTO cells (row_id, column_id)
		SELECT r.id, $1::uuid FROM estimate_rows r WHERE r.estimate_id = $2
		ON CONFLICT (row_id, column_id) DO NOTHING`, columnID, estimateID)
	if err != nil {
		return 0, fmt.Errorf("failed to create column cells: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *cellRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Cell, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	c, err := scanCell(scope.Conn.QueryRow(ctx, `SELECT `+cellSelect+` FROM cells WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cell: %w", err)
	}
	return c, nil
}

func (r *cellRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Cell, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	c, err := scanCell(scope.Conn.QueryRow(ctx, `SELECT `+cellSelect+` FROM cells WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock cell: %w", err)
	}
	return c, nil
}

func (r *cellRepository) UpdateValue(ctx context.Context, id uuid.UUID, value *string) (*models.Cell, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE cells
		SET value = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + cellSelect

	c, err := scanCell(scope.Conn.QueryRow(ctx, query, id, value))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update cell: %w", err)
	}
	return c, nil
}

func (r *cellRepository) ListByRowsAndColumns(ctx context.Context, rowIDs, columnIDs []uuid.UUID) ([]*models.Cell, error) {
	if len(rowIDs) == 0 || len(columnIDs) == 0 {
		return []*models.Cell{}, nil
	}

	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT c.id, c.row_id, c.column_id, c.value, c.created_at, c.updated_at
		FROM cells c
		JOIN estimate_rows r ON r.id = c.row_id
		JOIN estimate_columns col ON col.id = c.column_id
		WHERE c.row_id = ANY($1) AND c.column_id = ANY($2)
		ORDER BY r.sort_order, r.created_at, r.id, col.sort_order`, rowIDs, columnIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list cells: %w", err)
	}
	defer rows.Close()

	cells := make([]*models.Cell, 0)
	for rows.Next() {
		c, err := scanCell(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cells: %w", err)
	}
	return cells, nil
}

var _ CellRepository = (*cellRepository)(nil)
