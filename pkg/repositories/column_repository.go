package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/estimate-engine/pkg/apperrors"
	"github.com/ekaya-inc/estimate-engine/pkg/database"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
)

// ColumnRepository defines data access for estimate columns.
type ColumnRepository interface {
	// Create inserts the column. A duplicate (estimate, order) returns ErrConflict.
	Create(ctx context.Context, column *models.EstimateColumn) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EstimateColumn, error)
	// ListByEstimate returns the estimate's columns by ascending order.
	ListByEstimate(ctx context.Context, estimateID uuid.UUID) ([]*models.EstimateColumn, error)
	// Update writes every mutable field. A duplicate (estimate, order) returns ErrConflict.
	Update(ctx context.Context, column *models.EstimateColumn) error
	// Delete removes the column; cells, permissions and history cascade.
	Delete(ctx context.Context, id uuid.UUID) error
	// OrderTaken reports whether another column of the estimate uses order.
	// Pass uuid.Nil as excludeID when no column should be ignored.
	OrderTaken(ctx context.Context, estimateID uuid.UUID, order int, excludeID uuid.UUID) (bool, error)
}

type columnRepository struct{}

// NewColumnRepository creates a new column repository.
func NewColumnRepository() ColumnRepository {
	return &columnRepository{}
}

const columnSelect = `id, estimate_id, created_by_id, name, data_type, sort_order, required, allowed_values, created_at, updated_at`

func scanColumn(row pgx.Row) (*models.EstimateColumn, error) {
	var c models.EstimateColumn
	err := row.Scan(
		&c.ID,
		&c.EstimateID,
		&c.CreatedByID,
		&c.Name,
		&c.DataType,
		&c.Order,
		&c.Required,
		&c.AllowedValues,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *columnRepository) Create(ctx context.Context, column *models.EstimateColumn) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if column.ID == uuid.Nil {
		column.ID = uuid.New()
	}
	now := time.Now()
	column.CreatedAt = now
	column.UpdatedAt = now

	query := `
		INSERT INTO estimate_columns (id, estimate_id, created_by_id, name, data_type, sort_order, required, allowed_values, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := scope.Conn.Exec(ctx, query,
		column.ID,
		column.EstimateID,
		column.CreatedByID,
		column.Name,
		column.DataType,
		column.Order,
		column.Required,
		column.AllowedValues,
		column.CreatedAt,
		column.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: column order %d is already used in this estimate", apperrors.ErrConflict, column.Order)
		}
		return fmt.Errorf("failed to create column: %w", err)
	}
	return nil
}

func (r *columnRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EstimateColumn, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + columnSelect + ` FROM estimate_columns WHERE id = $1`

	c, err := scanColumn(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get column: %w", err)
	}
	return c, nil
}

func (r *columnRepository) ListByEstimate(ctx context.Context, estimateID uuid.UUID) ([]*models.EstimateColumn, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + columnSelect + `
		FROM estimate_columns
		WHERE estimate_id = $1
		ORDER BY sort_order ASC`

	rows, err := scope.Conn.Query(ctx, query, estimateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	columns := make([]*models.EstimateColumn, 0)
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return columns, nil
}

func (r *columnRepository) Update(ctx context.Context, column *models.EstimateColumn) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	column.UpdatedAt = time.Now()

	query := `
		UPDATE estimate_columns
		SET name = $2, data_type = $3, sort_order = $4, required = $5, allowed_values = $6, updated_at = $7
		WHERE id = $1`

	result, err := scope.Conn.Exec(ctx, query,
		column.ID,
		column.Name,
		column.DataType,
		column.Order,
		column.Required,
		column.AllowedValues,
		column.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: column order %d is already used in this estimate", apperrors.ErrConflict, column.Order)
		}
		return fmt.Errorf("failed to update column: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *columnRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM estimate_columns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete column: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *columnRepository) OrderTaken(ctx context.Context, estimateID uuid.UUID, order int, excludeID uuid.UUID) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	var taken bool
	err := scope.Conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM estimate_columns
			WHERE estimate_id = $1 AND sort_order = $2 AND id <> $3
		)`, estimateID, order, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check column order: %w", err)
	}
	return taken, nil
}

var _ ColumnRepository = (*columnRepository)(nil)
