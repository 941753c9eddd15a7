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

// RowRepository defines data access for estimate rows.
type RowRepository interface {
	Create(ctx context.Context, row *models.EstimateRow) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EstimateRow, error)
	// Delete removes the row; its cells cascade.
	Delete(ctx context.Context, id uuid.UUID) error
	// NextOrder returns max(order)+1 for the estimate, or 0 when it has no rows.
	NextOrder(ctx context.Context, estimateID uuid.UUID) (int, error)
	// ListByEstimate returns rows by ascending order, ties by creation.
	ListByEstimate(ctx context.Context, estimateID uuid.UUID) ([]*models.EstimateRow, error)
	CountByEstimate(ctx context.Context, estimateID uuid.UUID) (int, error)
}

type rowRepository struct{}

// NewRowRepository creates a new row repository.
func NewRowRepository() RowRepository {
	return &rowRepository{}
}

func (r *rowRepository) Create(ctx context.Context, row *models.EstimateRow) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	now := time.Now()
	row.CreatedAt = now
	row.UpdatedAt = now

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO estimate_rows (id, estimate_id, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		row.ID, row.EstimateID, row.Order, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create row: %w", err)
	}
	return nil
}

func (r *rowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EstimateRow, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	var row models.EstimateRow
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, estimate_id, sort_order, created_at, updated_at
		FROM estimate_rows
		WHERE id = $1`, id).Scan(&row.ID, &row.EstimateID, &row.Order, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get row: %w", err)
	}
	return &row, nil
}

func (r *rowRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM estimate_rows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete row: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *rowRepository) NextOrder(ctx context.Context, estimateID uuid.UUID) (int, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	var next int
	err := scope.Conn.QueryRow(ctx, `
		SELECT COALESCE(MAX(sort_order) + 1, 0)
		FROM estimate_rows
		WHERE estimate_id = $1`, estimateID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next row order: %w", err)
	}
	return next, nil
}

func (r *rowRepository) ListByEstimate(ctx context.Context, estimateID uuid.UUID) ([]*models.EstimateRow, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, estimate_id, sort_order, created_at, updated_at
		FROM estimate_rows
		WHERE estimate_id = $1
		ORDER BY sort_order ASC, created_at ASC`, estimateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	defer rows.Close()

	result := make([]*models.EstimateRow, 0)
	for rows.Next() {
		var row models.EstimateRow
		if err := rows.Scan(&row.ID, &row.EstimateID, &row.Order, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

func (r *rowRepository) CountByEstimate(ctx context.Context, estimateID uuid.UUID) (int, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	var count int
	err := scope.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM estimate_rows WHERE estimate_id = $1`, estimateID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}

var _ RowRepository = (*rowRepository)(nil)
