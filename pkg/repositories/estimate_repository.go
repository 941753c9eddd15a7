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

// EstimateRepository defines data access for estimates. Reads skip
// soft-deleted estimates unless stated otherwise.
type EstimateRepository interface {
	Create(ctx context.Context, estimate *models.Estimate) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Estimate, error)
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*models.Estimate, error)
	Update(ctx context.Context, estimate *models.Estimate) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// GetWorkspaceID resolves the owning workspace, including for
	// soft-deleted estimates whose columns and rows stay addressable.
	GetWorkspaceID(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

type estimateRepository struct{}

// NewEstimateRepository creates a new estimate repository.
func NewEstimateRepository() EstimateRepository {
	return &estimateRepository{}
}

const estimateColumns = `id, workspace_id, created_by_id, name, description, created_at, updated_at, deleted_at`

func scanEstimate(row pgx.Row) (*models.Estimate, error) {
	var e models.Estimate
	err := row.Scan(
		&e.ID,
		&e.WorkspaceID,
		&e.CreatedByID,
		&e.Name,
		&e.Description,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *estimateRepository) Create(ctx context.Context, estimate *models.Estimate) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if estimate.ID == uuid.Nil {
		estimate.ID = uuid.New()
	}
	now := time.Now()
	estimate.CreatedAt = now
	estimate.UpdatedAt = now

	query := `
		INSERT INTO estimates (id, workspace_id, created_by_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := scope.Conn.Exec(ctx, query,
		estimate.ID,
		estimate.WorkspaceID,
		estimate.CreatedByID,
		estimate.Name,
		estimate.Description,
		estimate.CreatedAt,
		estimate.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create estimate: %w", err)
	}
	return nil
}

func (r *estimateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Estimate, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + estimateColumns + `
		FROM estimates
		WHERE id = $1 AND deleted_at IS NULL`

	e, err := scanEstimate(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get estimate: %w", err)
	}
	return e, nil
}

func (r *estimateRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*models.Estimate, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + estimateColumns + `
		FROM estimates
		WHERE workspace_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`

	rows, err := scope.Conn.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list estimates: %w", err)
	}
	defer rows.Close()

	estimates := make([]*models.Estimate, 0)
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		estimates = append(estimates, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating estimates: %w", err)
	}
	return estimates, nil
}

func (r *estimateRepository) Update(ctx context.Context, estimate *models.Estimate) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	estimate.UpdatedAt = time.Now()

	query := `
		UPDATE estimates
		SET workspace_id = $2, name = $3, description = $4, updated_at = $5
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := scope.Conn.Exec(ctx, query,
		estimate.ID,
		estimate.WorkspaceID,
		estimate.Name,
		estimate.Description,
		estimate.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update estimate: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *estimateRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE estimates
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete estimate: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *estimateRepository) GetWorkspaceID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return uuid.Nil, fmt.Errorf("no database scope in context")
	}

	var workspaceID uuid.UUID
	err := scope.Conn.QueryRow(ctx, `SELECT workspace_id FROM estimates WHERE id = $1`, id).Scan(&workspaceID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, apperrors.ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get estimate workspace: %w", err)
	}
	return workspaceID, nil
}

var _ EstimateRepository = (*estimateRepository)(nil)
