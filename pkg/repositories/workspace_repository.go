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

// WorkspaceRepository reads workspaces and their membership. Workspace
// management itself is owned by another system; Create and AddMember exist
// for provisioning and tests.
type WorkspaceRepository interface {
	// GetByID returns the workspace even when it is soft-deleted.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
	IsMember(ctx context.Context, workspaceID, userID uuid.UUID) (bool, error)
	Create(ctx context.Context, ws *models.Workspace) error
	AddMember(ctx context.Context, workspaceID, userID uuid.UUID) error
}

type workspaceRepository struct{}

// NewWorkspaceRepository creates a new workspace repository.
func NewWorkspaceRepository() WorkspaceRepository {
	return &workspaceRepository{}
}

func (r *workspaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, name, created_at, updated_at, deleted_at
		FROM workspaces
		WHERE id = $1`

	var ws models.Workspace
	err := scope.Conn.QueryRow(ctx, query, id).Scan(
		&ws.ID, &ws.Name, &ws.CreatedAt, &ws.UpdatedAt, &ws.DeletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return &ws, nil
}

func (r *workspaceRepository) IsMember(ctx context.Context, workspaceID, userID uuid.UUID) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	var exists bool
	err := scope.Conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM workspace_members
			WHERE workspace_id = $1 AND user_id = $2
		)`, workspaceID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check workspace membership: %w", err)
	}
	return exists, nil
}

func (r *workspaceRepository) Create(ctx context.Context, ws *models.Workspace) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}

	query := `
		INSERT INTO workspaces (id, name, deleted_at)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query, ws.ID, ws.Name, ws.DeletedAt).Scan(&ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

func (r *workspaceRepository) AddMember(ctx context.Context, workspaceID, userID uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id, user_id) DO NOTHING`, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("failed to add workspace member: %w", err)
	}
	return nil
}

var _ WorkspaceRepository = (*workspaceRepository)(nil)
