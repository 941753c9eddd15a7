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

// PermissionRepository defines data access for column role permissions.
type PermissionRepository interface {
	// Create inserts the record. A second record for the same (column, role)
	// returns ErrConflict.
	Create(ctx context.Context, perm *models.ColumnRolePermission) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ColumnRolePermission, error)
	// FindByColumnAndRole returns nil without error when no record exists.
	FindByColumnAndRole(ctx context.Context, columnID uuid.UUID, role models.Role) (*models.ColumnRolePermission, error)
	ListByColumn(ctx context.Context, columnID uuid.UUID) ([]*models.ColumnRolePermission, error)
	// ListByColumnsAndRole fetches the records of one role for many columns in one query.
	ListByColumnsAndRole(ctx context.Context, columnIDs []uuid.UUID, role models.Role) ([]*models.ColumnRolePermission, error)
	Update(ctx context.Context, perm *models.ColumnRolePermission) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type permissionRepository struct{}

// NewPermissionRepository creates a new permission repository.
func NewPermissionRepository() PermissionRepository {
	return &permissionRepository{}
}

const permissionSelect = `id, column_id, role, can_view, can_edit, can_create, created_at, updated_at`

func scanPermission(row pgx.Row) (*models.ColumnRolePermission, error) {
	var p models.ColumnRolePermission
	err := row.Scan(
		&p.ID,
		&p.ColumnID,
		&p.Role,
		&p.CanView,
		&p.CanEdit,
		&p.CanCreate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *permissionRepository) Create(ctx context.Context, perm *models.ColumnRolePermission) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if perm.ID == uuid.Nil {
		perm.ID = uuid.New()
	}
	now := time.Now()
	perm.CreatedAt = now
	perm.UpdatedAt = now

	query := `
		INSERT INTO column_role_permissions (id, column_id, role, can_view, can_edit, can_create, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := scope.Conn.Exec(ctx, query,
		perm.ID,
		perm.ColumnID,
		perm.Role,
		perm.CanView,
		perm.CanEdit,
		perm.CanCreate,
		perm.CreatedAt,
		perm.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: permission for role %s already exists on this column", apperrors.ErrConflict, perm.Role)
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

func (r *permissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ColumnRolePermission, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + permissionSelect + ` FROM column_role_permissions WHERE id = $1`

	p, err := scanPermission(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return p, nil
}

func (r *permissionRepository) FindByColumnAndRole(ctx context.Context, columnID uuid.UUID, role models.Role) (*models.ColumnRolePermission, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + permissionSelect + `
		FROM column_role_permissions
		WHERE column_id = $1 AND role = $2`

	p, err := scanPermission(scope.Conn.QueryRow(ctx, query, columnID, role))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return p, nil
}

func (r *permissionRepository) ListByColumn(ctx context.Context, columnID uuid.UUID) ([]*models.ColumnRolePermission, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + permissionSelect + `
		FROM column_role_permissions
		WHERE column_id = $1
		ORDER BY role`

	return r.queryPermissions(ctx, scope, query, columnID)
}

func (r *permissionRepository) ListByColumnsAndRole(ctx context.Context, columnIDs []uuid.UUID, role models.Role) ([]*models.ColumnRolePermission, error) {
	if len(columnIDs) == 0 {
		return []*models.ColumnRolePermission{}, nil
	}

	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + permissionSelect + `
		FROM column_role_permissions
		WHERE column_id = ANY($1) AND role = $2`

	return r.queryPermissions(ctx, scope, query, columnIDs, role)
}

func (r *permissionRepository) queryPermissions(ctx context.Context, scope *database.Scope, query string, args ...any) ([]*models.ColumnRolePermission, error) {
	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	perms := make([]*models.ColumnRolePermission, 0)
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permissions: %w", err)
	}
	return perms, nil
}

func (r *permissionRepository) Update(ctx context.Context, perm *models.ColumnRolePermission) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	perm.UpdatedAt = time.Now()

	result, err := scope.Conn.Exec(ctx, `
		UPDATE column_role_permissions
		SET can_view = $2, can_edit = $3, can_create = $4, updated_at = $5
		WHERE id = $1`,
		perm.ID, perm.CanView, perm.CanEdit, perm.CanCreate, perm.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update permission: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *permissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM column_role_permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

var _ PermissionRepository = (*permissionRepository)(nil)
