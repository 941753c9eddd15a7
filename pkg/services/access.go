package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/apperrors"
	"github.com/ekaya-inc/estimate-engine/pkg/audit"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
	"github.com/ekaya-inc/estimate-engine/pkg/repositories"
)

// AccessGuard decides whether a principal may act on a workspace and the
// estimates inside it.
type AccessGuard interface {
	// AuthorizeWorkspace lets ADMIN into any existing workspace. Other roles
	// need a membership and a workspace that is not soft-deleted. Every
	// failure is reported as ErrNotFound so callers cannot probe for
	// workspaces they do not belong to.
	AuthorizeWorkspace(ctx context.Context, workspaceID uuid.UUID, principal models.Principal) error
	// AuthorizeEstimate authorizes the workspace owning the estimate. The
	// estimate may be soft-deleted; its existing cells stay addressable.
	AuthorizeEstimate(ctx context.Context, estimateID uuid.UUID, principal models.Principal) error
	// AuthorizeActiveEstimate loads an estimate that is not soft-deleted and
	// authorizes its workspace. Structural changes go through it.
	AuthorizeActiveEstimate(ctx context.Context, estimateID uuid.UUID, principal models.Principal) (*models.Estimate, error)
}

type accessGuard struct {
	workspaceRepo repositories.WorkspaceRepository
	estimateRepo  repositories.EstimateRepository
	logger        *zap.Logger
}

// NewAccessGuard creates a workspace access guard.
func NewAccessGuard(
	workspaceRepo repositories.WorkspaceRepository,
	estimateRepo repositories.EstimateRepository,
	logger *zap.Logger,
) AccessGuard {
	return &accessGuard{
		workspaceRepo: workspaceRepo,
		estimateRepo:  estimateRepo,
		logger:        logger,
	}
}

var errNoWorkspaceAccess = fmt.Errorf("%w: workspace not found or no access", apperrors.ErrNotFound)

func (g *accessGuard) AuthorizeWorkspace(ctx context.Context, workspaceID uuid.UUID, principal models.Principal) error {
	if !principal.IsAdmin() {
		member, err := g.workspaceRepo.IsMember(ctx, workspaceID, principal.ID)
		if err != nil {
			return err
		}
		if !member {
			g.logger.Debug("Workspace access denied: not a member",
				zap.String("workspace_id", workspaceID.String()),
				zap.String("user_id", principal.ID.String()))
			return errNoWorkspaceAccess
		}
	}

	ws, err := g.workspaceRepo.GetByID(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return errNoWorkspaceAccess
		}
		return err
	}

	if ws.IsDeleted() && !principal.IsAdmin() {
		return errNoWorkspaceAccess
	}
	return nil
}

func (g *accessGuard) AuthorizeEstimate(ctx context.Context, estimateID uuid.UUID, principal models.Principal) error {
	workspaceID, err := g.estimateRepo.GetWorkspaceID(ctx, estimateID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("%w: estimate not found", apperrors.ErrNotFound)
		}
		return err
	}
	return g.AuthorizeWorkspace(ctx, workspaceID, principal)
}

func (g *accessGuard) AuthorizeActiveEstimate(ctx context.Context, estimateID uuid.UUID, principal models.Principal) (*models.Estimate, error) {
	estimate, err := g.estimateRepo.GetByID(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	if err := g.AuthorizeWorkspace(ctx, estimate.WorkspaceID, principal); err != nil {
		return nil, err
	}
	return estimate, nil
}

var _ AccessGuard = (*accessGuard)(nil)

// denyWorker rejects WORKER principals for schema and metadata changes.
func denyWorker(auditor *audit.SecurityAuditor, principal models.Principal, resourceType string, resourceID uuid.UUID, operation string) error {
	if principal.Role != models.RoleWorker {
		return nil
	}
	auditor.LogAccessDenied(principal, resourceType, resourceID, operation)
	return fmt.Errorf("%w: role %s may not %s", apperrors.ErrForbidden, principal.Role, operation)
}
