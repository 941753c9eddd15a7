package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/apperrors"
	"github.com/ekaya-inc/estimate-engine/pkg/audit"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
	"github.com/ekaya-inc/estimate-engine/pkg/repositories"
)

// CreateEstimateInput holds the fields of a new estimate.
type CreateEstimateInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// UpdateEstimateInput holds a partial estimate update. Nil fields are left
// unchanged; an empty description clears it.
type UpdateEstimateInput struct {
	WorkspaceID *uuid.UUID `json:"workspaceId"`
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
}

// EstimateService manages the estimate lifecycle inside workspaces.
type EstimateService interface {
	Create(ctx context.Context, principal models.Principal, workspaceID uuid.UUID, input CreateEstimateInput) (*models.Estimate, error)
	ListByWorkspace(ctx context.Context, principal models.Principal, workspaceID uuid.UUID) ([]*models.Estimate, error)
	Get(ctx context.Context, principal models.Principal, id uuid.UUID) (*models.Estimate, error)
	// GetFull adds the column schema and row count.
	GetFull(ctx context.Context, principal models.Principal, id uuid.UUID) (*models.EstimateFull, error)
	Update(ctx context.Context, principal models.Principal, id uuid.UUID, input UpdateEstimateInput) (*models.Estimate, error)
	// SoftDelete hides the estimate from reads. Columns and rows are kept.
	SoftDelete(ctx context.Context, principal models.Principal, id uuid.UUID) error
}

type estimateService struct {
	guard        AccessGuard
	estimateRepo repositories.EstimateRepository
	columnRepo   repositories.ColumnRepository
	rowRepo      repositories.RowRepository
	auditor      *audit.SecurityAuditor
	logger       *zap.Logger
}

// NewEstimateService creates a new estimate service with dependencies.
func NewEstimateService(
	guard AccessGuard,
	estimateRepo repositories.EstimateRepository,
	columnRepo repositories.ColumnRepository,
	rowRepo repositories.RowRepository,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) EstimateService {
	return &estimateService{
		guard:        guard,
		estimateRepo: estimateRepo,
		columnRepo:   columnRepo,
		rowRepo:      rowRepo,
		auditor:      auditor,
		logger:       logger,
	}
}

func (s *estimateService) Create(ctx context.Context, principal models.Principal, workspaceID uuid.UUID, input CreateEstimateInput) (*models.Estimate, error) {
	if err := denyWorker(s.auditor, principal, "workspace", workspaceID, "create estimates"); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: estimate name is required", apperrors.ErrBadRequest)
	}

	if err := s.guard.AuthorizeWorkspace(ctx, workspaceID, principal); err != nil {
		return nil, err
	}

	estimate := &models.Estimate{
		WorkspaceID: workspaceID,
		CreatedByID: principal.ID,
		Name:        name,
		Description: normalizeDescription(input.Description),
	}
	if err := s.estimateRepo.Create(ctx, estimate); err != nil {
		return nil, err
	}

	s.logger.Info("Estimate created",
		zap.String("estimate_id", estimate.ID.String()),
		zap.String("workspace_id", workspaceID.String()),
		zap.String("user_id", principal.ID.String()))

	return estimate, nil
}

func (s *estimateService) ListByWorkspace(ctx context.Context, principal models.Principal, workspaceID uuid.UUID) ([]*models.Estimate, error) {
	if err := s.guard.AuthorizeWorkspace(ctx, workspaceID, principal); err != nil {
		return nil, err
	}
	return s.estimateRepo.ListByWorkspace(ctx, workspaceID)
}

func (s *estimateService) Get(ctx context.Context, principal models.Principal, id uuid.UUID) (*models.Estimate, error) {
	estimate, err := s.estimateRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Re-check against the estimate's own workspace so guessed IDs from
	// other workspaces are not readable.
	if err := s.guard.AuthorizeWorkspace(ctx, estimate.WorkspaceID, principal); err != nil {
		return nil, err
	}
	return estimate, nil
}

func (s *estimateService) GetFull(ctx context.Context, principal models.Principal, id uuid.UUID) (*models.EstimateFull, error) {
	estimate, err := s.Get(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	columns, err := s.columnRepo.ListByEstimate(ctx, id)
	if err != nil {
		return nil, err
	}
	rowCount, err := s.rowRepo.CountByEstimate(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.EstimateFull{
		Estimate: *estimate,
		Columns:  columns,
		RowCount: rowCount,
	}, nil
}

func (s *estimateService) Update(ctx context.Context, principal models.Principal, id uuid.UUID, input UpdateEstimateInput) (*models.Estimate, error) {
	if err := denyWorker(s.auditor, principal, "estimate", id, "update estimates"); err != nil {
		return nil, err
	}

	estimate, err := s.Get(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	if input.WorkspaceID != nil && *input.WorkspaceID != estimate.WorkspaceID {
		if err := s.guard.AuthorizeWorkspace(ctx, *input.WorkspaceID, principal); err != nil {
			return nil, err
		}
		estimate.WorkspaceID = *input.WorkspaceID
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: estimate name cannot be empty", apperrors.ErrBadRequest)
		}
		estimate.Name = name
	}
	if input.Description != nil {
		estimate.Description = normalizeDescription(input.Description)
	}

	if err := s.estimateRepo.Update(ctx, estimate); err != nil {
		return nil, err
	}
	return estimate, nil
}

func (s *estimateService) SoftDelete(ctx context.Context, principal models.Principal, id uuid.UUID) error {
	if err := denyWorker(s.auditor, principal, "estimate", id, "delete estimates"); err != nil {
		return err
	}

	if _, err := s.Get(ctx, principal, id); err != nil {
		return err
	}
	if err := s.estimateRepo.SoftDelete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Estimate soft-deleted",
		zap.String("estimate_id", id.String()),
		zap.String("user_id", principal.ID.String()))
	return nil
}

var _ EstimateService = (*estimateService)(nil)

func normalizeDescription(d *string) *string {
	if d == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*d)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
