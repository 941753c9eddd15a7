package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/estimate-engine/pkg/models"
	"github.com/ekaya-inc/estimate-engine/pkg/services"
)

// ============================================================================
// Mock Implementations
// ============================================================================

type mockEstimateService struct {
	estimate  *models.Estimate
	full      *models.EstimateFull
	estimates []*models.Estimate
	err       error

	lastPrincipal models.Principal
	lastCreate    services.CreateEstimateInput
	lastUpdate    services.UpdateEstimateInput
	deletedID     uuid.UUID
}

func (m *mockEstimateService) Create(_ context.Context, p models.Principal, _ uuid.UUID, input services.CreateEstimateInput) (*models.Estimate, error) {
	m.lastPrincipal = p
	m.lastCreate = input
	return m.estimate, m.err
}

func (m *mockEstimateService) ListByWorkspace(_ context.Context, p models.Principal, _ uuid.UUID) ([]*models.Estimate, error) {
	m.lastPrincipal = p
	return m.estimates, m.err
}

func (m *mockEstimateService) Get(_ context.Context, p models.Principal, _ uuid.UUID) (*models.Estimate, error) {
	m.lastPrincipal = p
	return m.estimate, m.err
}

func (m *mockEstimateService) GetFull(_ context.Context, p models.Principal, _ uuid.UUID) (*models.EstimateFull, error) {
	m.lastPrincipal = p
	return m.full, m.err
}

func (m *mockEstimateService) Update(_ context.Context, p models.Principal, _ uuid.UUID, input services.UpdateEstimateInput) (*models.Estimate, error) {
	m.lastPrincipal = p
	m.lastUpdate = input
	return m.estimate, m.err
}

func (m *mockEstimateService) SoftDelete(_ context.Context, p models.Principal, id uuid.UUID) error {
	m.lastPrincipal = p
	m.deletedID = id
	return m.err
}

type mockColumnService struct {
	column  *models.EstimateColumn
	full    *models.ColumnFull
	history []*models.ColumnHistoryEntry
	err     error

	lastCreate services.CreateColumnInput
	lastUpdate services.UpdateColumnInput
}

func (m *mockColumnService) Create(_ context.Context, _ models.Principal, _ uuid.UUID, input services.CreateColumnInput) (*models.EstimateColumn, error) {
	m.lastCreate = input
	return m.column, m.err
}

func (m *mockColumnService) Update(_ context.Context, _ models.Principal, _ uuid.UUID, input services.UpdateColumnInput) (*models.EstimateColumn, error) {
	m.lastUpdate = input
	return m.column, m.err
}

func (m *mockColumnService) Delete(context.Context, models.Principal, uuid.UUID) error {
	return m.err
}

func (m *mockColumnService) GetFull(context.Context, models.Principal, uuid.UUID) (*models.ColumnFull, error) {
	return m.full, m.err
}

func (m *mockColumnService) GetHistory(context.Context, models.Principal, uuid.UUID) ([]*models.ColumnHistoryEntry, error) {
	return m.history, m.err
}

type mockPermissionService struct {
	perm      *models.ColumnRolePermission
	effective models.EffectivePermission
	err       error

	lastCreate services.CreatePermissionInput
	lastUpdate services.UpdatePermissionInput
	lastRole   models.Role
}

func (m *mockPermissionService) Create(_ context.Context, _ models.Principal, _ uuid.UUID, input services.CreatePermissionInput) (*models.ColumnRolePermission, error) {
	m.lastCreate = input
	return m.perm, m.err
}

func (m *mockPermissionService) Update(_ context.Context, _ models.Principal, _ uuid.UUID, input services.UpdatePermissionInput) (*models.ColumnRolePermission, error) {
	m.lastUpdate = input
	return m.perm, m.err
}

func (m *mockPermissionService) Delete(context.Context, models.Principal, uuid.UUID) error {
	return m.err
}

func (m *mockPermissionService) GetEffectivePermission(_ context.Context, _ models.Principal, _ uuid.UUID, role models.Role) (models.EffectivePermission, error) {
	m.lastRole = role
	return m.effective, m.err
}

type mockRowService struct {
	row     *models.RowWithCells
	cell    *models.Cell
	history []*models.CellHistoryEntry
	err     error

	lastCreate services.CreateRowInput
	lastUpdate services.UpdateCellInput
}

func (m *mockRowService) CreateRow(_ context.Context, _ models.Principal, _ uuid.UUID, input services.CreateRowInput) (*models.RowWithCells, error) {
	m.lastCreate = input
	return m.row, m.err
}

func (m *mockRowService) DeleteRow(context.Context, models.Principal, uuid.UUID) error {
	return m.err
}

func (m *mockRowService) UpdateCell(_ context.Context, _ models.Principal, _ uuid.UUID, input services.UpdateCellInput) (*models.Cell, error) {
	m.lastUpdate = input
	return m.cell, m.err
}

func (m *mockRowService) GetCellHistory(context.Context, models.Principal, uuid.UUID) ([]*models.CellHistoryEntry, error) {
	return m.history, m.err
}

type mockTableService struct {
	table  *models.TableData
	export *services.TableExport
	err    error
}

func (m *mockTableService) GetTableData(context.Context, models.Principal, uuid.UUID) (*models.TableData, error) {
	return m.table, m.err
}

func (m *mockTableService) ExportXLSX(context.Context, models.Principal, uuid.UUID) (*services.TableExport, error) {
	return m.export, m.err
}

var (
	_ services.EstimateService   = (*mockEstimateService)(nil)
	_ services.ColumnService     = (*mockColumnService)(nil)
	_ services.PermissionService = (*mockPermissionService)(nil)
	_ services.RowService        = (*mockRowService)(nil)
	_ services.TableService      = (*mockTableService)(nil)
)
