package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/estimate-engine/pkg/apperrors"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
	"github.com/ekaya-inc/estimate-engine/pkg/repositories"
)

// fakeStore is an in-memory stand-in for the database shared by the fake
// repositories below. Reads return copies so services cannot mutate stored
// rows without going through a repository.
type fakeStore struct {
	mu sync.Mutex

	users         map[uuid.UUID]*models.User
	workspaces    map[uuid.UUID]*models.Workspace
	members       map[[2]uuid.UUID]bool
	estimates     map[uuid.UUID]*models.Estimate
	columns       map[uuid.UUID]*models.EstimateColumn
	permissions   map[uuid.UUID]*models.ColumnRolePermission
	rows          map[uuid.UUID]*models.EstimateRow
	cells         map[uuid.UUID]*models.Cell
	columnHistory []*models.ColumnHistory
	cellHistory   []*models.CellHistory

	now time.Time

	// permissionLookups counts FindByColumnAndRole calls.
	permissionLookups int
	// afterPermissionLookup runs once, after FindByColumnAndRole has read
	// its record and before it returns.
	afterPermissionLookup func()
	// cellLocks counts GetByIDForUpdate calls.
	cellLocks int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[uuid.UUID]*models.User),
		workspaces:  make(map[uuid.UUID]*models.Workspace),
		members:     make(map[[2]uuid.UUID]bool),
		estimates:   make(map[uuid.UUID]*models.Estimate),
		columns:     make(map[uuid.UUID]*models.EstimateColumn),
		permissions: make(map[uuid.UUID]*models.ColumnRolePermission),
		rows:        make(map[uuid.UUID]*models.EstimateRow),
		cells:       make(map[uuid.UUID]*models.Cell),
		now:         time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp. Callers hold mu.
func (s *fakeStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s not found", apperrors.ErrNotFound, what)
}

func (s *fakeStore) columnHistoryFor(columnID uuid.UUID) []*models.ColumnHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ColumnHistory
	for _, h := range s.columnHistory {
		if h.ColumnID == columnID {
			c := *h
			out = append(out, &c)
		}
	}
	return out
}

func (s *fakeStore) cellHistoryFor(cellID uuid.UUID) []*models.CellHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.CellHistory
	for _, h := range s.cellHistory {
		if h.CellID == cellID {
			c := *h
			out = append(out, &c)
		}
	}
	return out
}

func (s *fakeStore) cellsOfRow(rowID uuid.UUID) []*models.Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Cell
	for _, c := range s.cells {
		if c.RowID == rowID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out
}

func (s *fakeStore) cellAt(rowID, columnID uuid.UUID) *models.Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cells {
		if c.RowID == rowID && c.ColumnID == columnID {
			cp := *c
			return &cp
		}
	}
	return nil
}

// --- users ---

type fakeUserRepo struct{ *fakeStore }

func (r fakeUserRepo) Upsert(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *user
	if existing, ok := r.users[user.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
		if stored.Name == "" {
			stored.Name = existing.Name
		}
	} else {
		stored.CreatedAt = r.tick()
	}
	stored.UpdatedAt = r.tick()
	r.users[user.ID] = &stored
	return nil
}

func (r fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, notFound("user")
	}
	c := *u
	return &c, nil
}

func (r fakeUserRepo) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]*models.User)
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			c := *u
			out[id] = &c
		}
	}
	return out, nil
}

// --- workspaces ---

type fakeWorkspaceRepo struct{ *fakeStore }

func (r fakeWorkspaceRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[id]
	if !ok {
		return nil, notFound("workspace")
	}
	c := *ws
	return &c, nil
}

func (r fakeWorkspaceRepo) IsMember(_ context.Context, workspaceID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[[2]uuid.UUID{workspaceID, userID}], nil
}

func (r fakeWorkspaceRepo) Create(_ context.Context, ws *models.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}
	ws.CreatedAt = r.tick()
	ws.UpdatedAt = ws.CreatedAt
	c := *ws
	r.workspaces[ws.ID] = &c
	return nil
}

func (r fakeWorkspaceRepo) AddMember(_ context.Context, workspaceID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[[2]uuid.UUID{workspaceID, userID}] = true
	return nil
}

// --- estimates ---

type fakeEstimateRepo struct{ *fakeStore }

func (r fakeEstimateRepo) Create(_ context.Context, estimate *models.Estimate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	estimate.ID = uuid.New()
	estimate.CreatedAt = r.tick()
	estimate.UpdatedAt = estimate.CreatedAt
	c := *estimate
	r.estimates[estimate.ID] = &c
	return nil
}

func (r fakeEstimateRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Estimate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.estimates[id]
	if !ok || e.DeletedAt != nil {
		return nil, notFound("estimate")
	}
	c := *e
	return &c, nil
}

func (r fakeEstimateRepo) ListByWorkspace(_ context.Context, workspaceID uuid.UUID) ([]*models.Estimate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Estimate, 0)
	for _, e := range r.estimates {
		if e.WorkspaceID == workspaceID && e.DeletedAt == nil {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r fakeEstimateRepo) Update(_ context.Context, estimate *models.Estimate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.estimates[estimate.ID]
	if !ok || e.DeletedAt != nil {
		return notFound("estimate")
	}
	e.WorkspaceID = estimate.WorkspaceID
	e.Name = estimate.Name
	e.Description = estimate.Description
	e.UpdatedAt = r.tick()
	estimate.UpdatedAt = e.UpdatedAt
	return nil
}

func (r fakeEstimateRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.estimates[id]
	if !ok || e.DeletedAt != nil {
		return notFound("estimate")
	}
	now := r.tick()
	e.DeletedAt = &now
	return nil
}

func (r fakeEstimateRepo) GetWorkspaceID(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.estimates[id]
	if !ok {
		return uuid.Nil, notFound("estimate")
	}
	return e.WorkspaceID, nil
}

// --- columns ---

type fakeColumnRepo struct{ *fakeStore }

func (r fakeColumnRepo) orderTakenLocked(estimateID uuid.UUID, order int, excludeID uuid.UUID) bool {
	for _, c := range r.columns {
		if c.EstimateID == estimateID && c.Order == order && c.ID != excludeID {
			return true
		}
	}
	return false
}

func (r fakeColumnRepo) Create(_ context.Context, column *models.EstimateColumn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.orderTakenLocked(column.EstimateID, column.Order, uuid.Nil) {
		return fmt.Errorf("%w: column order already exists", apperrors.ErrConflict)
	}
	column.ID = uuid.New()
	column.CreatedAt = r.tick()
	column.UpdatedAt = column.CreatedAt
	c := *column
	r.columns[column.ID] = &c
	return nil
}

func (r fakeColumnRepo) GetByID(_ context.Context, id uuid.UUID) (*models.EstimateColumn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.columns[id]
	if !ok {
		return nil, notFound("column")
	}
	cp := *c
	return &cp, nil
}

func (r fakeColumnRepo) ListByEstimate(_ context.Context, estimateID uuid.UUID) ([]*models.EstimateColumn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(estimateID), nil
}

func (r fakeColumnRepo) listLocked(estimateID uuid.UUID) []*models.EstimateColumn {
	out := make([]*models.EstimateColumn, 0)
	for _, c := range r.columns {
		if c.EstimateID == estimateID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (r fakeColumnRepo) Update(_ context.Context, column *models.EstimateColumn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.columns[column.ID]; !ok {
		return notFound("column")
	}
	if r.orderTakenLocked(column.EstimateID, column.Order, column.ID) {
		return fmt.Errorf("%w: column order already exists", apperrors.ErrConflict)
	}
	column.UpdatedAt = r.tick()
	c := *column
	r.columns[column.ID] = &c
	return nil
}

func (r fakeColumnRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.columns[id]; !ok {
		return notFound("column")
	}
	delete(r.columns, id)
	for pid, p := range r.permissions {
		if p.ColumnID == id {
			delete(r.permissions, pid)
		}
	}
	kept := r.columnHistory[:0]
	for _, h := range r.columnHistory {
		if h.ColumnID != id {
			kept = append(kept, h)
		}
	}
	r.columnHistory = kept
	for cid, c := range r.cells {
		if c.ColumnID == id {
			r.deleteCellLocked(cid)
		}
	}
	return nil
}

func (r fakeColumnRepo) OrderTaken(_ context.Context, estimateID uuid.UUID, order int, excludeID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orderTakenLocked(estimateID, order, excludeID), nil
}

// deleteCellLocked removes a cell and its history. Callers hold mu.
func (s *fakeStore) deleteCellLocked(cellID uuid.UUID) {
	delete(s.cells, cellID)
	kept := s.cellHistory[:0]
	for _, h := range s.cellHistory {
		if h.CellID != cellID {
			kept = append(kept, h)
		}
	}
	s.cellHistory = kept
}

// --- permissions ---

type fakePermissionRepo struct{ *fakeStore }

func (r fakePermissionRepo) findLocked(columnID uuid.UUID, role models.Role) *models.ColumnRolePermission {
	for _, p := range r.permissions {
		if p.ColumnID == columnID && p.Role == role {
			return p
		}
	}
	return nil
}

func (r fakePermissionRepo) Create(_ context.Context, perm *models.ColumnRolePermission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findLocked(perm.ColumnID, perm.Role) != nil {
		return fmt.Errorf("%w: permission already exists", apperrors.ErrConflict)
	}
	perm.ID = uuid.New()
	perm.CreatedAt = r.tick()
	perm.UpdatedAt = perm.CreatedAt
	c := *perm
	r.permissions[perm.ID] = &c
	return nil
}

func (r fakePermissionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.ColumnRolePermission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.permissions[id]
	if !ok {
		return nil, notFound("permission")
	}
	c := *p
	return &c, nil
}

func (r fakePermissionRepo) FindByColumnAndRole(_ context.Context, columnID uuid.UUID, role models.Role) (*models.ColumnRolePermission, error) {
	r.mu.Lock()
	r.permissionLookups++
	var found *models.ColumnRolePermission
	if p := r.findLocked(columnID, role); p != nil {
		c := *p
		found = &c
	}
	hook := r.afterPermissionLookup
	r.afterPermissionLookup = nil
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return found, nil
}

func (r fakePermissionRepo) ListByColumn(_ context.Context, columnID uuid.UUID) ([]*models.ColumnRolePermission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.ColumnRolePermission, 0)
	for _, p := range r.permissions {
		if p.ColumnID == columnID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

func (r fakePermissionRepo) ListByColumnsAndRole(_ context.Context, columnIDs []uuid.UUID, role models.Role) ([]*models.ColumnRolePermission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(columnIDs))
	for _, id := range columnIDs {
		wanted[id] = true
	}
	out := make([]*models.ColumnRolePermission, 0)
	for _, p := range r.permissions {
		if wanted[p.ColumnID] && p.Role == role {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r fakePermissionRepo) Update(_ context.Context, perm *models.ColumnRolePermission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.permissions[perm.ID]
	if !ok {
		return notFound("permission")
	}
	p.CanView = perm.CanView
	p.CanEdit = perm.CanEdit
	p.CanCreate = perm.CanCreate
	p.UpdatedAt = r.tick()
	perm.UpdatedAt = p.UpdatedAt
	return nil
}

func (r fakePermissionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.permissions[id]; !ok {
		return notFound("permission")
	}
	delete(r.permissions, id)
	return nil
}

// --- history ---

type fakeHistoryRepo struct {
	*fakeStore
	columnErr error
}

func (r fakeHistoryRepo) AppendColumnHistory(_ context.Context, entries ...*models.ColumnHistory) error {
	if r.columnErr != nil {
		return r.columnErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		e.ID = uuid.New()
		e.CreatedAt = r.tick()
		c := *e
		r.columnHistory = append(r.columnHistory, &c)
	}
	return nil
}

func (r fakeHistoryRepo) ListColumnHistory(_ context.Context, columnID uuid.UUID) ([]*models.ColumnHistory, error) {
	all := r.columnHistoryFor(columnID)
	out := make([]*models.ColumnHistory, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (r fakeHistoryRepo) AppendCellHistory(_ context.Context, entry *models.CellHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = r.tick()
	c := *entry
	r.cellHistory = append(r.cellHistory, &c)
	return nil
}

func (r fakeHistoryRepo) ListCellHistory(_ context.Context, cellID uuid.UUID) ([]*models.CellHistory, error) {
	all := r.cellHistoryFor(cellID)
	out := make([]*models.CellHistory, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// --- rows ---

type fakeRowRepo struct{ *fakeStore }

func (r fakeRowRepo) Create(_ context.Context, row *models.EstimateRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row.ID = uuid.New()
	row.CreatedAt = r.tick()
	row.UpdatedAt = row.CreatedAt
	c := *row
	r.rows[row.ID] = &c
	return nil
}

func (r fakeRowRepo) GetByID(_ context.Context, id uuid.UUID) (*models.EstimateRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, notFound("row")
	}
	c := *row
	return &c, nil
}

func (r fakeRowRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return notFound("row")
	}
	delete(r.rows, id)
	for cid, c := range r.cells {
		if c.RowID == id {
			r.deleteCellLocked(cid)
		}
	}
	return nil
}

func (r fakeRowRepo) NextOrder(_ context.Context, estimateID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := 0
	for _, row := range r.rows {
		if row.EstimateID == estimateID && row.Order+1 > next {
			next = row.Order + 1
		}
	}
	return next, nil
}

func (r fakeRowRepo) ListByEstimate(_ context.Context, estimateID uuid.UUID) ([]*models.EstimateRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.EstimateRow, 0)
	for _, row := range r.rows {
		if row.EstimateID == estimateID {
			c := *row
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r fakeRowRepo) CountByEstimate(ctx context.Context, estimateID uuid.UUID) (int, error) {
	rows, err := r.ListByEstimate(ctx, estimateID)
	return len(rows), err
}

// --- cells ---

type fakeCellRepo struct{ *fakeStore }

func (r fakeCellRepo) newCellLocked(rowID, columnID uuid.UUID) *models.Cell {
	cell := &models.Cell{ID: uuid.New(), RowID: rowID, ColumnID: columnID, CreatedAt: r.tick()}
	cell.UpdatedAt = cell.CreatedAt
	r.cells[cell.ID] = cell
	c := *cell
	return &c
}

func (r fakeCellRepo) CreateForRow(_ context.Context, rowID, estimateID uuid.UUID) ([]*models.Cell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Cell, 0)
	for _, col := range fakeColumnRepo(r).listLocked(estimateID) {
		out = append(out, r.newCellLocked(rowID, col.ID))
	}
	return out, nil
}

func (r fakeCellRepo) CreateForColumn(_ context.Context, columnID, estimateID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.EstimateID != estimateID {
			continue
		}
		exists := false
		for _, c := range r.cells {
			if c.RowID == row.ID && c.ColumnID == columnID {
				exists = true
				break
			}
		}
		if !exists {
			r.newCellLocked(row.ID, columnID)
			n++
		}
	}
	return n, nil
}

func (r fakeCellRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Cell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cells[id]
	if !ok {
		return nil, notFound("cell")
	}
	cp := *c
	return &cp, nil
}

func (r fakeCellRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Cell, error) {
	r.mu.Lock()
	r.cellLocks++
	r.mu.Unlock()
	return r.GetByID(ctx, id)
}

func (r fakeCellRepo) UpdateValue(_ context.Context, id uuid.UUID, value *string) (*models.Cell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cells[id]
	if !ok {
		return nil, notFound("cell")
	}
	if value != nil {
		v := *value
		c.Value = &v
	} else {
		c.Value = nil
	}
	c.UpdatedAt = r.tick()
	cp := *c
	return &cp, nil
}

func (r fakeCellRepo) ListByRowsAndColumns(_ context.Context, rowIDs, columnIDs []uuid.UUID) ([]*models.Cell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rowSet := make(map[uuid.UUID]bool, len(rowIDs))
	for _, id := range rowIDs {
		rowSet[id] = true
	}
	colSet := make(map[uuid.UUID]bool, len(columnIDs))
	for _, id := range columnIDs {
		colSet[id] = true
	}
	out := make([]*models.Cell, 0)
	for _, c := range r.cells {
		if rowSet[c.RowID] && colSet[c.ColumnID] {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := r.rows[out[i].RowID], r.rows[out[j].RowID]
		if ri.Order != rj.Order {
			return ri.Order < rj.Order
		}
		if !ri.CreatedAt.Equal(rj.CreatedAt) {
			return ri.CreatedAt.Before(rj.CreatedAt)
		}
		return r.columns[out[i].ColumnID].Order < r.columns[out[j].ColumnID].Order
	})
	return out, nil
}

// fakeTxRunner runs transactions one at a time and counts them.
type fakeTxRunner struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return fn(ctx)
}

var (
	_ repositories.UserRepository       = fakeUserRepo{}
	_ repositories.WorkspaceRepository  = fakeWorkspaceRepo{}
	_ repositories.EstimateRepository   = fakeEstimateRepo{}
	_ repositories.ColumnRepository     = fakeColumnRepo{}
	_ repositories.PermissionRepository = fakePermissionRepo{}
	_ repositories.HistoryRepository    = fakeHistoryRepo{}
	_ repositories.RowRepository        = fakeRowRepo{}
	_ repositories.CellRepository       = fakeCellRepo{}
)
