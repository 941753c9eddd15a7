package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/estimate-engine/pkg/audit"
	"github.com/ekaya-inc/estimate-engine/pkg/cache"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
)

// testEnv wires every service over one fakeStore. The workspace has the
// manager and worker as members; the admin is not a member.
type testEnv struct {
	ctx   context.Context
	store *fakeStore
	tx    *fakeTxRunner
	logs  *observer.ObservedLogs

	guard       AccessGuard
	users       UserService
	estimates   EstimateService
	columns     ColumnService
	permissions PermissionService
	rows        RowService
	tables      TableService

	admin     models.Principal
	manager   models.Principal
	worker    models.Principal
	outsider  models.Principal
	workspace *models.Workspace
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithCache(t, cache.NewNoopPermissionCache())
}

func newTestEnvWithCache(t *testing.T, permCache cache.PermissionCache) *testEnv {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	auditor := audit.NewSecurityAuditor(logger)

	store := newFakeStore()
	tx := &fakeTxRunner{}

	userRepo := fakeUserRepo{store}
	workspaceRepo := fakeWorkspaceRepo{store}
	estimateRepo := fakeEstimateRepo{store}
	columnRepo := fakeColumnRepo{store}
	permissionRepo := fakePermissionRepo{store}
	historyRepo := fakeHistoryRepo{fakeStore: store}
	rowRepo := fakeRowRepo{store}
	cellRepo := fakeCellRepo{store}

	env := &testEnv{
		ctx:      context.Background(),
		store:    store,
		tx:       tx,
		logs:     logs,
		admin:    models.Principal{ID: uuid.New(), Email: "admin@example.com", Role: models.RoleAdmin},
		manager:  models.Principal{ID: uuid.New(), Email: "manager@example.com", Role: models.RoleManager},
		worker:   models.Principal{ID: uuid.New(), Email: "worker@example.com", Role: models.RoleWorker},
		outsider: models.Principal{ID: uuid.New(), Email: "outsider@example.com", Role: models.RoleManager},
	}

	env.guard = NewAccessGuard(workspaceRepo, estimateRepo, logger)
	env.users = NewUserService(userRepo, logger)
	env.estimates = NewEstimateService(env.guard, estimateRepo, columnRepo, rowRepo, auditor, logger)
	env.columns = NewColumnService(env.guard, tx, columnRepo, permissionRepo, cellRepo, historyRepo, env.users, permCache, auditor, logger)
	env.permissions = NewPermissionService(env.guard, tx, columnRepo, permissionRepo, historyRepo, permCache, auditor, logger)
	env.rows = NewRowService(env.guard, tx, columnRepo, rowRepo, cellRepo, permissionRepo, historyRepo, env.users, permCache, auditor, logger)
	env.tables = NewTableService(env.guard, columnRepo, permissionRepo, rowRepo, cellRepo, "Estimate", logger)

	for _, p := range []models.Principal{env.admin, env.manager, env.worker, env.outsider} {
		require.NoError(t, env.users.Sync(env.ctx, p, p.Email[:len(p.Email)-len("@example.com")]))
	}

	env.workspace = env.addWorkspace(t, "Main", env.manager, env.worker)
	return env
}

func (e *testEnv) addWorkspace(t *testing.T, name string, members ...models.Principal) *models.Workspace {
	t.Helper()
	repo := fakeWorkspaceRepo{e.store}
	ws := &models.Workspace{Name: name}
	require.NoError(t, repo.Create(e.ctx, ws))
	for _, m := range members {
		require.NoError(t, repo.AddMember(e.ctx, ws.ID, m.ID))
	}
	return ws
}

func (e *testEnv) createEstimate(t *testing.T) *models.Estimate {
	t.Helper()
	est, err := e.estimates.Create(e.ctx, e.manager, e.workspace.ID, CreateEstimateInput{Name: "Kitchen"})
	require.NoError(t, err)
	return est
}

func (e *testEnv) createColumn(t *testing.T, estimateID uuid.UUID, name string, order int) *models.EstimateColumn {
	t.Helper()
	col, err := e.columns.Create(e.ctx, e.manager, estimateID, CreateColumnInput{
		Name:     name,
		DataType: string(models.DataTypeString),
		Order:    order,
	})
	require.NoError(t, err)
	return col
}

func (e *testEnv) setPermission(t *testing.T, columnID uuid.UUID, role models.Role, canView, canEdit bool) *models.ColumnRolePermission {
	t.Helper()
	perm, err := e.permissions.Create(e.ctx, e.admin, columnID, CreatePermissionInput{
		Role:    string(role),
		CanView: canView,
		CanEdit: canEdit,
	})
	require.NoError(t, err)
	return perm
}

func (e *testEnv) createRow(t *testing.T, estimateID uuid.UUID) *models.RowWithCells {
	t.Helper()
	row, err := e.rows.CreateRow(e.ctx, e.manager, estimateID, CreateRowInput{})
	require.NoError(t, err)
	return row
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }

func (e *testEnv) principal(name string) models.Principal {
	switch name {
	case "admin":
		return e.admin
	case "manager":
		return e.manager
	case "worker":
		return e.worker
	default:
		return e.outsider
	}
}
