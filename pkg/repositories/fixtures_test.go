//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/estimate-engine/pkg/models"
	"github.com/ekaya-inc/estimate-engine/pkg/testhelpers"
)

// repoTestContext holds a scoped connection and a fresh workspace + estimate.
type repoTestContext struct {
	t        *testing.T
	ctx      context.Context
	userID   uuid.UUID
	ws       *models.Workspace
	estimate *models.Estimate
}

func setupRepoTest(t *testing.T) *repoTestContext {
	t.Helper()
	engineDB := testhelpers.GetEngineDB(t)
	ctx, cleanup := engineDB.Scope(t)
	t.Cleanup(cleanup)

	tc := &repoTestContext{t: t, ctx: ctx, userID: uuid.New()}

	require.NoError(t, NewUserRepository().Upsert(ctx, &models.User{
		ID: tc.userID, Email: "repo-test@example.com", Name: "Repo Test", Role: models.RoleManager,
	}))

	tc.ws = &models.Workspace{Name: "Repo Test Workspace"}
	require.NoError(t, NewWorkspaceRepository().Create(ctx, tc.ws))

	tc.estimate = &models.Estimate{WorkspaceID: tc.ws.ID, CreatedByID: tc.userID, Name: "Repo Test Estimate"}
	require.NoError(t, NewEstimateRepository().Create(ctx, tc.estimate))

	return tc
}

func (tc *repoTestContext) createColumn(name string, order int) *models.EstimateColumn {
	tc.t.Helper()
	col := &models.EstimateColumn{
		EstimateID:  tc.estimate.ID,
		CreatedByID: tc.userID,
		Name:        name,
		DataType:    models.DataTypeString,
		Order:       order,
	}
	require.NoError(tc.t, NewColumnRepository().Create(tc.ctx, col))
	return col
}

func (tc *repoTestContext) createRow(order int) *models.EstimateRow {
	tc.t.Helper()
	row := &models.EstimateRow{EstimateID: tc.estimate.ID, Order: order}
	require.NoError(tc.t, NewRowRepository().Create(tc.ctx, row))
	return row
}
