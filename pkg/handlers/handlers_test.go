package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/apperrors"
	"github.com/ekaya-inc/estimate-engine/pkg/auth"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
	"github.com/ekaya-inc/estimate-engine/pkg/services"
)

var testPrincipal = models.Principal{ID: uuid.New(), Email: "manager@example.com", Role: models.RoleManager}

// withPrincipal stands in for the auth + scope chain.
func withPrincipal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next(w, r.WithContext(auth.WithPrincipal(r.Context(), testPrincipal)))
	}
}

type testServer struct {
	mux         *http.ServeMux
	estimates   *mockEstimateService
	columns     *mockColumnService
	permissions *mockPermissionService
	rows        *mockRowService
	tables      *mockTableService
}

func newTestServer(protect RouteMiddleware) *testServer {
	s := &testServer{
		mux:         http.NewServeMux(),
		estimates:   &mockEstimateService{},
		columns:     &mockColumnService{},
		permissions: &mockPermissionService{},
		rows:        &mockRowService{},
		tables:      &mockTableService{},
	}
	logger := zap.NewNop()
	NewEstimateHandler(s.estimates, logger).RegisterRoutes(s.mux, protect)
	NewColumnHandler(s.columns, s.permissions, logger).RegisterRoutes(s.mux, protect)
	NewRowHandler(s.rows, logger).RegisterRoutes(s.mux, protect)
	NewTableHandler(s.tables, logger).RegisterRoutes(s.mux, protect)
	return s
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.Success)
	if data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// ============================================================================
// Error mapping
// ============================================================================

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{fmt.Errorf("%w: estimate not found", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: role WORKER may not create", apperrors.ErrForbidden), http.StatusForbidden, "forbidden"},
		{fmt.Errorf("%w: order taken", apperrors.ErrConflict), http.StatusConflict, "conflict"},
		{fmt.Errorf("%w: name required", apperrors.ErrBadRequest), http.StatusBadRequest, "bad_request"},
		{apperrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{fmt.Errorf("failed to query: %w", io.ErrUnexpectedEOF), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			status, code := statusForError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestServiceErrorsReachClient(t *testing.T) {
	s := newTestServer(withPrincipal)
	s.estimates.err = fmt.Errorf("%w: role WORKER may not create estimates", apperrors.ErrForbidden)

	rec := s.do(http.MethodPost, "/api/workspaces/"+uuid.NewString()+"/estimates", `{"name":"Kitchen"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "forbidden", body["error"])
	assert.Contains(t, body["message"], "may not create estimates")
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	s := newTestServer(withPrincipal)
	s.tables.err = fmt.Errorf("failed to query cells: connection reset by peer")

	rec := s.do(http.MethodGet, "/api/estimates/"+uuid.NewString()+"/table", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "internal_error", body["error"])
	assert.Equal(t, "Internal server error", body["message"])
}

func TestMissingPrincipalIsUnauthorized(t *testing.T) {
	passthrough := func(next http.HandlerFunc) http.HandlerFunc { return next }
	s := newTestServer(passthrough)

	rec := s.do(http.MethodGet, "/api/estimates/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvalidPathIDs(t *testing.T) {
	s := newTestServer(withPrincipal)

	tests := []struct {
		method, path, code string
	}{
		{http.MethodGet, "/api/workspaces/nope/estimates", "invalid_workspace_id"},
		{http.MethodGet, "/api/estimates/nope", "invalid_estimate_id"},
		{http.MethodGet, "/api/columns/nope", "invalid_column_id"},
		{http.MethodPatch, "/api/permissions/nope", "invalid_permission_id"},
		{http.MethodDelete, "/api/rows/nope", "invalid_row_id"},
		{http.MethodPatch, "/api/cells/nope", "invalid_cell_id"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, `{}`)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec)["error"])
		})
	}
}

// ============================================================================
// Estimates
// ============================================================================

func TestEstimateHandler_Create(t *testing.T) {
	s := newTestServer(withPrincipal)
	s.estimates.estimate = &models.Estimate{ID: uuid.New(), Name: "Kitchen", CreatedByID: testPrincipal.ID}

	rec := s.do(http.MethodPost, "/api/workspaces/"+uuid.NewString()+"/estimates", `{"name":"Kitchen","description":"v1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got models.Estimate
	decodeEnvelope(t, rec, &got)
	assert.Equal(t, "Kitchen", got.Name)
	assert.Equal(t, testPrincipal, s.estimates.lastPrincipal)
	assert.Equal(t, "Kitchen", s.estimates.lastCreate.Name)
	require.NotNil(t, s.estimates.lastCreate.Description)
	assert.Equal(t, "v1", *s.estimates.lastCreate.Description)
}

func TestEstimateHandler_Create_InvalidBody(t *testing.T) {
	s := newTestServer(withPrincipal)

	rec := s.do(http.MethodPost, "/api/workspaces/"+uuid.NewString()+"/estimates", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec)["error"])
}

func TestEstimateHandler_GetFull(t *testing.T) {
	s := newTestServer(withPrincipal)
	s.estimates.estimate = &models.Estimate{Name: "plain"}
	s.estimates.full = &models.EstimateFull{Estimate: models.Estimate{Name: "full"}, RowCount: 3}

	rec := s.do(http.MethodGet, "/api/estimates/"+uuid.NewString()+"?full=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var full models.EstimateFull
	decodeEnvelope(t, rec, &full)
	assert.Equal(t, "full", full.Name)
	assert.Equal(t, 3, full.RowCount)

	rec = s.do(http.MethodGet, "/api/estimates/"+uuid.NewString(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var plain models.Estimate
	decodeEnvelope(t, rec, &plain)
	assert.Equal(t, "plain", plain.Name)

	rec = s.do(http.MethodGet, "/api/estimates/"+uuid.NewString()+"?full=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEstimateHandler_UpdateAndDelete(t *testing.T) {
	s := newTestServer(withPrincipal)
	s.estimates.estimate = &models.Estimate{Name: "Renamed"}
	target := uuid.New()

	rec := s.do(http.MethodPatch, "/api/estimates/"+uuid.NewString(), fmt.Sprintf(`{"name":"Renamed","workspaceId":%q}`, target))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.estimates.lastUpdate.WorkspaceID)
	assert.Equal(t, target, *s.estimates.lastUpdate.WorkspaceID)
	assert.Nil(t, s.estimates.lastUpdate.Description)

	id := uuid.New()
	rec = s.do(http.MethodDelete, "/api/estimates/"+id.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, id, s.estimates.deletedID)
}

// ============================================================================
// Columns and permissions
// ============================================================================

func TestColumnHandler_Create(t *testing.T) {
	s := newTestServer(withPrincipal)
	s.columns.column = &models.EstimateColumn{ID: uuid.New(), Name: "Unit", DataType: models.DataTypeEnum}

	rec := s.do(http.MethodPost, "/api/estimates/"+uuid.NewString()+"/columns",
		`{"name":"Unit","dataType":"ENUM","order":2,"required":true,"allowedValues":["m","kg"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, services.CreateColumnInput{
		Name:          "Unit",
		DataType:      "ENUM",
		Order:         2,
		Required:      true,
		AllowedValues: []string{"m", "kg"},
	}, s.columns.lastCreate)

	s.columns.err = fmt.Errorf("%w: column order 2 is already used", apperrors.ErrConflict)
	rec = s.do(http.MethodPost, "/api/estimates/"+uuid.NewString()+"/columns", `{"name":"Other","dataType":"STRING","order":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestColumnHandler_Update_PartialBody(t *testing.T) {
	s := newTestServer(withPrincipal)
	s.columns.column = &models.EstimateColumn{Name: "Material"}

	rec := s.do(http.MethodPatch, "/api/columns/"+uuid.NewString(), `{"name":"Material","allowedValues":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	in := s.columns.lastUpdate
	require.NotNil(t, in.Name)
	assert.Equal(t, "Material", *in.Name)
	assert.Nil(t, in.Order)
	assert.Nil(t, in.DataType)
	require.NotNil(t, in.AllowedValues)
	assert.Empty(t, *in.AllowedValues)
}

func TestColumnHandler_History(t *testing.T) {
	s := newTestServer(withPrincipal)
	s.columns.history = []*models.ColumnHistoryEntry{
		{ColumnHistory: models.ColumnHistory{Action: models.ColumnActionUpdated, Field: models.StringPtr("name")}},
	}

	rec := s.do(http.MethodGet, "/api/columns/"+uuid.NewString()+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.ColumnHistoryEntry
	decodeEnvelope(t, rec, &history)
	require.Len(t, history, 1)
	assert.Equal(t, "name", *history[0].Field)
}

func TestColumnHandler_Permissions(t *testing.T) {
	s := newTestServer(withPrincipal)
	s.permissions.perm = &models.ColumnRolePermission{ID: uuid.New(), Role: models.RoleWorker, CanView: true}
	s.permissions.effective = models.EffectivePermission{CanView: true}

	rec := s.do(http.MethodPost, "/api/columns/"+uuid.NewString()+"/permissions", `{"role":"WORKER","canView":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, services.CreatePermissionInput{Role: "WORKER", CanView: true}, s.permissions.lastCreate)

	rec = s.do(http.MethodPatch, "/api/permissions/"+uuid.NewString(), `{"canEdit":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, s.permissions.lastUpdate.CanView)
	require.NotNil(t, s.permissions.lastUpdate.CanEdit)
	assert.True(t, *s.permissions.lastUpdate.CanEdit)

	rec = s.do(http.MethodGet, "/api/columns/"+uuid.NewString()+"/permissions/worker/effective", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoleWorker, s.permissions.lastRole)
	var eff models.EffectivePermission
	decodeEnvelope(t, rec, &eff)
	assert.Equal(t, models.EffectivePermission{CanView: true}, eff)

	rec = s.do(http.MethodDelete, "/api/permissions/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ============================================================================
// Rows, cells and table
// ============================================================================

func TestRowHandler_CreateRow(t *testing.T) {
	s := newTestServer(withPrincipal)
	s.rows.row = &models.RowWithCells{EstimateRow: models.EstimateRow{Order: 4}, Cells: []*models.Cell{{}}}

	rec := s.do(http.MethodPost, "/api/estimates/"+uuid.NewString()+"/rows", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, s.rows.lastCreate.Order)

	rec = s.do(http.MethodPost, "/api/estimates/"+uuid.NewString()+"/rows", `{"order":4}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, s.rows.lastCreate.Order)
	assert.Equal(t, 4, *s.rows.lastCreate.Order)

	var row models.RowWithCells
	decodeEnvelope(t, rec, &row)
	assert.Len(t, row.Cells, 1)

	rec = s.do(http.MethodPost, "/api/estimates/"+uuid.NewString()+"/rows", `[`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRowHandler_UpdateCell(t *testing.T) {
	s := newTestServer(withPrincipal)
	s.rows.cell = &models.Cell{Value: models.StringPtr("12")}

	rec := s.do(http.MethodPatch, "/api/cells/"+uuid.NewString(), `{"value":"12","reason":"price change"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.rows.lastUpdate.Value)
	assert.Equal(t, "12", *s.rows.lastUpdate.Value)
	assert.Equal(t, "price change", *s.rows.lastUpdate.Reason)

	rec = s.do(http.MethodPatch, "/api/cells/"+uuid.NewString(), `{"value":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, s.rows.lastUpdate.Value)

	s.rows.err = fmt.Errorf("%w: role WORKER may not edit column", apperrors.ErrForbidden)
	rec = s.do(http.MethodPatch, "/api/cells/"+uuid.NewString(), `{"value":"1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRowHandler_DeleteAndHistory(t *testing.T) {
	s := newTestServer(withPrincipal)
	s.rows.history = []*models.CellHistoryEntry{{CellHistory: models.CellHistory{NewValue: models.StringPtr("5")}}}

	rec := s.do(http.MethodDelete, "/api/rows/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/cells/"+uuid.NewString()+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.CellHistoryEntry
	decodeEnvelope(t, rec, &history)
	require.Len(t, history, 1)
	assert.Equal(t, "5", *history[0].NewValue)

	s.rows.err = fmt.Errorf("%w: row not found", apperrors.ErrNotFound)
	rec = s.do(http.MethodDelete, "/api/rows/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTableHandler_Table(t *testing.T) {
	s := newTestServer(withPrincipal)
	colID := uuid.New()
	s.tables.table = &models.TableData{
		Columns: []*models.TableColumn{{ID: colID, Name: "Item", CanEdit: true}},
		Rows:    []*models.TableRow{{ID: uuid.New(), Cells: []*models.Cell{{ColumnID: colID}}}},
	}

	rec := s.do(http.MethodGet, "/api/estimates/"+uuid.NewString()+"/table", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var table models.TableData
	decodeEnvelope(t, rec, &table)
	require.Len(t, table.Columns, 1)
	assert.Equal(t, "Item", table.Columns[0].Name)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, colID, table.Rows[0].Cells[0].ColumnID)
}

func TestTableHandler_Export(t *testing.T) {
	s := newTestServer(withPrincipal)
	s.tables.export = &services.TableExport{
		FileName:    "Смета.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        []byte("PK-fake"),
	}

	rec := s.do(http.MethodGet, "/api/estimates/"+uuid.NewString()+"/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, s.tables.export.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "7", rec.Header().Get("Content-Length"))
	assert.Equal(t, "PK-fake", rec.Body.String())

	disposition := rec.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(disposition, "attachment;"), disposition)
	assert.Contains(t, disposition, "filename*=utf-8''")
}
