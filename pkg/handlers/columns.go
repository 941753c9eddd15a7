package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/models"
	"github.com/ekaya-inc/estimate-engine/pkg/services"
)

// ColumnHandler handles column schema and column permission HTTP requests.
type ColumnHandler struct {
	columnService     services.ColumnService
	permissionService services.PermissionService
	logger            *zap.Logger
}

// NewColumnHandler creates a new column handler.
func NewColumnHandler(
	columnService services.ColumnService,
	permissionService services.PermissionService,
	logger *zap.Logger,
) *ColumnHandler {
	return &ColumnHandler{
		columnService:     columnService,
		permissionService: permissionService,
		logger:            logger,
	}
}

// RegisterRoutes registers the column handler's routes on the given mux.
func (h *ColumnHandler) RegisterRoutes(mux *http.ServeMux, protect RouteMiddleware) {
	mux.HandleFunc("POST /api/estimates/{eid}/columns", protect(h.Create))
	mux.HandleFunc("GET /api/columns/{cid}", protect(h.Get))
	mux.HandleFunc("PATCH /api/columns/{cid}", protect(h.Update))
	mux.HandleFunc("DELETE /api/columns/{cid}", protect(h.Delete))
	mux.HandleFunc("GET /api/columns/{cid}/history", protect(h.History))

	mux.HandleFunc("POST /api/columns/{cid}/permissions", protect(h.CreatePermission))
	mux.HandleFunc("GET /api/columns/{cid}/permissions/{role}/effective", protect(h.EffectivePermission))
	mux.HandleFunc("PATCH /api/permissions/{permid}", protect(h.UpdatePermission))
	mux.HandleFunc("DELETE /api/permissions/{permid}", protect(h.DeletePermission))
}

// Create handles POST /api/estimates/{eid}/columns
func (h *ColumnHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	estimateID, ok := ParseEstimateID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.CreateColumnInput
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	column, err := h.columnService.Create(r.Context(), principal, estimateID, req)
	if err != nil {
		writeServiceError(w, r, err, "create_column", h.logger)
		return
	}
	writeData(w, http.StatusCreated, column, h.logger)
}

// Get handles GET /api/columns/{cid}
func (h *ColumnHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	columnID, ok := ParseColumnID(w, r, h.logger)
	if !ok {
		return
	}

	column, err := h.columnService.GetFull(r.Context(), principal, columnID)
	if err != nil {
		writeServiceError(w, r, err, "get_column", h.logger)
		return
	}
	writeData(w, http.StatusOK, column, h.logger)
}

// Update handles PATCH /api/columns/{cid}
func (h *ColumnHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	columnID, ok := ParseColumnID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.UpdateColumnInput
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	column, err := h.columnService.Update(r.Context(), principal, columnID, req)
	if err != nil {
		writeServiceError(w, r, err, "update_column", h.logger)
		return
	}
	writeData(w, http.StatusOK, column, h.logger)
}

// Delete handles DELETE /api/columns/{cid}
func (h *ColumnHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	columnID, ok := ParseColumnID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.columnService.Delete(r.Context(), principal, columnID); err != nil {
		writeServiceError(w, r, err, "delete_column", h.logger)
		return
	}
	writeData(w, http.StatusOK, nil, h.logger)
}

// History handles GET /api/columns/{cid}/history
func (h *ColumnHandler) History(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	columnID, ok := ParseColumnID(w, r, h.logger)
	if !ok {
		return
	}

	history, err := h.columnService.GetHistory(r.Context(), principal, columnID)
	if err != nil {
		writeServiceError(w, r, err, "column_history", h.logger)
		return
	}
	writeData(w, http.StatusOK, history, h.logger)
}

// CreatePermission handles POST /api/columns/{cid}/permissions
func (h *ColumnHandler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	columnID, ok := ParseColumnID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.CreatePermissionInput
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	perm, err := h.permissionService.Create(r.Context(), principal, columnID, req)
	if err != nil {
		writeServiceError(w, r, err, "create_permission", h.logger)
		return
	}
	writeData(w, http.StatusCreated, perm, h.logger)
}

// EffectivePermission handles GET /api/columns/{cid}/permissions/{role}/effective
func (h *ColumnHandler) EffectivePermission(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	columnID, ok := ParseColumnID(w, r, h.logger)
	if !ok {
		return
	}

	role := models.Role(strings.ToUpper(r.PathValue("role")))
	perm, err := h.permissionService.GetEffectivePermission(r.Context(), principal, columnID, role)
	if err != nil {
		writeServiceError(w, r, err, "effective_permission", h.logger)
		return
	}
	writeData(w, http.StatusOK, perm, h.logger)
}

// UpdatePermission handles PATCH /api/permissions/{permid}
func (h *ColumnHandler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	permissionID, ok := ParsePermissionID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.UpdatePermissionInput
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	perm, err := h.permissionService.Update(r.Context(), principal, permissionID, req)
	if err != nil {
		writeServiceError(w, r, err, "update_permission", h.logger)
		return
	}
	writeData(w, http.StatusOK, perm, h.logger)
}

// DeletePermission handles DELETE /api/permissions/{permid}
func (h *ColumnHandler) DeletePermission(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	permissionID, ok := ParsePermissionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.permissionService.Delete(r.Context(), principal, permissionID); err != nil {
		writeServiceError(w, r, err, "delete_permission", h.logger)
		return
	}
	writeData(w, http.StatusOK, nil, h.logger)
}
