package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/services"
)

// RowHandler handles row and cell HTTP requests.
type RowHandler struct {
	rowService services.RowService
	logger     *zap.Logger
}

// NewRowHandler creates a new row handler.
func NewRowHandler(rowService services.RowService, logger *zap.Logger) *RowHandler {
	return &RowHandler{
		rowService: rowService,
		logger:     logger,
	}
}

// RegisterRoutes registers the row handler's routes on the given mux.
func (h *RowHandler) RegisterRoutes(mux *http.ServeMux, protect RouteMiddleware) {
	mux.HandleFunc("POST /api/estimates/{eid}/rows", protect(h.CreateRow))
	mux.HandleFunc("DELETE /api/rows/{rid}", protect(h.DeleteRow))
	mux.HandleFunc("PATCH /api/cells/{cellid}", protect(h.UpdateCell))
	mux.HandleFunc("GET /api/cells/{cellid}/history", protect(h.CellHistory))
}

// CreateRow handles POST /api/estimates/{eid}/rows. The body is optional.
func (h *RowHandler) CreateRow(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	estimateID, ok := ParseEstimateID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.CreateRowInput
	if !decodeOptionalBody(w, r, &req, h.logger) {
		return
	}

	row, err := h.rowService.CreateRow(r.Context(), principal, estimateID, req)
	if err != nil {
		writeServiceError(w, r, err, "create_row", h.logger)
		return
	}
	writeData(w, http.StatusCreated, row, h.logger)
}

// DeleteRow handles DELETE /api/rows/{rid}
func (h *RowHandler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	rowID, ok := ParseRowID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.rowService.DeleteRow(r.Context(), principal, rowID); err != nil {
		writeServiceError(w, r, err, "delete_row", h.logger)
		return
	}
	writeData(w, http.StatusOK, nil, h.logger)
}

// UpdateCell handles PATCH /api/cells/{cellid}
func (h *RowHandler) UpdateCell(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	cellID, ok := ParseCellID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.UpdateCellInput
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	cell, err := h.rowService.UpdateCell(r.Context(), principal, cellID, req)
	if err != nil {
		writeServiceError(w, r, err, "update_cell", h.logger)
		return
	}
	writeData(w, http.StatusOK, cell, h.logger)
}

// CellHistory handles GET /api/cells/{cellid}/history
func (h *RowHandler) CellHistory(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	cellID, ok := ParseCellID(w, r, h.logger)
	if !ok {
		return
	}

	history, err := h.rowService.GetCellHistory(r.Context(), principal, cellID)
	if err != nil {
		writeServiceError(w, r, err, "cell_history", h.logger)
		return
	}
	writeData(w, http.StatusOK, history, h.logger)
}
