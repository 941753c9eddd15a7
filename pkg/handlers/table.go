package handlers

import (
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/services"
)

// TableHandler serves the role-filtered estimate table and its export.
type TableHandler struct {
	tableService services.TableService
	logger       *zap.Logger
}

// NewTableHandler creates a new table handler.
func NewTableHandler(tableService services.TableService, logger *zap.Logger) *TableHandler {
	return &TableHandler{
		tableService: tableService,
		logger:       logger,
	}
}

// RegisterRoutes registers the table handler's routes on the given mux.
func (h *TableHandler) RegisterRoutes(mux *http.ServeMux, protect RouteMiddleware) {
	mux.HandleFunc("GET /api/estimates/{eid}/table", protect(h.Table))
	mux.HandleFunc("GET /api/estimates/{eid}/export", protect(h.Export))
}

// Table handles GET /api/estimates/{eid}/table
func (h *TableHandler) Table(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	estimateID, ok := ParseEstimateID(w, r, h.logger)
	if !ok {
		return
	}

	table, err := h.tableService.GetTableData(r.Context(), principal, estimateID)
	if err != nil {
		writeServiceError(w, r, err, "get_table", h.logger)
		return
	}
	writeData(w, http.StatusOK, table, h.logger)
}

// Export handles GET /api/estimates/{eid}/export
func (h *TableHandler) Export(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	estimateID, ok := ParseEstimateID(w, r, h.logger)
	if !ok {
		return
	}

	out, err := h.tableService.ExportXLSX(r.Context(), principal, estimateID)
	if err != nil {
		writeServiceError(w, r, err, "export_table", h.logger)
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": out.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Data); err != nil {
		h.logger.Error("Failed to write export", zap.Error(err))
	}
}
