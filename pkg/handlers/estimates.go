package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/services"
)

// EstimateHandler handles estimate lifecycle HTTP requests.
type EstimateHandler struct {
	estimateService services.EstimateService
	logger          *zap.Logger
}

// NewEstimateHandler creates a new estimate handler.
func NewEstimateHandler(estimateService services.EstimateService, logger *zap.Logger) *EstimateHandler {
	return &EstimateHandler{
		estimateService: estimateService,
		logger:          logger,
	}
}

// RegisterRoutes registers the estimate handler's routes on the given mux.
func (h *EstimateHandler) RegisterRoutes(mux *http.ServeMux, protect RouteMiddleware) {
	mux.HandleFunc("POST /api/workspaces/{wid}/estimates", protect(h.Create))
	mux.HandleFunc("GET /api/workspaces/{wid}/estimates", protect(h.List))
	mux.HandleFunc("GET /api/estimates/{eid}", protect(h.Get))
	mux.HandleFunc("PATCH /api/estimates/{eid}", protect(h.Update))
	mux.HandleFunc("DELETE /api/estimates/{eid}", protect(h.Delete))
}

// Create handles POST /api/workspaces/{wid}/estimates
func (h *EstimateHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	workspaceID, ok := ParseWorkspaceID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.CreateEstimateInput
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	estimate, err := h.estimateService.Create(r.Context(), principal, workspaceID, req)
	if err != nil {
		writeServiceError(w, r, err, "create_estimate", h.logger)
		return
	}
	writeData(w, http.StatusCreated, estimate, h.logger)
}

// List handles GET /api/workspaces/{wid}/estimates
func (h *EstimateHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	workspaceID, ok := ParseWorkspaceID(w, r, h.logger)
	if !ok {
		return
	}

	estimates, err := h.estimateService.ListByWorkspace(r.Context(), principal, workspaceID)
	if err != nil {
		writeServiceError(w, r, err, "list_estimates", h.logger)
		return
	}
	writeData(w, http.StatusOK, estimates, h.logger)
}

// Get handles GET /api/estimates/{eid}. With ?full=true the response carries
// the column schema and row count.
func (h *EstimateHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	estimateID, ok := ParseEstimateID(w, r, h.logger)
	if !ok {
		return
	}

	full := false
	if v := r.URL.Query().Get("full"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "full must be a boolean", h.logger)
			return
		}
		full = parsed
	}

	if full {
		estimate, err := h.estimateService.GetFull(r.Context(), principal, estimateID)
		if err != nil {
			writeServiceError(w, r, err, "get_estimate_full", h.logger)
			return
		}
		writeData(w, http.StatusOK, estimate, h.logger)
		return
	}

	estimate, err := h.estimateService.Get(r.Context(), principal, estimateID)
	if err != nil {
		writeServiceError(w, r, err, "get_estimate", h.logger)
		return
	}
	writeData(w, http.StatusOK, estimate, h.logger)
}

// Update handles PATCH /api/estimates/{eid}
func (h *EstimateHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	estimateID, ok := ParseEstimateID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.UpdateEstimateInput
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	estimate, err := h.estimateService.Update(r.Context(), principal, estimateID, req)
	if err != nil {
		writeServiceError(w, r, err, "update_estimate", h.logger)
		return
	}
	writeData(w, http.StatusOK, estimate, h.logger)
}

// Delete handles DELETE /api/estimates/{eid}
func (h *EstimateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	estimateID, ok := ParseEstimateID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.estimateService.SoftDelete(r.Context(), principal, estimateID); err != nil {
		writeServiceError(w, r, err, "delete_estimate", h.logger)
		return
	}
	writeData(w, http.StatusOK, nil, h.logger)
}
