// Package httpapi provides the REST HTTP adapter for the engine surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/ordna/internal/adapters/server/common"
	"github.com/hylla/ordna/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// defaultEventLimit bounds GET /events responses when no limit is given.
const defaultEventLimit = 100

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	engine common.EngineService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter from the engine service.
func NewHandler(engine common.EngineService) *Handler {
	return &Handler{engine: engine}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "engine service is not configured",
		})
		return
	}

	path := normalizePath(r.URL.Path)
	switch {
	case path == "nodes":
		h.requireMethod(w, r, http.MethodPost, h.handleSubmitNode)
	case path == "edges":
		h.requireMethod(w, r, http.MethodPost, h.handleSubmitEdge)
	case path == "risk":
		h.requireMethod(w, r, http.MethodPost, h.handleSubmitRisk)
	case path == "order":
		h.requireMethod(w, r, http.MethodGet, h.handleOrder)
	case path == "batches":
		h.requireMethod(w, r, http.MethodGet, h.handleBatches)
	case path == "critical_path":
		h.requireMethod(w, r, http.MethodGet, h.handleCriticalPath)
	case path == "ranking":
		h.requireMethod(w, r, http.MethodGet, h.handleRanking)
	case path == "events":
		h.requireMethod(w, r, http.MethodGet, h.handleEvents)
	default:
		h.routeResource(w, r, path)
	}
}

// routeResource dispatches `nodes/{id}`, `nodes/{id}/schedule`,
// `edges/{id}`, and `edges/{id}/override` paths.
func (h *Handler) routeResource(w http.ResponseWriter, r *http.Request, path string) {
	if id, ok := resourceID(path, "nodes/", "/schedule"); ok {
		h.requireMethod(w, r, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			h.handleNodeSchedule(w, r, id)
		})
		return
	}
	if id, ok := resourceID(path, "nodes/", ""); ok {
		switch r.Method {
		case http.MethodPatch:
			h.handleUpdateNode(w, r, id)
		case http.MethodDelete:
			h.handleRemoveNode(w, r, id)
		default:
			writeMethodNotAllowed(w, http.MethodPatch, http.MethodDelete)
		}
		return
	}
	if id, ok := resourceID(path, "edges/", "/override"); ok {
		switch r.Method {
		case http.MethodPost:
			h.handleSubmitOverride(w, r, id)
		case http.MethodDelete:
			h.handleClearOverride(w, r, id)
		default:
			writeMethodNotAllowed(w, http.MethodPost, http.MethodDelete)
		}
		return
	}
	if id, ok := resourceID(path, "edges/", ""); ok {
		h.requireMethod(w, r, http.MethodDelete, func(w http.ResponseWriter, r *http.Request) {
			h.handleRemoveEdge(w, r, id)
		})
		return
	}
	writeJSONError(w, http.StatusNotFound, APIError{
		Code:    "not_found",
		Message: "endpoint not found",
	})
}

// handleSubmitNode serves POST `/nodes`.
func (h *Handler) handleSubmitNode(w http.ResponseWriter, r *http.Request) {
	var req common.SubmitNodeRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	node, err := h.engine.SubmitNode(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

// handleUpdateNode serves PATCH `/nodes/{id}`.
func (h *Handler) handleUpdateNode(w http.ResponseWriter, r *http.Request, id string) {
	var req common.UpdateNodeRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	node, err := h.engine.UpdateNode(r.Context(), id, req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// handleRemoveNode serves DELETE `/nodes/{id}`.
func (h *Handler) handleRemoveNode(w http.ResponseWriter, r *http.Request, id string) {
	cascade := strings.EqualFold(r.URL.Query().Get("cascade"), "true")
	if err := h.engine.RemoveNode(r.Context(), id, cascade); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmitEdge serves POST `/edges`.
func (h *Handler) handleSubmitEdge(w http.ResponseWriter, r *http.Request) {
	var req common.SubmitEdgeRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	edge, err := h.engine.SubmitEdge(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

// handleRemoveEdge serves DELETE `/edges/{id}`.
func (h *Handler) handleRemoveEdge(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.engine.RemoveEdge(r.Context(), id); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmitOverride serves POST `/edges/{id}/override`.
func (h *Handler) handleSubmitOverride(w http.ResponseWriter, r *http.Request, id string) {
	var req common.OverrideRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.EdgeID = id
	if err := h.engine.SubmitOverride(r.Context(), req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearOverride serves DELETE `/edges/{id}/override`.
func (h *Handler) handleClearOverride(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.engine.ClearOverride(r.Context(), id); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmitRisk serves POST `/risk`.
func (h *Handler) handleSubmitRisk(w http.ResponseWriter, r *http.Request) {
	var req common.RiskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if err := h.engine.SubmitRisk(r.Context(), req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOrder serves GET `/order`.
func (h *Handler) handleOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.engine.Order(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

// handleBatches serves GET `/batches`.
func (h *Handler) handleBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.engine.ParallelBatches(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

// handleCriticalPath serves GET `/critical_path`.
func (h *Handler) handleCriticalPath(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.CriticalPath(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleRanking serves GET `/ranking`.
func (h *Handler) handleRanking(w http.ResponseWriter, r *http.Request) {
	ranking, err := h.engine.Ranking(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ranking": ranking})
}

// handleNodeSchedule serves GET `/nodes/{id}/schedule`.
func (h *Handler) handleNodeSchedule(w http.ResponseWriter, r *http.Request, id string) {
	sched, err := h.engine.NodeSchedule(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handleEvents serves GET `/events`.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}
	events, err := h.engine.RecentEvents(r.Context(), limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// requireMethod guards one route on a single HTTP method.
func (h *Handler) requireMethod(w http.ResponseWriter, r *http.Request, method string, next http.HandlerFunc) {
	if r.Method != method {
		writeMethodNotAllowed(w, method)
		return
	}
	next(w, r)
}

// resourceID parses `{prefix}{id}{suffix}` paths and returns `{id}`.
func resourceID(path, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return "", false
	}
	id := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix))
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps engine errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, domain.ErrCycleRejected):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "cycle_rejected",
			Message: err.Error(),
			Hint:    "Override or remove a conflicting dependency instead of closing the loop.",
		})
	case errors.Is(err, domain.ErrUnknownNode), errors.Is(err, domain.ErrUnknownEdge):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrDuplicateNode),
		errors.Is(err, domain.ErrDuplicateEdge),
		errors.Is(err, domain.ErrNodeInUse),
		errors.Is(err, domain.ErrInvalidTransition):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrEngineHalted):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "engine_halted",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrCycleDetected):
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "invariant_breach",
			Message: err.Error(),
		})
	case isValidationError(err):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// isValidationError reports whether err is malformed-input rejection.
func isValidationError(err error) bool {
	for _, sentinel := range []error{
		common.ErrInvalidRequest,
		domain.ErrInvalidID,
		domain.ErrInvalidDuration,
		domain.ErrInvalidStatus,
		domain.ErrInvalidKind,
		domain.ErrInvalidHardness,
		domain.ErrInvalidActor,
		domain.ErrInvalidRisk,
		domain.ErrSelfLoop,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
