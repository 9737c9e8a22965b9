// Package handler provides the read-only HTTP query surface of the cache.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chronomint/verscache/internal/errors"
	"github.com/chronomint/verscache/internal/model"
	"github.com/chronomint/verscache/internal/service"
	"github.com/chronomint/verscache/internal/validation"
)

// QueryHandler serves point-in-time snapshot queries over HTTP
type QueryHandler struct {
	cache     *service.SnapshotCache
	validator *validation.Validator
	logger    *zap.Logger
	timeout   time.Duration
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(
	cache *service.SnapshotCache,
	validator *validation.Validator,
	logger *zap.Logger,
	timeout time.Duration,
) *QueryHandler {
	return &QueryHandler{
		cache:     cache,
		validator: validator,
		logger:    logger,
		timeout:   timeout,
	}
}

// Register registers the handler's routes
func (h *QueryHandler) Register(r *mux.Router) {
	r.HandleFunc("/v1/snapshots/{kind}/{id}", h.GetSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/v1/snapshots/{kind}", h.ListSnapshots).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

type snapshotResponse struct {
	Kind    string      `json:"kind"`
	ID      string      `json:"id"`
	Version int64       `json:"version"`
	Value   interface{} `json:"value"`
}

type listResponse struct {
	Kind     string           `json:"kind"`
	Version  int64            `json:"version"`
	Entities []service.Entity `json:"entities"`
}

type healthResponse struct {
	Status string        `json:"status"`
	Stats  service.Stats `json:"stats"`
}

type errorResponse struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// GetSnapshot handles GET /v1/snapshots/{kind}/{id}?version=N requests. An
// omitted version means "state as of now".
func (h *QueryHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, id := vars["kind"], vars["id"]

	if err := h.validator.ValidateKind(kind); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validator.ValidateID(id); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	target, err := h.resolveTarget(ctx, r.URL.Query().Get("version"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if target == model.NoVersion {
		// Empty log: nothing exists at any version. NoVersion in the envelope
		// distinguishes this from a miss at a real version.
		h.writeError(w, r, errors.NotFound(kind, id, int64(model.NoVersion)))
		return
	}

	value, err := h.cache.Get(ctx, model.EntityKey{Kind: model.Kind(kind), ID: id}, target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, snapshotResponse{
		Kind:    kind,
		ID:      id,
		Version: int64(target),
		Value:   value,
	})
}

// ListSnapshots handles GET /v1/snapshots/{kind}?version=N requests
func (h *QueryHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]

	if err := h.validator.ValidateKind(kind); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	target, err := h.resolveTarget(ctx, r.URL.Query().Get("version"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if target == model.NoVersion {
		h.writeJSON(w, http.StatusOK, listResponse{
			Kind:     kind,
			Version:  int64(model.NoVersion),
			Entities: []service.Entity{},
		})
		return
	}

	entities, err := h.cache.GetAll(ctx, model.Kind(kind), target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, listResponse{
		Kind:     kind,
		Version:  int64(target),
		Entities: entities,
	})
}

// Health handles GET /health requests
func (h *QueryHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Stats:  h.cache.Stats(),
	})
}

// resolveTarget turns the raw version parameter into a query target. An empty
// parameter resolves to the log's latest version; NoVersion is returned when
// the log is empty.
func (h *QueryHandler) resolveTarget(ctx context.Context, raw string) (model.Version, error) {
	target, err := h.validator.ParseVersion(raw)
	if err != nil {
		return 0, err
	}
	if target != model.NoVersion {
		return target, nil
	}
	latest, ok, err := h.cache.Latest(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return model.NoVersion, nil
	}
	return latest, nil
}

func (h *QueryHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *QueryHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ce := errors.AsCacheError(err)
	status := ce.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Error("Query failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get("X-Request-ID")),
			zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{
		Status:    "error",
		ErrorCode: ce.CodeString(),
		Message:   ce.Message,
		RequestID: r.Header.Get("X-Request-ID"),
	})
}
