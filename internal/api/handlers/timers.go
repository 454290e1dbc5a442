// Package handlers implements the timer CRUD surface: the operations
// spec §5's "To the API layer (ingress)" table names, wired against a
// scheduler.Engine.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	apierrors "github.com/vitaliisemenov/timerd/internal/api/errors"
	"github.com/vitaliisemenov/timerd/internal/api/middleware"
	"github.com/vitaliisemenov/timerd/internal/domain"
	"github.com/vitaliisemenov/timerd/internal/repository"
	"github.com/vitaliisemenov/timerd/internal/scheduler"
)

var validate = validator.New()

// TimerHandler exposes the timer CRUD endpoints over the scheduling engine.
type TimerHandler struct {
	engine scheduler.Engine
	logger *slog.Logger
}

// NewTimerHandler constructs a TimerHandler.
func NewTimerHandler(engine scheduler.Engine, logger *slog.Logger) *TimerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerHandler{engine: engine, logger: logger}
}

// createTimerRequest is the wire shape of POST /v1/timers.
type createTimerRequest struct {
	ExecuteAt time.Time             `json:"execute_at" validate:"required"`
	Callback  domain.CallbackConfig `json:"callback" validate:"required"`
	Metadata  json.RawMessage       `json:"metadata,omitempty"`
}

// updateTimerRequest is the wire shape of PATCH /v1/timers/{id}. Fields
// left nil are unchanged, mirroring domain.MutablePatch.
type updateTimerRequest struct {
	ExecuteAt *time.Time             `json:"execute_at,omitempty"`
	Callback  *domain.CallbackConfig `json:"callback,omitempty"`
	Metadata  *json.RawMessage       `json:"metadata,omitempty"`
}

// timerResponse is the wire shape of a Timer.
type timerResponse struct {
	ID             uuid.UUID             `json:"id"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	ExecuteAt      time.Time             `json:"execute_at"`
	Callback       domain.CallbackConfig `json:"callback"`
	Status         domain.Status         `json:"status"`
	LastError      *string               `json:"last_error,omitempty"`
	ExecutedAt     *time.Time            `json:"executed_at,omitempty"`
	Metadata       json.RawMessage       `json:"metadata,omitempty"`
}

func toTimerResponse(t *domain.Timer) timerResponse {
	return timerResponse{
		ID:         t.ID,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
		ExecuteAt:  t.ExecuteAt,
		Callback:   t.CallbackConfig,
		Status:     t.Status,
		LastError:  t.LastError,
		ExecutedAt: t.ExecutedAt,
		Metadata:   t.Metadata,
	}
}

// CreateTimer handles POST /v1/timers.
func (h *TimerHandler) CreateTimer(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req createTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteError(w, apierrors.ValidationError("invalid request body: "+err.Error()).WithRequestID(requestID))
		return
	}
	if err := validate.Struct(req); err != nil {
		apierrors.WriteError(w, apierrors.ValidationError(err.Error()).WithRequestID(requestID))
		return
	}

	timer, err := h.engine.CreateTimer(r.Context(), req.ExecuteAt, req.Callback, req.Metadata)
	if err != nil {
		h.writeDomainError(w, requestID, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTimerResponse(timer))
}

// GetTimer handles GET /v1/timers/{id}.
func (h *TimerHandler) GetTimer(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, err := parseID(r)
	if err != nil {
		apierrors.WriteError(w, apierrors.ValidationError(err.Error()).WithRequestID(requestID))
		return
	}

	timer, err := h.engine.GetTimer(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimerResponse(timer))
}

// ListTimers handles GET /v1/timers.
func (h *TimerHandler) ListTimers(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	q := r.URL.Query()

	filter := repository.ListFilter{}
	if s := q.Get("status"); s != "" {
		status := domain.Status(s)
		filter.Status = &status
	}

	order := repository.OrderCreatedAtDesc
	if q.Get("order") == "created_at_asc" {
		order = repository.OrderCreatedAtAsc
	}

	limit := 50
	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	timers, total, err := h.engine.ListTimers(r.Context(), filter, order, limit, offset)
	if err != nil {
		h.writeDomainError(w, requestID, err)
		return
	}

	items := make([]timerResponse, 0, len(timers))
	for i := range timers {
		items = append(items, toTimerResponse(&timers[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// UpdateTimer handles PATCH /v1/timers/{id}.
func (h *TimerHandler) UpdateTimer(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, err := parseID(r)
	if err != nil {
		apierrors.WriteError(w, apierrors.ValidationError(err.Error()).WithRequestID(requestID))
		return
	}

	var req updateTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteError(w, apierrors.ValidationError("invalid request body: "+err.Error()).WithRequestID(requestID))
		return
	}

	patch := domain.MutablePatch{ExecuteAt: req.ExecuteAt, CallbackConfig: req.Callback}
	if req.Metadata != nil {
		raw := []byte(*req.Metadata)
		patch.Metadata = &raw
	}

	timer, err := h.engine.UpdateTimer(r.Context(), id, patch)
	if err != nil {
		h.writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimerResponse(timer))
}

// CancelTimer handles POST /v1/timers/{id}/cancel.
func (h *TimerHandler) CancelTimer(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, err := parseID(r)
	if err != nil {
		apierrors.WriteError(w, apierrors.ValidationError(err.Error()).WithRequestID(requestID))
		return
	}

	timer, err := h.engine.CancelTimer(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimerResponse(timer))
}

func (h *TimerHandler) writeDomainError(w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		apierrors.WriteError(w, apierrors.NotFoundError("timer").WithRequestID(requestID))
	case errors.Is(err, repository.ErrValidation):
		apierrors.WriteError(w, apierrors.ValidationError(err.Error()).WithRequestID(requestID))
	case errors.Is(err, repository.ErrNotPending), errors.Is(err, repository.ErrAlreadyExists):
		apierrors.WriteError(w, apierrors.ConflictError(err.Error()).WithRequestID(requestID))
	case errors.Is(err, repository.ErrConnection):
		apierrors.WriteError(w, apierrors.ServiceUnavailableError("persistent store").WithRequestID(requestID))
	default:
		h.logger.Error("unhandled timer handler error", "error", err)
		apierrors.WriteError(w, apierrors.InternalError("internal error").WithRequestID(requestID))
	}
}

func parseID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("id must be a valid UUID")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
