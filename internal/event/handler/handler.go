// Package handler exposes the public event listing and the admin
// verification endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"demandstage/internal/event/models"
	"demandstage/internal/platform/middleware"
	dErrors "demandstage/pkg/domain-errors"
	"demandstage/pkg/platform/httputil"
	"demandstage/pkg/requestcontext"
)

// Service defines the event operations the handler needs.
type Service interface {
	Verify(ctx context.Context, req models.VerifyRequest) (*models.Event, error)
	List(ctx context.Context) ([]*models.Event, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Handler handles event endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates an event Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public event routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.CORS(http.MethodGet))
		r.Get("/events", h.handleList)
	})
}

// RegisterAdmin mounts the operator routes. The caller gates the router with
// the admin middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/events", h.handleVerify)
	r.Delete("/events/{id}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.List(r.Context())
	if err != nil {
		h.logError(r, "event listing failed", err)
		httputil.WriteError(w, err)
		return
	}
	if events == nil {
		events = []*models.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	event, err := h.service.Verify(r.Context(), req)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logError(r, "event verification failed", err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, event)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "event id must be a UUID"))
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logError(r, "event deletion failed", err)
		}
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg,
		"request_id", requestcontext.RequestID(r.Context()),
		"error", err.Error(),
	)
}
