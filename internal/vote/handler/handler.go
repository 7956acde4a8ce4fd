// Package handler exposes the public vote endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"demandstage/internal/platform/middleware"
	"demandstage/internal/vote/models"
	dErrors "demandstage/pkg/domain-errors"
	"demandstage/pkg/platform/httputil"
	"demandstage/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/service_mock.go -package=mocks

// Service defines the intake operations the handler needs.
type Service interface {
	Submit(ctx context.Context, sub models.Submission) (*models.Receipt, error)
	HasVoted(ctx context.Context, deviceSignal, artist, city string) (*models.VoteStatus, error)
}

// Handler handles vote submission and status endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a vote Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the vote routes. Submission is open to any origin; only
// POST and the preflight OPTIONS are accepted on /votes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.CORS(http.MethodPost))
		r.Post("/votes", h.handleSubmit)
		r.Options("/votes", func(http.ResponseWriter, *http.Request) {})
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.CORS(http.MethodGet))
		r.Get("/votes/status", h.handleStatus)
		r.Options("/votes/status", func(http.ResponseWriter, *http.Request) {})
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var sub models.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	receipt, err := h.service.Submit(ctx, sub)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "vote submission failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := h.service.HasVoted(r.Context(), q.Get("device_id"), q.Get("artist"), q.Get("city"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}
