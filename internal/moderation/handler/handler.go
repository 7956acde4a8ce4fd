// Package handler exposes the operator vote-review endpoints. All routes are
// mounted behind the admin gate.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	voteModels "demandstage/internal/vote/models"
	dErrors "demandstage/pkg/domain-errors"
	"demandstage/pkg/platform/httputil"
	"demandstage/pkg/requestcontext"
)

// Service defines the moderation operations the handler needs.
type Service interface {
	Votes(ctx context.Context, flaggedOnly bool) ([]*voteModels.Vote, error)
	Suspicious(ctx context.Context) ([]voteModels.SuspiciousGroup, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ToggleFlag(ctx context.Context, id uuid.UUID) (*voteModels.Vote, error)
}

// Handler handles moderation endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a moderation Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts the moderation routes. The caller gates the router
// with the admin middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/votes", h.handleVotes)
	r.Get("/votes/suspicious", h.handleSuspicious)
	r.Delete("/votes/{id}", h.handleDelete)
	r.Post("/votes/{id}/flag", h.handleToggleFlag)
}

func (h *Handler) handleVotes(w http.ResponseWriter, r *http.Request) {
	flaggedOnly := r.URL.Query().Get("flagged") == "true"

	votes, err := h.service.Votes(r.Context(), flaggedOnly)
	if err != nil {
		h.logError(r, "vote listing failed", err)
		httputil.WriteError(w, err)
		return
	}
	if votes == nil {
		votes = []*voteModels.Vote{}
	}
	httputil.WriteJSON(w, http.StatusOK, votes)
}

func (h *Handler) handleSuspicious(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.Suspicious(r.Context())
	if err != nil {
		h.logError(r, "suspicious listing failed", err)
		httputil.WriteError(w, err)
		return
	}
	if groups == nil {
		groups = []voteModels.SuspiciousGroup{}
	}
	httputil.WriteJSON(w, http.StatusOK, groups)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logError(r, "vote deletion failed", err)
		}
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleToggleFlag(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	vote, err := h.service.ToggleFlag(r.Context(), id)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logError(r, "vote flag toggle failed", err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, vote)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "vote id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg,
		"request_id", requestcontext.RequestID(r.Context()),
		"error", err.Error(),
	)
}
