// Package handler exposes the public tally read endpoints, including the
// server-sent-events stream driven by the vote-change listener.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"demandstage/internal/platform/middleware"
	"demandstage/internal/tally/models"
	dErrors "demandstage/pkg/domain-errors"
	"demandstage/pkg/platform/httputil"
	"demandstage/pkg/requestcontext"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// Service defines the tally reads the handler needs.
type Service interface {
	Combinations(ctx context.Context) ([]models.Combination, error)
	Artists(ctx context.Context) ([]models.ArtistTotal, error)
	Trending(ctx context.Context, limit int) ([]models.Combination, error)
}

// Subscriber delivers coalesced vote-change notifications.
type Subscriber interface {
	Subscribe() (<-chan struct{}, func())
}

// Handler handles tally endpoints.
type Handler struct {
	service Service
	hub     Subscriber
	logger  *slog.Logger
}

// New creates a tally Handler. The hub may be nil; the stream endpoint then
// serves a single snapshot and closes.
func New(service Service, hub Subscriber, logger *slog.Logger) *Handler {
	return &Handler{service: service, hub: hub, logger: logger}
}

// Register mounts the tally routes. All reads are public and CORS-open.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.CORS(http.MethodGet))
		r.Get("/tallies", h.handleCombinations)
		r.Get("/tallies/artists", h.handleArtists)
		r.Get("/tallies/trending", h.handleTrending)
		r.Get("/tallies/stream", h.handleStream)
	})
}

func (h *Handler) handleCombinations(w http.ResponseWriter, r *http.Request) {
	combinations, err := h.service.Combinations(r.Context())
	if err != nil {
		h.logError(r.Context(), "tally read failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, combinations)
}

func (h *Handler) handleArtists(w http.ResponseWriter, r *http.Request) {
	totals, err := h.service.Artists(r.Context())
	if err != nil {
		h.logError(r.Context(), "artist tally read failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, totals)
}

func (h *Handler) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	trending, err := h.service.Trending(r.Context(), limit)
	if err != nil {
		h.logError(r.Context(), "trending read failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trending)
}

// handleStream pushes the current combinations on connect and again after
// every coalesced vote change until the client disconnects.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	if err := h.writeSnapshot(ctx, w, flusher); err != nil {
		return
	}
	if h.hub == nil {
		return
	}

	updates, cancel := h.hub.Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			if err := h.writeSnapshot(ctx, w, flusher); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) writeSnapshot(ctx context.Context, w http.ResponseWriter, flusher http.Flusher) error {
	combinations, err := h.service.Combinations(ctx)
	if err != nil {
		h.logError(ctx, "tally stream read failed", err)
		return err
	}
	payload, err := json.Marshal(combinations)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: tallies\ndata: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}
