// Package http assembles the service router: middleware chain, public
// feature routes, the admin surface and the operational endpoints.
package http

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventHandler "demandstage/internal/event/handler"
	moderationHandler "demandstage/internal/moderation/handler"
	"demandstage/internal/platform/metrics"
	"demandstage/internal/platform/middleware"
	tallyHandler "demandstage/internal/tally/handler"
	voteHandler "demandstage/internal/vote/handler"
	"demandstage/pkg/platform/httputil"
)

// requestTimeout bounds every request except the SSE stream, which manages
// its own lifetime.
const requestTimeout = 30 * time.Second

// Deps carries everything the router mounts.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Votes      *voteHandler.Handler
	Tallies    *tallyHandler.Handler
	Events     *eventHandler.Handler
	Moderation *moderationHandler.Handler

	AdminVerifier *middleware.AdminVerifier

	// Throttle, when set, caps request volume on the public vote routes.
	Throttle func(http.Handler) http.Handler

	// DB is pinged by the health endpoint.
	DB *sql.DB
}

// NewRouter builds the chi router with the full middleware chain.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Latency(deps.Metrics))

	// Public intake, throttled ahead of the vote-policy limiter.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		if deps.Throttle != nil {
			r.Use(deps.Throttle)
		}
		deps.Votes.Register(r)
	})

	// Public reads. The tally stream stays outside the timeout middleware.
	deps.Tallies.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		deps.Events.Register(r)
	})

	// Operator surface.
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.RequireAdmin(deps.AdminVerifier, deps.Logger))
		deps.Events.RegisterAdmin(r)
		deps.Moderation.RegisterAdmin(r)
	})

	// Operational endpoints.
	r.Get("/healthz", healthHandler(deps.DB))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
