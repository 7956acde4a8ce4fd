// Command server runs the demandstage vote intake and aggregation service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	eventHandler "demandstage/internal/event/handler"
	eventMetrics "demandstage/internal/event/metrics"
	eventService "demandstage/internal/event/service"
	eventPostgres "demandstage/internal/event/store/postgres"
	moderationHandler "demandstage/internal/moderation/handler"
	moderationService "demandstage/internal/moderation/service"
	"demandstage/internal/platform/config"
	"demandstage/internal/platform/httpserver"
	"demandstage/internal/platform/listener"
	"demandstage/internal/platform/logger"
	"demandstage/internal/platform/metrics"
	"demandstage/internal/platform/middleware"
	"demandstage/internal/platform/postgres"
	platformRedis "demandstage/internal/platform/redis"
	throttleMiddleware "demandstage/internal/ratelimit/middleware"
	"demandstage/internal/ratelimit/store/bucket"
	tallyHandler "demandstage/internal/tally/handler"
	tallyMetrics "demandstage/internal/tally/metrics"
	tallyService "demandstage/internal/tally/service"
	httptransport "demandstage/internal/transport/http"
	voteHandler "demandstage/internal/vote/handler"
	voteMetrics "demandstage/internal/vote/metrics"
	voteService "demandstage/internal/vote/service"
	votePostgres "demandstage/internal/vote/store/postgres"
	auditPublisher "demandstage/pkg/platform/audit/publisher"
	auditPostgres "demandstage/pkg/platform/audit/store/postgres"
	auditWorker "demandstage/pkg/platform/audit/worker"
	"demandstage/pkg/platform/tx"
)

func main() {
	// Missing .env is fine; production configures through real env vars.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.ApplySchema(ctx, db); err != nil {
		return err
	}

	redisClient, err := platformRedis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Audit trail: sync publisher into the transactional outbox, relayed to
	// Kafka by the worker when brokers are configured.
	auditor := auditPublisher.NewPublisher(auditPostgres.New(db), auditPublisher.WithLogger(log))
	defer auditor.Close()

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := auditWorker.NewClient(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		defer kafkaClient.Close()
		worker := auditWorker.New(db, kafkaClient, cfg.Kafka.Topic, log)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit outbox worker stopped", "error", err.Error())
			}
		}()
	}

	// Realtime vote-change fanout for the tally stream.
	hub := listener.NewHub()
	pgListener := listener.NewPG(cfg.DatabaseURL, hub, log)
	go func() {
		if err := pgListener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("vote-change listener stopped", "error", err.Error())
		}
	}()

	// Stores and services.
	votes := votePostgres.NewPostgres(db)
	events := eventPostgres.NewPostgres(db)
	runner := tx.NewSQLRunner(db)

	intake, err := voteService.New(votes, cfg.Vote,
		voteService.WithLogger(log),
		voteService.WithMetrics(voteMetrics.New(prometheus.DefaultRegisterer)),
		voteService.WithAuditPublisher(auditor),
	)
	if err != nil {
		return err
	}

	tallies, err := tallyService.New(votes,
		tallyService.WithMetrics(tallyMetrics.New(prometheus.DefaultRegisterer)))
	if err != nil {
		return err
	}

	eventSvc, err := eventService.New(events, votes, runner,
		eventService.WithLogger(log),
		eventService.WithMetrics(eventMetrics.New(prometheus.DefaultRegisterer)),
		eventService.WithAuditPublisher(auditor),
	)
	if err != nil {
		return err
	}

	moderation, err := moderationService.New(votes,
		moderationService.WithLogger(log),
		moderationService.WithAuditPublisher(auditor),
	)
	if err != nil {
		return err
	}

	// Transport throttle: Redis-backed when available, per-instance memory
	// buckets otherwise.
	var throttle func(http.Handler) http.Handler
	if cfg.Throttle.Enabled {
		var buckets throttleMiddleware.BucketStore = bucket.NewInMemoryBucketStore()
		if redisClient != nil {
			buckets = bucket.NewRedisBucketStore(redisClient.Client)
		}
		throttle = throttleMiddleware.Throttle(buckets, cfg.Throttle.RequestsPerWindow, cfg.Throttle.Window, log)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:        log,
		Metrics:       metrics.New(),
		Votes:         voteHandler.New(intake, log),
		Tallies:       tallyHandler.New(tallies, hub, log),
		Events:        eventHandler.New(eventSvc, log),
		Moderation:    moderationHandler.New(moderation, log),
		AdminVerifier: middleware.NewAdminVerifier(cfg.AdminJWTSigningKey),
		Throttle:      throttle,
		DB:            db,
	})

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting demandstage", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
