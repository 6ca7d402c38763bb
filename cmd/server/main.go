package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	custodyhandler "vouchsafe/internal/custody/handler"
	custodymetrics "vouchsafe/internal/custody/metrics"
	"vouchsafe/internal/custody/service"
	managerstore "vouchsafe/internal/custody/store/manager"
	"vouchsafe/internal/events"
	"vouchsafe/internal/jwtauth"
	"vouchsafe/internal/platform/config"
	"vouchsafe/internal/platform/httpserver"
	"vouchsafe/internal/platform/logger"
	"vouchsafe/internal/platform/metrics"
	"vouchsafe/internal/platform/middleware"
	platformredis "vouchsafe/internal/platform/redis"
	"vouchsafe/pkg/domain"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	managers, cleanup, err := newManagerStore(ctx, cfg)
	if err != nil {
		log.Error("manager store init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	group, ctx := errgroup.WithContext(ctx)

	emitter, eventCleanup, err := newEventPipeline(ctx, cfg, group)
	if err != nil {
		log.Error("event pipeline init failed", "error", err)
		os.Exit(1)
	}
	defer eventCleanup()

	svc := service.New(managers,
		service.WithLogger(log),
		service.WithEventEmitter(emitter),
		service.WithMetrics(custodymetrics.New()),
		service.WithOpenRegistration(cfg.OpenRegistration),
	)

	tokens := jwtauth.NewService(cfg.JWTSigningKey, "vouchsafe", "vouchsafe")

	var operator *middleware.OperatorKey
	if cfg.OperatorAddr != "" && cfg.OperatorKeyHash != "" {
		operator = &middleware.OperatorKey{
			Addr: domain.Address(cfg.OperatorAddr),
			Hash: cfg.OperatorKeyHash,
		}
	}

	router := chi.NewRouter()
	custodyhandler.New(svc, log, metrics.New(), tokens, operator).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := httpserver.New(cfg.Addr, router)

	group.Go(func() error {
		log.Info("starting vouchsafe", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// newManagerStore selects Postgres when DATABASE_URL is set, with an
// in-memory fallback for local runs.
func newManagerStore(ctx context.Context, cfg config.Server) (service.ManagerStore, func(), error) {
	if cfg.DatabaseURL == "" {
		return managerstore.NewInMemory(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	store := managerstore.NewPostgres(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}

// newEventPipeline assembles the event sinks: an in-memory store always,
// Redis streams mirrored through a background worker when configured, and a
// Kafka producer when brokers are configured.
func newEventPipeline(ctx context.Context, cfg config.Server, group *errgroup.Group) (events.Emitter, func(), error) {
	cleanup := func() {}
	emitters := events.Multi{events.NewPublisher(events.NewInMemory())}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if redisClient != nil {
		inbox := events.NewInbox(256)
		worker := events.NewWorker(events.NewRedisStore(redisClient.Client), inbox.Chan())
		group.Go(func() error {
			err := worker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		emitters = append(emitters, inbox)
		cleanup = func() { redisClient.Close() }
	}

	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		emitters = append(emitters, kafka)
		prev := cleanup
		cleanup = func() {
			kafka.Close()
			prev()
		}
	}

	return emitters, cleanup, nil
}
