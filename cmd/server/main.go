package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"braza/internal/ledger/admin"
	"braza/internal/ledger/compliance"
	"braza/internal/ledger/events/publisher"
	"braza/internal/ledger/events/worker"
	"braza/internal/ledger/guard"
	"braza/internal/ledger/handler"
	"braza/internal/ledger/metrics"
	"braza/internal/ledger/ports"
	"braza/internal/ledger/store/compliancecache"
	"braza/internal/ledger/store/memory"
	"braza/internal/ledger/store/postgres"
	"braza/internal/ledger/token"
	"braza/internal/ledger/vesting"
	"braza/internal/platform/config"
	"braza/internal/platform/httpserver"
	"braza/internal/platform/logger"
	platformredis "braza/internal/platform/redis"
	"braza/pkg/platform/middleware/caller"
	"braza/pkg/platform/middleware/requestid"
	"braza/pkg/platform/middleware/sequence"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	substrate, db, err := buildSubstrate(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.RedisURL, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// The cache fronts compliance reads on the query path; writes pass
	// through to the substrate and invalidate.
	complianceReader := ports.ComplianceStore(substrate)
	if redisClient != nil {
		complianceReader = compliancecache.New(substrate, redisClient.Client)
	}

	g := guard.New()

	adminSvc, err := admin.New(substrate, g, m, admin.WithLogger(log))
	if err != nil {
		return err
	}
	complianceSvc, err := compliance.New(substrate, g, m,
		compliance.WithReader(complianceReader),
		compliance.WithLogger(log),
	)
	if err != nil {
		return err
	}
	vestingSvc, err := vesting.New(substrate, g, m, vesting.WithLogger(log))
	if err != nil {
		return err
	}
	tokenSvc, err := token.New(substrate, g, m,
		token.WithComplianceWriter(complianceReader),
		token.WithLogger(log),
	)
	if err != nil {
		return err
	}

	router := newRouter(log, redisClient,
		handler.NewAdmin(adminSvc, log),
		handler.NewToken(tokenSvc, log),
		handler.NewVesting(vestingSvc, log),
		handler.NewCompliance(complianceSvc, log),
	)

	server := httpserver.New(cfg.Addr, router)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := publisher.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafka.Close()

		fanout := worker.New(substrate, kafka, log, worker.WithMetrics(m))
		group.Go(func() error {
			return fanout.Run(gctx)
		})
		log.Info("event fan-out enabled", "topic", cfg.KafkaTopic)
	}

	return group.Wait()
}

// buildSubstrate picks the SQL substrate when Postgres is configured and the
// in-memory one otherwise. The returned *sql.DB is nil in the latter case.
func buildSubstrate(ctx context.Context, cfg config.Config) (ports.Substrate, *sql.DB, error) {
	if cfg.PostgresURL == "" {
		return memory.New(), nil, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := postgres.New(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return store, db, nil
}

func newRouter(log *slog.Logger, redisClient *platformredis.Client, handlers ...interface{ Register(chi.Router) }) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(req.Context()); err != nil {
				log.WarnContext(req.Context(), "redis unhealthy", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(api chi.Router) {
		api.Use(requestid.Middleware, sequence.Middleware, caller.Middleware)
		for _, h := range handlers {
			h.Register(api)
		}
	})

	return r
}
