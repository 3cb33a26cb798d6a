package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"vetting/internal/application"
	"vetting/internal/directory"
	"vetting/internal/engine"
	"vetting/internal/events"
	jwttoken "vetting/internal/jwt_token"
	"vetting/internal/lock"
	"vetting/internal/platform/config"
	"vetting/internal/platform/httpserver"
	"vetting/internal/platform/kafka"
	"vetting/internal/platform/logger"
	"vetting/internal/platform/metrics"
	"vetting/internal/platform/postgres"
	"vetting/internal/platform/redis"
	"vetting/internal/platform/tracing"
	"vetting/internal/storage"
	"vetting/internal/storage/memory"
	pgstore "vetting/internal/storage/postgres"
	httptransport "vetting/internal/transport/http"
	"vetting/pkg/platform/retry"
)

// main wires the storage backend, lease manager and event stream into the
// workflow engine, then serves HTTP until SIGINT or SIGTERM.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Logging.Format, cfg.Logging.Level)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Tracing {
		shutdown, err := tracing.Setup(ctx, tracing.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Insecure:    cfg.Telemetry.OTLPInsecure,
			SampleRate:  cfg.Telemetry.SampleRate,
		})
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	backend, dirStore, closeStorage, err := openStorage(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	dir := directory.NewService(dirStore, directory.WithLogger(log))
	if cfg.Workflow.DirectorySeedFile != "" {
		seed, err := directory.LoadSeedFile(cfg.Workflow.DirectorySeedFile)
		if err != nil {
			return err
		}
		if err := dir.Seed(ctx, seed); err != nil {
			return fmt.Errorf("seed directory: %w", err)
		}
		log.Info("directory seeded", "officers", len(seed.Officers), "companies", len(seed.Companies))
	}

	policy, err := application.LoadPolicy(cfg.Workflow.PolicyFile)
	if err != nil {
		return err
	}

	deps := engine.Deps{
		Backend:   backend,
		Directory: dir,
		Metrics:   m,
		Logger:    log,
	}

	var revocations *jwttoken.RedisRevocations
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close()
		deps.Locker = lock.NewRedis(rc)
		revocations = jwttoken.NewRedisRevocations(rc)
		log.Info("redis leases and token revocation enabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := openKafka(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		defer client.Close()
		dispatcher := events.NewDispatcher(events.NewKafkaPublisher(client, cfg.Kafka.Topic),
			events.WithLogger(log),
			events.WithMetrics(m),
			events.WithBufferSize(cfg.Kafka.BufferSize),
		)
		deps.Publisher = dispatcher
		g.Go(func() error { return dispatcher.Run(gctx) })
		log.Info("kafka event stream enabled", "topic", cfg.Kafka.Topic)
	}

	eng := engine.New(deps, engine.Settings{
		Policy:          &policy,
		Retry:           retryPolicy(cfg.Workflow.RetryAttempts),
		LeaseTTL:        cfg.Workflow.LockTTL,
		SkipAccessLevel: cfg.Workflow.SkipAccessLevel,
		SweepInterval:   cfg.Workflow.SweepInterval,
		SweepBatchSize:  cfg.Workflow.SweepBatchSize,
	})
	g.Go(func() error { return eng.Run(gctx) })

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer)
	routerCfg := httptransport.RouterConfig{
		Handler: httptransport.NewHandler(httptransport.Services{
			Applications: eng.Applications,
			Tasks:        eng.Tasks,
			Documents:    eng.Documents,
			Escalations:  eng.Escalations,
			Comments:     eng.Comments,
			Audit:        eng.Audit,
		}, log),
		Validator:  jwttoken.NewJWTServiceAdapter(jwtService),
		AdminToken: cfg.Server.AdminToken,
		Metrics:    m,
		Gatherer:   prometheus.DefaultGatherer,
		Logger:     log,
	}
	if revocations != nil {
		routerCfg.Revocations = revocations
	}
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(routerCfg))

	g.Go(func() error {
		log.Info("starting vetting engine", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownGrace)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStorage returns the backend and the directory store for the configured
// driver, plus a func releasing the pool.
func openStorage(ctx context.Context, cfg config.Storage, log *slog.Logger) (storage.Backend, directory.Store, func(), error) {
	if cfg.Driver == "memory" {
		log.Warn("using in-memory storage; state is lost on restart")
		return memory.New(), directory.NewMemoryStore(), func() {}, nil
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.Migrate {
		if err := pgstore.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	closeDB := func() { _ = db.Close() }
	return pgstore.New(db, pgstore.WithTxTimeout(cfg.TxTimeout)), pgstore.NewDirectoryStore(db), closeDB, nil
}

func openKafka(ctx context.Context, cfg config.KafkaConfig) (*kgo.Client, error) {
	kcfg := kafka.Config{
		Brokers:  cfg.Brokers,
		ClientID: cfg.ClientID,
		Topic:    cfg.Topic,
	}
	client, err := kafka.NewProducer(kcfg)
	if err != nil {
		return nil, err
	}
	if err := kafka.EnsureTopic(ctx, client, kcfg); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func retryPolicy(attempts int) *retry.Policy {
	p := retry.DefaultPolicy()
	if attempts > 0 {
		p.MaxAttempts = attempts
	}
	return &p
}
