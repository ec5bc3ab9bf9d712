package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"visitorbook/internal/archive"
	"visitorbook/internal/events/outbox"
	"visitorbook/internal/events/publisher"
	jwttoken "visitorbook/internal/jwt_token"
	"visitorbook/internal/ledger"
	"visitorbook/internal/platform/config"
	platformmetrics "visitorbook/internal/platform/metrics"
	"visitorbook/internal/platform/postgres"
	"visitorbook/internal/platform/redis"
	"visitorbook/internal/visitorbook/handler"
	vbmetrics "visitorbook/internal/visitorbook/metrics"
	"visitorbook/internal/visitorbook/runtime"
	"visitorbook/internal/visitorbook/service"
	"visitorbook/internal/visitorbook/store"
	dErrors "visitorbook/pkg/domain-errors"
	"visitorbook/pkg/platform/tx"
)

const memoryLockTimeout = 5 * time.Second

type app struct {
	router   http.Handler
	worker   *outbox.Worker
	exporter *archive.Exporter
	closers  []io.Closer
}

// Close releases every resource opened by build, in reverse order.
func (a *app) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// backend is the storage chosen by STORE_DRIVER.
type backend struct {
	registry store.Backend
	ledger   runtime.Ledger
	events   outbox.Store
	runner   tx.Runner
	db       *sql.DB
}

// build assembles the application. Metrics are registered with reg and served
// from gatherer.
func build(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return a, err
	}
	checks := map[string]func(context.Context) error{}
	if b.db != nil {
		a.closers = append(a.closers, b.db)
		checks["postgres"] = b.db.PingContext
	}

	registry := b.registry
	if cfg.Redis.URL != "" && cfg.StoreDriver != config.DriverPostgres {
		log.Warn("REDIS_URL ignored: the registry cache requires STORE_DRIVER=postgres")
	} else {
		rc, err := redis.Open(ctx, cfg.Redis)
		if err != nil {
			return a, err
		}
		if rc != nil {
			a.closers = append(a.closers, rc)
			checks["redis"] = redis.Check(rc)
			registry = store.NewRedisCache(registry, rc, cfg.Contract, store.WithCacheLogger(log))
		}
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(vbmetrics.NewWithRegisterer(reg)),
	}
	if cfg.Owner != nil {
		opts = append(opts, service.WithOwner(*cfg.Owner))
	}
	svc, err := service.New(registry, runtime.NewHost(cfg.Contract, b.ledger, b.events), opts...)
	if err != nil {
		return a, err
	}
	executor := runtime.NewExecutor(svc, b.ledger, b.runner, cfg.Contract, log)
	if err := bootstrap(ctx, executor, cfg, log); err != nil {
		return a, err
	}

	pub, err := openPublisher(ctx, cfg, log)
	if err != nil {
		return a, err
	}
	if c, ok := pub.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.worker, err = outbox.NewWorker(b.events, pub,
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithLogger(log),
		outbox.WithMetrics(outbox.NewMetrics(reg)),
	)
	if err != nil {
		return a, err
	}

	blobs, err := openBlobStore(ctx, cfg.Archive)
	if err != nil {
		return a, err
	}
	a.exporter, err = archive.NewExporter(executor, blobs, log)
	if err != nil {
		return a, err
	}

	validator := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer))
	h := handler.New(executor, a.exporter, validator, cfg.Owner, log, platformmetrics.NewWithRegisterer(reg))

	r := chi.NewRouter()
	r.Get("/healthz", healthz(checks))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	h.Register(r)
	a.router = r
	return a, nil
}

func openBackend(ctx context.Context, cfg config.Server) (backend, error) {
	if cfg.StoreDriver != config.DriverPostgres {
		return backend{
			registry: store.NewInMemoryStore(),
			ledger:   ledger.NewInMemory(),
			events:   outbox.NewInMemoryStore(),
			runner:   tx.NewLockRunner(memoryLockTimeout),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return backend{}, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return backend{}, err
	}
	return backend{
		registry: store.NewPostgres(db),
		ledger:   ledger.NewPostgres(db),
		events:   outbox.NewPostgresStore(db),
		runner:   tx.NewPostgresRunner(db, postgres.AdvisoryLockKey),
		db:       db,
	}, nil
}

// bootstrap initializes the registry on first start. Replicas racing on a
// shared database see "already initialized", which is fine.
func bootstrap(ctx context.Context, executor *runtime.Executor, cfg config.Server, log *slog.Logger) error {
	caller := cfg.Contract
	if cfg.Owner != nil {
		caller = *cfg.Owner
	}
	err := executor.Initialize(ctx, caller)
	switch {
	case err == nil:
		log.Info("registry initialized at startup", "caller", caller.Hex())
	case dErrors.HasCode(err, dErrors.CodeAlreadyInitialized):
	default:
		return fmt.Errorf("initialize registry: %w", err)
	}
	return nil
}

func openPublisher(ctx context.Context, cfg config.Server, log *slog.Logger) (outbox.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("no kafka brokers configured; visit events go to the log")
		return publisher.NewLog(log), nil
	}
	k, err := publisher.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.VisitTopic)
	if err != nil {
		return nil, err
	}
	if err := k.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
		_ = k.Close()
		return nil, err
	}
	return k, nil
}

func openBlobStore(ctx context.Context, cfg config.ArchiveConfig) (archive.BlobStore, error) {
	if cfg.Bucket == "" {
		return archive.NewMemoryBlobStore(), nil
	}
	return archive.NewS3BlobStore(ctx, archive.S3Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
}

func healthz(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
