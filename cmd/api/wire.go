package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/bryanwahyu/agrivision/internal/application"
	appanalysis "github.com/bryanwahyu/agrivision/internal/application/analysis"
	"github.com/bryanwahyu/agrivision/internal/config"
	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
	"github.com/bryanwahyu/agrivision/internal/infra/backends"
	"github.com/bryanwahyu/agrivision/internal/infra/cache"
	"github.com/bryanwahyu/agrivision/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/agrivision/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/agrivision/internal/infra/db/postgres"
	"github.com/bryanwahyu/agrivision/internal/infra/observability"
	minioStore "github.com/bryanwahyu/agrivision/internal/infra/storage"
	"github.com/bryanwahyu/agrivision/internal/middleware"
)

// app holds everything serve/analyze need; Close releases the db.
type app struct {
	svc      *appanalysis.Service
	db       *sql.DB
	failures domain.FailureLog
	health   map[string]middleware.HealthChecker
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

type wireOptions struct {
	// inMemory forces the memory store and skips the archive (analyze command)
	inMemory bool
	metrics  *observability.Metrics
}

func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger, opts wireOptions) (*app, error) {
	a := &app{health: map[string]middleware.HealthChecker{}}
	reporters := domain.MultiReporter{observability.NewLogReporter(log)}

	repo, err := openStore(ctx, cfg, log, opts.inMemory, a, &reporters)
	if err != nil {
		return nil, err
	}
	repo, err = cache.New(repo, cfg.Cache.Size)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("result cache: %w", err)
	}

	var archive domain.ArchiveStore
	if cfg.Minio.Enabled && !opts.inMemory {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("minio init: %w", err)
		}
		archive = store
		a.health["archive"] = middleware.CheckFunc(store.Ping)
	}

	reg, err := backends.NewRegistry(ctx, cfg.Backends, &http.Client{})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.health["backends"] = middleware.CheckFunc(func(context.Context) error {
		if len(reg) == 0 {
			return domain.ErrNotConfigured
		}
		return nil
	})

	svc := &appanalysis.Service{
		Registry:       reg,
		Repo:           repo,
		Archive:        archive,
		Failures:       a.failures,
		Weights:        weightsFrom(cfg),
		Clock:          application.SystemClock{},
		Logger:         log,
		BackendTimeout: cfg.Analysis.BackendTimeout,
	}
	if opts.metrics != nil {
		svc.Metrics = opts.metrics
		reporters = append(reporters, opts.metrics)
	}
	svc.Reporter = reporters
	a.svc = svc
	return a, nil
}

// openStore picks the Result Store by driver; SQL drivers also log failures to the db.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger, inMemory bool, a *app, reporters *domain.MultiReporter) (domain.Repository, error) {
	driver := cfg.Database.Driver
	if inMemory {
		driver = "memory"
	}
	switch driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		a.db = db
		if err := mysqlp.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, fmt.Errorf("mysql migrate: %w", err)
		}
		failures := mysqlp.NewFailureRepository(db, log)
		*reporters = append(*reporters, failures)
		a.failures = failures
		a.health["database"] = &middleware.DatabaseHealthChecker{DB: db}
		return mysqlp.NewAnalysisRepository(db), nil
	case "postgres":
		db, err := pgp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		a.db = db
		if err := pgp.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		failures := pgp.NewFailureRepository(db, log)
		*reporters = append(*reporters, failures)
		a.failures = failures
		a.health["database"] = &middleware.DatabaseHealthChecker{DB: db}
		return pgp.NewAnalysisRepository(db), nil
	default:
		return memory.NewAnalysisRepository(), nil
	}
}

// weightsFrom overlays configured weights on the built-in table.
func weightsFrom(cfg *config.Config) domain.WeightTable {
	t := domain.DefaultWeights()
	for id, w := range cfg.Weights.Backends {
		t.Weights[domain.BackendID(id)] = w
	}
	if cfg.Weights.Fallback > 0 {
		t.Fallback = cfg.Weights.Fallback
	}
	return t
}

// defaultBackends: the configured list, or every registered backend when none is set.
func defaultBackends(cfg *config.Config, reg domain.Registry) []domain.BackendID {
	if len(cfg.Analysis.DefaultBackends) == 0 {
		return reg.IDs()
	}
	out := make([]domain.BackendID, 0, len(cfg.Analysis.DefaultBackends))
	for _, id := range cfg.Analysis.DefaultBackends {
		out = append(out, domain.BackendID(id))
	}
	return out
}
