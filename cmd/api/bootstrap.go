package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/api/http/handlers"
	"github.com/spec-kit/protocol-service/internal/cache"
	"github.com/spec-kit/protocol-service/internal/config"
	"github.com/spec-kit/protocol-service/internal/observability"
	"github.com/spec-kit/protocol-service/internal/persistence"
	"github.com/spec-kit/protocol-service/internal/repository"
	"github.com/spec-kit/protocol-service/internal/repository/memory"
)

const cachePrefix = "protocolos"

// runtime holds the process-wide resources shared by the commands.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	postgres *persistence.Postgres
	redis    *persistence.Redis
	repos    repository.Repositories
	cache    cache.Cache
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &runtime{cfg: cfg, logger: logger}, nil
}

// openStorage connects the configured repository backend and the dashboard cache.
func (r *runtime) openStorage(ctx context.Context, migrate bool) error {
	switch r.cfg.Storage.Driver {
	case config.StorageMemory:
		r.logger.Warn("using in-memory storage; data is lost on exit")
		r.repos = memory.NewRepositories()
		r.cache = cache.NewMemory()
		return nil
	case config.StoragePostgres:
		pg, err := persistence.NewPostgres(ctx, r.cfg.Postgres, r.logger)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		r.postgres = pg
		if migrate {
			if err := persistence.RunMigrations(ctx, pg.Pool, r.logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		r.repos = repository.NewPostgresRepositories(pg.Pool)
		if r.redis = persistence.NewRedis(ctx, r.cfg.Redis, r.logger); r.redis != nil {
			r.cache = cache.NewRedis(r.redis.Client, cachePrefix)
		}
		return nil
	}
	return fmt.Errorf("unsupported storage driver %q", r.cfg.Storage.Driver)
}

// readinessChecks lists the external dependencies that are actually in use.
func (r *runtime) readinessChecks() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if r.postgres != nil {
		checks["postgres"] = r.postgres
	}
	if r.redis != nil {
		checks["redis"] = r.redis
	}
	return checks
}

func (r *runtime) close() {
	r.redis.Close()
	r.postgres.Close()
	_ = r.logger.Sync()
}
