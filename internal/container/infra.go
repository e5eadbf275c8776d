package container

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-graph/config"
	pginfra "github.com/oksasatya/go-user-graph/internal/infrastructure/postgres"
	"github.com/oksasatya/go-user-graph/pkg/helpers"
)

// OpenInfra connects the external services named by cfg. Postgres and Redis
// are required in postgres mode; Elasticsearch and GCS are optional and are
// skipped with a warning when unconfigured or unreachable. The returned
// close func releases whatever was opened.
func OpenInfra(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (Infra, func(), error) {
	var (
		infra   Infra
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.StoreDriver == "postgres" {
		pool, err := pginfra.NewPool(ctx, pginfra.PoolConfig{
			DSN:         cfg.PostgresDSN(),
			MaxConns:    cfg.DBMaxConns,
			MinConns:    cfg.DBMinConns,
			MaxConnLife: cfg.DBMaxConnLife,
		})
		if err != nil {
			return infra, closeAll, fmt.Errorf("connect postgres: %w", err)
		}
		infra.Pool = pool
		closers = append(closers, pool.Close)

		rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		closers = append(closers, func() { _ = rdb.Close() })
		if err := helpers.PingRedis(ctx, rdb); err != nil {
			closeAll()
			return Infra{}, func() {}, fmt.Errorf("connect redis: %w", err)
		}
		infra.Redis = rdb
	}

	if addrs := cfg.ESAddrs(); len(addrs) > 0 {
		es, err := helpers.NewESClient(addrs, cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			logger.WithError(err).Warn("elasticsearch disabled")
		} else {
			infra.ES = es
		}
	}

	if cfg.GCSBucket != "" {
		gcs, err := helpers.NewGCSClient(ctx, cfg.GCSCredentialsJSONPath)
		if err != nil {
			logger.WithError(err).Warn("gcs disabled; avatar upload unavailable")
		} else {
			infra.GCS = gcs
			closers = append(closers, func() { _ = gcs.Close() })
		}
	}

	return infra, closeAll, nil
}
