package container

import (
	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-graph/config"
	"github.com/oksasatya/go-user-graph/internal/application"
	"github.com/oksasatya/go-user-graph/internal/domain/repository"
	"github.com/oksasatya/go-user-graph/internal/infrastructure/memory"
	pginfra "github.com/oksasatya/go-user-graph/internal/infrastructure/postgres"
	"github.com/oksasatya/go-user-graph/internal/infrastructure/redisstore"
	"github.com/oksasatya/go-user-graph/internal/infrastructure/search"
	"github.com/oksasatya/go-user-graph/pkg/helpers"
)

const auditLockKey = "follow:audit:lock"

// Infra carries the external clients opened by an entrypoint. Any of them
// may be nil; the container falls back to in-process stand-ins where one
// exists and disables the feature otherwise.
type Infra struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
	GCS   *storage.Client
	ES    *elasticsearch.Client
}

// Container is the application object graph. Entrypoints build one and pass
// it to the router and workers explicitly.
type Container struct {
	Config *config.Config
	Logger *logrus.Logger
	Redis  *redis.Client
	JWT    *helpers.JWTManager

	Repo     repository.UserRepository
	Recorder application.InconsistencyRecorder
	Inbox    application.Inbox
	Locker   application.Locker
	Indexer  *search.UserIndexer

	Follow  *application.FollowService
	Ingest  *application.IngestService
	Profile *application.ProfileService
	Auditor *application.Auditor
}

func New(cfg *config.Config, logger *logrus.Logger, infra Infra) *Container {
	c := &Container{
		Config: cfg,
		Logger: logger,
		Redis:  infra.Redis,
		JWT:    helpers.NewJWTManager(cfg.JWTAccessSecret, cfg.AccessTTL),
	}

	if cfg.StoreDriver == "memory" || infra.Pool == nil {
		c.Repo = memory.NewUserRepository()
	} else {
		c.Repo = pginfra.NewUserRepository(infra.Pool)
	}

	if infra.Redis != nil {
		c.Recorder = redisstore.NewAuditQueue(infra.Redis, cfg.AuditMarkerKey)
		c.Inbox = redisstore.NewInbox(infra.Redis, cfg.IngestDedupTTL)
		c.Locker = redisstore.NewLock(infra.Redis, auditLockKey)
	} else {
		c.Recorder = memory.NewAuditQueue()
	}

	var (
		indexer  application.UserIndexer
		searcher application.UserSearcher
		uploader application.ObjectUploader
	)
	if infra.ES != nil {
		c.Indexer = search.NewUserIndexer(infra.ES, cfg.ESUsersIndex, search.BreakerSettings{})
		indexer, searcher = c.Indexer, c.Indexer
	}
	if infra.GCS != nil && cfg.GCSBucket != "" {
		uploader = helpers.NewGCSUploader(infra.GCS, cfg.GCSBucket)
	}

	c.Follow = application.NewFollowService(c.Repo, c.Recorder, logger, cfg.FollowRetryDelay)
	c.Ingest = application.NewIngestService(c.Repo, c.Inbox, indexer, logger)
	c.Profile = application.NewProfileService(c.Repo, indexer, searcher, uploader, logger)
	c.Auditor = application.NewAuditor(c.Repo, c.Recorder, c.Locker, logger, cfg.AuditBatchSize, cfg.AuditLockTTL)
	c.Auditor.SettleWindow = cfg.AuditSettleWindow
	return c
}
