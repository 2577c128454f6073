package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"moscowboard/api/internal/app"
	"moscowboard/api/internal/config"
	"moscowboard/api/internal/export"
	"moscowboard/api/internal/feed"
	"moscowboard/api/internal/i18n"
	"moscowboard/api/internal/search"
	"moscowboard/api/internal/session"
	"moscowboard/api/internal/store"
)

// runtime holds the backends shared by every command. Optional backends
// stay nil when their configuration is empty.
type runtime struct {
	cfg       config.Config
	logger    *logrus.Logger
	db        *sqlx.DB
	store     *store.SQLStore
	redis     *redis.Client
	sessions  app.SessionStore
	publisher feed.Publisher
	relay     *feed.RedisRelay
	catalog   *i18n.Catalog
	search    *search.Service
	exporter  *export.Service
	archiver  *export.Archiver
}

func openRuntime(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*runtime, error) {
	catalog, err := i18n.Load(cfg.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("load locales: %w", err)
	}

	db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		store:   store.NewSQLStore(db, cfg.DatabaseDriver),
		catalog: catalog,
	}

	local := feed.NewMemoryPublisher()
	rt.publisher = local
	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := session.Connect(cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.redis = client
		rt.sessions = session.NewRedisStoreWithClient(client)
		rt.relay = feed.NewRedisRelay(local, client, cfg.FeedChannel, logger)
		rt.publisher = rt.relay
		logger.Info("using redis for refresh sessions and the feed relay")
	} else {
		rt.sessions = rt.store
		logger.WithField("driver", cfg.DatabaseDriver).Info("using the database for refresh sessions")
	}

	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		engine = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	rt.search = search.NewService(engine, search.NewSQLSearch(rt.store), logger)

	rt.exporter = export.NewService(rt.store, catalog)
	if cfg.ArchiveEnabled() {
		client, err := export.NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("object storage: %w", err)
		}
		rt.archiver = export.NewArchiver(client, cfg.MinioBucket, rt.exporter, logger)
	}
	return rt, nil
}

func (rt *runtime) service() *app.Service {
	deps := app.Deps{
		Store:     rt.store,
		Sessions:  rt.sessions,
		Publisher: rt.publisher,
		Catalog:   rt.catalog,
		Search:    rt.search,
		Exporter:  rt.exporter,
		Logger:    rt.logger,
	}
	if rt.archiver != nil {
		deps.Archiver = rt.archiver
	}
	return app.New(rt.cfg, deps)
}

func (rt *runtime) Close() {
	if rt.search != nil {
		rt.search.Close()
	}
	if rt.publisher != nil {
		rt.publisher.Close()
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	if rt.db != nil {
		_ = rt.db.Close()
	}
}
