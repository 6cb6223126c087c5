// Package bootstrap builds the shared dependency graph used by the API
// server, the queue worker and the CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"annotation-backend/internal/annotations"
	"annotation-backend/internal/engine"
	"annotation-backend/internal/engine/dictionary"
	"annotation-backend/internal/engine/remote"
	"annotation-backend/internal/pipeline"
	"annotation-backend/internal/queue"
	"annotation-backend/internal/services/health"
	"annotation-backend/internal/shared/config"
	"annotation-backend/internal/shared/server"
	"annotation-backend/internal/shared/storage/db"
	"annotation-backend/internal/shared/storage/object"
	localstore "annotation-backend/internal/shared/storage/object/local"
	s3store "annotation-backend/internal/shared/storage/object/s3"
	"annotation-backend/internal/shared/telemetry"
)

// App holds shared dependencies.
type App struct {
	Config   config.Config
	Router   *gin.Engine
	DB       *sql.DB
	Store    object.ObjectStore
	Queue    queue.Client
	Engine   *engine.Manager
	Pipeline *pipeline.Processor
	Repo     annotations.Repo
	Service  *annotations.Service
	Handler  *annotations.Handler
	Health   *health.Service
}

// Build prepares shared dependencies and the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	factory, err := EngineFactory(cfg)
	if err != nil {
		return nil, err
	}
	manager := NewManager(cfg, factory)

	sqlDB, repo, err := buildRepo(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		closeDB(sqlDB)
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		closeDB(sqlDB)
		return nil, err
	}

	processor := pipeline.New(manager)
	svc := &annotations.Service{
		Repo:     repo,
		Store:    store,
		Pipeline: processor,
		Queue:    queueClient,
	}

	app := &App{
		Config:   cfg,
		DB:       sqlDB,
		Store:    store,
		Queue:    queueClient,
		Engine:   manager,
		Pipeline: processor,
		Repo:     repo,
		Service:  svc,
		Handler:  annotations.NewHandler(svc, cfg.MaxUploadBytes, retryAfter(cfg)),
		Health:   health.NewService(manager, sqlDB),
	}
	app.Router = server.NewRouter(server.RouterDeps{
		Config:      cfg,
		Annotations: app.Handler,
		Health:      app.Health,
	})
	return app, nil
}

// Close releases the engine and the database.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Engine != nil {
		errs = append(errs, a.Engine.Close(ctx))
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// EngineFactory selects the engine implementation named by ENGINE.
func EngineFactory(cfg config.Config) (engine.Factory, error) {
	switch cfg.Engine {
	case config.EngineRemote:
		if strings.TrimSpace(cfg.EngineURL) == "" {
			return nil, fmt.Errorf("ENGINE=remote requires ENGINE_URL")
		}
		return remote.NewFactory(remote.Config{
			BaseURL:      cfg.EngineURL,
			Timeout:      cfg.EngineTimeout,
			TokenURL:     cfg.EngineTokenURL,
			ClientID:     cfg.EngineClientID,
			ClientSecret: cfg.EngineClientSecret,
			Scopes:       cfg.EngineScopes,
		}), nil
	case config.EngineDictionary, "":
		return dictionary.NewFactory(cfg.EngineDictionary), nil
	default:
		return nil, fmt.Errorf("unknown ENGINE %q", cfg.Engine)
	}
}

// NewManager wraps factory with the configured lock timeout.
func NewManager(cfg config.Config, factory engine.Factory) *engine.Manager {
	var opts []engine.Option
	if cfg.EngineLockTimeout > 0 {
		opts = append(opts, engine.WithLockTimeout(cfg.EngineLockTimeout))
	}
	return engine.NewManager(factory, opts...)
}

func retryAfter(cfg config.Config) time.Duration {
	if cfg.EngineLockTimeout > 0 {
		return cfg.EngineLockTimeout
	}
	return time.Second
}

func buildRepo(ctx context.Context, cfg config.Config) (*sql.DB, annotations.Repo, error) {
	switch cfg.RunStore {
	case config.RunStorePostgres:
		sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err == nil {
			err = db.RunMigrations(ctx, sqlDB, db.DriverPostgres)
			if err != nil {
				sqlDB.Close()
			}
		}
		if err != nil {
			if isDevLike(cfg.Env) {
				telemetry.Warn("bootstrap.db_fallback", map[string]any{"store": cfg.RunStore, "error": err.Error()})
				return nil, annotations.NewMemoryRepo(), nil
			}
			return nil, nil, err
		}
		return sqlDB, &annotations.PGRepo{DB: sqlDB}, nil
	case config.RunStoreSQLite:
		sqlDB, err := db.ConnectSQLite(ctx, cfg.SQLitePath, db.OptionsFromEnv(db.DefaultSQLiteOptions()))
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(ctx, sqlDB, db.DriverSQLite); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		return sqlDB, &annotations.SQLiteRepo{DB: sqlDB}, nil
	default:
		telemetry.Info("bootstrap.memory_run_store", map[string]any{"env": cfg.Env})
		return nil, annotations.NewMemoryRepo(), nil
	}
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func closeDB(sqlDB *sql.DB) {
	if sqlDB != nil {
		sqlDB.Close()
	}
}
