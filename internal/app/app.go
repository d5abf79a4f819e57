package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/jmoiron/sqlx"

	"judgebench/internal/config"
	"judgebench/internal/db"
	"judgebench/internal/migrations"
	"judgebench/internal/qa"
	"judgebench/internal/results"
	"judgebench/internal/runner"
	"judgebench/internal/storage"
	"judgebench/internal/store"
)

// App holds the services shared by the API server and the CLI.
type App struct {
	Config  config.Config
	Store   store.Store
	Runner  *runner.Orchestrator
	Results *results.Service
	Objects *storage.Client // nil when object storage is not configured

	dbx *sqlx.DB
}

// New opens the configured store, applying migrations first for Postgres, and
// wires the judge client, orchestrator and results service on top of it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}

	switch cfg.Store {
	case store.Memory:
		clog.FromContext(ctx).Warnf("using in-memory store; data is lost on exit")
		a.Store = store.NewMemory()
	case store.Postgres:
		if err := migrations.Run(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		dbx, err := db.Open(ctx, db.PoolConfig{
			DSN:             cfg.DatabaseURL,
			MaxOpenConns:    cfg.DBMaxConns,
			ConnMaxLifetime: cfg.DBConnLife,
		})
		if err != nil {
			return nil, err
		}
		a.dbx = dbx
		a.Store = store.NewPostgres(dbx)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	judge := qa.NewOpenAIJudge(qa.OpenAIConfig{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		DefaultModel: cfg.ModelName,
		Timeout:      cfg.JudgeTimeout,
		MaxTokens:    cfg.JudgeMaxTokens,
	})
	retry := runner.DefaultRetryConfig()
	retry.MaxRetries = cfg.RunMaxRetries
	retry.BaseBackoff = cfg.RunBaseBackoff
	retry.MaxBackoff = cfg.RunMaxBackoff
	if err := retry.Validate(); err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.Runner = runner.New(a.Store, judge, runner.Config{Concurrency: cfg.RunConcurrency, Retry: retry})

	var objects results.ObjectStore
	if cfg.ExportEnabled() {
		c, err := storage.New(ctx, storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			Bucket:    cfg.MinioBucket,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, errors.Join(err, a.Close())
		}
		if err := c.EnsureBucket(ctx); err != nil {
			clog.FromContext(ctx).Warnf("object storage unavailable, exports will fail: %v", err)
		}
		a.Objects = c
		objects = c
	}
	a.Results = results.NewService(a.Store, objects)
	return a, nil
}

func (a *App) Close() error {
	if a.dbx != nil {
		return a.dbx.Close()
	}
	return nil
}
