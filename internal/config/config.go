package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"judgebench/internal/store"
)

type Config struct {
	Port int    `env:"PORT,default=8000"`
	Env  string `env:"APP_ENV,default=local"`

	Store       store.Type    `env:"STORE,default=postgres"`
	DatabaseURL string        `env:"DATABASE_URL"`
	DBMaxConns  int           `env:"DB_MAX_CONNS,default=10"`
	DBConnLife  time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`

	OpenAIAPIKey   string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL  string        `env:"OPENAI_BASE_URL"`
	ModelName      string        `env:"MODEL_NAME,default=gpt-3.5-turbo"`
	JudgeTimeout   time.Duration `env:"JUDGE_TIMEOUT,default=30s"`
	JudgeMaxTokens int64         `env:"JUDGE_MAX_TOKENS,default=300"`

	RunConcurrency int           `env:"RUN_CONCURRENCY,default=5"`
	RunMaxRetries  int           `env:"RUN_MAX_RETRIES,default=0"`
	RunBaseBackoff time.Duration `env:"RUN_BASE_BACKOFF,default=500ms"`
	RunMaxBackoff  time.Duration `env:"RUN_MAX_BACKOFF,default=10s"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioBucket    string `env:"MINIO_BUCKET,default=judgebench"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL,default=false"`
}

// Load reads an optional .env file (ENV_PATH, default ".env") and then the
// process environment.
func Load(ctx context.Context) (Config, error) {
	path := os.Getenv("ENV_PATH")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom processes the configuration from an arbitrary lookuper.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case store.Postgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE=postgres")
		}
	case store.Memory:
	default:
		return fmt.Errorf("unknown STORE %q (want postgres or memory)", c.Store)
	}
	if c.RunConcurrency < 1 {
		return fmt.Errorf("RUN_CONCURRENCY must be at least 1, got %d", c.RunConcurrency)
	}
	if c.RunMaxRetries < 0 {
		return fmt.Errorf("RUN_MAX_RETRIES cannot be negative, got %d", c.RunMaxRetries)
	}
	if c.JudgeTimeout <= 0 {
		return fmt.Errorf("JUDGE_TIMEOUT must be positive, got %s", c.JudgeTimeout)
	}
	return nil
}

// ExportEnabled reports whether object storage is configured.
func (c Config) ExportEnabled() bool { return c.MinioEndpoint != "" }
