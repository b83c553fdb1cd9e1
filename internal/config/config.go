// Package config loads settings from the environment and builds the
// application context from them.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds all application configuration. Every field is read from the
// environment variable named in its env tag.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Meilisearch MeilisearchConfig
	Storage     StorageConfig
	Tasks       TasksConfig
	Auth        AuthConfig
	Logging     LoggingConfig
	Catalog     CatalogConfig
}

type ServerConfig struct {
	Port int `env:"SERVER_PORT" default:"8080"`

	// Environment is "production" or anything else for development.
	Environment string `env:"ENVIRONMENT" default:"development"`

	// AllowedOrigins is a comma separated CORS allow list used in production.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" required:"true"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" default:"100"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" default:"1h"`
}

type MeilisearchConfig struct {
	Host         string `env:"MEILISEARCH_HOST" default:"http://localhost:7700"`
	APIKey       string `env:"MEILISEARCH_API_KEY"`
	RowsIndex    string `env:"MEILISEARCH_ROWS_INDEX" default:"rows"`
	CatalogIndex string `env:"MEILISEARCH_CATALOG_INDEX" default:"datasets"`
}

type StorageConfig struct {
	// Backend selects "gcs" or "local".
	Backend         string `env:"STORAGE_BACKEND" default:"local"`
	Bucket          string `env:"GCS_BUCKET_NAME"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
	LocalRoot       string `env:"STORAGE_LOCAL_ROOT" default:"./data"`
	MaxUploadSize   int64  `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`
}

type TasksConfig struct {
	Concurrency int `env:"TASKS_CONCURRENCY" default:"4"`
	BatchSize   int `env:"TASKS_BATCH_SIZE" default:"500"`
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET" default:"development-secret"`
	TokenTTL  time.Duration `env:"JWT_TTL" default:"24h"`
}

type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" default:"info"`
}

type CatalogConfig struct {
	// Uncategorized stands in for the category list of datasets without one.
	Uncategorized string `env:"CATALOG_UNCATEGORIZED" default:"uncategorized"`
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Origins returns the CORS allow list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate checks values that the loader cannot.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("SERVER_PORT must be between 1 and 65535"))
	}
	switch c.Storage.Backend {
	case "local":
	case "gcs":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("GCS_BUCKET_NAME is required for the gcs storage backend"))
		}
	default:
		errs = append(errs, errors.New("STORAGE_BACKEND must be gcs or local"))
	}
	if c.Tasks.Concurrency < 1 {
		errs = append(errs, errors.New("TASKS_CONCURRENCY must be at least 1"))
	}
	if c.Tasks.BatchSize < 1 {
		errs = append(errs, errors.New("TASKS_BATCH_SIZE must be at least 1"))
	}
	if c.IsProduction() && c.Auth.JWTSecret == "development-secret" {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be debug, info, warn or error"))
	}

	return errors.Join(errs...)
}
