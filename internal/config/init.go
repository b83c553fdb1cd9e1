package config

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"github.com/kerem-kaynak/tablecat/internal/appcontext"
	"github.com/kerem-kaynak/tablecat/internal/dataset"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/jobs"
	"github.com/kerem-kaynak/tablecat/internal/lock"
	"github.com/kerem-kaynak/tablecat/internal/metrics"
	"github.com/kerem-kaynak/tablecat/internal/search"
	"github.com/kerem-kaynak/tablecat/internal/storage"
	"github.com/kerem-kaynak/tablecat/internal/tasks"
	"github.com/kerem-kaynak/tablecat/internal/upload"
	"github.com/meilisearch/meilisearch-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// maxDatasetGroups caps how many datasets a search across all rows can group.
const maxDatasetGroups = 10_000

func InitContext() (*appcontext.Context, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Warn("No .env file found, using environment variables")
	}

	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	logger, err := InitLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	engine, err := InitMeilisearch(cfg.Meilisearch, logger)
	if err != nil {
		return nil, err
	}

	objects, err := InitStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	collections := dataset.Collections{
		Rows:          cfg.Meilisearch.RowsIndex,
		Catalog:       cfg.Meilisearch.CatalogIndex,
		Uncategorized: cfg.Catalog.Uncategorized,
	}

	taskStore := tasks.NewStore(db)
	runner := tasks.NewRunner(taskStore, logger, tasks.WithConcurrency(cfg.Tasks.Concurrency))

	uploads := upload.NewStore(db)
	formats := upload.NewRegistry()
	formats.Register(".csv", tasks.Import, upload.NewCSV(objects))

	datasetStore := dataset.NewStore(db)
	datasetStore.OnDelete(dataset.NewIndexPurger(engine, collections, logger).AfterDelete)

	locks := lock.NewManager(lock.NewGormStore(db), logger)
	datasets := dataset.NewService(datasetStore, locks, engine, taskStore, runner, formats, collections, logger)

	taskBodies := jobs.New(datasets, uploads, formats, objects, taskStore, cfg.Tasks.BatchSize, logger)
	taskBodies.Register(runner)

	ctx := &appcontext.Context{
		DB:     db,
		Logger: logger,

		Engine:  engine,
		Storage: objects,
		Metrics: registry,

		Datasets: datasets,
		Uploads:  uploads,
		Registry: formats,
		Tasks:    taskStore,
		Runner:   runner,
		Jobs:     taskBodies,

		Addr:            fmt.Sprintf(":%d", cfg.Server.Port),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CatalogIndex:    cfg.Meilisearch.CatalogIndex,
		JWTSecret:       []byte(cfg.Auth.JWTSecret),
		TokenTTL:        cfg.Auth.TokenTTL,
		AllowedOrigins:  cfg.Origins(),
		Production:      cfg.IsProduction(),
		MaxUploadSize:   cfg.Storage.MaxUploadSize,
	}

	return ctx, nil
}

func InitDB(cfg DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(entity.Models()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func InitLogger(cfg *Config) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	zapCfg.Level = level

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func InitMeilisearch(cfg MeilisearchConfig, logger *zap.Logger) (*search.Meilisearch, error) {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   cfg.Host,
		APIKey: cfg.APIKey,
	})

	engine := search.NewMeilisearch(client, logger)
	err := engine.Setup(context.Background(),
		search.Collection{
			Name:           cfg.RowsIndex,
			Filterable:     []string{search.FieldDatasetSlug, search.FieldExternalID},
			Searchable:     []string{search.FieldFullText},
			MaxFacetValues: maxDatasetGroups,
		},
		search.Collection{
			Name:       cfg.CatalogIndex,
			Filterable: []string{search.FieldSlug, search.FieldCategories},
			Searchable: []string{search.FieldName, search.FieldFullText},
			Sortable:   []string{search.FieldCreationDate},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up search indexes: %w", err)
	}

	return engine, nil
}

func InitStorage(cfg StorageConfig) (storage.ObjectStorage, error) {
	if cfg.Backend == "local" {
		return storage.NewLocal(cfg.LocalRoot), nil
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCS client: %w", err)
	}
	return storage.NewGCS(client, cfg.Bucket), nil
}
