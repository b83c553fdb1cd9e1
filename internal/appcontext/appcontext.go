package appcontext

import (
	"time"

	"github.com/kerem-kaynak/tablecat/internal/dataset"
	"github.com/kerem-kaynak/tablecat/internal/jobs"
	"github.com/kerem-kaynak/tablecat/internal/search"
	"github.com/kerem-kaynak/tablecat/internal/storage"
	"github.com/kerem-kaynak/tablecat/internal/tasks"
	"github.com/kerem-kaynak/tablecat/internal/upload"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Context carries the long lived clients and services shared by handlers.
type Context struct {
	DB     *gorm.DB
	Logger *zap.Logger

	Engine  search.Engine
	Storage storage.ObjectStorage
	Metrics *prometheus.Registry

	Datasets *dataset.Service
	Uploads  *upload.Store
	Registry *upload.Registry
	Tasks    *tasks.Store
	Runner   *tasks.Runner
	Jobs     *jobs.Jobs

	Addr            string
	ShutdownTimeout time.Duration
	CatalogIndex    string
	JWTSecret       []byte
	TokenTTL        time.Duration
	AllowedOrigins  []string
	Production      bool
	MaxUploadSize   int64
}
