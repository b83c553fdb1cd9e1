// Package dataset owns the dataset lifecycle: creation, locked import,
// reindex and export runs, row level index writes and deletion.
package dataset

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/lock"
	"github.com/kerem-kaynak/tablecat/internal/search"
	"github.com/kerem-kaynak/tablecat/internal/tasks"
	"go.uber.org/zap"
)

// TaskQueue hands work to the task subsystem.
type TaskQueue interface {
	ApplyAsync(ctx context.Context, req tasks.Request) error
	RequestAbort(ctx context.Context, id uuid.UUID) error
}

// UploadResolver maps an upload to the task able to import it.
type UploadResolver interface {
	TaskTypeFor(u *entity.DataUpload) (string, bool)
}

// Collections names the index collections and the catalog's fallback
// category.
type Collections struct {
	Rows          string
	Catalog       string
	Uncategorized string
}

type Service struct {
	store   *Store
	locks   *lock.Manager
	engine  search.Engine
	tasks   *tasks.Store
	queue   TaskQueue
	uploads UploadResolver
	logger  *zap.Logger

	collections Collections
	now         func() time.Time
}

func NewService(
	store *Store,
	locks *lock.Manager,
	engine search.Engine,
	taskStore *tasks.Store,
	queue TaskQueue,
	uploads UploadResolver,
	collections Collections,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:       store,
		locks:       locks,
		engine:      engine,
		tasks:       taskStore,
		queue:       queue,
		uploads:     uploads,
		logger:      logger,
		collections: collections,
		now:         time.Now,
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entity.Dataset, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*entity.Dataset, error) {
	return s.store.GetBySlug(ctx, slug)
}

func (s *Service) Save(ctx context.Context, ds *entity.Dataset) error {
	return s.store.Save(ctx, ds)
}

// Unlock releases the dataset lock. Task bodies call it when they finish.
func (s *Service) Unlock(ctx context.Context, id uuid.UUID) error {
	return s.locks.Unlock(ctx, id)
}

// RecordModification stamps the audit fields of ds. It does not persist.
func (s *Service) RecordModification(ds *entity.Dataset, userID *uuid.UUID, summary string) {
	now := s.now().UTC()
	ds.LastModified = &now
	ds.LastModification = &summary
	if userID != nil {
		id := *userID
		ds.LastModifiedByID = &id
	}
}

func userID(u *entity.User) *uuid.UUID {
	if u == nil {
		return nil
	}
	id := u.ID
	return &id
}
