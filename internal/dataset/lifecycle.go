package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/schema"
	"github.com/kerem-kaynak/tablecat/internal/tasks"
	"go.uber.org/zap"
)

// CreateInput describes a new dataset. Slug is used as given when set and
// derived from Name otherwise.
type CreateInput struct {
	Name        string
	Description string
	Slug        string
	CategoryIDs []uuid.UUID
}

// Create stores a new dataset without schema and indexes its catalog entry.
func (s *Service) Create(ctx context.Context, creator *entity.User, in CreateInput) (*entity.Dataset, error) {
	slug := in.Slug
	if slug == "" {
		var err error
		if slug, err = s.uniqueSlug(ctx, in.Name); err != nil {
			return nil, err
		}
	} else if schema.DatasetSlug(slug) != slug {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	} else if taken, err := s.store.SlugExists(ctx, slug); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrSlugTaken
	}

	cats, err := s.store.Categories(ctx, in.CategoryIDs)
	if err != nil {
		return nil, err
	}

	ds := &entity.Dataset{
		Slug:        slug,
		Name:        in.Name,
		Description: in.Description,
		CreatorID:   creator.ID,
	}
	if err := s.store.Create(ctx, ds); err != nil {
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}
	if len(cats) > 0 {
		if err := s.store.SetCategories(ctx, ds, cats); err != nil {
			return nil, fmt.Errorf("failed to set categories: %w", err)
		}
	}

	if err := s.UpdateFullTextIndex(ctx, ds.ID, true); err != nil {
		return nil, err
	}
	s.logger.Info("Dataset created", zap.String("dataset", ds.Slug))
	return ds, nil
}

func (s *Service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := schema.DatasetSlug(name)
	if base == "" {
		base = "dataset"
	}

	candidate := base
	for n := 2; ; n++ {
		taken, err := s.store.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}

type MetadataInput struct {
	Name        *string
	Description *string
	CategoryIDs *[]uuid.UUID
}

// UpdateMetadata changes descriptive fields and refreshes the catalog entry.
// It does not take the lock.
func (s *Service) UpdateMetadata(ctx context.Context, id uuid.UUID, in MetadataInput) (*entity.Dataset, error) {
	ds, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		ds.Name = *in.Name
	}
	if in.Description != nil {
		ds.Description = *in.Description
	}
	if err := s.store.Save(ctx, ds); err != nil {
		return nil, fmt.Errorf("failed to save dataset: %w", err)
	}

	if in.CategoryIDs != nil {
		cats, err := s.store.Categories(ctx, *in.CategoryIDs)
		if err != nil {
			return nil, err
		}
		if err := s.store.SetCategories(ctx, ds, cats); err != nil {
			return nil, fmt.Errorf("failed to set categories: %w", err)
		}
	}

	if err := s.UpdateFullTextIndex(ctx, ds.ID, true); err != nil {
		return nil, err
	}
	return ds, nil
}

// ImportData locks the dataset, checks the upload against the schema and
// dispatches the import task. The task unlocks the dataset when it ends.
func (s *Service) ImportData(ctx context.Context, id uuid.UUID, user *entity.User, upload *entity.DataUpload, externalIDField *int) (ds *entity.Dataset, err error) {
	if err := s.locks.Lock(ctx, id); err != nil {
		return nil, err
	}
	defer s.unlockOnError(ctx, id, &err)

	ds, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upload.Imported {
		return nil, ErrAlreadyImported
	}
	taskType, ok := s.uploads.TaskTypeFor(upload)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, upload.OriginalFilename)
	}
	if externalIDField != nil && (*externalIDField < 0 || *externalIDField >= len(upload.Columns)) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidExternalIDField, *externalIDField)
	}

	if ds.HasSchema() {
		if !schema.SameColumns(ds.ColumnSchema, upload.Columns) {
			return nil, ErrSchemaMismatch
		}
	} else {
		ds.ColumnSchema = schema.FromUpload(upload.Columns, upload.GuessedTypes)
	}

	if len(ds.SampleData) == 0 {
		sample := upload.SampleData
		if len(sample) > entity.SampleSize {
			sample = sample[:entity.SampleSize]
		}
		ds.SampleData = sample
	}
	if ds.RowCount == nil && ds.InitialUploadID == nil {
		uploadID := upload.ID
		ds.InitialUploadID = &uploadID
	}

	uploadID := upload.ID
	err = s.dispatch(ctx, ds, user, tasks.Request{
		Name:                 taskType,
		DatasetID:            ds.ID,
		UploadID:             &uploadID,
		ExternalIDFieldIndex: externalIDField,
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// ReindexData locks the dataset, applies the column overrides, re-derives
// indexed names and dispatches the reindex task. A nil override entry keeps
// that column as it is.
func (s *Service) ReindexData(ctx context.Context, id uuid.UUID, user *entity.User, indexed []*bool, types []*string) (ds *entity.Dataset, err error) {
	if err := s.locks.Lock(ctx, id); err != nil {
		return nil, err
	}
	defer s.unlockOnError(ctx, id, &err)

	ds, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	cols := []entity.ColumnDescriptor(ds.ColumnSchema)
	if err := schema.ApplyOverrides(cols, indexed, types); err != nil {
		return nil, err
	}
	ds.ColumnSchema = schema.DeriveIndexedNames(cols)

	if err := s.dispatch(ctx, ds, user, tasks.Request{Name: tasks.Reindex, DatasetID: ds.ID}); err != nil {
		return nil, err
	}
	return ds, nil
}

// ExportData locks the dataset and dispatches the export task. An empty
// filename lets the task pick one.
func (s *Service) ExportData(ctx context.Context, id uuid.UUID, user *entity.User, filename string) (ds *entity.Dataset, err error) {
	if err := s.locks.Lock(ctx, id); err != nil {
		return nil, err
	}
	defer s.unlockOnError(ctx, id, &err)

	ds, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.dispatch(ctx, ds, user, tasks.Request{Name: tasks.Export, DatasetID: ds.ID, Filename: filename}); err != nil {
		return nil, err
	}
	return ds, nil
}

// Delete requests an abort of the current task, if any, and deletes the
// record. Index documents are purged by the store's delete observers.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ds, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if ds.CurrentTaskID != nil {
		if err := s.queue.RequestAbort(ctx, *ds.CurrentTaskID); err != nil {
			s.logger.Warn("Failed to request task abort",
				zap.String("dataset", ds.Slug),
				zap.String("task_id", ds.CurrentTaskID.String()),
				zap.Error(err))
		}
	}

	if err := s.store.Delete(ctx, ds); err != nil {
		return fmt.Errorf("failed to delete dataset %s: %w", ds.Slug, err)
	}
	s.logger.Info("Dataset deleted", zap.String("dataset", ds.Slug))
	return nil
}

// dispatch records a task status, points the dataset at it, persists the
// dataset and hands the request to the queue.
func (s *Service) dispatch(ctx context.Context, ds *entity.Dataset, user *entity.User, req tasks.Request) error {
	task, err := s.tasks.Create(ctx, req.Name, userID(user))
	if err != nil {
		return fmt.Errorf("failed to create task status: %w", err)
	}

	taskID := task.ID
	ds.CurrentTaskID = &taskID
	if err := s.store.Save(ctx, ds); err != nil {
		return fmt.Errorf("failed to save dataset: %w", err)
	}

	req.TaskID = task.ID
	req.UserID = userID(user)
	if err := s.queue.ApplyAsync(ctx, req); err != nil {
		if ferr := s.tasks.Fail(context.WithoutCancel(ctx), task.ID, err.Error(), err.Error()); ferr != nil {
			err = errors.Join(err, ferr)
		}
		return fmt.Errorf("failed to dispatch %s task: %w", req.Name, err)
	}

	s.logger.Info("Task dispatched",
		zap.String("dataset", ds.Slug),
		zap.String("task", req.Name),
		zap.String("task_id", task.ID.String()))
	return nil
}

func (s *Service) unlockOnError(ctx context.Context, id uuid.UUID, err *error) {
	if *err == nil {
		return
	}
	if uerr := s.locks.Unlock(context.WithoutCancel(ctx), id); uerr != nil {
		*err = errors.Join(*err, uerr)
	}
}
