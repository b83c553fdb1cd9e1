// Package jobs holds the task bodies for import, reindex and export runs.
// The dataset lock is released when a task ends, whether or not its body ran.
package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/dataset"
	"github.com/kerem-kaynak/tablecat/internal/storage"
	"github.com/kerem-kaynak/tablecat/internal/tasks"
	"github.com/kerem-kaynak/tablecat/internal/upload"
	"go.uber.org/zap"
)

const defaultBatchSize = 500

// AbortChecker reports abort requests persisted for a task, including those
// made by other processes.
type AbortChecker interface {
	AbortRequested(ctx context.Context, id uuid.UUID) (bool, error)
}

type Jobs struct {
	datasets  *dataset.Service
	uploads   *upload.Store
	registry  *upload.Registry
	storage   storage.ObjectStorage
	aborts    AbortChecker
	logger    *zap.Logger
	batchSize int
}

func New(
	datasets *dataset.Service,
	uploads *upload.Store,
	registry *upload.Registry,
	store storage.ObjectStorage,
	aborts AbortChecker,
	batchSize int,
	logger *zap.Logger,
) *Jobs {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Jobs{
		datasets:  datasets,
		uploads:   uploads,
		registry:  registry,
		storage:   store,
		aborts:    aborts,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Register binds the task bodies to their names on r and releases the
// dataset lock whenever one of them ends.
func (j *Jobs) Register(r *tasks.Runner) {
	r.Register(tasks.Import, j.Import)
	r.Register(tasks.Reindex, j.Reindex)
	r.Register(tasks.Export, j.Export)
	r.OnEnd(j.release)
}

func (j *Jobs) release(ctx context.Context, req tasks.Request) error {
	if req.DatasetID == uuid.Nil {
		return nil
	}
	if err := j.datasets.Unlock(ctx, req.DatasetID); err != nil {
		j.logger.Error("Failed to unlock dataset", zap.String("dataset_id", req.DatasetID.String()), zap.Error(err))
		return err
	}
	return nil
}

// checkAbort stops a body between batches when its task was aborted here or
// in another process.
func (j *Jobs) checkAbort(ctx context.Context, req tasks.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	aborted, err := j.aborts.AbortRequested(ctx, req.TaskID)
	if err != nil {
		return fmt.Errorf("failed to check abort request: %w", err)
	}
	if aborted {
		return fmt.Errorf("%w: abort requested", context.Canceled)
	}
	return nil
}

// batcher collects rows and flushes them to the index in fixed size batches.
type batcher struct {
	size  int
	rows  []dataset.Row
	total int
	flush func(rows []dataset.Row) error
}

func (b *batcher) add(r dataset.Row) error {
	b.rows = append(b.rows, r)
	if len(b.rows) >= b.size {
		return b.drain()
	}
	return nil
}

func (b *batcher) drain() error {
	if len(b.rows) == 0 {
		return nil
	}
	if err := b.flush(b.rows); err != nil {
		return fmt.Errorf("failed to index rows %d-%d: %w", b.total+1, b.total+len(b.rows), err)
	}
	b.total += len(b.rows)
	b.rows = b.rows[:0]
	return nil
}
