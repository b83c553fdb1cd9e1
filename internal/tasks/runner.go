package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Task names.
const (
	Import  = "import"
	Reindex = "reindex"
	Export  = "export"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrShutdown    = errors.New("task runner is shut down")
)

// Request carries the arguments of one task run.
type Request struct {
	Name                 string
	TaskID               uuid.UUID
	DatasetID            uuid.UUID
	UserID               *uuid.UUID
	UploadID             *uuid.UUID
	ExternalIDFieldIndex *int
	Filename             string
}

// Handler runs a task body and returns the message stored on success.
// Handlers stop early when ctx is cancelled.
type Handler func(ctx context.Context, req Request) (string, error)

// Cleanup runs once for every task that reaches a terminal status, including
// tasks aborted or shut down before their handler ran.
type Cleanup func(ctx context.Context, req Request) error

type Runner struct {
	store    *Store
	logger   *zap.Logger
	handlers map[string]Handler
	cleanups []Cleanup
	sem      *semaphore.Weighted
	eager    bool

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	cancels map[uuid.UUID]context.CancelFunc
}

type Option func(*Runner)

// WithConcurrency bounds the number of tasks running at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithEager runs every task inline inside ApplyAsync.
func WithEager() Option {
	return func(r *Runner) { r.eager = true }
}

func NewRunner(store *Store, logger *zap.Logger, opts ...Option) *Runner {
	base, stop := context.WithCancel(context.Background())
	r := &Runner{
		store:    store,
		logger:   logger,
		handlers: map[string]Handler{},
		sem:      semaphore.NewWeighted(4),
		base:     base,
		stop:     stop,
		cancels:  map[uuid.UUID]context.CancelFunc{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Register(name string, h Handler) {
	r.handlers[name] = h
}

// OnEnd adds a cleanup run before the terminal status is recorded. A
// failing cleanup turns a successful task into a failed one.
func (r *Runner) OnEnd(fn Cleanup) {
	r.cleanups = append(r.cleanups, fn)
}

// ApplyAsync schedules req and returns without waiting for it, unless the
// runner is eager.
func (r *Runner) ApplyAsync(ctx context.Context, req Request) error {
	h, ok := r.handlers[req.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, req.Name)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrShutdown
	}
	taskCtx, cancel := context.WithCancel(r.base)
	r.cancels[req.TaskID] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	if r.eager {
		r.run(taskCtx, h, req)
		return nil
	}
	go r.run(taskCtx, h, req)
	return nil
}

// RequestAbort records the abort request and cancels the task if it runs in
// this process. It does not wait for the task to stop.
func (r *Runner) RequestAbort(ctx context.Context, id uuid.UUID) error {
	if err := r.store.RequestAbort(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Shutdown stops accepting tasks, cancels running ones and waits for them
// until ctx expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(ctx context.Context, h Handler, req Request) {
	defer r.wg.Done()
	defer r.forget(req.TaskID)

	logger := r.logger.With(zap.String("task", req.Name), zap.String("task_id", req.TaskID.String()))
	// Status writes must land even when the task context is cancelled.
	statusCtx := context.WithoutCancel(ctx)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.end(statusCtx, logger, req, "", err, time.Now())
		return
	}
	defer r.sem.Release(1)

	if err := ctx.Err(); err != nil {
		r.end(statusCtx, logger, req, "", err, time.Now())
		return
	}
	if aborted, err := r.store.AbortRequested(statusCtx, req.TaskID); err == nil && aborted {
		r.end(statusCtx, logger, req, "", context.Canceled, time.Now())
		return
	}

	if err := r.store.Begin(statusCtx, req.TaskID); err != nil {
		logger.Error("Failed to mark task started", zap.Error(err))
	}
	metrics.TasksRunning.Inc()
	defer metrics.TasksRunning.Dec()

	start := time.Now()
	msg, err := r.call(ctx, h, req)
	r.end(statusCtx, logger, req, msg, err, start)
}

func (r *Runner) end(ctx context.Context, logger *zap.Logger, req Request, msg string, err error, start time.Time) {
	for _, fn := range r.cleanups {
		if cerr := fn(ctx, req); cerr != nil {
			logger.Error("Task cleanup failed", zap.Error(cerr))
			err = errors.Join(err, cerr)
		}
	}
	r.finish(ctx, logger, req, msg, err, start)
}

func (r *Runner) call(ctx context.Context, h Handler, req Request) (msg string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p, stack: debug.Stack()}
		}
	}()
	return h(ctx, req)
}

func (r *Runner) finish(ctx context.Context, logger *zap.Logger, req Request, msg string, err error, start time.Time) {
	metrics.TaskDuration.WithLabelValues(req.Name).Observe(time.Since(start).Seconds())

	var status string
	var serr error
	switch {
	case err == nil:
		status = "success"
		serr = r.store.Complete(ctx, req.TaskID, msg)
		logger.Info("Task finished", zap.String("message", msg))
	case errors.Is(err, context.Canceled):
		status = "aborted"
		serr = r.store.Aborted(ctx, req.TaskID)
		logger.Info("Task aborted")
	default:
		status = "failure"
		traceback := err.Error()
		var perr *panicError
		if errors.As(err, &perr) {
			traceback = string(perr.stack)
		}
		serr = r.store.Fail(ctx, req.TaskID, err.Error(), traceback)
		logger.Error("Task failed", zap.Error(err))
	}
	metrics.TaskResults.WithLabelValues(req.Name, status).Inc()

	if serr != nil {
		logger.Error("Failed to record task status", zap.Error(serr))
	}
}

func (r *Runner) forget(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancels[id]; ok {
		cancel()
		delete(r.cancels, id)
	}
}

type panicError struct {
	value interface{}
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.value)
}
