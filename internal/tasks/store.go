// Package tasks records task status and runs task bodies in the background.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("task not found")

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts a pending status record.
func (s *Store) Create(ctx context.Context, name string, creatorID *uuid.UUID) (*entity.TaskStatus, error) {
	t := &entity.TaskStatus{TaskName: name, Status: entity.TaskPending, CreatorID: creatorID}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*entity.TaskStatus, error) {
	var t entity.TaskStatus
	err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) Begin(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return s.update(ctx, id, map[string]interface{}{"status": entity.TaskStarted, "started_at": &now})
}

func (s *Store) Complete(ctx context.Context, id uuid.UUID, message string) error {
	return s.finish(ctx, id, entity.TaskSucceeded, message, nil)
}

func (s *Store) Fail(ctx context.Context, id uuid.UUID, message, traceback string) error {
	return s.finish(ctx, id, entity.TaskFailed, message, &traceback)
}

func (s *Store) Aborted(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, entity.TaskAborted, "Aborted", nil)
}

// RequestAbort flags a task for cooperative cancellation. Finished tasks
// keep their status.
func (s *Store) RequestAbort(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&entity.TaskStatus{}).
		Where("id = ? AND status IN ?", id, []string{entity.TaskPending, entity.TaskStarted}).
		Update("status", entity.TaskAbortRequested)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AbortRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return t.Status == entity.TaskAbortRequested, nil
}

func (s *Store) finish(ctx context.Context, id uuid.UUID, status, message string, traceback *string) error {
	now := time.Now().UTC()
	return s.update(ctx, id, map[string]interface{}{
		"status":    status,
		"message":   message,
		"ended_at":  &now,
		"traceback": traceback,
	})
}

func (s *Store) update(ctx context.Context, id uuid.UUID, values map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&entity.TaskStatus{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
