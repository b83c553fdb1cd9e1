package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"gorm.io/gorm"
)

// State is the persisted lock state of one dataset. Holder is random per
// acquisition so that acquirers in different processes never share a token
// even when their clocks agree.
type State struct {
	Locked bool
	Token  *time.Time
	Holder *uuid.UUID
}

// Store reads and writes lock state. Reads must go to the backing store on
// every call; a cached copy defeats the race check.
type Store interface {
	ReadLock(ctx context.Context, id uuid.UUID) (State, error)
	WriteLock(ctx context.Context, id uuid.UUID, state State) error
}

// ConditionalStore can flip an unlocked record to locked in one atomic step.
type ConditionalStore interface {
	Store
	AcquireLock(ctx context.Context, id uuid.UUID, token time.Time, holder uuid.UUID) (bool, error)
}

// GormStore keeps lock state in the datasets table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ReadLock(ctx context.Context, id uuid.UUID) (State, error) {
	var row struct {
		Locked     bool
		LockedAt   *time.Time
		LockHolder *uuid.UUID
	}
	err := s.db.WithContext(ctx).Model(&entity.Dataset{}).
		Select("locked", "locked_at", "lock_holder").
		Where("id = ?", id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, err
	}
	return State{Locked: row.Locked, Token: row.LockedAt, Holder: row.LockHolder}, nil
}

func (s *GormStore) WriteLock(ctx context.Context, id uuid.UUID, state State) error {
	res := s.db.WithContext(ctx).Model(&entity.Dataset{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"locked": state.Locked, "locked_at": state.Token, "lock_holder": state.Holder})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) AcquireLock(ctx context.Context, id uuid.UUID, token time.Time, holder uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).Model(&entity.Dataset{}).
		Where("id = ? AND locked = ?", id, false).
		Updates(map[string]interface{}{"locked": true, "locked_at": token, "lock_holder": holder})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&entity.Dataset{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	if n == 0 {
		return false, ErrNotFound
	}
	return false, nil
}
