package dataset

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeleteObserver runs after a dataset record has been deleted.
type DeleteObserver func(ctx context.Context, ds *entity.Dataset) error

// Store persists dataset records.
type Store struct {
	db        *gorm.DB
	observers []DeleteObserver
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// OnDelete registers fn to run after every successful Delete.
func (s *Store) OnDelete(fn DeleteObserver) {
	s.observers = append(s.observers, fn)
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*entity.Dataset, error) {
	return s.first(s.db.WithContext(ctx), "id = ?", id)
}

func (s *Store) GetBySlug(ctx context.Context, slug string) (*entity.Dataset, error) {
	return s.first(s.db.WithContext(ctx), "slug = ?", slug)
}

// GetForIndex loads a dataset with everything its catalog document needs.
func (s *Store) GetForIndex(ctx context.Context, id uuid.UUID) (*entity.Dataset, error) {
	q := s.db.WithContext(ctx).
		Preload("Creator").
		Preload("Categories").
		Preload("DataUploads").
		Preload("RelatedUploads").
		Preload("InitialUpload")
	return s.first(q, "id = ?", id)
}

func (s *Store) first(q *gorm.DB, cond string, arg interface{}) (*entity.Dataset, error) {
	var ds entity.Dataset
	err := q.First(&ds, cond, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&entity.Dataset{}).Where("slug = ?", slug).Count(&n).Error
	return n > 0, err
}

func (s *Store) Create(ctx context.Context, ds *entity.Dataset) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(ds).Error
}

// Save writes every column of ds except the lock state, which only the lock
// manager changes.
func (s *Store) Save(ctx context.Context, ds *entity.Dataset) error {
	res := s.db.WithContext(ctx).Model(ds).
		Select("*").
		Omit(clause.Associations, "locked", "locked_at", "lock_holder", "creation_date").
		Updates(ds)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Categories(ctx context.Context, ids []uuid.UUID) ([]entity.Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var cats []entity.Category
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&cats).Error; err != nil {
		return nil, err
	}
	if len(cats) != len(ids) {
		return nil, ErrUnknownCategory
	}
	return cats, nil
}

func (s *Store) SetCategories(ctx context.Context, ds *entity.Dataset, cats []entity.Category) error {
	ds.Categories = cats
	if len(cats) == 0 {
		return s.db.WithContext(ctx).Model(ds).Association("Categories").Clear()
	}
	return s.db.WithContext(ctx).Model(ds).Association("Categories").Replace(cats)
}

// Delete removes the record and its category links, then runs the delete
// observers. Observer errors are returned after all of them have run.
func (s *Store) Delete(ctx context.Context, ds *entity.Dataset) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(ds).Association("Categories").Clear(); err != nil {
			return err
		}
		res := tx.Delete(&entity.Dataset{}, "id = ?", ds.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, fn := range s.observers {
		if err := fn(ctx, ds); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
