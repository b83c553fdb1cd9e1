// Package upload resolves uploaded files into columns and rows.
package upload

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("upload not found")

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, u *entity.DataUpload) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *Store) CreateRelated(ctx context.Context, u *entity.RelatedUpload) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*entity.DataUpload, error) {
	var u entity.DataUpload
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// MarkImported flags the upload as consumed and attaches it to a dataset.
func (s *Store) MarkImported(ctx context.Context, id, datasetID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&entity.DataUpload{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"imported": true, "dataset_id": datasetID})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
