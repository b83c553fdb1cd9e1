package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DataUpload is a file whose rows can be imported into a dataset.
type DataUpload struct {
	ID               uuid.UUID                     `json:"id" gorm:"type:uuid;primary_key"`
	Filename         string                        `json:"filename" gorm:"type:varchar(256);not null"`
	OriginalFilename string                        `json:"original_filename" gorm:"type:varchar(256);not null"`
	Size             int64                         `json:"size"`
	Encoding         string                        `json:"encoding" gorm:"type:varchar(32);default:utf-8"`
	Columns          datatypes.JSONSlice[string]   `json:"columns"`
	GuessedTypes     datatypes.JSONSlice[string]   `json:"guessed_types"`
	SampleData       datatypes.JSONSlice[[]string] `json:"sample_data"`
	Imported         bool                          `json:"imported" gorm:"not null;default:false"`
	DatasetID        *uuid.UUID                    `json:"dataset_id" gorm:"type:uuid;index"`
	CreatorID        uuid.UUID                     `json:"creator_id" gorm:"type:uuid"`
	CreatedAt        time.Time                     `json:"created_at"`
}

func (u *DataUpload) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// RelatedUpload is a supporting document attached to a dataset. It is never
// imported but its filename is searchable.
type RelatedUpload struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Filename         string    `json:"filename" gorm:"type:varchar(256);not null"`
	OriginalFilename string    `json:"original_filename" gorm:"type:varchar(256);not null"`
	Size             int64     `json:"size"`
	DatasetID        uuid.UUID `json:"dataset_id" gorm:"type:uuid;not null;index"`
	CreatorID        uuid.UUID `json:"creator_id" gorm:"type:uuid"`
	CreatedAt        time.Time `json:"created_at"`
}

func (u *RelatedUpload) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
