package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SampleSize is the number of example rows kept on a dataset.
const SampleSize = 5

type Dataset struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Slug        string    `json:"slug" gorm:"type:varchar(256);not null;uniqueIndex"`
	Name        string    `json:"name" gorm:"type:varchar(256);not null"`
	Description string    `json:"description" gorm:"type:text"`

	ColumnSchema datatypes.JSONSlice[ColumnDescriptor] `json:"column_schema"`
	SampleData   datatypes.JSONSlice[[]string]         `json:"sample_data"`
	RowCount     *int64                                `json:"row_count" gorm:"type:bigint"`

	Locked     bool       `json:"locked" gorm:"not null;default:false"`
	LockedAt   *time.Time `json:"locked_at"`
	LockHolder *uuid.UUID `json:"-" gorm:"type:uuid"`

	CurrentTaskID   *uuid.UUID  `json:"current_task_id" gorm:"type:uuid"`
	CurrentTask     *TaskStatus `json:"current_task,omitempty" gorm:"foreignKey:CurrentTaskID"`
	InitialUploadID *uuid.UUID  `json:"initial_upload_id" gorm:"type:uuid"`
	InitialUpload   *DataUpload `json:"-" gorm:"foreignKey:InitialUploadID"`

	DataUploads    []DataUpload    `json:"data_uploads,omitempty" gorm:"foreignKey:DatasetID"`
	RelatedUploads []RelatedUpload `json:"related_uploads,omitempty" gorm:"foreignKey:DatasetID"`
	Categories     []Category      `json:"categories" gorm:"many2many:dataset_categories"`

	LastModified     *time.Time `json:"last_modified"`
	LastModification *string    `json:"last_modification" gorm:"type:text"`
	LastModifiedByID *uuid.UUID `json:"last_modified_by_id" gorm:"type:uuid"`
	LastModifiedBy   *User      `json:"last_modified_by,omitempty" gorm:"foreignKey:LastModifiedByID"`

	CreationDate time.Time `json:"creation_date"`
	CreatorID    uuid.UUID `json:"creator_id" gorm:"type:uuid;not null;index"`
	Creator      *User     `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (d *Dataset) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreationDate.IsZero() {
		d.CreationDate = time.Now().UTC()
	}
	return nil
}

// ColumnNames returns the source column names in schema order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.ColumnSchema))
	for i, c := range d.ColumnSchema {
		names[i] = c.Name
	}
	return names
}

// HasSchema reports whether a schema-defining import has happened.
func (d *Dataset) HasSchema() bool {
	return len(d.ColumnSchema) > 0
}

// Count returns the row count, treating the unknown sentinel as zero.
func (d *Dataset) Count() int64 {
	if d.RowCount == nil {
		return 0
	}
	return *d.RowCount
}
