package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TaskPending        = "PENDING"
	TaskStarted        = "STARTED"
	TaskSucceeded      = "SUCCESS"
	TaskFailed         = "FAILURE"
	TaskAbortRequested = "ABORT REQUESTED"
	TaskAborted        = "ABORTED"
)

type TaskStatus struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	TaskName  string     `json:"task_name" gorm:"type:varchar(255);not null"`
	Status    string     `json:"status" gorm:"type:varchar(50);not null;default:PENDING;index"`
	Message   string     `json:"message" gorm:"type:text"`
	Start     *time.Time `json:"start" gorm:"column:started_at"`
	End       *time.Time `json:"end" gorm:"column:ended_at"`
	Traceback *string    `json:"traceback" gorm:"type:text"`
	CreatorID *uuid.UUID `json:"creator_id" gorm:"type:uuid"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (t *TaskStatus) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	return nil
}

// Finished reports whether the task reached a terminal state.
func (t *TaskStatus) Finished() bool {
	switch t.Status {
	case TaskSucceeded, TaskFailed, TaskAborted:
		return true
	}
	return false
}
