package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// TaskRecord is the stored form of a task in the reference API.
type TaskRecord struct {
	ID          uuid.UUID `gorm:"primaryKey;type:uuid"`
	UserID      string    `gorm:"index;not null"`
	TeamID      *string   `gorm:"index"`
	Title       string    `gorm:"not null"`
	Description string
	Status      string   `gorm:"index;not null;default:todo"`
	Priority    string   `gorm:"not null;default:normal"`
	DueDate     string   `gorm:"size:10"`
	Assignee    string   `gorm:"index"`
	AssigneeIDs []string `gorm:"serializer:json"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (TaskRecord) TableName() string { return "tasks" }

// NewTaskRecord builds the record for a task created by userID. Defaults
// must already have been applied to in.
func NewTaskRecord(id uuid.UUID, userID string, in NewTask) TaskRecord {
	return TaskRecord{
		ID:          id,
		UserID:      userID,
		TeamID:      in.TeamID,
		Title:       in.Title,
		Description: in.Description,
		Status:      string(in.Status),
		Priority:    string(in.Priority),
		DueDate:     in.DueDate,
		Assignee:    in.Assignee,
		AssigneeIDs: in.AssigneeIDs,
	}
}

func (r TaskRecord) Task() Task {
	ids := r.AssigneeIDs
	if ids == nil {
		ids = []string{}
	}
	return Task{
		ID:          r.ID.String(),
		Title:       r.Title,
		Description: r.Description,
		Status:      Status(r.Status),
		Priority:    Priority(r.Priority),
		DueDate:     r.DueDate,
		Assignee:    r.Assignee,
		AssigneeIDs: ids,
		UserID:      r.UserID,
		TeamID:      r.TeamID,
	}
}

// ApplyRecord writes the non-nil fields of p onto r.
func (p TaskPatch) ApplyRecord(r *TaskRecord) {
	t := p.Apply(r.Task())
	r.Title = t.Title
	r.Description = t.Description
	r.Status = string(t.Status)
	r.Priority = string(t.Priority)
	r.DueDate = t.DueDate
	r.Assignee = t.Assignee
	r.AssigneeIDs = t.AssigneeIDs
}
