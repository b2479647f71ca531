package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
)

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

type Task struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Title          string         `json:"title" gorm:"not null"`
	Description    *string        `json:"description"`
	ProjectID      uuid.UUID      `json:"projectId" gorm:"type:uuid;index;not null"`
	AssigneeID     *uuid.UUID     `json:"assigneeId" gorm:"type:uuid;index"`
	CreatorID      uuid.UUID      `json:"creatorId" gorm:"type:uuid;not null"`
	Status         TaskStatus     `json:"status" gorm:"not null;default:'todo'"`
	Priority       TaskPriority   `json:"priority" gorm:"not null;default:'medium'"`
	DueDate        *time.Time     `json:"dueDate"`
	EstimatedHours *float64       `json:"estimatedHours"`
	ActualHours    *float64       `json:"actualHours"`
	Tags           datatypes.JSON `json:"tags" gorm:"type:jsonb;default:'[]'"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`

	// Relations
	Project  *Project `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
	Assignee *User    `json:"assignee,omitempty" gorm:"foreignKey:AssigneeID"`
	Creator  *User    `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
}
