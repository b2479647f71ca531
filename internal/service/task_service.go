package service

import (
	"context"
	"errors"
	"time"

	"github.com/davidm/taskflow/internal/activity"
	"github.com/davidm/taskflow/internal/domain"
	"github.com/davidm/taskflow/internal/logger"
	"github.com/davidm/taskflow/internal/repository"
	"github.com/davidm/taskflow/internal/websocket"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrProjectNotFound = errors.New("project not found")
)

type TaskService struct {
	taskRepo    repository.TaskRepository
	projectRepo repository.ProjectRepository
	hub         *websocket.Hub
	activities  *activity.Log
}

func NewTaskService(taskRepo repository.TaskRepository, projectRepo repository.ProjectRepository, hub *websocket.Hub, activities *activity.Log) *TaskService {
	return &TaskService{
		taskRepo:    taskRepo,
		projectRepo: projectRepo,
		hub:         hub,
		activities:  activities,
	}
}

type CreateTaskInput struct {
	Title          string
	Description    *string
	ProjectID      uuid.UUID
	AssigneeID     *uuid.UUID
	Priority       domain.TaskPriority
	DueDate        *time.Time
	EstimatedHours *float64
}

type UpdateTaskInput struct {
	Title          *string
	Description    *string
	AssigneeID     *uuid.UUID
	Status         *domain.TaskStatus
	Priority       *domain.TaskPriority
	DueDate        *time.Time
	EstimatedHours *float64
	ActualHours    *float64
}

func (s *TaskService) Create(ctx context.Context, user *domain.User, input CreateTaskInput) (*domain.Task, error) {
	if _, err := s.projectRepo.GetByID(ctx, input.ProjectID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	priority := input.Priority
	if priority == "" {
		priority = domain.TaskPriorityMedium
	}

	task := &domain.Task{
		ID:             uuid.New(),
		Title:          input.Title,
		Description:    input.Description,
		ProjectID:      input.ProjectID,
		AssigneeID:     input.AssigneeID,
		CreatorID:      user.ID,
		Status:         domain.TaskStatusTodo,
		Priority:       priority,
		DueDate:        input.DueDate,
		EstimatedHours: input.EstimatedHours,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, err
	}

	s.hub.NotifyTaskMutation(ctx, websocket.MessageTypeTaskCreated, task.ProjectID, map[string]interface{}{
		"task":       task,
		"created_by": user,
	})

	if err := s.activities.TaskCreated(ctx, user, task.ProjectID, task.ID, task.Title); err != nil {
		logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to record task activity")
	}

	return task, nil
}

func (s *TaskService) Update(ctx context.Context, user *domain.User, taskID uuid.UUID, input UpdateTaskInput) (*domain.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	changes := make(map[string]interface{})
	if input.Title != nil && *input.Title != task.Title {
		changes["title"] = *input.Title
		task.Title = *input.Title
	}
	if input.Description != nil {
		changes["description"] = *input.Description
		task.Description = input.Description
	}
	if input.AssigneeID != nil {
		changes["assignee_id"] = input.AssigneeID.String()
		task.AssigneeID = input.AssigneeID
	}
	if input.Status != nil && *input.Status != task.Status {
		changes["status"] = string(*input.Status)
		task.Status = *input.Status
	}
	if input.Priority != nil && *input.Priority != task.Priority {
		changes["priority"] = string(*input.Priority)
		task.Priority = *input.Priority
	}
	if input.DueDate != nil {
		changes["due_date"] = input.DueDate.Format(time.RFC3339)
		task.DueDate = input.DueDate
	}
	if input.EstimatedHours != nil {
		changes["estimated_hours"] = *input.EstimatedHours
		task.EstimatedHours = input.EstimatedHours
	}
	if input.ActualHours != nil {
		changes["actual_hours"] = *input.ActualHours
		task.ActualHours = input.ActualHours
	}

	if len(changes) == 0 {
		return task, nil
	}

	task.UpdatedAt = time.Now()
	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, err
	}

	s.hub.NotifyTaskMutation(ctx, websocket.MessageTypeTaskUpdated, task.ProjectID, map[string]interface{}{
		"task":       task,
		"changes":    changes,
		"updated_by": user,
	})

	if task.Status == domain.TaskStatusDone {
		err = s.activities.TaskCompleted(ctx, user, task.ProjectID, task.ID, task.Title)
	} else {
		err = s.activities.TaskUpdated(ctx, user, task.ProjectID, task.ID, task.Title, changes)
	}
	if err != nil {
		logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to record task activity")
	}

	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, user *domain.User, taskID uuid.UUID) error {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		return err
	}

	if err := s.taskRepo.Delete(ctx, taskID); err != nil {
		return err
	}

	s.hub.NotifyTaskMutation(ctx, websocket.MessageTypeTaskDeleted, task.ProjectID, map[string]interface{}{
		"task_id":    task.ID,
		"deleted_by": user,
	})

	return nil
}

func (s *TaskService) GetByID(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

func (s *TaskService) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Task, error) {
	return s.taskRepo.GetByProjectID(ctx, projectID)
}
