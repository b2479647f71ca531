package service

import (
	"context"
	"errors"
	"time"

	"github.com/davidm/taskflow/internal/activity"
	"github.com/davidm/taskflow/internal/domain"
	"github.com/davidm/taskflow/internal/logger"
	"github.com/davidm/taskflow/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProjectService struct {
	projectRepo repository.ProjectRepository
	activities  *activity.Log
}

func NewProjectService(projectRepo repository.ProjectRepository, activities *activity.Log) *ProjectService {
	return &ProjectService{
		projectRepo: projectRepo,
		activities:  activities,
	}
}

type CreateProjectInput struct {
	Name        string
	Description *string
}

func (s *ProjectService) Create(ctx context.Context, owner *domain.User, input CreateProjectInput) (*domain.Project, error) {
	project := &domain.Project{
		ID:          uuid.New(),
		Name:        input.Name,
		Description: input.Description,
		OwnerID:     owner.ID,
		Status:      domain.ProjectStatusActive,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, err
	}

	if err := s.activities.UserJoined(ctx, owner, project.ID); err != nil {
		logger.Error().Err(err).Str("project_id", project.ID.String()).Msg("failed to record project activity")
	}

	return project, nil
}

func (s *ProjectService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	project, err := s.projectRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return project, nil
}

func (s *ProjectService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Project, error) {
	return s.projectRepo.GetByOwnerID(ctx, ownerID)
}
