package service

import (
	"github.com/davidm/taskflow/internal/activity"
	"github.com/davidm/taskflow/internal/auth"
	"github.com/davidm/taskflow/internal/config"
	"github.com/davidm/taskflow/internal/repository"
	"github.com/davidm/taskflow/internal/session"
	"github.com/davidm/taskflow/internal/websocket"
)

type Services struct {
	Auth    *AuthService
	Task    *TaskService
	Project *ProjectService
}

func NewServices(repos *repository.Repositories, sessions *session.Store, tokens *auth.TokenService, hub *websocket.Hub, activities *activity.Log, cfg *config.Config) *Services {
	return &Services{
		Auth:    NewAuthService(repos.User, sessions, tokens, cfg),
		Task:    NewTaskService(repos.Task, repos.Project, hub, activities),
		Project: NewProjectService(repos.Project, activities),
	}
}
