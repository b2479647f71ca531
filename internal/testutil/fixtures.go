package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/davidm/taskflow/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserBuilder creates test users with a builder pattern
type UserBuilder struct {
	email     string
	password  string
	firstName string
	lastName  string
	role      domain.Role
}

// NewUserBuilder creates a new UserBuilder with default values
func NewUserBuilder() *UserBuilder {
	return &UserBuilder{
		email:     fmt.Sprintf("user_%s@example.com", uuid.New().String()[:8]),
		password:  "testpassword123",
		firstName: "Test",
		lastName:  "User",
		role:      domain.RoleMember,
	}
}

// WithEmail sets the email
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.email = email
	return b
}

// WithPassword sets the password
func (b *UserBuilder) WithPassword(password string) *UserBuilder {
	b.password = password
	return b
}

// WithName sets the first and last name
func (b *UserBuilder) WithName(first, last string) *UserBuilder {
	b.firstName = first
	b.lastName = last
	return b
}

// WithRole sets the role
func (b *UserBuilder) WithRole(role domain.Role) *UserBuilder {
	b.role = role
	return b
}

// Build creates the user in the database and returns the user with the raw password
func (b *UserBuilder) Build(t *testing.T, db *gorm.DB) (*domain.User, string) {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(b.password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        b.email,
		PasswordHash: string(hashedPassword),
		FirstName:    b.firstName,
		LastName:     b.lastName,
		Role:         b.role,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user, b.password
}

// AuthResponse matches the API auth response envelope
type AuthResponse struct {
	Status string `json:"status"`
	Data   struct {
		User         domain.User `json:"user"`
		AccessToken  string      `json:"accessToken"`
		RefreshToken string      `json:"refreshToken"`
		ExpiresIn    int64       `json:"expiresIn"`
		SessionID    string      `json:"session_id"`
	} `json:"data"`
}

// BuildAndAuthenticate creates a user via the register endpoint and returns
// the user and access token
func (b *UserBuilder) BuildAndAuthenticate(t *testing.T, ts *TestServer) (*domain.User, string) {
	t.Helper()

	resp := b.register(t, ts)
	return &resp.Data.User, resp.Data.AccessToken
}

// BuildAndAuthenticateFull is BuildAndAuthenticate but returns the whole
// auth payload, for tests that need the refresh token or session id
func (b *UserBuilder) BuildAndAuthenticateFull(t *testing.T, ts *TestServer) *AuthResponse {
	t.Helper()

	return b.register(t, ts)
}

func (b *UserBuilder) register(t *testing.T, ts *TestServer) *AuthResponse {
	t.Helper()

	reqBody := map[string]string{
		"email":      b.email,
		"password":   b.password,
		"first_name": b.firstName,
		"last_name":  b.lastName,
	}
	body, _ := json.Marshal(reqBody)

	resp, err := http.Post(ts.APIURL("/auth/register"), "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("failed to register user: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	var authResp AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	return &authResp
}

// ProjectBuilder creates test projects with a builder pattern
type ProjectBuilder struct {
	name  string
	owner *domain.User
}

// NewProjectBuilder creates a new ProjectBuilder with default values
func NewProjectBuilder() *ProjectBuilder {
	return &ProjectBuilder{
		name: fmt.Sprintf("Project %s", uuid.New().String()[:8]),
	}
}

// WithName sets the project name
func (b *ProjectBuilder) WithName(name string) *ProjectBuilder {
	b.name = name
	return b
}

// WithOwner sets the project owner
func (b *ProjectBuilder) WithOwner(user *domain.User) *ProjectBuilder {
	b.owner = user
	return b
}

// Build creates the project in the database
func (b *ProjectBuilder) Build(t *testing.T, db *gorm.DB) *domain.Project {
	t.Helper()

	if b.owner == nil {
		user, _ := NewUserBuilder().Build(t, db)
		b.owner = user
	}

	project := &domain.Project{
		ID:        uuid.New(),
		Name:      b.name,
		OwnerID:   b.owner.ID,
		Status:    domain.ProjectStatusActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := db.Create(project).Error; err != nil {
		t.Fatalf("failed to create project: %v", err)
	}

	return project
}

// TaskBuilder creates test tasks with a builder pattern
type TaskBuilder struct {
	title   string
	project *domain.Project
	creator *domain.User
	status  domain.TaskStatus
}

// NewTaskBuilder creates a new TaskBuilder with default values
func NewTaskBuilder() *TaskBuilder {
	return &TaskBuilder{
		title:  fmt.Sprintf("Task %s", uuid.New().String()[:8]),
		status: domain.TaskStatusTodo,
	}
}

// WithTitle sets the task title
func (b *TaskBuilder) WithTitle(title string) *TaskBuilder {
	b.title = title
	return b
}

// WithProject sets the parent project
func (b *TaskBuilder) WithProject(project *domain.Project) *TaskBuilder {
	b.project = project
	return b
}

// WithCreator sets the creator
func (b *TaskBuilder) WithCreator(user *domain.User) *TaskBuilder {
	b.creator = user
	return b
}

// WithStatus sets the status
func (b *TaskBuilder) WithStatus(status domain.TaskStatus) *TaskBuilder {
	b.status = status
	return b
}

// Build creates the task in the database
func (b *TaskBuilder) Build(t *testing.T, db *gorm.DB) *domain.Task {
	t.Helper()

	if b.creator == nil {
		user, _ := NewUserBuilder().Build(t, db)
		b.creator = user
	}
	if b.project == nil {
		b.project = NewProjectBuilder().WithOwner(b.creator).Build(t, db)
	}

	task := &domain.Task{
		ID:        uuid.New(),
		Title:     b.title,
		ProjectID: b.project.ID,
		CreatorID: b.creator.ID,
		Status:    b.status,
		Priority:  domain.TaskPriorityMedium,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := db.Create(task).Error; err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	return task
}

// CreateAuthenticatedRequest creates an HTTP request with auth token
func CreateAuthenticatedRequest(t *testing.T, method, url string, body interface{}, token string) *http.Request {
	t.Helper()

	var bodyReader *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	} else {
		bodyReader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}
