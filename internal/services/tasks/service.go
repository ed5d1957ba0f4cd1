package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/TheMichaelB/taskcrypt/internal/config"
	"github.com/TheMichaelB/taskcrypt/internal/crypto"
	"github.com/TheMichaelB/taskcrypt/internal/events"
	"github.com/TheMichaelB/taskcrypt/internal/models"
	"github.com/TheMichaelB/taskcrypt/internal/transport"
)

// opt_fields requested per resource.
var (
	taskListFields = []string{
		"name", "notes", "completed", "due_on",
		"assignee.name", "assignee.email",
		"projects.name", "tags.name", "tags.color",
		"custom_fields.name", "custom_fields.type",
		"custom_fields.enum_value.name", "custom_fields.number_value",
	}
	taskDetailFields = []string{
		"name", "notes", "completed", "due_on",
		"assignee.name", "assignee.email", "tags.name", "tags.color",
	}
	storyFields      = []string{"type", "resource_subtype", "text", "created_at", "created_by.name"}
	attachmentFields = []string{"name", "created_at", "download_url", "resource_type"}
)

// ErrInvalidInput is returned for requests rejected before reaching the API.
var ErrInvalidInput = errors.New("invalid input")

// Service reads and writes tasks, encrypting the fields a user types and
// decrypting what comes back.
type Service struct {
	transport transport.Transport
	crypto    crypto.Provider
	cfg       config.SyncConfig
	logger    *events.Logger

	// Cache
	mu       sync.RWMutex
	projects map[string]models.Project
}

// NewService creates a task service.
func NewService(transport transport.Transport, crypto crypto.Provider, cfg config.SyncConfig, logger *events.Logger) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}

	return &Service{
		transport: transport,
		crypto:    crypto,
		cfg:       cfg,
		logger:    logger.WithField("service", "tasks"),
		projects:  make(map[string]models.Project),
	}
}

// Workspaces lists the workspaces visible to the token.
func (s *Service) Workspaces(ctx context.Context) ([]models.Workspace, error) {
	var workspaces []models.Workspace
	if err := s.transport.GetAll(ctx, "/workspaces", s.pageQuery(), &workspaces); err != nil {
		return nil, wrap("list workspaces", "", err)
	}

	s.logger.WithField("count", len(workspaces)).Debug("Fetched workspaces")
	return workspaces, nil
}

// Projects lists the active projects of a workspace.
func (s *Service) Projects(ctx context.Context, workspaceID string) ([]models.Project, error) {
	query := s.pageQuery()
	query.Set("workspace", workspaceID)
	query.Set("archived", "false")
	query.Set("opt_fields", "name,archived")

	var projects []models.Project
	if err := s.transport.GetAll(ctx, "/projects", query, &projects); err != nil {
		return nil, wrap("list projects", "", err)
	}

	s.mu.Lock()
	for _, p := range projects {
		s.projects[p.GID] = p
	}
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"workspace": workspaceID,
		"count":     len(projects),
	}).Info("Fetched projects")
	return projects, nil
}

// ProjectName returns the cached name of a project listed earlier.
func (s *Service) ProjectName(projectID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	return p.Name, ok
}

// CreateProject creates a project in a team. Project names are not
// encrypted.
func (s *Service) CreateProject(ctx context.Context, req models.CreateProjectRequest) (*models.Project, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, wrap("create project", "", fmt.Errorf("%w: name is required", ErrInvalidInput))
	}

	var project models.Project
	if err := s.transport.SendJSON(ctx, http.MethodPost, "/projects", req, &project); err != nil {
		return nil, wrap("create project", "", err)
	}

	s.mu.Lock()
	s.projects[project.GID] = project
	s.mu.Unlock()

	return &project, nil
}

// TaskDetail fetches one task and decrypts its name and notes. Values that
// cannot be decrypted are returned as stored.
func (s *Service) TaskDetail(ctx context.Context, taskID string) (*models.TaskDetail, error) {
	query := url.Values{}
	query.Set("opt_fields", strings.Join(taskDetailFields, ","))

	var task models.Task
	if err := s.transport.GetJSON(ctx, taskPath(taskID), query, &task); err != nil {
		return nil, wrap("get task", taskID, err)
	}

	detail := &models.TaskDetail{
		Task:      task,
		Encrypted: s.crypto.IsEncrypted(task.Name) || s.crypto.IsEncrypted(task.Notes),
	}
	detail.Name = s.crypto.DecryptIfEnvelope(task.Name)
	detail.Notes = s.crypto.DecryptIfEnvelope(task.Notes)

	return detail, nil
}

// SaveNotes stores a task description, encrypted when a master password
// is set. An empty text clears the description.
func (s *Service) SaveNotes(ctx context.Context, taskID, plain string) error {
	notes, err := s.crypto.Encrypt(plain)
	if err != nil {
		return wrap("save notes", taskID, fmt.Errorf("encrypt notes: %w", err))
	}

	body := map[string]string{"notes": notes}
	if err := s.transport.SendJSON(ctx, http.MethodPut, taskPath(taskID), body, nil); err != nil {
		return wrap("save notes", taskID, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"task_id":   taskID,
		"encrypted": notes != plain,
	}).Info("Saved task notes")
	return nil
}

// CreateTask adds a task to a project.
func (s *Service) CreateTask(ctx context.Context, projectID, name string) (*models.Task, error) {
	return s.create(ctx, models.CreateTaskRequest{Projects: []string{projectID}}, name)
}

// CreateSubtask adds a subtask under parentID.
func (s *Service) CreateSubtask(ctx context.Context, parentID, name string) (*models.Task, error) {
	return s.create(ctx, models.CreateTaskRequest{Parent: parentID}, name)
}

func (s *Service) create(ctx context.Context, req models.CreateTaskRequest, name string) (*models.Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, wrap("create task", "", fmt.Errorf("%w: name is required", ErrInvalidInput))
	}

	req.Name = s.encryptOrPlain(name, "name")

	var task models.Task
	if err := s.transport.SendJSON(ctx, http.MethodPost, "/tasks", req, &task); err != nil {
		return nil, wrap("create task", "", err)
	}

	// Callers see what they typed.
	task.Name = name

	s.logger.WithField("task_id", task.GID).Info("Created task")
	return &task, nil
}

// RenameTask stores a new task name, encrypted when a master password is
// set.
func (s *Service) RenameTask(ctx context.Context, taskID, plainName string) error {
	name, err := s.crypto.Encrypt(plainName)
	if err != nil {
		return wrap("rename task", taskID, fmt.Errorf("encrypt name: %w", err))
	}

	body := map[string]string{"name": name}
	if err := s.transport.SendJSON(ctx, http.MethodPut, taskPath(taskID), body, nil); err != nil {
		return wrap("rename task", taskID, err)
	}
	return nil
}

// Comments returns the user comments of a task, decrypted.
func (s *Service) Comments(ctx context.Context, taskID string) ([]models.Story, error) {
	query := s.pageQuery()
	query.Set("opt_fields", strings.Join(storyFields, ","))

	var stories []models.Story
	if err := s.transport.GetAll(ctx, taskPath(taskID)+"/stories", query, &stories); err != nil {
		return nil, wrap("list comments", taskID, err)
	}

	comments := stories[:0]
	for _, st := range stories {
		if st.IsComment() {
			comments = append(comments, st)
		}
	}

	err := s.fanOut(ctx, len(comments), func(i int) {
		comments[i].Text = s.crypto.DecryptIfEnvelope(comments[i].Text)
	})
	if err != nil {
		return nil, wrap("list comments", taskID, err)
	}

	return comments, nil
}

// AddComment posts a comment, encrypted when a master password is set.
func (s *Service) AddComment(ctx context.Context, taskID, text string) (*models.Story, error) {
	if strings.TrimSpace(text) == "" {
		return nil, wrap("add comment", taskID, fmt.Errorf("%w: text is required", ErrInvalidInput))
	}

	body := map[string]string{"text": s.encryptOrPlain(text, "comment")}

	var story models.Story
	if err := s.transport.SendJSON(ctx, http.MethodPost, taskPath(taskID)+"/stories", body, &story); err != nil {
		return nil, wrap("add comment", taskID, err)
	}

	story.Text = text
	return &story, nil
}

// encryptOrPlain encrypts text, falling back to the plain value when
// encryption fails.
func (s *Service) encryptOrPlain(text, field string) string {
	out, err := s.crypto.Encrypt(text)
	if err != nil {
		s.logger.WithError(err).WithField("field", field).Warn("Encryption failed, sending plain text")
		return text
	}
	return out
}

func (s *Service) pageQuery() url.Values {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(s.cfg.PageLimit))
	return query
}

func taskPath(taskID string) string {
	return "/tasks/" + url.PathEscape(taskID)
}

// wrap converts a failure into a TaskError whose code follows the API
// status when there is one.
func wrap(op, taskID string, err error) error {
	code := models.ErrCodeNetwork

	var apiErr *models.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.Is(err, models.ErrNotAuthenticated):
		code = models.ErrCodeAuth
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrInvalidInput):
		code = models.ErrCodeInvalidRequest
	}

	return &models.TaskError{Code: code, Op: op, TaskID: taskID, Err: err}
}
