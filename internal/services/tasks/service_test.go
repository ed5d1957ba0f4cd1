package tasks_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/taskcrypt/internal/config"
	"github.com/TheMichaelB/taskcrypt/internal/crypto"
	"github.com/TheMichaelB/taskcrypt/internal/events"
	"github.com/TheMichaelB/taskcrypt/internal/models"
	"github.com/TheMichaelB/taskcrypt/internal/services/tasks"
	"github.com/TheMichaelB/taskcrypt/internal/transport"
)

const testPassword = "correct horse battery staple"

func newService(t *testing.T, password string) (*tasks.Service, *transport.MockTransport, *crypto.Engine) {
	t.Helper()

	engine := crypto.NewEngine()
	engine.SetMasterPassword(password)
	t.Cleanup(engine.Close)

	mock := transport.NewMockTransport()
	cfg := config.DefaultConfig().Sync
	return tasks.NewService(mock, engine, cfg, events.Nop()), mock, engine
}

func mustEncrypt(t *testing.T, engine *crypto.Engine, plain string) string {
	t.Helper()
	token, err := engine.Encrypt(plain)
	require.NoError(t, err)
	require.NotEqual(t, plain, token)
	return token
}

func TestWorkspacesAndProjects(t *testing.T) {
	svc, mock, _ := newService(t, "")
	ctx := context.Background()

	mock.AddResponse(http.MethodGet, "/workspaces", []models.Workspace{
		{GID: "w1", Name: "Acme"},
	})
	mock.AddResponse(http.MethodGet, "/projects", []models.Project{
		{GID: "p1", Name: "Roadmap"},
		{GID: "p2", Name: "Ops"},
	})

	workspaces, err := svc.Workspaces(ctx)
	require.NoError(t, err)
	require.Len(t, workspaces, 1)
	assert.Equal(t, "Acme", workspaces[0].Name)

	projects, err := svc.Projects(ctx, "w1")
	require.NoError(t, err)
	assert.Len(t, projects, 2)

	reqs := mock.RequestsFor(http.MethodGet, "/projects")
	require.Len(t, reqs, 1)
	assert.Equal(t, "w1", reqs[0].Query.Get("workspace"))
	assert.Equal(t, "false", reqs[0].Query.Get("archived"))
	assert.Equal(t, "100", reqs[0].Query.Get("limit"))

	name, ok := svc.ProjectName("p2")
	assert.True(t, ok)
	assert.Equal(t, "Ops", name)

	_, ok = svc.ProjectName("missing")
	assert.False(t, ok)
}

func TestCreateProject(t *testing.T) {
	svc, mock, _ := newService(t, testPassword)
	ctx := context.Background()

	mock.AddResponse(http.MethodPost, "/projects", models.Project{GID: "p9", Name: "New"})

	project, err := svc.CreateProject(ctx, models.CreateProjectRequest{Name: "New", Team: "team1"})
	require.NoError(t, err)
	assert.Equal(t, "p9", project.GID)

	reqs := mock.RequestsFor(http.MethodPost, "/projects")
	require.Len(t, reqs, 1)
	var body models.CreateProjectRequest
	require.NoError(t, reqs[0].Decode(&body))
	assert.Equal(t, "New", body.Name, "project names stay plain")

	_, err = svc.CreateProject(ctx, models.CreateProjectRequest{Name: "  "})
	assert.ErrorIs(t, err, tasks.ErrInvalidInput)
}

func TestTaskDetail(t *testing.T) {
	svc, mock, engine := newService(t, testPassword)

	mock.AddResponse(http.MethodGet, "/tasks/t1", models.Task{
		GID:   "t1",
		Name:  mustEncrypt(t, engine, "Secret plan"),
		Notes: mustEncrypt(t, engine, "Step one\nStep two"),
	})
	mock.AddResponse(http.MethodGet, "/tasks/t2", models.Task{GID: "t2", Name: "Plain", Notes: ""})

	detail, err := svc.TaskDetail(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, detail.Encrypted)
	assert.Equal(t, "Secret plan", detail.Name)
	assert.Equal(t, "Step one\nStep two", detail.Notes)

	detail, err = svc.TaskDetail(context.Background(), "t2")
	require.NoError(t, err)
	assert.False(t, detail.Encrypted)
	assert.Equal(t, "Plain", detail.Name)
}

func TestTaskDetailWrongPassword(t *testing.T) {
	svc, mock, _ := newService(t, "other password")

	other := crypto.NewEngine()
	other.SetMasterPassword(testPassword)
	token := mustEncrypt(t, other, "hidden")

	mock.AddResponse(http.MethodGet, "/tasks/t1", models.Task{GID: "t1", Name: token})

	detail, err := svc.TaskDetail(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, token, detail.Name, "undecryptable values are shown as stored")
}

func TestSaveNotes(t *testing.T) {
	t.Run("encrypted", func(t *testing.T) {
		svc, mock, engine := newService(t, testPassword)

		require.NoError(t, svc.SaveNotes(context.Background(), "t1", "my notes"))

		reqs := mock.RequestsFor(http.MethodPut, "/tasks/t1")
		require.Len(t, reqs, 1)
		var body map[string]string
		require.NoError(t, reqs[0].Decode(&body))
		assert.True(t, engine.IsEncrypted(body["notes"]))
		assert.Equal(t, "my notes", engine.DecryptString(body["notes"]))
	})

	t.Run("empty clears", func(t *testing.T) {
		svc, mock, _ := newService(t, testPassword)

		require.NoError(t, svc.SaveNotes(context.Background(), "t1", ""))

		var body map[string]string
		require.NoError(t, mock.RequestsFor(http.MethodPut, "/tasks/t1")[0].Decode(&body))
		assert.Equal(t, "", body["notes"])
	})

	t.Run("no password", func(t *testing.T) {
		svc, mock, _ := newService(t, "")

		require.NoError(t, svc.SaveNotes(context.Background(), "t1", "visible"))

		var body map[string]string
		require.NoError(t, mock.RequestsFor(http.MethodPut, "/tasks/t1")[0].Decode(&body))
		assert.Equal(t, "visible", body["notes"])
	})

	t.Run("api error", func(t *testing.T) {
		svc, mock, _ := newService(t, "")
		mock.AddError(http.MethodPut, "/tasks/t1", models.NewAPIError(http.StatusForbidden, nil))

		err := svc.SaveNotes(context.Background(), "t1", "x")
		require.Error(t, err)

		var taskErr *models.TaskError
		require.ErrorAs(t, err, &taskErr)
		assert.Equal(t, "t1", taskErr.TaskID)
		assert.Equal(t, models.ErrCodeForbidden, taskErr.Code)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})
}

func TestCreateTask(t *testing.T) {
	svc, mock, engine := newService(t, testPassword)
	mock.AddResponse(http.MethodPost, "/tasks", models.Task{GID: "t5"})

	task, err := svc.CreateTask(context.Background(), "p1", "  Buy milk ")
	require.NoError(t, err)
	assert.Equal(t, "t5", task.GID)
	assert.Equal(t, "Buy milk", task.Name)

	reqs := mock.RequestsFor(http.MethodPost, "/tasks")
	require.Len(t, reqs, 1)
	var body models.CreateTaskRequest
	require.NoError(t, reqs[0].Decode(&body))
	assert.Equal(t, []string{"p1"}, body.Projects)
	assert.Equal(t, "Buy milk", engine.DecryptString(body.Name))

	_, err = svc.CreateTask(context.Background(), "p1", " ")
	assert.ErrorIs(t, err, tasks.ErrInvalidInput)
}

func TestCreateSubtask(t *testing.T) {
	svc, mock, _ := newService(t, "")

	_, err := svc.CreateSubtask(context.Background(), "t1", "child")
	require.NoError(t, err)

	var body models.CreateTaskRequest
	require.NoError(t, mock.RequestsFor(http.MethodPost, "/tasks")[0].Decode(&body))
	assert.Equal(t, "t1", body.Parent)
	assert.Empty(t, body.Projects)
	assert.Equal(t, "child", body.Name)
}

func TestRenameTask(t *testing.T) {
	svc, mock, engine := newService(t, testPassword)

	require.NoError(t, svc.RenameTask(context.Background(), "t1", "Renamed"))

	var body map[string]string
	require.NoError(t, mock.RequestsFor(http.MethodPut, "/tasks/t1")[0].Decode(&body))
	assert.Equal(t, "Renamed", engine.DecryptString(body["name"]))
}

func TestComments(t *testing.T) {
	svc, mock, engine := newService(t, testPassword)

	mock.AddResponse(http.MethodGet, "/tasks/t1/stories", []models.Story{
		{GID: "s1", ResourceSubtype: "assigned", Text: "assigned to you"},
		{GID: "s2", ResourceSubtype: models.StorySubtypeComment, Text: mustEncrypt(t, engine, "hello")},
		{GID: "s3", ResourceSubtype: models.StorySubtypeComment, Text: "plain comment"},
		{GID: "s4", ResourceSubtype: models.StorySubtypeComment, Text: ""},
	})

	comments, err := svc.Comments(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "hello", comments[0].Text)
	assert.Equal(t, "plain comment", comments[1].Text)
}

func TestAddComment(t *testing.T) {
	svc, mock, engine := newService(t, testPassword)

	story, err := svc.AddComment(context.Background(), "t1", "looks good")
	require.NoError(t, err)
	assert.Equal(t, "looks good", story.Text)

	var body map[string]string
	require.NoError(t, mock.RequestsFor(http.MethodPost, "/tasks/t1/stories")[0].Decode(&body))
	assert.True(t, engine.IsEncrypted(body["text"]))
	assert.Equal(t, "looks good", engine.DecryptString(body["text"]))

	_, err = svc.AddComment(context.Background(), "t1", "")
	assert.ErrorIs(t, err, tasks.ErrInvalidInput)
}

func TestErrorWrapping(t *testing.T) {
	svc, mock, _ := newService(t, "")

	mock.AddError(http.MethodGet, "/tasks/gone", models.NewAPIError(http.StatusNotFound, nil))
	mock.AddError(http.MethodGet, "/workspaces", models.ErrNotAuthenticated)

	_, err := svc.TaskDetail(context.Background(), "gone")
	var taskErr *models.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, models.ErrCodeNotFound, taskErr.Code)
	assert.Equal(t, "get task", taskErr.Op)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.Workspaces(context.Background())
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, models.ErrCodeAuth, taskErr.Code)

	mock.AddError(http.MethodGet, "/projects", context.Canceled)
	_, err = svc.Projects(context.Background(), "w1")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.As(err, &taskErr), "cancellation is returned unwrapped")
}
