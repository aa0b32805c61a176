package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"taskboard/internal/handlers"
	"taskboard/internal/middleware"
	"taskboard/internal/models"
	"taskboard/internal/services"
)

type MockTaskService struct {
	tasks     []models.Task
	err       error
	lastUser  string
	lastTeams []string
	lastTeam  *string
	lastPatch models.TaskPatch
}

func (m *MockTaskService) ListTasks(db *gorm.DB, caller services.Caller, teamID *string) ([]models.Task, error) {
	m.lastUser, m.lastTeams, m.lastTeam = caller.UserID, caller.Teams, teamID
	if m.err != nil {
		return nil, m.err
	}
	return m.tasks, nil
}

func (m *MockTaskService) CreateTask(db *gorm.DB, caller services.Caller, in models.NewTask) (models.Task, error) {
	m.lastUser = caller.UserID
	if m.err != nil {
		return models.Task{}, m.err
	}
	task := models.Task{ID: "new-id", Title: in.Title, Status: in.Status.OrDefault(), Priority: in.Priority, UserID: caller.UserID}
	m.tasks = append(m.tasks, task)
	return task, nil
}

func (m *MockTaskService) UpdateTask(db *gorm.DB, caller services.Caller, id string, patch models.TaskPatch) (models.Task, error) {
	m.lastUser, m.lastPatch = caller.UserID, patch
	if m.err != nil {
		return models.Task{}, m.err
	}
	return patch.Apply(models.Task{ID: id, Title: "Existing", Status: models.StatusTodo, UserID: caller.UserID}), nil
}

func (m *MockTaskService) DeleteTask(db *gorm.DB, caller services.Caller, id string) error {
	m.lastUser = caller.UserID
	return m.err
}

func setupTaskHandler(authenticated bool) (*MockTaskService, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	logger := log.New()
	logger.SetOutput(io.Discard)

	mockService := &MockTaskService{}
	handler := handlers.NewTaskHandler(nil, mockService, logger)
	router := gin.New()

	if authenticated {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.UserIDKey, "user-1")
			c.Set(middleware.TeamsKey, []string{"t-9"})
			c.Next()
		})
	}
	handler.Register(router.Group("/api"))
	return mockService, router
}

func doJSON(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewBuffer(data)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGetTasks(t *testing.T) {
	mock, router := setupTaskHandler(true)
	mock.tasks = []models.Task{{ID: "1", Title: "A", Status: models.StatusTodo}}

	w := doJSON(router, http.MethodGet, "/api/tasks", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var tasks []models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	assert.Len(t, tasks, 1)
	assert.Equal(t, "user-1", mock.lastUser)
	assert.Nil(t, mock.lastTeam)
}

func TestGetTasksForTeam(t *testing.T) {
	mock, router := setupTaskHandler(true)

	w := doJSON(router, http.MethodGet, "/api/tasks?teamId=t-9", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.lastTeam)
	assert.Equal(t, "t-9", *mock.lastTeam)
	assert.Equal(t, []string{"t-9"}, mock.lastTeams)
}

func TestGetTasksForForeignTeam(t *testing.T) {
	mock, router := setupTaskHandler(true)
	mock.err = services.ErrNotTeamMember

	w := doJSON(router, http.MethodGet, "/api/tasks?teamId=t-1", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Not a member of this team", decodeError(t, w)["message"])
}

func TestCreateTask(t *testing.T) {
	_, router := setupTaskHandler(true)

	w := doJSON(router, http.MethodPost, "/api/tasks", models.NewTask{Title: "Test Task", Priority: models.PriorityHigh})

	assert.Equal(t, http.StatusCreated, w.Code)
	var task models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.Equal(t, "new-id", task.ID)
	assert.Equal(t, "user-1", task.UserID)
}

func TestCreateTaskInvalidJSON(t *testing.T) {
	_, router := setupTaskHandler(true)

	w := doJSON(router, http.MethodPost, "/api/tasks", "invalid json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeError(t, w)["error"])
}

func TestCreateTaskValidationError(t *testing.T) {
	mock, router := setupTaskHandler(true)
	mock.err = models.ValidationErrors{"title": "Title is required", "status": `Unknown status "x"`}

	w := doJSON(router, http.MethodPost, "/api/tasks", models.NewTask{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "validation_error", body["error"])
	assert.Equal(t, `Unknown status "x"; Title is required`, body["message"])
}

func TestUpdateTask(t *testing.T) {
	mock, router := setupTaskHandler(true)

	for _, method := range []string{http.MethodPatch, http.MethodPut} {
		w := doJSON(router, method, "/api/tasks/abc", map[string]string{"status": "done"})

		assert.Equal(t, http.StatusOK, w.Code, method)
		var task models.Task
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
		assert.Equal(t, "abc", task.ID)
		assert.Equal(t, models.StatusDone, task.Status)
		assert.Equal(t, "Existing", task.Title, "response carries the full task")
		require.NotNil(t, mock.lastPatch.Status)
		assert.Nil(t, mock.lastPatch.Title)
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	mock, router := setupTaskHandler(true)
	mock.err = services.ErrTaskNotFound

	w := doJSON(router, http.MethodPatch, "/api/tasks/missing", map[string]string{"status": "done"})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Task not found", decodeError(t, w)["message"])
}

func TestDeleteTask(t *testing.T) {
	_, router := setupTaskHandler(true)

	w := doJSON(router, http.MethodDelete, "/api/tasks/abc", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestTaskInternalError(t *testing.T) {
	mock, router := setupTaskHandler(true)
	mock.err = errors.New("disk on fire")

	w := doJSON(router, http.MethodGet, "/api/tasks", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "Failed to process task request", body["message"])
	assert.NotContains(t, w.Body.String(), "disk on fire")
}

func TestTasksRequireUser(t *testing.T) {
	_, router := setupTaskHandler(false)

	w := doJSON(router, http.MethodGet, "/api/tasks", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid or expired token", decodeError(t, w)["message"])
}
