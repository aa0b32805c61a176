package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"taskboard/internal/middleware"
	"taskboard/internal/models"
	"taskboard/internal/services"
)

type TaskHandler struct {
	db          *gorm.DB
	taskService services.TaskService
	logger      *log.Logger
}

func NewTaskHandler(db *gorm.DB, taskService services.TaskService, logger *log.Logger) *TaskHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TaskHandler{db: db, taskService: taskService, logger: logger}
}

// Register mounts the task routes on rg.
func (h *TaskHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/tasks", h.GetTasks)
	rg.POST("/tasks", h.CreateTask)
	rg.PATCH("/tasks/:id", h.UpdateTask)
	rg.PUT("/tasks/:id", h.UpdateTask)
	rg.DELETE("/tasks/:id", h.DeleteTask)
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	var teamID *string
	if team := c.Query("teamId"); team != "" {
		teamID = &team
	}

	tasks, err := h.taskService.ListTasks(h.db, caller, teamID)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	var input models.NewTask
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be a task object",
		})
		return
	}

	task, err := h.taskService.CreateTask(h.db, caller, input)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	var patch models.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be a task patch",
		})
		return
	}

	task, err := h.taskService.UpdateTask(h.db, caller, c.Param("id"), patch)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(h.db, caller, c.Param("id")); err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func currentCaller(c *gin.Context) (services.Caller, bool) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthenticated",
			"message": middleware.InvalidTokenMessage,
		})
		return services.Caller{}, false
	}
	return services.Caller{UserID: userID, Teams: c.GetStringSlice(middleware.TeamsKey)}, true
}

func (h *TaskHandler) handleTaskError(c *gin.Context, err error) {
	var verrs models.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": verrs.Summary(),
			"fields":  verrs,
		})
	case errors.Is(err, services.ErrNotTeamMember):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Not a member of this team",
		})
	case errors.Is(err, services.ErrTaskNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Task not found",
		})
	default:
		h.logger.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"error":  err,
		}).Error("tasks.request.failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to process task request",
		})
	}
}
