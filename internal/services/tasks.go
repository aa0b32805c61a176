package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"taskboard/internal/models"
)

var (
	// ErrTaskNotFound is returned for unknown ids and for tasks the caller
	// may not see.
	ErrTaskNotFound = errors.New("task not found")
	// ErrNotTeamMember is returned when the caller asks for, or creates on,
	// a team board it does not belong to.
	ErrNotTeamMember = errors.New("not a member of this team")
)

// Caller is the authenticated user behind a request.
type Caller struct {
	UserID string
	Teams  []string
}

func (c Caller) InTeam(teamID string) bool {
	for _, t := range c.Teams {
		if t == teamID {
			return true
		}
	}
	return false
}

type TaskService interface {
	// ListTasks returns the caller's personal tasks, or every task of
	// teamID when it is set, oldest first.
	ListTasks(db *gorm.DB, caller Caller, teamID *string) ([]models.Task, error)
	CreateTask(db *gorm.DB, caller Caller, in models.NewTask) (models.Task, error)
	UpdateTask(db *gorm.DB, caller Caller, id string, patch models.TaskPatch) (models.Task, error)
	DeleteTask(db *gorm.DB, caller Caller, id string) error
}

type TaskServiceImpl struct{}

func NewTaskService() *TaskServiceImpl {
	return &TaskServiceImpl{}
}

func (s *TaskServiceImpl) ListTasks(db *gorm.DB, caller Caller, teamID *string) ([]models.Task, error) {
	query := db.Model(&models.TaskRecord{})
	if teamID != nil && *teamID != "" {
		if !caller.InTeam(*teamID) {
			return nil, ErrNotTeamMember
		}
		query = query.Where("team_id = ?", *teamID)
	} else {
		query = query.Where("user_id = ? AND team_id IS NULL", caller.UserID)
	}

	var records []models.TaskRecord
	if err := query.Order("created_at ASC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]models.Task, 0, len(records))
	for _, r := range records {
		tasks = append(tasks, r.Task())
	}
	return tasks, nil
}

func (s *TaskServiceImpl) CreateTask(db *gorm.DB, caller Caller, in models.NewTask) (models.Task, error) {
	in = withDefaults(in)
	if err := validateStored(in); err != nil {
		return models.Task{}, err
	}
	if in.TeamID != nil && !caller.InTeam(*in.TeamID) {
		return models.Task{}, ErrNotTeamMember
	}

	id, err := uuid.NewV4()
	if err != nil {
		return models.Task{}, fmt.Errorf("generate task id: %w", err)
	}

	record := models.NewTaskRecord(id, caller.UserID, in)
	if err := db.Create(&record).Error; err != nil {
		return models.Task{}, fmt.Errorf("create task: %w", err)
	}
	return record.Task(), nil
}

func (s *TaskServiceImpl) UpdateTask(db *gorm.DB, caller Caller, id string, patch models.TaskPatch) (models.Task, error) {
	var out models.Task
	err := db.Transaction(func(tx *gorm.DB) error {
		record, err := findVisible(tx, caller, id)
		if err != nil {
			return err
		}

		patch.ApplyRecord(&record)
		if err := validateRecord(record); err != nil {
			return err
		}
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		out = record.Task()
		return nil
	})
	return out, err
}

func (s *TaskServiceImpl) DeleteTask(db *gorm.DB, caller Caller, id string) error {
	record, err := findVisible(db, caller, id)
	if err != nil {
		return err
	}
	if err := db.Delete(&record).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// findVisible loads a personal task of the caller or a task on one of the
// caller's team boards.
func findVisible(db *gorm.DB, caller Caller, id string) (models.TaskRecord, error) {
	uid, err := uuid.FromString(id)
	if err != nil {
		return models.TaskRecord{}, ErrTaskNotFound
	}

	query := db.Where("id = ?", uid)
	if len(caller.Teams) > 0 {
		query = query.Where("((user_id = ? AND team_id IS NULL) OR team_id IN ?)", caller.UserID, caller.Teams)
	} else {
		query = query.Where("user_id = ? AND team_id IS NULL", caller.UserID)
	}

	var record models.TaskRecord
	err = query.First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.TaskRecord{}, ErrTaskNotFound
	}
	if err != nil {
		return models.TaskRecord{}, fmt.Errorf("find task: %w", err)
	}
	return record, nil
}

func withDefaults(in models.NewTask) models.NewTask {
	in.Title = strings.TrimSpace(in.Title)
	in.Status = in.Status.OrDefault()
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if in.TeamID != nil && *in.TeamID == "" {
		in.TeamID = nil
	}
	return in
}

// validateStored checks what the store needs to keep the board consistent.
// Due dates in the past are a form concern and are accepted here.
func validateStored(in models.NewTask) error {
	errs := models.ValidationErrors{}
	if in.Title == "" {
		errs["title"] = "Title is required"
	}
	if !in.Status.Valid() {
		errs["status"] = fmt.Sprintf("Unknown status %q", in.Status)
	}
	if !in.Priority.Valid() {
		errs["priority"] = fmt.Sprintf("Unknown priority %q", in.Priority)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateRecord(r models.TaskRecord) error {
	return validateStored(models.NewTask{
		Title:    strings.TrimSpace(r.Title),
		Status:   models.Status(r.Status),
		Priority: models.Priority(r.Priority),
	})
}
