package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for due dates on the wire.
const DateLayout = "2006-01-02"

var (
	ErrUnknownStatus   = errors.New("unknown task status")
	ErrUnknownPriority = errors.New("unknown task priority")
)

// Status is the workflow stage of a task and doubles as its board column key.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// Statuses lists every column in board order.
var Statuses = [...]Status{StatusTodo, StatusInProgress, StatusReview, StatusDone}

// ColumnCount is the number of board columns.
const ColumnCount = len(Statuses)

// Index returns the column slot of s. ok is false for anything outside the
// closed set, including the empty status.
func (s Status) Index() (idx int, ok bool) {
	switch s {
	case StatusTodo:
		return 0, true
	case StatusInProgress:
		return 1, true
	case StatusReview:
		return 2, true
	case StatusDone:
		return 3, true
	default:
		return -1, false
	}
}

func (s Status) Valid() bool {
	_, ok := s.Index()
	return ok
}

// OrDefault maps an absent status to todo.
func (s Status) OrDefault() Status {
	if s == "" {
		return StatusTodo
	}
	return s
}

func (s Status) String() string { return string(s) }

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

// Priority is ordered: normal < medium < high.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank returns the ordinal of p, or -1 when p is not a known priority.
func (p Priority) Rank() int {
	switch p {
	case PriorityNormal:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	default:
		return -1
	}
}

func (p Priority) Valid() bool { return p.Rank() >= 0 }

func (p Priority) Less(other Priority) bool { return p.Rank() < other.Rank() }

func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.TrimSpace(raw))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPriority, raw)
	}
	return p, nil
}

type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	DueDate     string   `json:"dueDate,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	AssigneeIDs []string `json:"assigneeIds"`
	UserID      string   `json:"userId"`
	TeamID      *string  `json:"teamId,omitempty"`
}

// Clone returns a copy that shares no slices or pointers with t.
func (t Task) Clone() Task {
	out := t
	if t.AssigneeIDs != nil {
		out.AssigneeIDs = append([]string(nil), t.AssigneeIDs...)
	}
	if t.TeamID != nil {
		team := *t.TeamID
		out.TeamID = &team
	}
	return out
}

// Equal reports whether two tasks carry the same data.
func (t Task) Equal(other Task) bool {
	if t.ID != other.ID || t.Title != other.Title || t.Description != other.Description ||
		t.Status != other.Status || t.Priority != other.Priority || t.DueDate != other.DueDate ||
		t.Assignee != other.Assignee || t.UserID != other.UserID {
		return false
	}
	if (t.TeamID == nil) != (other.TeamID == nil) {
		return false
	}
	if t.TeamID != nil && *t.TeamID != *other.TeamID {
		return false
	}
	if len(t.AssigneeIDs) != len(other.AssigneeIDs) {
		return false
	}
	for i := range t.AssigneeIDs {
		if t.AssigneeIDs[i] != other.AssigneeIDs[i] {
			return false
		}
	}
	return true
}

// NewTask is the partial task sent to the remote API on creation. The server
// assigns the id and routes the task to a team board when TeamID is set.
type NewTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	DueDate     string   `json:"dueDate,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	AssigneeIDs []string `json:"assigneeIds,omitempty"`
	UserID      string   `json:"userId,omitempty"`
	TeamID      *string  `json:"teamId,omitempty"`
}

// ValidationErrors maps a field name to the reason it was rejected.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "invalid task: " + strings.Join(parts, "; ")
}

// Summary joins the messages, ordered by field, for display.
func (v ValidationErrors) Summary() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, v[f])
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the creation form rules. now decides what "in the past"
// means; a due date of today is accepted.
func (n NewTask) Validate(now time.Time) error {
	errs := ValidationErrors{}

	if strings.TrimSpace(n.Title) == "" {
		errs["title"] = "Title is required"
	}

	switch {
	case n.Priority == "":
		errs["priority"] = "Priority is required"
	case !n.Priority.Valid():
		errs["priority"] = fmt.Sprintf("Unknown priority %q", n.Priority)
	}

	switch {
	case n.Status == "":
		errs["status"] = "Status is required"
	case !n.Status.Valid():
		errs["status"] = fmt.Sprintf("Unknown status %q", n.Status)
	}

	if n.DueDate == "" {
		errs["dueDate"] = "Due Date is required"
	} else if due, err := time.ParseInLocation(DateLayout, n.DueDate, now.Location()); err != nil {
		errs["dueDate"] = "Due Date must be a date (YYYY-MM-DD)"
	} else {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if due.Before(today) {
			errs["dueDate"] = "Due Date cannot be in the past"
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// TaskPatch carries the fields of a partial update. Nil fields are left
// untouched by the server.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	DueDate     *string   `json:"dueDate,omitempty"`
	Assignee    *string   `json:"assignee,omitempty"`
	AssigneeIDs *[]string `json:"assigneeIds,omitempty"`
}

// StatusPatch is the patch a drag-and-drop move sends.
func StatusPatch(s Status) TaskPatch {
	return TaskPatch{Status: &s}
}

// Apply writes the non-nil fields of p onto t.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Assignee != nil {
		t.Assignee = *p.Assignee
	}
	if p.AssigneeIDs != nil {
		t.AssigneeIDs = append([]string(nil), (*p.AssigneeIDs)...)
	}
	return t
}

// Columns is a display projection of tasks keyed by status.
type Columns map[Status][]Task

// NewColumns returns a projection with every column present and empty.
func NewColumns() Columns {
	cols := make(Columns, ColumnCount)
	for _, s := range Statuses {
		cols[s] = []Task{}
	}
	return cols
}

func (c Columns) Clone() Columns {
	out := make(Columns, len(c))
	for s, tasks := range c {
		cp := make([]Task, len(tasks))
		for i, t := range tasks {
			cp[i] = t.Clone()
		}
		out[s] = cp
	}
	return out
}

func (c Columns) Total() int {
	n := 0
	for _, tasks := range c {
		n += len(tasks)
	}
	return n
}

func (c Columns) Empty() bool { return c.Total() == 0 }

// IDs returns the task ids of one column in order.
func (c Columns) IDs(s Status) []string {
	ids := make([]string, 0, len(c[s]))
	for _, t := range c[s] {
		ids = append(ids, t.ID)
	}
	return ids
}
