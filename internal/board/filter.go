package board

import (
	"strings"

	"taskboard/internal/models"
)

// FilterSpec narrows what the board displays. An empty field places no
// constraint on that dimension; set fields are combined with AND.
type FilterSpec struct {
	// Date is matched as a prefix of the due date, so "2026-03" keeps
	// every task due in March 2026.
	Date     string `json:"date,omitempty"`
	Assignee string `json:"assignee,omitempty"`
	Status   string `json:"status,omitempty"`
}

func (f FilterSpec) Active() bool {
	return f.Date != "" || f.Assignee != "" || f.Status != ""
}

// Without clears one constraint ("date", "assignee" or "status").
func (f FilterSpec) Without(field string) FilterSpec {
	switch field {
	case "date":
		f.Date = ""
	case "assignee":
		f.Assignee = ""
	case "status":
		f.Status = ""
	}
	return f
}

func (f FilterSpec) Match(t models.Task) bool {
	if f.Date != "" && !strings.HasPrefix(t.DueDate, f.Date) {
		return false
	}
	if f.Assignee != "" && t.Assignee != f.Assignee {
		return false
	}
	if f.Status != "" && string(t.Status) != f.Status {
		return false
	}
	return true
}

// Apply returns a filtered projection of cols. cols is never modified and
// the result shares no task data with it. Every board column is present in
// the result, possibly empty.
func Apply(cols models.Columns, f FilterSpec) models.Columns {
	out := models.NewColumns()
	for status, tasks := range cols {
		kept := make([]models.Task, 0, len(tasks))
		for _, t := range tasks {
			if f.Match(t) {
				kept = append(kept, t.Clone())
			}
		}
		out[status] = kept
	}
	return out
}

// Emptiness tells the rendering layer which empty state, if any, to show.
type Emptiness int

const (
	HasMatches Emptiness = iota
	// NoTasks means the board holds no tasks at all.
	NoTasks
	// NoMatches means tasks exist but the active filter hides all of them.
	NoMatches
)

func (e Emptiness) String() string {
	switch e {
	case NoTasks:
		return "No tasks available. Create a new task to get started."
	case NoMatches:
		return "No tasks found for the applied filters."
	default:
		return ""
	}
}

func EmptinessOf(all, filtered models.Columns) Emptiness {
	switch {
	case all.Empty():
		return NoTasks
	case filtered.Empty():
		return NoMatches
	default:
		return HasMatches
	}
}
