package board_test

import (
	"context"
	"fmt"
	"sync"

	"taskboard/internal/models"
)

type call struct {
	Op    string
	ID    string
	Patch models.TaskPatch
}

// fakeGateway serves tasks from memory. Hooks, when set, replace the default
// behaviour of a method so tests can block or fail individual calls.
type fakeGateway struct {
	mu     sync.Mutex
	tasks  []models.Task
	nextID int
	calls  []call

	listHook   func(n int) ([]models.Task, error)
	updateHook func(id string, patch models.TaskPatch) (models.Task, error)
	createErr  error
	deleteErr  error
	listCalls  int
}

func newFakeGateway(tasks ...models.Task) *fakeGateway {
	return &fakeGateway{tasks: tasks}
}

func (f *fakeGateway) List(ctx context.Context, teamID *string) ([]models.Task, error) {
	f.mu.Lock()
	f.listCalls++
	n := f.listCalls
	f.calls = append(f.calls, call{Op: "list"})
	hook := f.listHook
	out := make([]models.Task, len(f.tasks))
	for i, t := range f.tasks {
		out[i] = t.Clone()
	}
	f.mu.Unlock()

	if hook != nil {
		return hook(n)
	}
	return out, nil
}

func (f *fakeGateway) Create(ctx context.Context, in models.NewTask) (models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call{Op: "create"})
	if f.createErr != nil {
		return models.Task{}, f.createErr
	}
	f.nextID++
	task := models.Task{
		ID:       fmt.Sprintf("new-%d", f.nextID),
		Title:    in.Title,
		Status:   in.Status.OrDefault(),
		Priority: in.Priority,
		DueDate:  in.DueDate,
		Assignee: in.Assignee,
		UserID:   "u1",
		TeamID:   in.TeamID,
	}
	f.tasks = append(f.tasks, task)
	return task, nil
}

func (f *fakeGateway) Update(ctx context.Context, id string, patch models.TaskPatch) (models.Task, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{Op: "update", ID: id, Patch: patch})
	hook := f.updateHook
	f.mu.Unlock()

	if hook != nil {
		return hook(id, patch)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks[i] = patch.Apply(t)
			return f.tasks[i].Clone(), nil
		}
	}
	return models.Task{}, fmt.Errorf("task %s not found", id)
}

func (f *fakeGateway) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call{Op: "delete", ID: id})
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeGateway) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeGateway) CallsTo(op string) []call {
	var out []call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func task(id string, status models.Status) models.Task {
	return models.Task{ID: id, Title: "Task " + id, Status: status, Priority: models.PriorityNormal, UserID: "u1"}
}
