package board

import (
	"sync"

	"taskboard/internal/models"
)

// State is a read-only copy of the store handed to the rendering layer.
type State struct {
	Columns  models.Columns
	Loading  bool
	Error    string
	Terminal bool
	Version  uint64
}

// Placement records where a task sat before an optimistic move so the move
// can be undone if the server rejects it.
type Placement struct {
	Task       models.Task
	Column     models.Status
	Index      int
	Generation uint64
}

// Store is the client-side owner of all task data. Tasks are partitioned by
// status; every mutating method leaves each task in exactly one column whose
// key equals the task's status.
type Store struct {
	mu sync.RWMutex

	columns  [models.ColumnCount][]models.Task
	loading  bool
	err      string
	terminal bool
	version  uint64

	loadSeq uint64
	moveSeq uint64
	moves   map[string]uint64
}

func NewStore() *Store {
	return &Store{moves: make(map[string]uint64)}
}

// BeginLoad marks a list request as in flight and returns its ticket. Only
// the most recently issued ticket may complete the load.
func (s *Store) BeginLoad() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadSeq++
	s.loading = true
	s.setErrLocked("")
	s.version++
	return s.loadSeq
}

// LoadSucceeded replaces every column with tasks partitioned by status.
func (s *Store) LoadSucceeded(ticket uint64, tasks []models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket != s.loadSeq {
		return ErrStaleResponse
	}

	var next [models.ColumnCount][]models.Task
	for i := range next {
		next[i] = []models.Task{}
	}

	bad := map[string]string{}
	for _, t := range tasks {
		idx, ok := t.Status.Index()
		if !ok {
			bad[t.ID] = string(t.Status)
			continue
		}
		next[idx] = append(next[idx], t.Clone())
	}

	s.loading = false
	s.version++
	if len(bad) > 0 {
		cerr := &ConsistencyError{Statuses: bad}
		s.setErrLocked(cerr.Error())
		return cerr
	}

	s.columns = next
	s.moves = make(map[string]uint64)
	return nil
}

// LoadFailed records message and keeps the current columns visible.
func (s *Store) LoadFailed(ticket uint64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket != s.loadSeq {
		return ErrStaleResponse
	}
	s.loading = false
	s.setErrLocked(message)
	s.version++
	return nil
}

// ApplyCreated appends task to the column of its status (todo when unset).
func (s *Store) ApplyCreated(task models.Task) error {
	task.Status = task.Status.OrDefault()
	idx, ok := task.Status.Index()
	if !ok {
		return &ConsistencyError{Statuses: map[string]string{task.ID: string(task.Status)}}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(task.ID)
	delete(s.moves, task.ID)
	s.columns[idx] = append(s.columns[idx], task.Clone())
	s.version++
	return nil
}

// ApplyUpdated reconciles the store with the authoritative copy of a task.
// A task whose status changed is moved to the end of its new column;
// otherwise it is replaced in place. Unknown ids are ignored since the task
// may have been deleted while the update was in flight. A pending move of
// the task can no longer be rolled back once the server's copy is applied.
func (s *Store) ApplyUpdated(task models.Task) error {
	task.Status = task.Status.OrDefault()
	newIdx, ok := task.Status.Index()
	if !ok {
		return &ConsistencyError{Statuses: map[string]string{task.ID: string(task.Status)}}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, pos, found := s.findLocked(task.ID)
	if !found {
		return nil
	}
	delete(s.moves, task.ID)

	if col == newIdx {
		if s.columns[col][pos].Equal(task) {
			return nil
		}
		s.columns[col][pos] = task.Clone()
	} else {
		s.columns[col] = removeAt(s.columns[col], pos)
		s.columns[newIdx] = append(s.columns[newIdx], task.Clone())
	}
	s.version++
	return nil
}

// ApplyDeleted removes the task with id from whichever column holds it.
func (s *Store) ApplyDeleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removeLocked(id) {
		delete(s.moves, id)
		s.version++
	}
}

// MoveLocally moves a task between columns ahead of server confirmation.
// It returns the prior placement for Rollback; ok is false when the task is
// not in from or either column is unknown.
func (s *Store) MoveLocally(id string, from, to models.Status) (Placement, bool) {
	fromIdx, ok := from.Index()
	if !ok {
		return Placement{}, false
	}
	toIdx, ok := to.Index()
	if !ok {
		return Placement{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos := indexOf(s.columns[fromIdx], id)
	if pos < 0 {
		return Placement{}, false
	}

	task := s.columns[fromIdx][pos]
	s.moveSeq++
	prior := Placement{Task: task.Clone(), Column: from, Index: pos, Generation: s.moveSeq}

	if fromIdx != toIdx {
		s.columns[fromIdx] = removeAt(s.columns[fromIdx], pos)
		task.Status = to
		s.columns[toIdx] = append(s.columns[toIdx], task)
		s.version++
	}
	s.moves[id] = s.moveSeq
	return prior, true
}

// Rollback puts a task back where p says it was. It does nothing when a
// later move of the same task superseded p or the task has since been
// deleted or reloaded.
func (s *Store) Rollback(p Placement) bool {
	idx, ok := p.Column.Index()
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.moves[p.Task.ID] != p.Generation {
		return false
	}
	delete(s.moves, p.Task.ID)

	col, pos, found := s.findLocked(p.Task.ID)
	if !found {
		return false
	}
	s.columns[col] = removeAt(s.columns[col], pos)

	at := p.Index
	if at > len(s.columns[idx]) {
		at = len(s.columns[idx])
	}
	s.columns[idx] = insertAt(s.columns[idx], at, p.Task.Clone())
	s.version++
	return true
}

// Settle forgets the pending move of p once the server has confirmed it.
func (s *Store) Settle(p Placement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.moves[p.Task.ID] == p.Generation {
		delete(s.moves, p.Task.ID)
	}
}

// Fail records a recoverable error without touching task data.
func (s *Store) Fail(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setErrLocked(message)
	s.version++
}

// Expire records a terminal session error. Later loads and failures leave
// it in place.
func (s *Store) Expire(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = message
	s.terminal = true
	s.loading = false
	s.version++
}

func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal || s.err == "" {
		return
	}
	s.err = ""
	s.version++
}

// setErrLocked replaces the current error unless the session has ended.
func (s *Store) setErrLocked(message string) {
	if s.terminal {
		return
	}
	s.err = message
}

// Columns returns a copy of the current columns.
func (s *Store) Columns() models.Columns {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.columnsLocked()
}

func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return State{
		Columns:  s.columnsLocked(),
		Loading:  s.loading,
		Error:    s.err,
		Terminal: s.terminal,
		Version:  s.version,
	}
}

// Task looks up a task by id.
func (s *Store) Task(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, pos, found := s.findLocked(id)
	if !found {
		return models.Task{}, false
	}
	return s.columns[col][pos].Clone(), true
}

func (s *Store) columnsLocked() models.Columns {
	cols := make(models.Columns, models.ColumnCount)
	for i, status := range models.Statuses {
		cp := make([]models.Task, len(s.columns[i]))
		for j, t := range s.columns[i] {
			cp[j] = t.Clone()
		}
		cols[status] = cp
	}
	return cols
}

func (s *Store) findLocked(id string) (col, pos int, found bool) {
	for c := range s.columns {
		if p := indexOf(s.columns[c], id); p >= 0 {
			return c, p, true
		}
	}
	return -1, -1, false
}

func (s *Store) removeLocked(id string) bool {
	col, pos, found := s.findLocked(id)
	if !found {
		return false
	}
	s.columns[col] = removeAt(s.columns[col], pos)
	return true
}

func indexOf(tasks []models.Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func removeAt(tasks []models.Task, i int) []models.Task {
	out := make([]models.Task, 0, len(tasks)-1)
	out = append(out, tasks[:i]...)
	return append(out, tasks[i+1:]...)
}

func insertAt(tasks []models.Task, i int, t models.Task) []models.Task {
	out := make([]models.Task, 0, len(tasks)+1)
	out = append(out, tasks[:i]...)
	out = append(out, t)
	return append(out, tasks[i:]...)
}
