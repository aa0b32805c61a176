package board

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrStaleResponse is returned when a list result arrives after a newer
	// list request was issued. The result has been discarded.
	ErrStaleResponse = errors.New("stale list response discarded")

	ErrDragInProgress = errors.New("a card is already being dragged")
	ErrNotDragging    = errors.New("no card is being dragged")
	ErrNoSuchCard     = errors.New("no card at the dragged position")
	ErrUnknownColumn  = errors.New("unknown board column")
)

// ConsistencyError reports tasks whose status has no board column. The
// offending data is never dropped silently: the whole operation is refused.
type ConsistencyError struct {
	// Statuses maps task id to the unrecognised status it carried.
	Statuses map[string]string
}

func (e *ConsistencyError) Error() string {
	ids := make([]string, 0, len(e.Statuses))
	for id := range e.Statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s=%q", id, e.Statuses[id]))
	}
	return "tasks with unknown status: " + strings.Join(parts, ", ")
}
