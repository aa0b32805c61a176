// Package gateway talks to the remote task API. A Gateway performs one round
// trip per call and keeps no state about tasks.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"taskboard/internal/models"
)

// ErrSessionExpired means the credentials were refused. It is terminal: the
// user has to sign in again before any further call can succeed.
var ErrSessionExpired = errors.New("session expired")

const (
	// DefaultErrorMessage is used when the server gives no usable message.
	DefaultErrorMessage = "An unexpected error occurred"

	SessionExpiredMessage = "Session expired. You have been logged out."
)

type Gateway interface {
	// List returns the caller's personal tasks, or the team's tasks when
	// teamID is set.
	List(ctx context.Context, teamID *string) ([]models.Task, error)
	Create(ctx context.Context, task models.NewTask) (models.Task, error)
	// Update returns the full task as stored after the change.
	Update(ctx context.Context, id string, patch models.TaskPatch) (models.Task, error)
	Delete(ctx context.Context, id string) error
}

// Op names a gateway operation in errors and logs.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Error is a failed gateway call. StatusCode is zero when no response was
// received.
type Error struct {
	Op         Op
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s tasks: %s (status %d)", e.Op, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s tasks: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Message extracts the text to show the user for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrSessionExpired) {
		return SessionExpiredMessage
	}
	var gerr *Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		return gerr.Message
	}
	return err.Error()
}

// IsNotFound reports whether err is a 404 from the remote API.
func IsNotFound(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.StatusCode == 404
}
