package services

import (
	"context"
	"errors"
	"fmt"

	"tasklog/app/models"
)

// Store is the durable collection of tasks.
type Store interface {
	// ListTasks returns every task, newest first.
	ListTasks(ctx context.Context) ([]models.Task, error)

	// CreateTask stores a new incomplete task and returns it with its
	// generated id and timestamps.
	CreateTask(ctx context.Context, text, remarks string) (*models.Task, error)

	// UpdateTask applies the fields set in patch and returns the result.
	// Returns ErrNotFound if no task has the id.
	UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)

	// DeleteTask removes a task. Returns ErrNotFound if no task has the id.
	DeleteTask(ctx context.Context, id string) error
}

var (
	// ErrNotFound is returned when no task matches an id.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTask is returned for input the store will not accept.
	ErrInvalidTask = errors.New("invalid task")
)

// StorageError reports a failure of the underlying database or transport.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidTask, err)
}

// OriginHeader carries the id of the client that issued a request.
const OriginHeader = "X-Tasklog-Client"

type originKey struct{}

// WithOrigin tags ctx with the id of the client that issued a request.
func WithOrigin(ctx context.Context, origin string) context.Context {
	if origin == "" {
		return ctx
	}
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the client id stored by WithOrigin, or "".
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}
