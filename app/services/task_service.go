package services

import (
	"context"
	"log/slog"

	"tasklog/app/models"
)

// IndexRoute is the display route whose rendering depends on the task list.
const IndexRoute = "/"

// Invalidator is told when cached renderings of a route are stale.
type Invalidator interface {
	Invalidate(ctx context.Context, route string)
}

// Getter is implemented by stores that can fetch a single task.
type Getter interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
}

// TaskService handles task-related operations on top of a Store.
type TaskService struct {
	store       Store
	invalidator Invalidator
	logger      *slog.Logger
}

// NewTaskService creates a new instance of TaskService. invalidator may be nil.
func NewTaskService(store Store, invalidator Invalidator, logger *slog.Logger) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{store: store, invalidator: invalidator, logger: logger}
}

// GetTasks retrieves all tasks, newest first.
func (s *TaskService) GetTasks(ctx context.Context) ([]models.Task, error) {
	return s.store.ListTasks(ctx)
}

// GetTaskByID retrieves a single task by its ID.
func (s *TaskService) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	if g, ok := s.store.(Getter); ok {
		return g.GetTask(ctx, id)
	}
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i], nil
		}
	}
	return nil, ErrNotFound
}

// CreateTask adds a new task. The text must be non-empty after trimming.
func (s *TaskService) CreateTask(ctx context.Context, text, remarks string) (*models.Task, error) {
	if err := models.ValidateNew(text); err != nil {
		return nil, invalid(err)
	}
	task, err := s.store.CreateTask(ctx, text, remarks)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("task created", "id", task.ID)
	s.invalidate(ctx)
	return task, nil
}

// UpdateTask applies a partial update to an existing task.
func (s *TaskService) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, invalid(err)
	}
	task, err := s.store.UpdateTask(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("task updated", "id", id)
	s.invalidate(ctx)
	return task, nil
}

// DeleteTask deletes a task.
func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("task deleted", "id", id)
	s.invalidate(ctx)
	return nil
}

func (s *TaskService) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, IndexRoute)
	}
}
