package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tasklog/app/models"
)

type recordingInvalidator struct {
	mu      sync.Mutex
	routes  []string
	origins []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
	r.origins = append(r.origins, OriginFrom(ctx))
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes)
}

func newTestService(t *testing.T) (*TaskService, *recordingInvalidator) {
	t.Helper()
	inv := &recordingInvalidator{}
	return NewTaskService(newTestSQLStore(t), inv, nil), inv
}

func TestTaskService_MutationsInvalidate(t *testing.T) {
	svc, inv := newTestService(t)
	ctx := WithOrigin(context.Background(), "client-1")

	task, err := svc.CreateTask(ctx, "Buy milk", "urgent")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := svc.UpdateTask(ctx, task.ID, models.SetCompleted(true)); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if err := svc.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}

	if got := inv.count(); got != 3 {
		t.Fatalf("invalidations = %d, want 3", got)
	}
	for i, route := range inv.routes {
		if route != IndexRoute {
			t.Errorf("invalidation %d route = %q, want %q", i, route, IndexRoute)
		}
		if inv.origins[i] != "client-1" {
			t.Errorf("invalidation %d origin = %q, want client-1", i, inv.origins[i])
		}
	}
}

func TestTaskService_FailuresDoNotInvalidate(t *testing.T) {
	svc, inv := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateTask(ctx, "   ", ""); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("CreateTask(blank) = %v, want ErrInvalidTask", err)
	}
	if _, err := svc.UpdateTask(ctx, "missing", models.SetText("x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTask(missing) = %v, want ErrNotFound", err)
	}
	if _, err := svc.UpdateTask(ctx, "missing", models.TaskPatch{}); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("UpdateTask(empty) = %v, want ErrInvalidTask", err)
	}
	if err := svc.DeleteTask(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteTask(missing) = %v, want ErrNotFound", err)
	}

	if got := inv.count(); got != 0 {
		t.Errorf("invalidations = %d, want 0", got)
	}
}

func TestTaskService_GetTaskByID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, "Buy milk", "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	got, err := svc.GetTaskByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTaskByID: %v", err)
	}
	if got.ID != task.ID {
		t.Errorf("GetTaskByID returned %s, want %s", got.ID, task.ID)
	}
	if _, err := svc.GetTaskByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTaskByID(missing) = %v, want ErrNotFound", err)
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("connection refused")
	err := storageErr("list tasks", cause)

	if !errors.Is(err, cause) {
		t.Error("StorageError should unwrap to its cause")
	}
	if !IsStorageError(err) {
		t.Error("IsStorageError should recognise *StorageError")
	}
	if IsStorageError(ErrNotFound) {
		t.Error("ErrNotFound is not a storage error")
	}
	if want := "storage: list tasks: connection refused"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
