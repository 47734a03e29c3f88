// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tasklog/app/models"
	"tasklog/app/services"
)

// Epoch is the creation time of the first task added to a FakeStore. Each
// later task is created one second after the previous one.
var Epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// UpdateCall records one UpdateTask invocation.
type UpdateCall struct {
	ID    string
	Patch models.TaskPatch
}

// FakeStore is an in-memory implementation of services.Store for testing.
type FakeStore struct {
	mu    sync.Mutex
	tasks map[string]models.Task
	seq   int

	lists   int
	creates int
	updates []UpdateCall
	deletes []string

	// Error injection for testing
	ListErr   error
	CreateErr error
	UpdateErr error
	DeleteErr error

	// Hooks run without the store lock held and may block to hold a call in
	// flight. AfterList runs once the listing has been read.
	AfterList    func()
	BeforeUpdate func(id string, patch models.TaskPatch)
	BeforeDelete func(id string)
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{tasks: make(map[string]models.Task)}
}

var _ services.Store = (*FakeStore)(nil)

// Seed adds a task directly, bypassing error injection and call counting.
func (f *FakeStore) Seed(text, remarks string, completed bool) models.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.newTaskLocked(text, remarks)
	t.Completed = completed
	f.tasks[t.ID] = t
	return t
}

func (f *FakeStore) newTaskLocked(text, remarks string) models.Task {
	f.seq++
	at := Epoch.Add(time.Duration(f.seq-1) * time.Second)
	return models.Task{
		ID:        fmt.Sprintf("task-%03d", f.seq),
		Text:      text,
		Remarks:   remarks,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Snapshot returns the stored tasks, newest first.
func (f *FakeStore) Snapshot() []models.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedLocked()
}

func (f *FakeStore) sortedLocked() []models.Task {
	out := make([]models.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return models.Less(out[i], out[j]) })
	return out
}

// ListTasks implements services.Store.
func (f *FakeStore) ListTasks(ctx context.Context) ([]models.Task, error) {
	f.mu.Lock()
	f.lists++
	err := f.ListErr
	var tasks []models.Task
	if err == nil {
		tasks = f.sortedLocked()
	}
	f.mu.Unlock()

	if f.AfterList != nil {
		f.AfterList()
	}
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask implements services.Store.
func (f *FakeStore) CreateTask(ctx context.Context, text, remarks string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	t := f.newTaskLocked(text, remarks)
	f.tasks[t.ID] = t
	return &t, nil
}

// UpdateTask implements services.Store.
func (f *FakeStore) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	if f.BeforeUpdate != nil {
		f.BeforeUpdate(id, patch)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, UpdateCall{ID: id, Patch: patch})
	if f.UpdateErr != nil {
		return nil, f.UpdateErr
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	t = patch.Apply(t)
	t.UpdatedAt = t.UpdatedAt.Add(time.Millisecond)
	f.tasks[id] = t
	return &t, nil
}

// DeleteTask implements services.Store.
func (f *FakeStore) DeleteTask(ctx context.Context, id string) error {
	if f.BeforeDelete != nil {
		f.BeforeDelete(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.tasks[id]; !ok {
		return services.ErrNotFound
	}
	delete(f.tasks, id)
	return nil
}

// SetErrors replaces every injected error under the store lock, for use while
// calls may be in flight.
func (f *FakeStore) SetErrors(list, create, update, del error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListErr, f.CreateErr, f.UpdateErr, f.DeleteErr = list, create, update, del
}

// ListCalls returns how many times ListTasks was called.
func (f *FakeStore) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

// CreateCalls returns how many times CreateTask was called.
func (f *FakeStore) CreateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

// Updates returns every UpdateTask call in order.
func (f *FakeStore) Updates() []UpdateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]UpdateCall(nil), f.updates...)
}

// Deletes returns the ids passed to DeleteTask in order.
func (f *FakeStore) Deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}
