// Package tasksync keeps a client's view of the task list in step with a
// services.Store.
//
// Toggles, edits and deletes are applied to the local view immediately and
// persisted in the background. A failed persistence call is reconciled by
// reloading the whole list. Adding a task waits for the store, since the
// store assigns the id.
//
// All view state lives in State and changes only through Reduce.
package tasksync

import (
	"slices"

	"tasklog/app/models"
)

// AddFailedNotice is shown when a new task could not be saved.
const AddFailedNotice = "Error adding task. Check DB connection."

// State is the client's view.
type State struct {
	Tasks        []models.Task // newest first
	DraftText    string
	DraftRemarks string
	Loading      bool   // a full reload is in flight
	Notice       string // blocking message for the user, empty when none
	Stale        bool   // another client changed the store since the last reload
}

// Action describes one change to State.
type Action interface{ action() }

type (
	LoadStarted  struct{}
	LoadFinished struct{ Tasks []models.Task }
	LoadFailed   struct{ Err error }

	DraftEdited struct{ Text, Remarks string }
	TaskAdded   struct{ Task models.Task }
	AddFailed   struct{ Err error }

	CompletionToggled struct{ ID string }
	TextEdited        struct{ ID, Text string }
	RemarksEdited     struct{ ID, Remarks string }
	TaskRemoved       struct{ ID string }

	// TaskConfirmed replaces a local task with the store's copy.
	TaskConfirmed struct{ Task models.Task }

	StoreInvalidated struct{}
	NoticeDismissed  struct{}
)

func (LoadStarted) action()       {}
func (LoadFinished) action()      {}
func (LoadFailed) action()        {}
func (DraftEdited) action()       {}
func (TaskAdded) action()         {}
func (AddFailed) action()         {}
func (CompletionToggled) action() {}
func (TextEdited) action()        {}
func (RemarksEdited) action()     {}
func (TaskRemoved) action()       {}
func (TaskConfirmed) action()     {}
func (StoreInvalidated) action()  {}
func (NoticeDismissed) action()   {}

// Reduce returns the state after a. It never modifies s or the slices it
// holds.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case LoadStarted:
		s.Loading = true
	case LoadFinished:
		s.Tasks = slices.Clone(a.Tasks)
		s.Loading = false
		s.Stale = false
	case LoadFailed:
		s.Loading = false

	case DraftEdited:
		s.DraftText, s.DraftRemarks = a.Text, a.Remarks
	case TaskAdded:
		s.Tasks = insertSorted(without(s.Tasks, a.Task.ID), a.Task)
		s.DraftText, s.DraftRemarks = "", ""
	case AddFailed:
		s.Notice = AddFailedNotice

	case CompletionToggled:
		s.Tasks = with(s.Tasks, a.ID, func(t *models.Task) { t.Completed = !t.Completed })
	case TextEdited:
		s.Tasks = with(s.Tasks, a.ID, func(t *models.Task) { t.Text = a.Text })
	case RemarksEdited:
		s.Tasks = with(s.Tasks, a.ID, func(t *models.Task) { t.Remarks = a.Remarks })
	case TaskRemoved:
		s.Tasks = without(s.Tasks, a.ID)
	case TaskConfirmed:
		s.Tasks = with(s.Tasks, a.Task.ID, func(t *models.Task) { *t = a.Task })

	case StoreInvalidated:
		s.Stale = true
	case NoticeDismissed:
		s.Notice = ""
	}
	return s
}

func indexOf(tasks []models.Task, id string) int {
	return slices.IndexFunc(tasks, func(t models.Task) bool { return t.ID == id })
}

// with returns a copy of tasks with fn applied to the task with the id, or
// tasks itself when there is none.
func with(tasks []models.Task, id string, fn func(*models.Task)) []models.Task {
	i := indexOf(tasks, id)
	if i < 0 {
		return tasks
	}
	out := slices.Clone(tasks)
	fn(&out[i])
	return out
}

func without(tasks []models.Task, id string) []models.Task {
	i := indexOf(tasks, id)
	if i < 0 {
		return tasks
	}
	out := make([]models.Task, 0, len(tasks)-1)
	out = append(out, tasks[:i]...)
	return append(out, tasks[i+1:]...)
}

func insertSorted(tasks []models.Task, t models.Task) []models.Task {
	i, _ := slices.BinarySearchFunc(tasks, t, func(e, target models.Task) int {
		if models.Less(e, target) {
			return -1
		}
		return 1
	})
	out := make([]models.Task, 0, len(tasks)+1)
	out = append(out, tasks[:i]...)
	out = append(out, t)
	return append(out, tasks[i:]...)
}
