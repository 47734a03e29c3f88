package models

import (
	"errors"
	"strings"
	"time"
)

// Task is a single tracked item.
type Task struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Remarks   string    `json:"remarks"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Text      *string `json:"text,omitempty"`
	Remarks   *string `json:"remarks,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

var (
	// ErrEmptyText is returned when a new task has no text after trimming.
	ErrEmptyText = errors.New("task text is required")
	// ErrEmptyPatch is returned when an update names no fields.
	ErrEmptyPatch = errors.New("update must set at least one of text, remarks, completed")
)

// ValidateNew checks the fields of a task about to be created.
func ValidateNew(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return nil
}

// IsEmpty reports whether the patch sets no fields.
func (p TaskPatch) IsEmpty() bool {
	return p.Text == nil && p.Remarks == nil && p.Completed == nil
}

// Validate checks that the patch names at least one field.
func (p TaskPatch) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	return nil
}

// Apply returns a copy of t with the patch fields set.
func (p TaskPatch) Apply(t Task) Task {
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Remarks != nil {
		t.Remarks = *p.Remarks
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	return t
}

// SetText returns a patch that only changes the text.
func SetText(text string) TaskPatch { return TaskPatch{Text: &text} }

// SetRemarks returns a patch that only changes the remarks.
func SetRemarks(remarks string) TaskPatch { return TaskPatch{Remarks: &remarks} }

// SetCompleted returns a patch that only changes the completion flag.
func SetCompleted(completed bool) TaskPatch { return TaskPatch{Completed: &completed} }

// Less orders tasks newest first, ties broken by id descending.
func Less(a, b Task) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
