package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasklog/app/models"

	"github.com/google/uuid"
)

// Dialect selects placeholder syntax for SQLStore queries.
type Dialect int

const (
	// DialectSQLite uses ? placeholders.
	DialectSQLite Dialect = iota
	// DialectPostgres uses $n placeholders.
	DialectPostgres
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id         TEXT PRIMARY KEY,
		text       TEXT NOT NULL,
		remarks    TEXT NOT NULL DEFAULT '',
		completed  BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at)`,
}

const taskColumns = `id, text, remarks, completed, created_at, updated_at`

// SQLStore persists tasks in a relational table through database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLStore wraps an open database. Call InitSchema before first use.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// InitSchema creates the tasks table if it does not exist. Idempotent.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storageErr("init schema", err)
		}
	}
	return nil
}

// Close releases the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

// rebind rewrites ? placeholders for the store's dialect.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t                models.Task
		created, updated int64
	)
	if err := row.Scan(&t.ID, &t.Text, &t.Remarks, &t.Completed, &created, &updated); err != nil {
		return nil, err
	}
	t.CreatedAt = time.Unix(0, created).UTC()
	t.UpdatedAt = time.Unix(0, updated).UTC()
	return &t, nil
}

// ListTasks returns all tasks ordered by creation time, newest first.
func (s *SQLStore) ListTasks(ctx context.Context) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, storageErr("list tasks", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, storageErr("scan task", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list tasks", err)
	}
	return tasks, nil
}

// GetTask returns a single task by id.
func (s *SQLStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get task", err)
	}
	return t, nil
}

// CreateTask inserts a new incomplete task with a time-ordered id.
func (s *SQLStore) CreateTask(ctx context.Context, text, remarks string) (*models.Task, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, storageErr("generate id", err)
	}
	now := s.now().UTC()
	t := &models.Task{
		ID:        id.String(),
		Text:      text,
		Remarks:   remarks,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		t.ID, t.Text, t.Remarks, t.Completed, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return nil, storageErr("insert task", err)
	}
	return t, nil
}

// UpdateTask applies the fields set in patch in a single statement.
func (s *SQLStore) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, invalid(err)
	}

	var (
		sets []string
		args []any
	)
	if patch.Text != nil {
		sets = append(sets, "text = ?")
		args = append(args, *patch.Text)
	}
	if patch.Remarks != nil {
		sets = append(sets, "remarks = ?")
		args = append(args, *patch.Remarks)
	}
	if patch.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, *patch.Completed)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now().UTC().UnixNano(), id)

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? RETURNING ` + taskColumns
	t, err := scanTask(s.db.QueryRowContext(ctx, s.rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("update task", err)
	}
	return t, nil
}

// DeleteTask removes a task by id.
func (s *SQLStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM tasks WHERE id = ?`), id)
	if err != nil {
		return storageErr("delete task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete task", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
