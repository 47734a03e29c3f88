package services

import (
	"context"
	"fmt"
	"time"

	"tasklog/app/models"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const neo4jReturnTask = "RETURN t.id AS id, t.text AS text, t.remarks AS remarks, " +
	"t.completed AS completed, t.created_at AS created_at, t.updated_at AS updated_at"

// Neo4jStore persists tasks as (:Task) nodes.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	now      func() time.Time
}

// NewNeo4jStore creates a store on an existing driver. database may be empty
// to use the server default.
func NewNeo4jStore(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{driver: driver, database: database, now: time.Now}
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// InitSchema creates the uniqueness constraint and ordering index.
func (s *Neo4jStore) InitSchema(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range []string{
		"CREATE CONSTRAINT task_id IF NOT EXISTS FOR (t:Task) REQUIRE t.id IS UNIQUE",
		"CREATE INDEX task_created_at IF NOT EXISTS FOR (t:Task) ON (t.created_at)",
	} {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return storageErr("init schema", err)
		}
	}
	return nil
}

// ListTasks retrieves all tasks, newest first.
func (s *Neo4jStore) ListTasks(ctx context.Context) ([]models.Task, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (t:Task) "+neo4jReturnTask+" ORDER BY t.created_at DESC, t.id DESC",
			nil,
		)
		if err != nil {
			return nil, err
		}

		tasks := []models.Task{}
		for res.Next(ctx) {
			t, err := recordToTask(res.Record())
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return tasks, nil
	})
	if err != nil {
		return nil, storageErr("list tasks", err)
	}
	return result.([]models.Task), nil
}

// GetTask retrieves a single task by its id.
func (s *Neo4jStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (t:Task {id: $id}) "+neo4jReturnTask, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return singleTask(ctx, res)
	})
	if err != nil {
		return nil, storageErr("get task", err)
	}
	if result == nil {
		return nil, ErrNotFound
	}
	t := result.(models.Task)
	return &t, nil
}

// CreateTask adds a new incomplete task node.
func (s *Neo4jStore) CreateTask(ctx context.Context, text, remarks string) (*models.Task, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, storageErr("generate id", err)
	}
	now := s.now().UTC()
	task := &models.Task{
		ID:        id.String(),
		Text:      text,
		Remarks:   remarks,
		CreatedAt: now,
		UpdatedAt: now,
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"CREATE (t:Task {id: $id, text: $text, remarks: $remarks, completed: false, "+
				"created_at: $now, updated_at: $now})",
			map[string]any{
				"id":      task.ID,
				"text":    task.Text,
				"remarks": task.Remarks,
				"now":     now.UnixNano(),
			},
		)
		return nil, err
	})
	if err != nil {
		return nil, storageErr("create task", err)
	}
	return task, nil
}

// UpdateTask sets the patched properties on the matching node.
func (s *Neo4jStore) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, invalid(err)
	}

	props := map[string]any{"updated_at": s.now().UTC().UnixNano()}
	if patch.Text != nil {
		props["text"] = *patch.Text
	}
	if patch.Remarks != nil {
		props["remarks"] = *patch.Remarks
	}
	if patch.Completed != nil {
		props["completed"] = *patch.Completed
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (t:Task {id: $id}) SET t += $props "+neo4jReturnTask,
			map[string]any{"id": id, "props": props},
		)
		if err != nil {
			return nil, err
		}
		return singleTask(ctx, res)
	})
	if err != nil {
		return nil, storageErr("update task", err)
	}
	if result == nil {
		return nil, ErrNotFound
	}
	t := result.(models.Task)
	return &t, nil
}

// DeleteTask deletes the node and its relationships.
func (s *Neo4jStore) DeleteTask(ctx context.Context, id string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	deleted, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (t:Task {id: $id}) DETACH DELETE t", map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().NodesDeleted(), nil
	})
	if err != nil {
		return storageErr("delete task", err)
	}
	if deleted.(int) == 0 {
		return ErrNotFound
	}
	return nil
}

// singleTask reads at most one task from res. It returns a nil any when the
// result is empty so callers can map that to ErrNotFound.
func singleTask(ctx context.Context, res neo4j.ResultWithContext) (any, error) {
	if !res.Next(ctx) {
		return nil, res.Err()
	}
	return recordToTask(res.Record())
}

func recordToTask(record *neo4j.Record) (models.Task, error) {
	var t models.Task
	var ok bool

	values := record.AsMap()
	if t.ID, ok = values["id"].(string); !ok {
		return t, fmt.Errorf("task record has no id")
	}
	t.Text, _ = values["text"].(string)
	t.Remarks, _ = values["remarks"].(string)
	t.Completed, _ = values["completed"].(bool)
	created, _ := values["created_at"].(int64)
	updated, _ := values["updated_at"].(int64)
	t.CreatedAt = time.Unix(0, created).UTC()
	t.UpdatedAt = time.Unix(0, updated).UTC()
	return t, nil
}
