// Package client talks to a tasklog server. *Client implements
// services.Store, so the synchronization controller works the same against
// a remote server as against a local database.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"tasklog/app/events"
	"tasklog/app/models"
	"tasklog/app/services"
)

// Client is an HTTP client for the task API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	origin  string
}

var _ services.Store = (*Client)(nil)

// New creates a client for the server at serverURL. origin identifies this
// client in invalidation events; a random id is used when it is empty.
func New(serverURL string, timeout time.Duration, origin string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must use http or https", serverURL)
	}
	if origin == "" {
		origin = uuid.NewString()
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		origin:  origin,
	}, nil
}

// Origin returns the id sent with every request.
func (c *Client) Origin() string { return c.origin }

// ListTasks implements services.Store.
func (c *Client) ListTasks(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	if err := c.do(ctx, "list tasks", http.MethodGet, "tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches a single task.
func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, "get task", http.MethodGet, "tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask implements services.Store.
func (c *Client) CreateTask(ctx context.Context, text, remarks string) (*models.Task, error) {
	body := map[string]string{"text": text, "remarks": remarks}
	var task models.Task
	if err := c.do(ctx, "create task", http.MethodPost, "tasks", body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask implements services.Store.
func (c *Client) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, "update task", http.MethodPatch, "tasks/"+url.PathEscape(id), patch, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask implements services.Store.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, "delete task", http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(services.OriginHeader, c.origin)

	resp, err := c.http.Do(req)
	if err != nil {
		return &services.StorageError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, services.ErrNotFound)
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%s: %w: %s", op, services.ErrInvalidTask, errorMessage(resp))
	case resp.StatusCode >= 300:
		return &services.StorageError{Op: op, Err: fmt.Errorf("server returned %s: %s", resp.Status, errorMessage(resp))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &services.StorageError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func errorMessage(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return string(bytes.TrimSpace(data))
}

// Watch streams invalidation events to fn until ctx is done or the
// connection drops. It returns nil only when ctx ends.
func (c *Client) Watch(ctx context.Context, fn func(events.Event)) error {
	u := c.baseURL.JoinPath("ws")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: http.Header{services.OriginHeader: []string{c.origin}},
	})
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		var ev events.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("watch: decode event: %w", err)
		}
		if ev.Type == events.TypeInvalidate {
			fn(ev)
		}
	}
}
