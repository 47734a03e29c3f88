// Package views renders the server-side records log.
package views

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"

	"tasklog/app/models"
	"tasklog/app/services"
)

// Lister returns the current tasks, newest first.
type Lister interface {
	GetTasks(ctx context.Context) ([]models.Task, error)
}

var recordsTemplate = template.Must(template.New("records").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Task Data Entry</title>
</head>
<body>
    <h1>Task Data Entry</h1>
    <h2>Records Log ({{len .}})</h2>
    {{- if not .}}
    <p class="empty">No records found.</p>
    {{- else}}
    <table>
        <thead><tr><th>Done</th><th>Task</th><th>Remarks</th><th>Created</th></tr></thead>
        <tbody>
        {{- range .}}
        <tr id="task-{{.ID}}"{{if .Completed}} class="completed"{{end}}>
            <td>{{if .Completed}}&#x2713;{{end}}</td>
            <td>{{.Text}}</td>
            <td>{{.Remarks}}</td>
            <td>{{.CreatedAt.Format "2006-01-02 15:04"}}</td>
        </tr>
        {{- end}}
        </tbody>
    </table>
    {{- end}}
</body>
</html>
`))

// RecordsPage caches the rendered records log until it is invalidated.
type RecordsPage struct {
	lister Lister

	mu         sync.Mutex
	cached     []byte
	generation uint64
	renders    int
}

// NewRecordsPage creates a page that reads tasks from lister.
func NewRecordsPage(lister Lister) *RecordsPage {
	return &RecordsPage{lister: lister}
}

// Render returns the cached page, rendering it first if needed.
func (p *RecordsPage) Render(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	if p.cached != nil {
		out := p.cached
		p.mu.Unlock()
		return out, nil
	}
	gen := p.generation
	p.mu.Unlock()

	tasks, err := p.lister.GetTasks(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := recordsTemplate.Execute(&buf, tasks); err != nil {
		return nil, fmt.Errorf("render records: %w", err)
	}
	out := buf.Bytes()

	p.mu.Lock()
	p.renders++
	// An invalidation during rendering means tasks may already be stale.
	if p.generation == gen {
		p.cached = out
	}
	p.mu.Unlock()
	return out, nil
}

// Invalidate drops the cached page when route is the one it renders.
func (p *RecordsPage) Invalidate(route string) {
	if route != services.IndexRoute {
		return
	}
	p.mu.Lock()
	p.cached = nil
	p.generation++
	p.mu.Unlock()
}

// Renders reports how many times the page was rendered from the store.
func (p *RecordsPage) Renders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renders
}
