package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tasklog/app/controllers"
	"tasklog/app/models"
	"tasklog/app/routes"
	"tasklog/app/services"
	"tasklog/app/testutil"
	"tasklog/app/views"
)

type recordingInvalidator struct {
	origins []string
	page    *views.RecordsPage
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, route string) {
	r.origins = append(r.origins, services.OriginFrom(ctx))
	r.page.Invalidate(route)
}

type testServer struct {
	handler http.Handler
	store   *testutil.FakeStore
	inv     *recordingInvalidator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := testutil.NewFakeStore()
	inv := &recordingInvalidator{}
	svc := services.NewTaskService(store, inv, logger)
	inv.page = views.NewRecordsPage(svc)

	router := routes.NewRouter(logger,
		controllers.NewTaskController(svc, logger),
		controllers.NewPageController(inv.page, func() int { return 2 }, logger),
		nil,
	)
	return &testServer{handler: router, store: store, inv: inv}
}

func (s *testServer) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestCreateAndListTasks(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/tasks", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("GET /tasks on empty store = %d %q, want 200 []", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/tasks", `{"text":"Buy milk","remarks":"2 litres"}`, services.OriginHeader, "client-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /tasks = %d, want 201: %s", w.Code, w.Body.String())
	}
	created := decode[models.Task](t, w)
	if created.ID == "" || created.Text != "Buy milk" || created.Remarks != "2 litres" || created.Completed {
		t.Errorf("created task = %+v", created)
	}

	s.do(t, http.MethodPost, "/tasks", `{"text":"Walk dog"}`)

	w = s.do(t, http.MethodGet, "/tasks", "")
	tasks := decode[[]models.Task](t, w)
	if len(tasks) != 2 || tasks[0].Text != "Walk dog" || tasks[1].Text != "Buy milk" {
		t.Errorf("GET /tasks = %+v, want newest first", tasks)
	}

	if len(s.inv.origins) != 2 || s.inv.origins[0] != "client-1" || s.inv.origins[1] != "" {
		t.Errorf("invalidation origins = %q", s.inv.origins)
	}
}

func TestCreateTask_BadRequest(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"text":`},
		{name: "blank text", body: `{"text":"   "}`},
		{name: "missing text", body: `{"remarks":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/tasks", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if msg := decode[map[string]string](t, w)["error"]; msg == "" {
				t.Error("missing error message")
			}
		})
	}
	if got := s.store.CreateCalls(); got != 0 {
		t.Errorf("store CreateTask calls = %d, want 0", got)
	}
}

func TestUpdateTask(t *testing.T) {
	s := newTestServer(t)
	task := s.store.Seed("Buy milk", "", false)

	for _, method := range []string{http.MethodPatch, http.MethodPut} {
		w := s.do(t, method, "/tasks/"+task.ID, `{"completed":true,"remarks":"done"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("%s = %d: %s", method, w.Code, w.Body.String())
		}
		got := decode[models.Task](t, w)
		if !got.Completed || got.Remarks != "done" || got.Text != "Buy milk" {
			t.Errorf("%s result = %+v", method, got)
		}
	}

	// Empty text is accepted on update.
	w := s.do(t, http.MethodPatch, "/tasks/"+task.ID, `{"text":""}`)
	if w.Code != http.StatusOK {
		t.Errorf("PATCH empty text = %d, want 200", w.Code)
	}

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{name: "empty patch", path: "/tasks/" + task.ID, body: `{}`, want: http.StatusBadRequest},
		{name: "malformed", path: "/tasks/" + task.ID, body: `nope`, want: http.StatusBadRequest},
		{name: "missing", path: "/tasks/missing", body: `{"completed":true}`, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do(t, http.MethodPatch, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestGetAndDeleteTask(t *testing.T) {
	s := newTestServer(t)
	task := s.store.Seed("Buy milk", "", false)

	w := s.do(t, http.MethodGet, "/tasks/"+task.ID, "")
	if w.Code != http.StatusOK || decode[models.Task](t, w).ID != task.ID {
		t.Fatalf("GET task = %d %s", w.Code, w.Body.String())
	}

	if w := s.do(t, http.MethodDelete, "/tasks/"+task.ID, ""); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE = %d, want 204", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/tasks/"+task.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/tasks/"+task.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("GET deleted = %d, want 404", w.Code)
	}
}

func TestStorageFailureIs500(t *testing.T) {
	s := newTestServer(t)
	task := s.store.Seed("Buy milk", "", false)
	s.store.SetErrors(errors.New("db down"), errors.New("db down"), errors.New("db down"), errors.New("db down"))

	requests := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/tasks", ""},
		{http.MethodPost, "/tasks", `{"text":"x"}`},
		{http.MethodPatch, "/tasks/" + task.ID, `{"completed":true}`},
		{http.MethodDelete, "/tasks/" + task.ID, ""},
		{http.MethodGet, "/", ""},
	}
	for _, req := range requests {
		w := s.do(t, req.method, req.path, req.body)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("%s %s = %d, want 500", req.method, req.path, w.Code)
		}
		if bytes.Contains(w.Body.Bytes(), []byte("db down")) {
			t.Errorf("%s %s leaked the storage error", req.method, req.path)
		}
	}
	if len(s.inv.origins) != 0 {
		t.Errorf("failed mutations invalidated %d times", len(s.inv.origins))
	}
}

func TestIndexPageRefreshesAfterMutation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "No records found.") {
		t.Fatalf("GET / = %d %s", w.Code, w.Body.String())
	}

	s.do(t, http.MethodPost, "/tasks", `{"text":"Buy milk"}`)

	w = s.do(t, http.MethodGet, "/", "")
	if !strings.Contains(w.Body.String(), "Records Log (1)") || !strings.Contains(w.Body.String(), "Buy milk") {
		t.Errorf("GET / after create = %s", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	got := decode[map[string]any](t, w)
	if got["status"] != "ok" || got["clients"] != float64(2) {
		t.Errorf("health = %v", got)
	}
}
