package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskhub/domain"
	"taskhub/service"
	"taskhub/storage"
)

type mockTaskService struct {
	createFn func(ctx context.Context, ownerID, title, description string, status domain.Status) (domain.Task, error)
	listFn   func(ctx context.Context, ownerID, statusFilter string) ([]domain.Task, error)
	getFn    func(ctx context.Context, ownerID, taskID string) (domain.Task, error)
	updateFn func(ctx context.Context, ownerID, taskID string, patch domain.TaskUpdate) (domain.Task, error)
	deleteFn func(ctx context.Context, ownerID, taskID string) error
}

func (m *mockTaskService) Create(ctx context.Context, ownerID, title, description string, status domain.Status) (domain.Task, error) {
	return m.createFn(ctx, ownerID, title, description, status)
}

func (m *mockTaskService) List(ctx context.Context, ownerID, statusFilter string) ([]domain.Task, error) {
	return m.listFn(ctx, ownerID, statusFilter)
}

func (m *mockTaskService) Get(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	return m.getFn(ctx, ownerID, taskID)
}

func (m *mockTaskService) Update(ctx context.Context, ownerID, taskID string, patch domain.TaskUpdate) (domain.Task, error) {
	return m.updateFn(ctx, ownerID, taskID, patch)
}

func (m *mockTaskService) Delete(ctx context.Context, ownerID, taskID string) error {
	return m.deleteFn(ctx, ownerID, taskID)
}

func newTestServer(t *testing.T, tasks TaskService) (*echo.Echo, *Auth, string) {
	t.Helper()
	auth := NewAuth(newMockUsers(), []byte("test-secret"))
	_, token, err := auth.Register(context.Background(), "Jane", "jane@example.com", "hunter22")
	if err != nil {
		t.Fatalf("register test user: %v", err)
	}

	e := echo.New()
	Register(e, tasks, auth, log.New())
	return e, auth, token
}

func doRequest(e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetTasksReturnsEnvelope(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tasks := &mockTaskService{
		listFn: func(ctx context.Context, ownerID, filter string) ([]domain.Task, error) {
			return []domain.Task{{ID: "t1", OwnerID: ownerID, Title: "Buy milk", Status: domain.StatusTodo, Priority: domain.PriorityMedium, CreatedAt: created, UpdatedAt: created}}, nil
		},
	}
	e, _, token := newTestServer(t, tasks)

	rec := doRequest(e, http.MethodGet, "/api/tasks", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var resp listResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Count != 1 || len(resp.Data) != 1 || resp.Data[0].ID != "t1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetTasksPassesStatusFilter(t *testing.T) {
	var seenFilter string
	tasks := &mockTaskService{
		listFn: func(ctx context.Context, ownerID, filter string) ([]domain.Task, error) {
			seenFilter = filter
			return []domain.Task{}, nil
		},
	}
	e, _, token := newTestServer(t, tasks)

	rec := doRequest(e, http.MethodGet, "/api/tasks?status=completed", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if seenFilter != "completed" {
		t.Fatalf("expected filter to pass through, got %q", seenFilter)
	}
}

func TestTaskRoutesRequireAuth(t *testing.T) {
	tasks := &mockTaskService{}
	e, _, _ := newTestServer(t, tasks)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/tasks"},
		{http.MethodPost, "/api/tasks"},
		{http.MethodGet, "/api/tasks/t1"},
		{http.MethodPut, "/api/tasks/t1"},
		{http.MethodDelete, "/api/tasks/t1"},
		{http.MethodGet, "/api/auth/profile"},
	} {
		rec := doRequest(e, tc.method, tc.path, "", "{}")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", tc.method, tc.path, rec.Code)
		}
		var resp errorResponse
		if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Success || resp.Message == "" {
			t.Fatalf("%s %s: unexpected error envelope: %+v", tc.method, tc.path, resp)
		}
	}
}

func TestCreateTaskSuccess(t *testing.T) {
	tasks := &mockTaskService{
		createFn: func(ctx context.Context, ownerID, title, description string, status domain.Status) (domain.Task, error) {
			return domain.Task{ID: "t1", OwnerID: ownerID, Title: title, Description: description, Status: domain.StatusTodo, Priority: domain.PriorityMedium}, nil
		},
	}
	e, _, token := newTestServer(t, tasks)

	rec := doRequest(e, http.MethodPost, "/api/tasks", token, `{"title":"Buy milk"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Task created successfully") {
		t.Fatalf("missing message: %s", rec.Body.String())
	}
}

func TestCreateTaskValidationError(t *testing.T) {
	tasks := &mockTaskService{
		createFn: func(ctx context.Context, ownerID, title, description string, status domain.Status) (domain.Task, error) {
			return domain.Task{}, domain.ValidateTitle(title)
		},
	}
	e, _, token := newTestServer(t, tasks)

	rec := doRequest(e, http.MethodPost, "/api/tasks", token, `{"title":"ab"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var resp errorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Field != "title" {
		t.Fatalf("expected title field error, got %+v", resp)
	}
}

func TestCreateTaskRejectsUnknownFields(t *testing.T) {
	tasks := &mockTaskService{
		createFn: func(ctx context.Context, ownerID, title, description string, status domain.Status) (domain.Task, error) {
			t.Fatal("service must not be reached on a bad body")
			return domain.Task{}, nil
		},
	}
	e, _, token := newTestServer(t, tasks)

	rec := doRequest(e, http.MethodPost, "/api/tasks", token, `{"title":"Buy milk","owner":"someone-else"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestUpdateTaskDecodesPartialPatch(t *testing.T) {
	var seen domain.TaskUpdate
	tasks := &mockTaskService{
		updateFn: func(ctx context.Context, ownerID, taskID string, patch domain.TaskUpdate) (domain.Task, error) {
			seen = patch
			return domain.Task{ID: taskID, OwnerID: ownerID, Status: domain.StatusCompleted, Progress: 100}, nil
		},
	}
	e, _, token := newTestServer(t, tasks)

	rec := doRequest(e, http.MethodPut, "/api/tasks/t1", token, `{"status":"completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if seen.Status == nil || *seen.Status != domain.StatusCompleted {
		t.Fatalf("status not decoded: %+v", seen)
	}
	if seen.Title != nil || seen.Progress != nil || seen.DueDate != nil {
		t.Fatalf("absent fields must stay nil: %+v", seen)
	}
}

func TestTaskNotFoundMapsTo404(t *testing.T) {
	tasks := &mockTaskService{
		getFn: func(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
			return domain.Task{}, storage.ErrTaskNotFound
		},
		updateFn: func(ctx context.Context, ownerID, taskID string, patch domain.TaskUpdate) (domain.Task, error) {
			return domain.Task{}, storage.ErrTaskNotFound
		},
		deleteFn: func(ctx context.Context, ownerID, taskID string) error {
			return service.ErrNotFound
		},
	}
	e, _, token := newTestServer(t, tasks)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/tasks/missing", ""},
		{http.MethodPut, "/api/tasks/missing", "{}"},
		{http.MethodDelete, "/api/tasks/missing", ""},
	} {
		rec := doRequest(e, tc.method, tc.path, token, tc.body)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Task not found") {
			t.Fatalf("%s %s: unexpected body %s", tc.method, tc.path, rec.Body.String())
		}
	}
}

func TestStoreFailureHidesDetail(t *testing.T) {
	tasks := &mockTaskService{
		listFn: func(ctx context.Context, ownerID, filter string) ([]domain.Task, error) {
			return nil, errors.New("table storage exploded: connection string leaked")
		},
	}
	e, _, token := newTestServer(t, tasks)

	rec := doRequest(e, http.MethodGet, "/api/tasks", token, "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "exploded") {
		t.Fatalf("internal detail leaked to caller: %s", rec.Body.String())
	}
}

func TestRegisterEndpoint(t *testing.T) {
	e, _, _ := newTestServer(t, &mockTaskService{})

	rec := doRequest(e, http.MethodPost, "/api/auth/register", "", `{"name":"Bob","email":"bob@example.com","password":"hunter22"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool        `json:"success"`
		Data    authPayload `json:"data"`
	}
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Data.Token == "" || resp.Data.Email != "bob@example.com" {
		t.Fatalf("unexpected payload: %+v", resp)
	}

	dup := doRequest(e, http.MethodPost, "/api/auth/register", "", `{"name":"Bob","email":"bob@example.com","password":"hunter22"}`)
	if dup.Code != http.StatusBadRequest || !strings.Contains(dup.Body.String(), "already exists") {
		t.Fatalf("duplicate register: status=%d body=%s", dup.Code, dup.Body.String())
	}
}

func TestLoginEndpointInvalidCredentials(t *testing.T) {
	e, _, _ := newTestServer(t, &mockTaskService{})

	rec := doRequest(e, http.MethodPost, "/api/auth/login", "", `{"email":"jane@example.com","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid email or password") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestProfileEndpointOmitsPassword(t *testing.T) {
	e, _, token := newTestServer(t, &mockTaskService{})

	rec := doRequest(e, http.MethodGet, "/api/auth/profile", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "jane@example.com") {
		t.Fatalf("profile missing user data: %s", body)
	}
	if strings.Contains(strings.ToLower(body), "password") || strings.Contains(body, "$2a$") {
		t.Fatalf("password material leaked: %s", body)
	}
}
