package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"taskhub/domain"
	"taskhub/storage"
)

// ErrNotFound is reported for a missing task and for a task owned by a
// different user alike; the two cases are deliberately indistinguishable.
var ErrNotFound = storage.ErrTaskNotFound

// TaskStore abstracts task persistence for the service.
type TaskStore interface {
	InsertTask(ctx context.Context, t domain.Task) error
	TasksByOwner(ctx context.Context, ownerID string, status domain.Status) ([]domain.Task, error)
	TaskByID(ctx context.Context, ownerID, taskID string) (domain.Task, error)
	ReplaceTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

// TaskService applies the task business rules on top of a TaskStore:
// owner scoping, validation, defaults and the partial-update merge.
type TaskService struct {
	store TaskStore
	now   func() time.Time
}

func NewTaskService(store TaskStore) *TaskService {
	return &TaskService{store: store, now: time.Now}
}

// Create validates the input, fills in defaults and stores a new task
// owned by ownerID.
func (s *TaskService) Create(ctx context.Context, ownerID, title, description string, status domain.Status) (domain.Task, error) {
	if err := domain.ValidateTitle(title); err != nil {
		return domain.Task{}, err
	}
	if status == "" {
		status = domain.StatusTodo
	} else if !status.Valid() {
		return domain.Task{}, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "status", Message: "Invalid status value"},
		}}
	}

	now := s.now().UTC()
	task := domain.Task{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Status:      status,
		Priority:    domain.PriorityMedium,
		Progress:    0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// List returns the owner's tasks newest first. A statusFilter that is
// not one of the three known states is ignored and the full list is
// returned.
func (s *TaskService) List(ctx context.Context, ownerID, statusFilter string) ([]domain.Task, error) {
	status := domain.Status(statusFilter)
	if !status.Valid() {
		status = ""
	}
	tasks, err := s.store.TasksByOwner(ctx, ownerID, status)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Get fetches one task scoped to its owner.
func (s *TaskService) Get(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	return s.store.TaskByID(ctx, ownerID, taskID)
}

// Update merges the supplied fields into the stored task. Fields absent
// from the patch keep their prior values; completion without an explicit
// progress of at least 100 forces progress to 100.
func (s *TaskService) Update(ctx context.Context, ownerID, taskID string, patch domain.TaskUpdate) (domain.Task, error) {
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}
	task, err := s.store.TaskByID(ctx, ownerID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	patch.Apply(&task, s.now().UTC())
	if err := s.store.ReplaceTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// Delete permanently removes the owner's task.
func (s *TaskService) Delete(ctx context.Context, ownerID, taskID string) error {
	return s.store.DeleteTask(ctx, ownerID, taskID)
}

// IsNotFound reports whether err is the combined missing/not-owned case.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
