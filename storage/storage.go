package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskhub/domain"
)

var (
	// ErrTaskNotFound covers both a missing task and a task owned by a
	// different user; callers cannot tell the two apart.
	ErrTaskNotFound = errors.New("task not found")
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// usersPartition keys every user row; uniqueness of the email comes from
// the RowKey insert conflict.
const usersPartition = "user"

// Storage provides access to the underlying table persistence.
type Storage struct {
	userTable *aztables.Client
	taskTable *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, usersTable, tasksTable string) (*Storage, error) {
	clientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &clientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		userTable: svc.NewClient(usersTable),
		taskTable: svc.NewClient(tasksTable),
	}, nil
}

type userEntity struct {
	aztables.Entity
	ID           string `json:"ID"`
	Name         string `json:"Name"`
	PasswordHash string `json:"PasswordHash"`
	CreatedAt    string `json:"CreatedAt"`
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Status      string `json:"Status"`
	Priority    string `json:"Priority"`
	DueDate     string `json:"DueDate"`
	Progress    int    `json:"Progress"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

// CreateUser inserts a new user row keyed by email. A key conflict on
// insert is reported as ErrEmailTaken.
func (s *Storage) CreateUser(ctx context.Context, u domain.User) error {
	ent := userEntity{
		Entity: aztables.Entity{
			PartitionKey: usersPartition,
			RowKey:       strings.ToLower(u.Email),
		},
		ID:           u.ID,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.userTable.AddEntity(ctx, data, nil); err != nil {
		if hasStatusCode(err, http.StatusConflict) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

// UserByEmail looks up a user by the email the row is keyed on.
func (s *Storage) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	resp, err := s.userTable.GetEntity(ctx, usersPartition, strings.ToLower(email), nil)
	if err != nil {
		if hasStatusCode(err, http.StatusNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return decodeUserEntity(resp.Value)
}

// UserByID scans the user partition for a matching ID property.
func (s *Storage) UserByID(ctx context.Context, id string) (domain.User, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s' and ID eq '%s'", usersPartition, sanitizeKey(id))
	pager := s.userTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return domain.User{}, err
		}
		for _, e := range resp.Entities {
			return decodeUserEntity(e)
		}
	}
	return domain.User{}, ErrUserNotFound
}

// InsertTask stores a freshly created task.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	data, err := json.Marshal(encodeTaskEntity(t))
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, data, nil)
	return err
}

// TasksByOwner returns all tasks in the owner's partition, optionally
// restricted to one status. Ordering is left to the caller.
func (s *Storage) TasksByOwner(ctx context.Context, ownerID string, status domain.Status) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + sanitizeKey(ownerID) + "'"
	if status != "" {
		filter += " and Status eq '" + string(status) + "'"
	}
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			task, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// TaskByID fetches a single task from the owner's partition. A row in
// another user's partition is indistinguishable from a missing one.
func (s *Storage) TaskByID(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, ownerID, taskID, nil)
	if err != nil {
		if hasStatusCode(err, http.StatusNotFound) {
			return domain.Task{}, ErrTaskNotFound
		}
		return domain.Task{}, err
	}
	return decodeTaskEntity(resp.Value)
}

// ReplaceTask overwrites the stored row with the merged task.
func (s *Storage) ReplaceTask(ctx context.Context, t domain.Task) error {
	data, err := json.Marshal(encodeTaskEntity(t))
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{
		UpdateMode: aztables.UpdateModeReplace,
	})
	return err
}

// DeleteTask permanently removes the row.
func (s *Storage) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if _, err := s.taskTable.DeleteEntity(ctx, ownerID, taskID, nil); err != nil {
		if hasStatusCode(err, http.StatusNotFound) {
			return ErrTaskNotFound
		}
		return err
	}
	return nil
}

func encodeTaskEntity(t domain.Task) taskEntity {
	ent := taskEntity{
		Entity: aztables.Entity{
			PartitionKey: t.OwnerID,
			RowKey:       t.ID,
		},
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Progress:    t.Progress,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.DueDate != nil {
		ent.DueDate = t.DueDate.UTC().Format(time.RFC3339Nano)
	}
	return ent
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	task := domain.Task{
		ID:          ent.RowKey,
		OwnerID:     ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      domain.Status(ent.Status),
		Priority:    domain.Priority(ent.Priority),
		Progress:    ent.Progress,
	}
	var err error
	if task.CreatedAt, err = parseEntityTime(ent.CreatedAt); err != nil {
		return domain.Task{}, err
	}
	if task.UpdatedAt, err = parseEntityTime(ent.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	if ent.DueDate != "" {
		due, err := parseEntityTime(ent.DueDate)
		if err != nil {
			return domain.Task{}, err
		}
		task.DueDate = &due
	}
	return task, nil
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	createdAt, err := parseEntityTime(ent.CreatedAt)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:           ent.ID,
		Name:         ent.Name,
		Email:        ent.RowKey,
		PasswordHash: ent.PasswordHash,
		CreatedAt:    createdAt,
	}, nil
}

func parseEntityTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

// sanitizeKey keeps user-supplied values from breaking out of an OData
// string literal.
func sanitizeKey(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func hasStatusCode(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
