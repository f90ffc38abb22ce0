package api

import (
	"context"

	"taskhub/domain"
)

// UserStore abstracts user persistence for the Auth component.
type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) error
	UserByEmail(ctx context.Context, email string) (domain.User, error)
	UserByID(ctx context.Context, id string) (domain.User, error)
}

// TaskService is the business-rule layer the task handlers call into.
type TaskService interface {
	Create(ctx context.Context, ownerID, title, description string, status domain.Status) (domain.Task, error)
	List(ctx context.Context, ownerID, statusFilter string) ([]domain.Task, error)
	Get(ctx context.Context, ownerID, taskID string) (domain.Task, error)
	Update(ctx context.Context, ownerID, taskID string, patch domain.TaskUpdate) (domain.Task, error)
	Delete(ctx context.Context, ownerID, taskID string) error
}

// Authenticator is implemented by types able to resolve a bearer header
// to a user identity.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
