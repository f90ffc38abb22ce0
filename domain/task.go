package domain

import "time"

// Status is the lifecycle state of a task. The three states are freely
// transitionable; there is no enforced forward-only workflow.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Priority orders tasks by importance.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank returns the sort weight of a priority, high first. Unknown values
// rank with medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// MinTitleLen is the minimum accepted length of a task title.
const MinTitleLen = 3

// Task represents a single tracked item. OwnerID is set at creation and
// never changes; every read and write is scoped by it.
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Progress    int        `json:"progress"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskUpdate is a partial update. A nil field means "leave unchanged";
// a non-nil field overwrites the stored value, so absence versus an
// explicit zero is decided by the type, not by sentinel comparison.
type TaskUpdate struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *Status    `json:"status"`
	Priority    *Priority  `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	Progress    *int       `json:"progress"`
}

// Empty reports whether the update carries no fields at all.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil &&
		u.Priority == nil && u.DueDate == nil && u.Progress == nil
}

// Validate checks every supplied field against the model constraints.
func (u TaskUpdate) Validate() error {
	var fields []FieldError
	if u.Title != nil {
		if err := ValidateTitle(*u.Title); err != nil {
			fields = append(fields, err.Fields...)
		}
	}
	if u.Status != nil && !u.Status.Valid() {
		fields = append(fields, FieldError{Field: "status", Message: "Invalid status value"})
	}
	if u.Priority != nil && !u.Priority.Valid() {
		fields = append(fields, FieldError{Field: "priority", Message: "Invalid priority value"})
	}
	if u.Progress != nil && (*u.Progress < 0 || *u.Progress > 100) {
		fields = append(fields, FieldError{Field: "progress", Message: "Progress must be between 0 and 100"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Apply merges the supplied fields into t and refreshes UpdatedAt.
// When the update moves the task to completed without an explicit
// progress of at least 100, progress is forced to 100.
func (u TaskUpdate) Apply(t *Task, now time.Time) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.DueDate != nil {
		due := *u.DueDate
		t.DueDate = &due
	}
	if u.Progress != nil {
		t.Progress = *u.Progress
	}
	if u.Status != nil && *u.Status == StatusCompleted && (u.Progress == nil || *u.Progress < 100) {
		t.Progress = 100
	}
	t.UpdatedAt = now
}

// ValidateTitle checks the title constraints shared by create and update.
func ValidateTitle(title string) *ValidationError {
	if title == "" {
		return &ValidationError{Fields: []FieldError{{Field: "title", Message: "Title is required"}}}
	}
	if len(title) < MinTitleLen {
		return &ValidationError{Fields: []FieldError{{Field: "title", Message: "Title must be at least 3 characters"}}}
	}
	return nil
}
